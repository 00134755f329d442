package github

import (
	"fmt"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/ericfisherdev/commentsync/internal/domain/model"
)

// hunkRanges holds the line spans of a file's patch hunks on each side.
type hunkRanges struct {
	Head []model.Range
	Base []model.Range
}

// patchRanges parses a GitHub file patch, which carries hunks without file
// headers, and returns the spans review comments may target: each hunk's new
// lines on the head side and its old lines on the base side.
func patchRanges(patch string) (hunkRanges, error) {
	var out hunkRanges
	if patch == "" {
		return out, nil
	}

	hunks, err := diff.ParseHunks([]byte(patch))
	if err != nil {
		return out, fmt.Errorf("parse patch hunks: %w", err)
	}

	for _, h := range hunks {
		if r, ok := span(h.NewStartLine, h.NewLines); ok {
			out.Head = append(out.Head, r)
		}
		if r, ok := span(h.OrigStartLine, h.OrigLines); ok {
			out.Base = append(out.Base, r)
		}
	}
	return out, nil
}

func span(start, lines int32) (model.Range, bool) {
	if start <= 0 || lines <= 0 {
		return model.Range{}, false
	}
	end := int(start + lines - 1)
	return model.Range{StartLine: int(start), StartColumn: 1, EndLine: end, EndColumn: 1}, true
}
