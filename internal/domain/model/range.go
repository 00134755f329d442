package model

import "fmt"

// Range is a 1-based, inclusive span of text in a document. Ranges are
// immutable values and compare structurally with ==.
type Range struct {
	StartLine   int `json:"startLineNumber"`
	StartColumn int `json:"startColumn"`
	EndLine     int `json:"endLineNumber"`
	EndColumn   int `json:"endColumn"`
}

// LineRange returns the zero-width range at column 1 of line.
func LineRange(line int) Range {
	return Range{StartLine: line, StartColumn: 1, EndLine: line, EndColumn: 1}
}

// ContainsLine reports whether line falls within the range's start and end lines.
func (r Range) ContainsLine(line int) bool {
	return line >= r.StartLine && line <= r.EndLine
}

// IsEmpty reports whether the range starts and ends at the same position.
func (r Range) IsEmpty() bool {
	return r.StartLine == r.EndLine && r.StartColumn == r.EndColumn
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d -> %d,%d]", r.StartLine, r.StartColumn, r.EndLine, r.EndColumn)
}
