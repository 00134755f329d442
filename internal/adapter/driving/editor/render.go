package editor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ericfisherdev/commentsync/internal/domain/model"
)

var (
	mdRenderer    goldmark.Markdown
	htmlSanitizer *bluemonday.Policy
)

func init() {
	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	htmlSanitizer = bluemonday.UGCPolicy()
}

// RenderMarkdown converts a comment body to sanitized HTML.
// Returns empty string for empty input.
func RenderMarkdown(src string) string {
	if src == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return htmlSanitizer.Sanitize(src)
	}

	return htmlSanitizer.Sanitize(buf.String())
}

// ThreadView is the snapshot of a thread a viewport renders.
type ThreadView struct {
	Label    string
	Comments []model.Comment
	Pending  string
}

// Renderer turns a thread snapshot into a zone body.
type Renderer interface {
	Render(v ThreadView) templ.Component
}

// HTMLRenderer renders zone bodies as sanitized HTML.
type HTMLRenderer struct{}

// Render returns the review widget markup for v.
func (HTMLRenderer) Render(v ThreadView) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		label := templ.EscapeString(v.Label)

		b.WriteString(`<div class="review-widget"><div class="head"><div class="review-title">`)
		fmt.Fprintf(&b, `<span class="filename" aria-label="%s">%s</span>`, label, label)
		b.WriteString(`</div></div><div class="body">`)

		for _, c := range v.Comments {
			fmt.Fprintf(&b, `<div class="review-comment" data-comment-id="%d">`, c.UniqueIDInThread)
			fmt.Fprintf(&b, `<div class="author">@%s</div>`, templ.EscapeString(c.Author))
			if !c.Timestamp.IsZero() {
				fmt.Fprintf(&b, `<time class="timestamp" datetime="%s">%s</time>`,
					c.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), c.Timestamp.UTC().Format("Jan 2, 2006 15:04"))
			}
			fmt.Fprintf(&b, `<div class="comment-body">%s</div>`, RenderMarkdown(c.Body))
			if len(c.Reactions) > 0 {
				b.WriteString(`<div class="reactions">`)
				for _, r := range c.Reactions {
					cls := "reaction"
					if r.HasReacted {
						cls += " active"
					}
					fmt.Fprintf(&b, `<span class="%s">%s %d</span>`, cls, templ.EscapeString(r.Label), r.Count)
				}
				b.WriteString(`</div>`)
			}
			b.WriteString(`</div>`)
		}

		if v.Pending != "" {
			fmt.Fprintf(&b, `<textarea class="review-input">%s</textarea>`, templ.EscapeString(v.Pending))
		}
		b.WriteString(`</div></div>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}
