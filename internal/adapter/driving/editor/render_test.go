package editor

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/commentsync/internal/domain/model"
)

func TestRenderMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		excludes []string
	}{
		{name: "plain text", input: "hello world", contains: []string{"hello world"}},
		{name: "bold", input: "**bold text**", contains: []string{"<strong>bold text</strong>"}},
		{name: "inline code", input: "use `fmt.Println`", contains: []string{"<code>fmt.Println</code>"}},
		{name: "code block", input: "```go\nfmt.Println(\"hello\")\n```", contains: []string{"<code", "fmt.Println"}},
		{name: "link", input: "[click](https://example.com)", contains: []string{`<a href="https://example.com"`, "click</a>"}},
		{name: "strikethrough", input: "~~deleted~~", contains: []string{"<del>deleted</del>"}},
		{name: "script is stripped", input: `<script>alert("xss")</script>`, excludes: []string{"<script>"}},
		{name: "event handlers are stripped", input: `<img src="x.png" onerror="alert(1)">`, excludes: []string{"onerror"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderMarkdown(tt.input)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, got, unwanted)
			}
		})
	}
}

func TestRenderMarkdown_EmptyInput(t *testing.T) {
	assert.Equal(t, "", RenderMarkdown(""))
}

func TestHTMLRenderer_CommentsAndReactions(t *testing.T) {
	ts := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)
	view := ThreadView{
		Label: "Participants: @ana, @bo",
		Comments: []model.Comment{
			{UniqueIDInThread: 1, Author: "ana", Body: "first", Timestamp: ts},
			{UniqueIDInThread: 2, Author: "bo", Body: "second", Reactions: []model.Reaction{
				{Label: "+1", Count: 2, HasReacted: true},
				{Label: "eyes", Count: 1},
			}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, HTMLRenderer{}.Render(view).Render(context.Background(), &buf))
	out := buf.String()

	assert.Contains(t, out, `data-comment-id="1"`)
	assert.Contains(t, out, `data-comment-id="2"`)
	assert.Contains(t, out, `datetime="2026-03-04T15:30:00Z"`)
	assert.Contains(t, out, `<span class="reaction active">+1 2</span>`)
	assert.Contains(t, out, `<span class="reaction">eyes 1</span>`)
	assert.NotContains(t, out, "review-input", "no input box without pending text")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("first")), bytes.Index(buf.Bytes(), []byte("second")))
}
