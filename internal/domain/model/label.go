package model

import "strings"

// ThreadLabel returns the heading shown for a thread: its explicit label, else
// the unique comment authors in order of appearance, else a prompt to start.
func ThreadLabel(t *CommentThread) string {
	if l := t.Label(); l != "" {
		return l
	}

	comments := t.Comments()
	if len(comments) == 0 {
		return "Start discussion"
	}

	seen := make(map[string]struct{}, len(comments))
	var names []string
	for _, c := range comments {
		if _, ok := seen[c.Author]; ok {
			continue
		}
		seen[c.Author] = struct{}{}
		names = append(names, "@"+c.Author)
	}
	return "Participants: " + strings.Join(names, ", ")
}
