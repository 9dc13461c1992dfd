package cachekey

import "strings"

// Query is a parsed search: free text plus tags.
type Query struct {
	Text string
	Tags []string
}

// ParseQuery splits raw into text and tags. Words prefixed with "." are
// tags; a lone "." is ignored, so "." on its own lists everything.
func ParseQuery(raw string) Query {
	var (
		words []string
		q     Query
	)
	for _, w := range strings.Fields(raw) {
		if strings.HasPrefix(w, ".") {
			if w != "." {
				q.Tags = append(q.Tags, w[1:])
			}
			continue
		}
		words = append(words, w)
	}
	q.Text = strings.Join(words, " ")
	return q
}
