// Package rank orders search results for display.
package rank

import (
	"slices"

	"github.com/pario-ai/sxsearch/pkg/models"
)

// Rank returns a copy of answers with answered questions first. Relative
// order within each group is preserved, so the API's relevance order
// survives. The input slice is not modified.
func Rank(answers []models.Answer) []models.Answer {
	out := slices.Clone(answers)
	slices.SortStableFunc(out, func(a, b models.Answer) int {
		switch {
		case a.Answered == b.Answered:
			return 0
		case a.Answered:
			return -1
		default:
			return 1
		}
	})
	return out
}
