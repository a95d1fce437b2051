// Package search finds candidate events for a free-text preference. Two
// Searchers are provided: Catalog ranks a local Markdown table of events by
// token overlap, and Web queries the Tavily API and asks a language model to
// extract structured events from the hits.
package search

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/psemmelhack/fm-agent/internal/domain"
)

// Searcher returns candidates for query in relevance order. An empty result
// is not an error.
type Searcher interface {
	Search(ctx context.Context, query string) ([]domain.Candidate, error)
}

var titleCaser = cases.Title(language.English)

// NormalizeTitle trims a title and title-cases it when it arrived in a
// single case ("JAZZ NIGHT", "jazz night"). Mixed-case titles are kept.
func NormalizeTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return s
	}
	if s == strings.ToLower(s) || s == strings.ToUpper(s) {
		return titleCaser.String(s)
	}
	return s
}
