package search

import (
	"regexp"
	"sort"
	"strings"
)

// Result is a ranked document with its similarity score.
type Result struct {
	Doc   int // position in the slice given to NewIndex
	Score float64
}

// Option configures an Index.
type Option func(*indexConfig)

type indexConfig struct {
	stopwords map[string]struct{}
}

// WithStopwords drops the given words from both documents and queries.
func WithStopwords(words []string) Option {
	return func(c *indexConfig) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// DefaultStopwords are filler words common in requests like "something
// fun to do tonight".
var DefaultStopwords = []string{
	"a", "an", "and", "any", "at", "do", "for", "i", "in", "is", "it", "me",
	"of", "on", "or", "some", "something", "the", "to", "today", "tonight",
	"want", "what", "with", "would", "like", "maybe", "please",
}

type doc struct {
	tokens map[string]struct{}
}

// Index is an immutable in-memory token index, safe for concurrent use.
// Scoring is Jaccard similarity between the query token set and each
// document's token set: |Q ∩ D| / |Q ∪ D|.
type Index struct {
	cfg  indexConfig
	docs []doc
}

// NewIndex builds an Index over texts.
func NewIndex(texts []string, opts ...Option) *Index {
	var cfg indexConfig
	for _, o := range opts {
		o(&cfg)
	}
	docs := make([]doc, len(texts))
	for i, t := range texts {
		docs[i] = doc{tokens: tokenize(normalizeWhitespace(t), cfg.stopwords)}
	}
	return &Index{cfg: cfg, docs: docs}
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int { return len(ix.docs) }

// Rank scores every document against q and returns those with a positive
// score, best first. Ties keep document order. keep, when non-nil, filters
// documents before scoring.
func (ix *Index) Rank(q string, keep func(doc int) bool) []Result {
	qTokens := tokenize(q, ix.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	var out []Result
	for i, d := range ix.docs {
		if keep != nil && !keep(i) {
			continue
		}
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(len(qTokens) + len(d.tokens) - over)
		out = append(out, Result{Doc: i, Score: float64(over) / union})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
