package search

import (
	"cmp"
	"slices"
)

// Match is a single occurrence of the pattern on a page.
type Match struct {
	Filename string `json:"filename,omitempty"` // Path of the pdf file.
	BaseName string `json:"base_name,omitempty"`
	PageNum  int    `json:"page"` // Zero-indexed page number.

	// Character offsets of the match within the page text.
	Start int `json:"start"`
	End   int `json:"end"`

	Text    string `json:"text"`    // The matched text.
	Context string `json:"context"` // Text around the match.

	// Character offsets of the match within Context.
	HighlightStart int `json:"highlight_start"`
	HighlightEnd   int `json:"highlight_end"`

	// Relevance score of the context, when requested.
	Score float32 `json:"score,omitempty"`
}

// Parts splits Context into the text before, inside and after the highlight.
func (m Match) Parts() (before, hit, after string) {
	runes := []rune(m.Context)
	hs := min(max(m.HighlightStart, 0), len(runes))
	he := min(max(m.HighlightEnd, hs), len(runes))
	return string(runes[:hs]), string(runes[hs:he]), string(runes[he:])
}

type Matches []Match

// Sort orders matches by file, page and position.
func (ms Matches) Sort() {
	slices.SortStableFunc(ms, func(a, b Match) int {
		return cmp.Or(
			cmp.Compare(a.Filename, b.Filename),
			cmp.Compare(a.PageNum, b.PageNum),
			cmp.Compare(a.Start, b.Start),
		)
	})
}
