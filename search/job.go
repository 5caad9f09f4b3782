package search

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	ErrEmptyPattern    = errors.New("search pattern must not be empty")
	ErrNegativeContext = errors.New("context size must not be negative")
	ErrNoRenderer      = errors.New("saving images requires a renderer")
	ErrInvalidPattern  = errors.New("invalid pattern")
)

// Job is the configuration of one search. It is shared read-only by all workers.
type Job struct {
	// Pattern is a regular expression matched case-insensitively.
	Pattern string

	// Literal quotes all regular expression metacharacters in Pattern.
	Literal bool

	// ContextSize is the number of characters shown around each match.
	// Zero selects alg.DefaultContextSize.
	ContextSize int

	// Threads is the requested number of workers. It is clamped to the page count.
	Threads int

	// SaveImages renders the page of every match to OutputDir.
	SaveImages bool
	OutputDir  string

	// Score computes the relevance of each context window to the pattern.
	Score bool
}

// Validate reports configuration errors that must abort the search before it starts.
func (j Job) Validate() error {
	if j.Pattern == "" {
		return ErrEmptyPattern
	}
	if j.ContextSize < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeContext, j.ContextSize)
	}
	return nil
}

// Span is a match position in characters (runes), end exclusive.
type Span struct {
	Start int
	End   int
}

// Matcher finds case-insensitive pattern matches in page text.
type Matcher struct {
	re *regexp.Regexp
}

// NewMatcher compiles pattern. Empty patterns are rejected.
func NewMatcher(pattern string, literal bool) (*Matcher, error) {
	if pattern == "" {
		return nil, ErrEmptyPattern
	}

	pattern = norm.NFC.String(pattern)
	if literal {
		pattern = regexp.QuoteMeta(pattern)
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}
	return &Matcher{re: re}, nil
}

// FindAll returns all non-overlapping matches in text, left to right, as
// character offsets. Zero-width matches are reported once per position.
func (m *Matcher) FindAll(text string) []Span {
	locs := m.re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	spans := make([]Span, 0, len(locs))
	bytePos, runePos := 0, 0
	for _, loc := range locs {
		runePos += utf8.RuneCountInString(text[bytePos:loc[0]])
		start := runePos
		runePos += utf8.RuneCountInString(text[loc[0]:loc[1]])
		bytePos = loc[1]

		spans = append(spans, Span{Start: start, End: runePos})
	}
	return spans
}

// String returns the compiled expression.
func (m *Matcher) String() string {
	return m.re.String()
}
