package cli

import (
	"github.com/abiiranathan/pdfgrep/alg"
	"github.com/abiiranathan/pdfgrep/render"
	"github.com/abiiranathan/pdfgrep/search"
)

// Text sources selectable with --engine.
const (
	EnginePoppler = "poppler"
	EnginePlain   = "plain"
)

// Config holds the configuration for the CLI.
type Config struct {
	// Number of search workers per document. Clamped to the page count.
	// Default is 10.
	Threads int

	// the pdf file to search or render
	Filename string

	// the directory to search or serve
	Directory string

	// Search pattern / regex
	Pattern string

	// Characters of context shown on each side of a match.
	ContextSize int

	// Render the page of every match to OutputDir.
	SaveImages bool
	OutputDir  string

	// Text source: poppler or plain.
	Engine string

	Ordered bool // Print matches in page order after the search.
	JSON    bool // Print one JSON object per match.
	Literal bool // Treat Pattern as plain text.
	Score   bool // Compute the relevance of each match.

	// render subcommand
	Page   int
	Output string
	Vector bool
	DPI    int

	// server port. default is 8080
	Port int
}

var DefaultConfig = Config{
	Threads:     10,
	ContextSize: alg.DefaultContextSize,
	Engine:      EnginePoppler,
	DPI:         int(render.DefaultDPI),
	Port:        8080,
}

// Job returns the search parameters selected on the command line.
func (c *Config) Job() search.Job {
	return search.Job{
		Pattern:     c.Pattern,
		Literal:     c.Literal,
		ContextSize: c.ContextSize,
		Threads:     c.Threads,
		SaveImages:  c.SaveImages,
		OutputDir:   c.OutputDir,
		Score:       c.Score,
	}
}
