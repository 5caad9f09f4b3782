package search

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/goccy/go-json"
	"github.com/mattn/go-isatty"
)

// Emitter receives matches from concurrently running workers.
type Emitter interface {
	Emit(m Match) error
}

const (
	highlightOn  = "\033[47;31m"
	highlightOff = "\033[0m"
)

// UseColor reports whether ANSI highlighting should be written to f.
func UseColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// TextEmitter writes a human readable block per match. Each block is written
// with a single Write while holding a lock, so blocks from different workers
// never interleave.
type TextEmitter struct {
	mu       sync.Mutex
	w        io.Writer
	color    bool
	showPath bool
}

// NewTextEmitter writes to w. With color the match is highlighted with ANSI
// escapes, otherwise it is wrapped in >> and <<. showPath adds the file name
// to each header.
func NewTextEmitter(w io.Writer, color, showPath bool) *TextEmitter {
	return &TextEmitter{w: w, color: color, showPath: showPath}
}

func (e *TextEmitter) Emit(m Match) error {
	var buf bytes.Buffer
	if e.showPath && m.BaseName != "" {
		fmt.Fprintf(&buf, "_____________ %s Page: %d ___________________\n", m.BaseName, m.PageNum+1)
	} else {
		fmt.Fprintf(&buf, "_____________ Page: %d ___________________\n", m.PageNum+1)
	}

	before, hit, after := m.Parts()
	buf.WriteString(before)
	if e.color {
		buf.WriteString(highlightOn + hit + highlightOff)
	} else {
		buf.WriteString(">>" + hit + "<<")
	}
	buf.WriteString(after)
	buf.WriteString("\n\n")

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.w.Write(buf.Bytes())
	return err
}

// JSONEmitter writes one JSON object per line.
type JSONEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{enc: json.NewEncoder(w)}
}

func (e *JSONEmitter) Emit(m Match) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(m)
}

// Collector keeps all matches in memory.
type Collector struct {
	mu      sync.Mutex
	matches Matches
}

func (c *Collector) Emit(m Match) error {
	c.mu.Lock()
	c.matches = append(c.matches, m)
	c.mu.Unlock()
	return nil
}

// Matches returns a sorted copy of the collected matches.
func (c *Collector) Matches() Matches {
	c.mu.Lock()
	out := make(Matches, len(c.matches))
	copy(out, c.matches)
	c.mu.Unlock()

	out.Sort()
	return out
}

// OrderedEmitter buffers matches and forwards them in file, page and position
// order on Flush. Call Flush after the search has returned.
type OrderedEmitter struct {
	Collector
	next Emitter
}

func NewOrderedEmitter(next Emitter) *OrderedEmitter {
	return &OrderedEmitter{next: next}
}

// Flush forwards all buffered matches and empties the buffer.
func (e *OrderedEmitter) Flush() error {
	matches := e.Matches()

	e.mu.Lock()
	e.matches = nil
	e.mu.Unlock()

	var errs []error
	for _, m := range matches {
		if err := e.next.Emit(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
