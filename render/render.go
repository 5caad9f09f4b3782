// Package render turns document pages into image files.
//
// The rendering backend (cairo) is not safe for concurrent use, even on
// independent surfaces, so every call into it happens while holding a gate
// shared by all callers in the process.
package render

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/abiiranathan/pdfgrep/document"
	"github.com/abiiranathan/pdfgrep/metrics"
)

// DefaultDPI is the raster resolution used for page images.
const DefaultDPI = 300.0

var (
	ErrSurface         = errors.New("unable to create surface")
	ErrContext         = errors.New("unable to create drawing context")
	ErrEncode          = errors.New("unable to write image")
	ErrUnsupportedPage = errors.New("page cannot be rendered by this backend")
)

// StageError reports which step of a render call failed.
type StageError struct {
	Page int
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.Page, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Stage names the failed step for metrics labels.
func (e *StageError) Stage() string {
	switch {
	case errors.Is(e.Err, ErrSurface):
		return "surface"
	case errors.Is(e.Err, ErrContext):
		return "context"
	case errors.Is(e.Err, ErrEncode):
		return "encode"
	case errors.Is(e.Err, ErrUnsupportedPage):
		return "unsupported"
	default:
		return "error"
	}
}

// Backend draws pages. It is only ever called with the gate held.
type Backend interface {
	// RenderPNG rasterizes the page at dpi and writes a PNG to output.
	RenderPNG(page document.Page, dpi float64, output string) error

	// RenderPDF writes the page as a single-page vector PDF to output.
	RenderPDF(page document.Page, output string) error
}

var processGate sync.Mutex

// ProcessGate returns the gate shared by every Renderer in the process.
func ProcessGate() sync.Locker {
	return &processGate
}

// Renderer serializes page rendering through a gate.
type Renderer struct {
	backend  Backend
	gate     sync.Locker
	dpi      float64
	observer metrics.Observer
}

type Option func(*Renderer)

// WithGate replaces the process-wide gate.
func WithGate(gate sync.Locker) Option {
	return func(r *Renderer) { r.gate = gate }
}

func WithDPI(dpi float64) Option {
	return func(r *Renderer) {
		if dpi > 0 {
			r.dpi = dpi
		}
	}
}

func WithObserver(o metrics.Observer) Option {
	return func(r *Renderer) { r.observer = o }
}

// New creates a Renderer for backend.
func New(backend Backend, opts ...Option) *Renderer {
	r := &Renderer{
		backend:  backend,
		gate:     ProcessGate(),
		dpi:      DefaultDPI,
		observer: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RenderPage writes a PNG of page to output, creating parent directories.
func (r *Renderer) RenderPage(page document.Page, output string) error {
	return r.run(page, output, func() error {
		return r.backend.RenderPNG(page, r.dpi, output)
	})
}

// Render produces task.Path from page, as a PNG or a vector PDF.
func (r *Renderer) Render(page document.Page, task Task) error {
	if task.Vector {
		return r.RenderVector(page, task.Path)
	}
	return r.RenderPage(page, task.Path)
}

// RenderVector writes page as a single-page PDF to output.
func (r *Renderer) RenderVector(page document.Page, output string) error {
	return r.run(page, output, func() error {
		return r.backend.RenderPDF(page, output)
	})
}

func (r *Renderer) run(page document.Page, output string, draw func() error) error {
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	requested := time.Now()
	r.gate.Lock()
	acquired := time.Now()

	err := r.locked(draw)
	took := time.Since(acquired)

	if err != nil {
		err = &StageError{Page: page.Number(), Err: err}
	}
	r.observer.RenderFinished(acquired.Sub(requested), took, err)
	return err
}

// locked runs draw and releases the gate on every exit path, including panics.
func (r *Renderer) locked(draw func() error) error {
	defer r.gate.Unlock()
	return draw()
}

// ImagePath returns the file name used for a page image inside dir.
// Page numbers are zero-indexed. An empty dir means the current directory.
func ImagePath(dir string, page int) string {
	return filepath.Join(dir, fmt.Sprintf("page_%03d.png", page))
}

// Task is a single page file to produce.
type Task struct {
	Page int
	Path string

	// Vector writes a single-page PDF instead of a PNG.
	Vector bool
}

// NewTask returns the PNG task for page inside dir.
func NewTask(dir string, page int) Task {
	return Task{Page: page, Path: ImagePath(dir, page)}
}
