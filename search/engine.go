package search

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/abiiranathan/pdfgrep/alg"
	"github.com/abiiranathan/pdfgrep/document"
	"github.com/abiiranathan/pdfgrep/metrics"
	"github.com/abiiranathan/pdfgrep/render"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"
)

// Renderer renders the page of a match. Implementations serialize access to
// the rendering backend; workers call it concurrently.
type Renderer interface {
	Render(page document.Page, task render.Task) error
}

// Stats summarizes a finished search.
type Stats struct {
	Workers      int
	Pages        int
	PageErrors   int
	Matches      int
	RenderErrors int
}

type counters struct {
	pages        atomic.Int64
	pageErrors   atomic.Int64
	matches      atomic.Int64
	renderErrors atomic.Int64
}

func (c *counters) stats(workers int) Stats {
	return Stats{
		Workers:      workers,
		Pages:        int(c.pages.Load()),
		PageErrors:   int(c.pageErrors.Load()),
		Matches:      int(c.matches.Load()),
		RenderErrors: int(c.renderErrors.Load()),
	}
}

// Engine searches documents with a fixed pool of workers per document.
type Engine struct {
	renderer Renderer
	logger   *slog.Logger
	observer metrics.Observer
}

type Option func(*Engine)

// WithRenderer sets the renderer used when a Job saves images.
func WithRenderer(r Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithObserver(o metrics.Observer) Option {
	return func(e *Engine) { e.observer = o }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		logger:   slog.Default(),
		observer: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search scans every page of doc for job.Pattern and sends each match to out.
//
// Pages are partitioned into contiguous ranges, one goroutine per range.
// Search returns only after all workers have finished, so doc may be closed
// as soon as it returns. Unreadable pages and failed renders are logged and
// skipped. Cancelling ctx stops workers before their next page.
func (e *Engine) Search(ctx context.Context, doc document.Document, job Job, out Emitter) (Stats, error) {
	if err := job.Validate(); err != nil {
		return Stats{}, err
	}
	if job.SaveImages && e.renderer == nil {
		return Stats{}, ErrNoRenderer
	}

	matcher, err := NewMatcher(job.Pattern, job.Literal)
	if err != nil {
		return Stats{}, err
	}

	ranges := alg.Partition(doc.NumPages(), job.Threads)
	e.logger.Debug("searching document",
		"path", doc.Path(), "pages", doc.NumPages(), "workers", len(ranges), "pattern", matcher)

	var c counters
	var g errgroup.Group
	for i, r := range ranges {
		w := &worker{
			id:       i,
			doc:      doc,
			job:      job,
			matcher:  matcher,
			out:      out,
			renderer: e.renderer,
			logger:   e.logger.With("worker", i, "path", doc.Path()),
			observer: e.observer,
			counters: &c,
		}

		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("search worker %d panicked: %v", w.id, p)
				}
			}()
			w.run(ctx, r)
			return nil
		})
	}

	err = g.Wait()
	return c.stats(len(ranges)), err
}

// worker searches one page range.
type worker struct {
	id       int
	doc      document.Document
	job      Job
	matcher  *Matcher
	out      Emitter
	renderer Renderer
	logger   *slog.Logger
	observer metrics.Observer
	counters *counters
}

func (w *worker) run(ctx context.Context, r alg.PageRange) {
	for pageNum := r.Start; pageNum < r.End; pageNum++ {
		if ctx.Err() != nil {
			return
		}
		w.searchPage(pageNum)
	}
}

func (w *worker) searchPage(pageNum int) {
	page, err := w.doc.Page(pageNum)
	if err != nil {
		w.pageFailed(pageNum, err)
		return
	}
	defer page.Close()

	text, err := page.Text()
	if err != nil {
		w.pageFailed(pageNum, err)
		return
	}

	w.counters.pages.Add(1)
	w.observer.PageScanned()

	text = normalize(text)
	spans := w.matcher.FindAll(text)
	if len(spans) == 0 {
		return
	}

	runes := []rune(text)
	for _, span := range spans {
		if w.job.SaveImages {
			w.render(page, pageNum)
		}

		window, hs, he := alg.ContextWindow(runes, span.Start, span.End, w.job.ContextSize)
		match := Match{
			Filename:       w.doc.Path(),
			BaseName:       baseName(w.doc.Path()),
			PageNum:        pageNum,
			Start:          span.Start,
			End:            span.End,
			Text:           string(runes[span.Start:span.End]),
			Context:        window,
			HighlightStart: hs,
			HighlightEnd:   he,
		}
		if w.job.Score {
			match.Score = alg.Relevance(window, w.job.Pattern)
		}

		if err := w.out.Emit(match); err != nil {
			w.logger.Warn("dropping match", "page", pageNum, "err", err)
			continue
		}
		w.counters.matches.Add(1)
		w.observer.MatchFound()
	}
}

// render produces the page image for one match. Every match renders,
// including repeated matches on the same page.
func (w *worker) render(page document.Page, pageNum int) {
	task := render.NewTask(w.job.OutputDir, pageNum)
	if err := w.renderer.Render(page, task); err != nil {
		w.counters.renderErrors.Add(1)
		w.logger.Warn("unable to save page image", "page", task.Page, "output", task.Path, "err", err)
	}
}

func (w *worker) pageFailed(pageNum int, err error) {
	w.counters.pageErrors.Add(1)
	w.observer.PageFailed()
	w.logger.Warn("skipping page", "page", pageNum, "err", err)
}

// normalize makes text valid UTF-8 in composed form so that character
// offsets count what a reader sees as one character.
func normalize(text string) string {
	return norm.NFC.String(strings.ToValidUTF8(text, "\uFFFD"))
}

func baseName(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}
