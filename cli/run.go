package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/abiiranathan/pdfgrep/document"
	"github.com/abiiranathan/pdfgrep/pdf"
	"github.com/abiiranathan/pdfgrep/plainpdf"
	"github.com/abiiranathan/pdfgrep/render"
	"github.com/abiiranathan/pdfgrep/search"
)

var errRenderEngine = errors.New("rendering pages requires the poppler engine")

// Opener returns the document opener for a text engine name.
func Opener(engine string) (document.OpenFunc, error) {
	switch strings.ToLower(engine) {
	case EnginePoppler, "":
		return pdf.Open, nil
	case EnginePlain:
		return plainpdf.Open, nil
	default:
		return nil, fmt.Errorf("unknown engine %q (want %s or %s)", engine, EnginePoppler, EnginePlain)
	}
}

// NewRenderer returns the page renderer for config. All renderers share the
// process-wide gate.
func NewRenderer(config *Config, opts ...render.Option) (*render.Renderer, error) {
	if !strings.EqualFold(config.Engine, EnginePoppler) && config.Engine != "" {
		return nil, errRenderEngine
	}
	opts = append([]render.Option{render.WithDPI(float64(config.DPI))}, opts...)
	return render.New(pdf.Backend{}, opts...), nil
}

func newEngine(config *Config) (*search.Engine, error) {
	if !config.SaveImages {
		return search.New(), nil
	}

	r, err := NewRenderer(config)
	if err != nil {
		return nil, err
	}
	return search.New(search.WithRenderer(r)), nil
}

// newEmitter picks the output format. The returned flush must be called
// after the last search has returned.
func newEmitter(config *Config, w io.Writer, showPath bool) (search.Emitter, func() error) {
	var out search.Emitter
	if config.JSON {
		out = search.NewJSONEmitter(w)
	} else {
		color := false
		if f, ok := w.(*os.File); ok {
			color = search.UseColor(f)
		}
		out = search.NewTextEmitter(w, color, showPath)
	}

	if !config.Ordered {
		return out, func() error { return nil }
	}
	ordered := search.NewOrderedEmitter(out)
	return ordered, ordered.Flush
}

func logStats(name string, stats search.Stats) {
	log.Printf("%s: %d pages, %d workers, %d matches, %d page errors, %d render errors\n",
		filepath.Base(name), stats.Pages, stats.Workers, stats.Matches, stats.PageErrors, stats.RenderErrors)
}

// SearchFile searches config.Filename and writes the matches to w.
func SearchFile(ctx context.Context, config *Config, w io.Writer) error {
	open, err := Opener(config.Engine)
	if err != nil {
		return err
	}

	engine, err := newEngine(config)
	if err != nil {
		return err
	}

	doc, err := open(config.Filename)
	if err != nil {
		return err
	}
	defer doc.Close()

	out, flush := newEmitter(config, w, false)
	stats, err := engine.Search(ctx, doc, config.Job(), out)
	if err != nil {
		return err
	}

	logStats(doc.Path(), stats)
	return flush()
}

// SearchDirectory searches every pdf below config.Directory. With SaveImages
// each document gets its own folder inside config.OutputDir.
func SearchDirectory(ctx context.Context, config *Config, w io.Writer) error {
	open, err := Opener(config.Engine)
	if err != nil {
		return err
	}

	engine, err := newEngine(config)
	if err != nil {
		return err
	}

	files, err := search.WalkDir(config.Directory, []string{".pdf"})
	if err != nil {
		return err
	}

	docs, err := document.OpenAll(ctx, open, files...)
	if err != nil {
		return err
	}
	defer docs.Close()

	out, flush := newEmitter(config, w, true)
	for _, doc := range docs.Data {
		job := config.Job()
		if job.SaveImages {
			stem := strings.TrimSuffix(filepath.Base(doc.Path()), filepath.Ext(doc.Path()))
			job.OutputDir = filepath.Join(config.OutputDir, stem)
		}

		stats, err := engine.Search(ctx, doc, job, out)
		if err != nil {
			return fmt.Errorf("%s: %w", doc.Path(), err)
		}
		logStats(doc.Path(), stats)
	}
	return flush()
}

// RenderPage writes a single page of config.Filename to config.Output, as a
// PNG or, with Vector, as a one page PDF.
func RenderPage(config *Config) error {
	r, err := NewRenderer(config)
	if err != nil {
		return err
	}

	doc, err := pdf.Open(config.Filename)
	if err != nil {
		return err
	}
	defer doc.Close()

	page, err := doc.Page(config.Page)
	if err != nil {
		return err
	}
	defer page.Close()

	task := render.NewTask(config.OutputDir, config.Page)
	task.Vector = config.Vector
	if config.Output != "" {
		task.Path = config.Output
	} else if task.Vector {
		task.Path = strings.TrimSuffix(task.Path, ".png") + ".pdf"
	}

	if err := r.Render(page, task); err != nil {
		return err
	}

	log.Printf("page %d written to %s\n", task.Page, task.Path)
	return nil
}
