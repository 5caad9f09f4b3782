package render_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abiiranathan/pdfgrep/document"
	"github.com/abiiranathan/pdfgrep/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePage struct{ n int }

func (p fakePage) Number() int              { return p.n }
func (p fakePage) Text() (string, error)    { return "", nil }
func (p fakePage) Size() (float64, float64) { return 612, 792 }
func (p fakePage) Close()                   {}

// exclusiveBackend fails the test if two render bodies ever overlap.
type exclusiveBackend struct {
	inside  atomic.Int32
	maxSeen atomic.Int32
	calls   atomic.Int32
	fail    error
}

func (b *exclusiveBackend) body() error {
	n := b.inside.Add(1)
	defer b.inside.Add(-1)

	for {
		seen := b.maxSeen.Load()
		if n <= seen || b.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	b.calls.Add(1)
	time.Sleep(200 * time.Microsecond)
	return b.fail
}

func (b *exclusiveBackend) RenderPNG(document.Page, float64, string) error { return b.body() }
func (b *exclusiveBackend) RenderPDF(document.Page, string) error          { return b.body() }

func TestRendererMutualExclusion(t *testing.T) {
	backend := &exclusiveBackend{}
	r := render.New(backend, render.WithGate(&sync.Mutex{}))
	dir := t.TempDir()

	var wg sync.WaitGroup
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				assert.NoError(t, r.RenderPage(fakePage{i}, render.ImagePath(dir, i)))
			} else {
				assert.NoError(t, r.RenderVector(fakePage{i}, filepath.Join(dir, "v.pdf")))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(64), backend.calls.Load())
	assert.Equal(t, int32(1), backend.maxSeen.Load())
}

func TestRenderersShareProcessGate(t *testing.T) {
	backend := &exclusiveBackend{}
	a := render.New(backend)
	b := render.New(backend)

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := a
			if i%2 == 1 {
				r = b
			}
			assert.NoError(t, r.RenderPage(fakePage{i}, "page.png"))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), backend.maxSeen.Load())
}

func TestRendererReleasesGateOnFailure(t *testing.T) {
	backend := &exclusiveBackend{fail: render.ErrEncode}
	gate := &sync.Mutex{}
	r := render.New(backend, render.WithGate(gate))

	err := r.RenderPage(fakePage{3}, filepath.Join(t.TempDir(), "x.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, render.ErrEncode)

	var stageErr *render.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, 3, stageErr.Page)
	assert.Equal(t, "encode", stageErr.Stage())

	require.True(t, gate.TryLock(), "gate must be released after a failed render")
	gate.Unlock()
}

type panickingBackend struct{}

func (panickingBackend) RenderPNG(document.Page, float64, string) error { panic("cairo crashed") }
func (panickingBackend) RenderPDF(document.Page, string) error          { panic("cairo crashed") }

func TestRendererReleasesGateOnPanic(t *testing.T) {
	gate := &sync.Mutex{}
	r := render.New(panickingBackend{}, render.WithGate(gate))

	assert.Panics(t, func() {
		_ = r.RenderPage(fakePage{0}, "p.png")
	})
	require.True(t, gate.TryLock())
	gate.Unlock()
}

func TestRendererCreatesParentDirectories(t *testing.T) {
	backend := &exclusiveBackend{}
	r := render.New(backend, render.WithGate(&sync.Mutex{}))

	out := filepath.Join(t.TempDir(), "a", "b", "page_000.png")
	require.NoError(t, r.RenderPage(fakePage{0}, out))

	info, err := os.Stat(filepath.Dir(out))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestImagePath(t *testing.T) {
	tests := []struct {
		dir  string
		page int
		want string
	}{
		{dir: "", page: 0, want: "page_000.png"},
		{dir: "out", page: 12, want: filepath.Join("out", "page_012.png")},
		{dir: "out/", page: 7, want: filepath.Join("out", "page_007.png")},
		{dir: "out", page: 1234, want: filepath.Join("out", "page_1234.png")},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, render.ImagePath(tt.dir, tt.page))
		})
	}
}

// formatBackend records which format each call asked for.
type formatBackend struct {
	mu      sync.Mutex
	formats []string
}

func (b *formatBackend) record(format, output string) error {
	b.mu.Lock()
	b.formats = append(b.formats, format+" "+filepath.Base(output))
	b.mu.Unlock()
	return nil
}

func (b *formatBackend) RenderPNG(_ document.Page, _ float64, output string) error {
	return b.record("png", output)
}

func (b *formatBackend) RenderPDF(_ document.Page, output string) error {
	return b.record("pdf", output)
}

func TestRenderTask(t *testing.T) {
	backend := &formatBackend{}
	r := render.New(backend, render.WithGate(&sync.Mutex{}))
	dir := t.TempDir()

	task := render.NewTask(dir, 4)
	assert.Equal(t, render.Task{Page: 4, Path: render.ImagePath(dir, 4)}, task)
	require.NoError(t, r.Render(fakePage{4}, task))
	require.NoError(t, r.Render(fakePage{4}, render.Task{Page: 4, Path: filepath.Join(dir, "p.pdf"), Vector: true}))

	assert.Equal(t, []string{"png page_004.png", "pdf p.pdf"}, backend.formats)
}
