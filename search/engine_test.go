package search_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abiiranathan/pdfgrep/document"
	"github.com/abiiranathan/pdfgrep/render"
	"github.com/abiiranathan/pdfgrep/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeDoc struct {
	path      string
	pages     []string
	missing   map[int]bool // Page() fails
	broken    map[int]bool // Text() fails
	panicking map[int]bool
	delay     time.Duration // Text() sleeps

	mu      sync.Mutex
	visits  map[int]int
	closed  atomic.Bool
	misused atomic.Bool
	reading atomic.Int32 // Text() calls in progress
	read    atomic.Int32 // Text() calls finished
}

func newFakeDoc(pages ...string) *fakeDoc {
	return &fakeDoc{path: "/books/manual.pdf", pages: pages, visits: map[int]int{}}
}

func (d *fakeDoc) Path() string  { return d.path }
func (d *fakeDoc) NumPages() int { return len(d.pages) }

func (d *fakeDoc) Page(i int) (document.Page, error) {
	if d.closed.Load() {
		d.misused.Store(true)
	}

	d.mu.Lock()
	d.visits[i]++
	d.mu.Unlock()

	if i < 0 || i >= len(d.pages) {
		return nil, document.ErrPageOutOfRange
	}
	if d.missing[i] {
		return nil, fmt.Errorf("%w: %d", document.ErrPageUnavailable, i)
	}
	return &fakePage{doc: d, n: i}, nil
}

func (d *fakeDoc) Close() error {
	d.closed.Store(true)
	return nil
}

type fakePage struct {
	doc *fakeDoc
	n   int
}

func (p *fakePage) Number() int              { return p.n }
func (p *fakePage) Size() (float64, float64) { return 612, 792 }
func (p *fakePage) Close()                   {}

func (p *fakePage) Text() (string, error) {
	p.doc.reading.Add(1)
	defer p.doc.read.Add(1)
	defer p.doc.reading.Add(-1)

	time.Sleep(p.doc.delay)
	if p.doc.panicking[p.n] {
		panic("decoder crashed")
	}
	if p.doc.broken[p.n] {
		return "", errors.New("corrupt content stream")
	}
	return p.doc.pages[p.n], nil
}

type countingRenderer struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (r *countingRenderer) Render(page document.Page, task render.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, task.Path)
	if r.fail {
		return render.ErrSurface
	}
	return nil
}

func filler(n int) []string {
	pages := make([]string, n)
	for i := range pages {
		pages[i] = fmt.Sprintf("page %d lorem ipsum dolor sit amet", i)
	}
	return pages
}

func TestSearchSingleMatchAcrossWorkers(t *testing.T) {
	pages := filler(25)
	pages[12] = "The quick brown foo jumps over the lazy dog"
	doc := newFakeDoc(pages...)

	var out search.Collector
	stats, err := search.New(search.WithLogger(quiet)).Search(context.Background(), doc,
		search.Job{Pattern: "foo", Threads: 10, ContextSize: 6}, &out)
	require.NoError(t, err)

	assert.Equal(t, 10, stats.Workers)
	assert.Equal(t, 25, stats.Pages)
	assert.Equal(t, 1, stats.Matches)

	matches := out.Matches()
	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, 12, m.PageNum)
	assert.Equal(t, "foo", m.Text)
	assert.Equal(t, 16, m.Start)
	assert.Equal(t, 19, m.End)
	assert.Equal(t, "brown foo jumps", m.Context)
	assert.Equal(t, 6, m.HighlightStart)
	assert.Equal(t, 9, m.HighlightEnd)
	assert.Equal(t, "manual.pdf", m.BaseName)

	for i := range pages {
		assert.Equal(t, 1, doc.visits[i], "page %d", i)
	}
}

func TestSearchClampsWorkersToPages(t *testing.T) {
	doc := newFakeDoc("only one page with foo")

	var out search.Collector
	stats, err := search.New(search.WithLogger(quiet)).Search(context.Background(), doc,
		search.Job{Pattern: "foo", Threads: 10}, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Workers)
	assert.Len(t, out.Matches(), 1)
}

func TestSearchEmptyDocument(t *testing.T) {
	var out search.Collector
	stats, err := search.New(search.WithLogger(quiet)).Search(context.Background(), newFakeDoc(),
		search.Job{Pattern: "foo", Threads: 4}, &out)
	require.NoError(t, err)
	assert.Equal(t, search.Stats{}, stats)
}

func TestSearchSkipsBadPages(t *testing.T) {
	pages := filler(10)
	for i := range pages {
		pages[i] += " foo"
	}
	doc := newFakeDoc(pages...)
	doc.missing = map[int]bool{2: true}
	doc.broken = map[int]bool{7: true}

	var out search.Collector
	stats, err := search.New(search.WithLogger(quiet)).Search(context.Background(), doc,
		search.Job{Pattern: "FOO", Threads: 3}, &out)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.PageErrors)
	assert.Equal(t, 8, stats.Pages)
	assert.Equal(t, 8, stats.Matches)
	for _, m := range out.Matches() {
		assert.NotContains(t, []int{2, 7}, m.PageNum)
	}
}

func TestSearchRendersEveryMatch(t *testing.T) {
	doc := newFakeDoc("foo and foo", "nothing here", "one more foo")
	r := &countingRenderer{}

	var out search.Collector
	stats, err := search.New(search.WithLogger(quiet), search.WithRenderer(r)).Search(context.Background(), doc,
		search.Job{Pattern: "foo", Threads: 2, SaveImages: true, OutputDir: "out/"}, &out)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Matches)
	assert.ElementsMatch(t, []string{
		render.ImagePath("out", 0),
		render.ImagePath("out", 0),
		render.ImagePath("out", 2),
	}, r.calls)
}

func TestSearchRenderFailureIsNotFatal(t *testing.T) {
	doc := newFakeDoc("foo", "foo")
	r := &countingRenderer{fail: true}

	var out search.Collector
	stats, err := search.New(search.WithLogger(quiet), search.WithRenderer(r)).Search(context.Background(), doc,
		search.Job{Pattern: "foo", Threads: 2, SaveImages: true}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RenderErrors)
	assert.Equal(t, 2, stats.Matches)
}

func TestSearchUnicodeOffsets(t *testing.T) {
	doc := newFakeDoc("日本語 ÜBER alles, über café und Über")

	var out search.Collector
	_, err := search.New(search.WithLogger(quiet)).Search(context.Background(), doc,
		search.Job{Pattern: "über", Threads: 1, ContextSize: 2}, &out)
	require.NoError(t, err)

	matches := out.Matches()
	require.Len(t, matches, 3)

	assert.Equal(t, 4, matches[0].Start)
	assert.Equal(t, 8, matches[0].End)
	assert.Equal(t, "ÜBER", matches[0].Text)
	assert.Equal(t, "語 ÜBER a", matches[0].Context)

	_, hit, _ := matches[1].Parts()
	assert.Equal(t, "über", hit)

	last := matches[2]
	assert.Equal(t, "Über", last.Text)
	assert.Equal(t, "d Über", last.Context, "window is clamped at the end of the text")
}

func TestSearchNormalizesDecomposedText(t *testing.T) {
	doc := newFakeDoc("cafe\u0301 society")

	var out search.Collector
	_, err := search.New(search.WithLogger(quiet)).Search(context.Background(), doc,
		search.Job{Pattern: "caf\u00e9", Threads: 1}, &out)
	require.NoError(t, err)

	matches := out.Matches()
	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].Start)
	assert.Equal(t, 4, matches[0].End)
}

func TestSearchZeroWidthPatternTerminates(t *testing.T) {
	doc := newFakeDoc("abc")

	var out search.Collector
	stats, err := search.New(search.WithLogger(quiet)).Search(context.Background(), doc,
		search.Job{Pattern: "x*", Threads: 1}, &out)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Matches)
}

func TestSearchValidation(t *testing.T) {
	doc := newFakeDoc("foo")
	engine := search.New(search.WithLogger(quiet))

	tests := []struct {
		name string
		job  search.Job
		want error
	}{
		{name: "empty pattern", job: search.Job{Threads: 1}, want: search.ErrEmptyPattern},
		{name: "negative context", job: search.Job{Pattern: "foo", ContextSize: -1}, want: search.ErrNegativeContext},
		{name: "images without renderer", job: search.Job{Pattern: "foo", SaveImages: true}, want: search.ErrNoRenderer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Search(context.Background(), doc, tt.job, &search.Collector{})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := engine.Search(context.Background(), doc, search.Job{Pattern: "(unclosed"}, &search.Collector{})
	assert.Error(t, err)
}

type failingEmitter struct {
	search.Collector
	calls atomic.Int32
}

func (e *failingEmitter) Emit(m search.Match) error {
	if e.calls.Add(1)%2 == 0 {
		return io.ErrShortWrite
	}
	return e.Collector.Emit(m)
}

func TestSearchDropsMatchesThatFailToEmit(t *testing.T) {
	doc := newFakeDoc("foo foo foo foo")

	out := &failingEmitter{}
	stats, err := search.New(search.WithLogger(quiet)).Search(context.Background(), doc,
		search.Job{Pattern: "foo", Threads: 1}, out)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Matches)
	assert.Len(t, out.Matches(), 2)
}

func TestSearchWorkerPanicIsFatal(t *testing.T) {
	pages := filler(6)
	doc := newFakeDoc(pages...)
	doc.panicking = map[int]bool{4: true}

	_, err := search.New(search.WithLogger(quiet)).Search(context.Background(), doc,
		search.Job{Pattern: "lorem", Threads: 3}, &search.Collector{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestSearchCancelledContext(t *testing.T) {
	doc := newFakeDoc(filler(8)...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := search.New(search.WithLogger(quiet)).Search(ctx, doc,
		search.Job{Pattern: "lorem", Threads: 2}, &search.Collector{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Pages)
}

func TestSearchWaitsForEveryPage(t *testing.T) {
	doc := newFakeDoc(filler(50)...)
	doc.delay = time.Millisecond

	stats, err := search.New(search.WithLogger(quiet)).Search(context.Background(), doc,
		search.Job{Pattern: "ipsum", Threads: 7, Score: true}, &search.Collector{})
	require.NoError(t, err)

	// Nothing may still be reading the document once Search has returned.
	assert.Equal(t, int32(0), doc.reading.Load())
	assert.Equal(t, int32(50), doc.read.Load())
	assert.Equal(t, 50, stats.Pages)

	require.NoError(t, doc.Close())
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, int32(50), doc.read.Load())
	assert.False(t, doc.misused.Load())
}

func TestSearchCancelledMidwayWaitsForWorkers(t *testing.T) {
	doc := newFakeDoc(filler(40)...)
	doc.delay = 2 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	stats, err := search.New(search.WithLogger(quiet)).Search(ctx, doc,
		search.Job{Pattern: "lorem", Threads: 4}, &search.Collector{})
	require.NoError(t, err)

	assert.Equal(t, int32(0), doc.reading.Load())
	assert.Less(t, stats.Pages, 40)
	assert.Equal(t, int32(stats.Pages), doc.read.Load())
}

func TestSearchScore(t *testing.T) {
	doc := newFakeDoc(strings.Repeat("heparin dosing ", 3))

	var out search.Collector
	_, err := search.New(search.WithLogger(quiet)).Search(context.Background(), doc,
		search.Job{Pattern: "heparin", Threads: 1, Score: true, ContextSize: 10}, &out)
	require.NoError(t, err)
	for _, m := range out.Matches() {
		assert.Greater(t, m.Score, float32(0))
	}
}
