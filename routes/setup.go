package routes

import (
	"net/http"

	"github.com/abiiranathan/pdfgrep/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"
)

type Options struct {
	Engine *search.Engine

	// Renderer for the page endpoint. Nil disables it.
	Renderer Renderer
	PagesDir string

	// Workers per document and concurrent searches.
	Threads     int
	MaxSearches int64

	Metrics prometheus.Gatherer
}

func SetupRoutes(mux *http.ServeMux, lib *Library, opts Options) {
	// Home path
	mux.HandleFunc("GET /{$}", Home(lib))

	// Search endpoint
	sem := semaphore.NewWeighted(max(opts.MaxSearches, 1))
	mux.HandleFunc("GET /search", Search(lib, opts.Engine, sem, opts.Threads))

	// Render specific page.
	mux.HandleFunc("GET /books/{book_id}/{page_num}", ServePage(lib, opts.Renderer, opts.PagesDir))

	if opts.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{}))
	}
}
