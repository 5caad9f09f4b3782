package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/abiiranathan/pdfgrep/cli"
	"github.com/abiiranathan/pdfgrep/document"
	"github.com/abiiranathan/pdfgrep/metrics"
	"github.com/abiiranathan/pdfgrep/render"
	"github.com/abiiranathan/pdfgrep/routes"
	"github.com/abiiranathan/pdfgrep/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Generated pages older than this are removed by the cleanup loop.
const pageTTL = 2 * time.Minute

// Run opens the documents in config.Directory and serves them until ctx is
// cancelled.
func Run(ctx context.Context, config *cli.Config, pagesDir string) error {
	// Create the pages directory if it does not exist
	// We use this to store the generated images from pdfs.
	if err := os.MkdirAll(pagesDir, os.ModePerm); err != nil {
		return fmt.Errorf("unable to create directory: %s: %w", pagesDir, err)
	}

	open, err := cli.Opener(config.Engine)
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
	// Closed once every handler using them has returned.
	defer docs.Close()
	log.Printf("Serving %d documents from %s\n", len(docs.Data), config.Directory)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer := metrics.NewPrometheus(registry)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	opts := routes.Options{
		Engine:      search.New(search.WithLogger(logger), search.WithObserver(observer)),
		PagesDir:    pagesDir,
		Threads:     config.Threads,
		MaxSearches: 4,
		Metrics:     registry,
	}
	if r, err := cli.NewRenderer(config, render.WithObserver(observer)); err == nil {
		opts.Renderer = r
	} else {
		log.Printf("Page rendering disabled: %v\n", err)
	}

	// Create a new serveMux
	mux := http.NewServeMux()

	// Connect the routes.
	routes.SetupRoutes(mux, routes.NewLibrary(docs.Data), opts)

	var tracker requestTracker

	// Request contexts are cancelled before shutdown so that running searches
	// stop at the next page.
	requestCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	// Create a new http server to customize the timeouts.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           tracker.Wrap(routes.Logger(os.Stdout)(mux)),
		BaseContext:       func(net.Listener) context.Context { return requestCtx },
		ReadTimeout:       time.Second * 10,
		WriteTimeout:      time.Minute,
		ReadHeaderTimeout: time.Second * 5,
	}

	// Clean up generated pages every minute.
	go cleanUpTemporaryFiles(ctx, pagesDir, time.Minute, pageTTL)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on http://0.0.0.0:%d\n", config.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		} else {
			err = fmt.Errorf("server terminated with error: %w", err)
		}
	case <-ctx.Done():
		cancelRequests()
		err = GracefulShutdown(server)
	}

	tracker.Drain()
	return err
}

// requestTracker counts requests in flight. Once drained it rejects new ones.
type requestTracker struct {
	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

func (t *requestTracker) enter() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.pending.Add(1)
	return true
}

// Wrap tracks every request served by next.
func (t *requestTracker) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.enter() {
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}
		defer t.pending.Done()
		next.ServeHTTP(w, r)
	})
}

// Drain rejects new requests and waits for the running ones to return.
func (t *requestTracker) Drain() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.pending.Wait()
}

// cleanUpTemporaryFiles removes files below dir older than ttl, checking every
// interval until ctx is done.
func cleanUpTemporaryFiles(ctx context.Context, dir string, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := removeOlderThan(dir, time.Now().Add(-ttl)); n > 0 {
				log.Printf("Cleaned up %d generated pages\n", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

func removeOlderThan(dir string, cutoff time.Time) int {
	removed := 0
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		if os.Remove(path) == nil {
			removed++
		}
		return nil
	})
	return removed
}

// Gracefully shuts down the server. The default timeout is 10 seconds
// To wait for pending connections.
func GracefulShutdown(server *http.Server, timeout ...time.Duration) error {
	var t time.Duration
	if len(timeout) > 0 {
		t = timeout[0]
	} else {
		t = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), t)
	defer cancel()

	log.Println("Shutting down the server")
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	log.Println("shutting down gracefully")
	return nil
}
