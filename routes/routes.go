package routes

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/abiiranathan/pdfgrep/alg"
	"github.com/abiiranathan/pdfgrep/document"
	"github.com/abiiranathan/pdfgrep/render"
	"github.com/abiiranathan/pdfgrep/search"
	"github.com/goccy/go-json"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// Renderer draws pages for the page endpoint.
type Renderer interface {
	Render(page document.Page, task render.Task) error
}

type Book struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Pages int    `json:"pages"`
	URL   string `json:"url"`
}

// Library is the set of documents served. They are opened once at startup
// and shared read-only by all requests.
type Library struct {
	Books []Book
	docs  []document.Document
}

func NewLibrary(docs []document.Document) *Library {
	lib := &Library{docs: docs, Books: make([]Book, len(docs))}
	for i, doc := range docs {
		lib.Books[i] = Book{
			ID:    i,
			Name:  filepath.Base(doc.Path()),
			Pages: doc.NumPages(),
			URL:   fmt.Sprintf("/books/%d/0", i),
		}
	}
	return lib
}

func (lib *Library) lookup(id string) (document.Document, bool) {
	i, err := strconv.Atoi(id)
	if err != nil || i < 0 || i >= len(lib.docs) {
		return nil, false
	}
	return lib.docs[i], true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// Home lists the available books.
func Home(lib *Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, lib.Books)
	}
}

// Search scans the selected book, or all books, for the query parameter and
// returns the matches in page order. At most sem's weight searches run at once.
func Search(lib *Library, engine *search.Engine, sem *semaphore.Weighted, threads int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")
		if query == "" {
			// Send an empty slice.
			writeJSON(w, http.StatusOK, []search.Match{})
			return
		}

		docs := lib.docs
		if book := r.URL.Query().Get("book"); book != "" {
			doc, ok := lib.lookup(book)
			if !ok {
				writeError(w, http.StatusBadRequest, "Invalid book")
				return
			}
			docs = []document.Document{doc}
		}

		job := search.Job{
			Pattern:     query,
			Literal:     r.URL.Query().Has("literal"),
			ContextSize: alg.DefaultContextSize,
			Threads:     threads,
			Score:       r.URL.Query().Has("score"),
		}
		if size := r.URL.Query().Get("context"); size != "" {
			n, err := strconv.Atoi(size)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid context size")
				return
			}
			job.ContextSize = n
		}

		if err := sem.Acquire(r.Context(), 1); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		defer sem.Release(1)

		var out search.Collector
		for _, doc := range docs {
			if _, err := engine.Search(r.Context(), doc, job, &out); err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, search.ErrInvalidPattern) || errors.Is(err, search.ErrNegativeContext) {
					status = http.StatusBadRequest
				}
				writeError(w, status, err.Error())
				return
			}
		}

		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, out.Matches())
	}
}

// ServePage renders a page of a book into pagesDir and serves the file.
// Rendered files are reused until the cleanup removes them.
func ServePage(lib *Library, renderer Renderer, pagesDir string) http.HandlerFunc {
	// Requests for the same file share one render.
	var renders singleflight.Group

	return func(w http.ResponseWriter, r *http.Request) {
		bookID := r.PathValue("book_id")
		doc, ok := lib.lookup(bookID)
		if !ok {
			http.Error(w, "Invalid book id", http.StatusNotFound)
			return
		}

		pageNum, err := strconv.Atoi(r.PathValue("page_num"))
		if err != nil {
			http.Error(w, "Invalid page number", http.StatusBadRequest)
			return
		}

		if renderer == nil {
			http.Error(w, "Page rendering is not available with this engine", http.StatusNotImplemented)
			return
		}

		task := render.NewTask(filepath.Join(pagesDir, bookID), pageNum)
		if r.URL.Query().Get("format") == "pdf" {
			task.Vector = true
			task.Path = strings.TrimSuffix(task.Path, ".png") + ".pdf"
		}

		_, err, _ = renders.Do(task.Path, func() (any, error) {
			return nil, renderFile(doc, renderer, task)
		})
		if err != nil {
			if errors.Is(err, document.ErrPageOutOfRange) {
				http.Error(w, err.Error(), http.StatusNotFound)
			} else {
				http.Error(w, "Unable to render the page", http.StatusInternalServerError)
			}
			return
		}
		http.ServeFile(w, r, task.Path)
	}
}

// renderFile produces task.Path unless it already exists. The page is drawn
// into a temporary file in the same directory and renamed into place, so
// task.Path never holds a partial file.
func renderFile(doc document.Document, renderer Renderer, task render.Task) error {
	if _, err := os.Stat(task.Path); err == nil {
		return nil
	}

	page, err := doc.Page(task.Page)
	if err != nil {
		return err
	}
	defer page.Close()

	dir := filepath.Dir(task.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(task.Path)+".*")
	if err != nil {
		return err
	}
	tmp.Close()

	output := task.Path
	task.Path = tmp.Name()
	if err := renderer.Render(page, task); err != nil {
		os.Remove(task.Path)
		return err
	}
	if err := os.Rename(task.Path, output); err != nil {
		os.Remove(task.Path)
		return err
	}
	return nil
}
