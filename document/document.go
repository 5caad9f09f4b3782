// Package document defines the boundary between the search engine and the
// PDF decoders that supply page text and geometry.
package document

import (
	"errors"
)

var (
	// ErrOpen is returned when a document cannot be opened at all.
	ErrOpen = errors.New("unable to open document")

	// ErrPageOutOfRange is returned for page indices outside [0, NumPages).
	ErrPageOutOfRange = errors.New("page number is out of range of this document")

	// ErrPageUnavailable is returned when a page exists but cannot be decoded.
	ErrPageUnavailable = errors.New("page is unavailable")

	// ErrNoPaths is returned by OpenAll when called without any path.
	ErrNoPaths = errors.New("no pdf paths provided")
)

// Document is an opened multi-page document.
// Page lookups for distinct indices may run concurrently.
type Document interface {
	// Path the document was opened from. Empty for in-memory documents.
	Path() string

	// NumPages returns the number of pages.
	NumPages() int

	// Page returns a handle for the zero-indexed page. The handle must be closed.
	Page(index int) (Page, error)

	// Close releases the document. No page handle may be used afterwards.
	Close() error
}

// Page is a read-only view of a single page.
type Page interface {
	// Number is the zero-indexed page number.
	Number() int

	// Text returns the full text content of the page.
	Text() (string, error)

	// Size returns the page dimensions in points.
	Size() (width, height float64)

	Close()
}

// OpenFunc opens the document stored at path.
type OpenFunc func(path string) (Document, error)
