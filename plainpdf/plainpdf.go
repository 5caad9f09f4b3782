// Package plainpdf extracts page text with a pure Go PDF reader.
// It needs no C libraries but cannot render pages.
package plainpdf

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/abiiranathan/pdfgrep/document"
	"github.com/ledongthuc/pdf"
)

// Letter size in points, used when a page has no usable MediaBox.
const (
	defaultWidth  = 612.0
	defaultHeight = 792.0
)

// Document is a PDF parsed by github.com/ledongthuc/pdf.
// The reader keeps no locks of its own, so all access goes through mu.
type Document struct {
	mu       sync.Mutex
	closer   io.Closer
	reader   *pdf.Reader
	path     string
	numPages int
}

// Open parses the PDF at path. Its signature matches document.OpenFunc.
func Open(path string) (doc document.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("%w %s: %v", document.ErrOpen, path, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", document.ErrOpen, path, err)
	}
	return &Document{closer: f, reader: reader, path: path, numPages: reader.NumPage()}, nil
}

// OpenBytes parses an in-memory PDF.
func OpenBytes(data []byte) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("%w: %v", document.ErrOpen, r)
		}
	}()

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", document.ErrOpen)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", document.ErrOpen, err)
	}
	return &Document{reader: reader, numPages: reader.NumPage()}, nil
}

func (d *Document) Path() string  { return d.path }
func (d *Document) NumPages() int { return d.numPages }

func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reader = nil
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil
	return err
}

// Page returns the zero-indexed page.
func (d *Document) Page(index int) (document.Page, error) {
	if index < 0 || index >= d.numPages {
		return nil, fmt.Errorf("%w: %d (document has %d pages)", document.ErrPageOutOfRange, index, d.numPages)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reader == nil {
		return nil, fmt.Errorf("%w: document is closed", document.ErrPageUnavailable)
	}

	page, err := lookup(d.reader, index)
	if err != nil {
		return nil, fmt.Errorf("%w: %d: %w", document.ErrPageUnavailable, index, err)
	}

	width, height := mediaBox(page.V)
	return &Page{doc: d, page: page, number: index, width: width, height: height}, nil
}

// lookup resolves a page, converting reader panics on corrupt objects into errors.
func lookup(r *pdf.Reader, index int) (page pdf.Page, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%v", p)
		}
	}()

	page = r.Page(index + 1)
	if page.V.IsNull() {
		return page, fmt.Errorf("missing page object")
	}
	return page, nil
}

// Bounds the /Parent chain walked by mediaBox on malformed page trees.
const maxTreeDepth = 32

// mediaBox returns the page size, following /Parent for inherited boxes.
func mediaBox(v pdf.Value) (width, height float64) {
	node := v
	for range maxTreeDepth {
		if node.IsNull() {
			break
		}
		box := node.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			var coords [4]float64
			for i := range coords {
				coords[i] = number(box.Index(i))
			}
			width, height = coords[2]-coords[0], coords[3]-coords[1]
			if width > 0 && height > 0 {
				return width, height
			}
		}
		node = node.Key("Parent")
	}
	return defaultWidth, defaultHeight
}

func number(v pdf.Value) float64 {
	if v.Kind() == pdf.Integer {
		return float64(v.Int64())
	}
	return v.Float64()
}

// Page is a single page of a Document.
type Page struct {
	doc    *Document
	page   pdf.Page
	number int
	width  float64
	height float64
}

func (p *Page) Number() int                   { return p.number }
func (p *Page) Size() (width, height float64) { return p.width, p.height }
func (p *Page) Close()                        {}

// Text returns the plain text content of the page.
func (p *Page) Text() (text string, err error) {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("page %d: %v", p.number, r)
		}
	}()

	if p.doc.reader == nil {
		return "", fmt.Errorf("%w: document is closed", document.ErrPageUnavailable)
	}
	return p.page.GetPlainText(nil)
}
