// Package pdf reads and renders PDF documents with poppler-glib and cairo.
package pdf

/*
#cgo pkg-config: glib-2.0 gio-2.0 cairo poppler-glib

#include <cairo/cairo.h>
#include <cairo/cairo-pdf.h>
#include <locale.h>
#include <poppler/glib/poppler.h>
#include <stdlib.h>

enum {
	RENDER_OK = 0,
	RENDER_SURFACE_ERROR = 1,
	RENDER_CONTEXT_ERROR = 2,
	RENDER_WRITE_ERROR = 3,
};

static PopplerDocument *open_document(const char *data, gsize size, int *num_pages, char **message) {
	GError *error = NULL;
	GBytes *bytes = g_bytes_new(data, size);

	PopplerDocument *doc = poppler_document_new_from_bytes(bytes, NULL, &error);
	g_bytes_unref(bytes);

	if (doc == NULL) {
		if (error != NULL) {
			*message = g_strdup(error->message);
			g_clear_error(&error);
		}
		return NULL;
	}

	*num_pages = poppler_document_get_n_pages(doc);
	return doc;
}

// Rasterize a page at dpi into a PNG file.
// Must not run concurrently with any other cairo call in the process.
static int render_page_png(PopplerPage *page, double dpi, const char *output) {
	double width, height;
	poppler_page_get_size(page, &width, &height);

	int pixel_width = (int)(width * dpi / 72.0);
	int pixel_height = (int)(height * dpi / 72.0);
	if (pixel_width <= 0 || pixel_height <= 0) {
		return RENDER_SURFACE_ERROR;
	}

	cairo_surface_t *surface = cairo_image_surface_create(CAIRO_FORMAT_ARGB32, pixel_width, pixel_height);
	if (cairo_surface_status(surface) != CAIRO_STATUS_SUCCESS) {
		cairo_surface_destroy(surface);
		return RENDER_SURFACE_ERROR;
	}

	cairo_t *cr = cairo_create(surface);
	if (cairo_status(cr) != CAIRO_STATUS_SUCCESS) {
		cairo_destroy(cr);
		cairo_surface_destroy(surface);
		return RENDER_CONTEXT_ERROR;
	}

	// White background
	cairo_set_source_rgb(cr, 1.0, 1.0, 1.0);
	cairo_paint(cr);

	// Disable anti-aliasing for shapes and text to avoid blurriness.
	cairo_set_antialias(cr, CAIRO_ANTIALIAS_NONE);
	cairo_font_options_t *options = cairo_font_options_create();
	cairo_font_options_set_antialias(options, CAIRO_ANTIALIAS_NONE);
	cairo_set_font_options(cr, options);
	cairo_font_options_destroy(options);

	cairo_scale(cr, pixel_width / width, pixel_height / height);
	poppler_page_render(page, cr);
	cairo_destroy(cr);

	cairo_status_t status = cairo_surface_write_to_png(surface, output);
	cairo_surface_destroy(surface);
	if (status != CAIRO_STATUS_SUCCESS) {
		return RENDER_WRITE_ERROR;
	}
	return RENDER_OK;
}

// Draw a page onto a single-page PDF surface sized in points.
static int render_page_pdf(PopplerPage *page, const char *output) {
	double width, height;
	poppler_page_get_size(page, &width, &height);

	cairo_surface_t *surface = cairo_pdf_surface_create(output, width, height);
	if (cairo_surface_status(surface) != CAIRO_STATUS_SUCCESS) {
		cairo_surface_destroy(surface);
		return RENDER_SURFACE_ERROR;
	}

	cairo_t *cr = cairo_create(surface);
	if (cairo_status(cr) != CAIRO_STATUS_SUCCESS) {
		cairo_destroy(cr);
		cairo_surface_destroy(surface);
		return RENDER_CONTEXT_ERROR;
	}

	cairo_set_source_rgb(cr, 1.0, 1.0, 1.0);
	cairo_paint(cr);
	poppler_page_render(page, cr);
	cairo_destroy(cr);

	cairo_surface_finish(surface);
	cairo_status_t status = cairo_surface_status(surface);
	cairo_surface_destroy(surface);
	if (status != CAIRO_STATUS_SUCCESS) {
		return RENDER_WRITE_ERROR;
	}
	return RENDER_OK;
}
*/
import "C"
import (
	"fmt"
	"os"
	"strings"
	"unsafe"

	"github.com/abiiranathan/pdfgrep/document"
	"github.com/abiiranathan/pdfgrep/render"
)

// SetLocale applies the user's locale so that poppler decodes text as UTF-8.
func SetLocale() {
	empty := C.CString("")
	defer C.free(unsafe.Pointer(empty))
	C.setlocale(C.LC_ALL, empty)
}

// Document is a PDF opened with poppler.
type Document struct {
	doc      *C.PopplerDocument
	path     string
	numPages int
}

// Open reads the file at path and parses it as a PDF.
// Its signature matches document.OpenFunc.
func Open(path string) (document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", document.ErrOpen, path, err)
	}

	doc, err := OpenBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.path = path
	return doc, nil
}

// OpenBytes parses an in-memory PDF. The data is copied.
func OpenBytes(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", document.ErrOpen)
	}

	var numPages C.int
	var message *C.char
	doc := C.open_document((*C.char)(unsafe.Pointer(&data[0])), C.gsize(len(data)), &numPages, &message)
	if doc == nil {
		reason := "unknown error"
		if message != nil {
			reason = C.GoString(message)
			C.g_free(C.gpointer(message))
		}
		return nil, fmt.Errorf("%w: %s", document.ErrOpen, reason)
	}
	return &Document{doc: doc, numPages: int(numPages)}, nil
}

func (d *Document) Path() string  { return d.path }
func (d *Document) NumPages() int { return d.numPages }

func (d *Document) Close() error {
	if d.doc != nil {
		C.g_object_unref(C.gpointer(d.doc))
		d.doc = nil
	}
	return nil
}

// Page returns the zero-indexed page.
func (d *Document) Page(index int) (document.Page, error) {
	if index < 0 || index >= d.numPages {
		return nil, fmt.Errorf("%w: %d (document has %d pages)", document.ErrPageOutOfRange, index, d.numPages)
	}

	page := C.poppler_document_get_page(d.doc, C.int(index))
	if page == nil {
		return nil, fmt.Errorf("%w: %d", document.ErrPageUnavailable, index)
	}

	var width, height C.double
	C.poppler_page_get_size(page, &width, &height)
	return &Page{
		page:   page,
		number: index,
		width:  float64(width),
		height: float64(height),
	}, nil
}

// Page is a single poppler page.
type Page struct {
	page   *C.PopplerPage
	number int
	width  float64
	height float64
}

func (p *Page) Number() int                   { return p.number }
func (p *Page) Size() (width, height float64) { return p.width, p.height }

func (p *Page) Close() {
	if p.page != nil {
		C.g_object_unref(C.gpointer(p.page))
		p.page = nil
	}
}

// Glyphs that poppler emits for decorative bullets and arrows.
var glyphStripper = func() *strings.Replacer {
	var pairs []string
	for r := rune(0x25B6); r <= 0x25FF; r++ {
		pairs = append(pairs, string(r), "")
	}
	pairs = append(pairs, "\u0080", "", "\u0089", "")
	return strings.NewReplacer(pairs...)
}()

// Text returns the text content of the page.
func (p *Page) Text() (string, error) {
	text := C.poppler_page_get_text(p.page)
	if text == nil {
		return "", nil
	}
	defer C.g_free(C.gpointer(text))

	return glyphStripper.Replace(C.GoString((*C.char)(unsafe.Pointer(text)))), nil
}

// Backend draws poppler pages with cairo. Pages from other decoders are rejected.
type Backend struct{}

var _ render.Backend = Backend{}

func (Backend) RenderPNG(page document.Page, dpi float64, output string) error {
	p, ok := page.(*Page)
	if !ok {
		return render.ErrUnsupportedPage
	}

	out := C.CString(output)
	defer C.free(unsafe.Pointer(out))
	return renderStatus(C.render_page_png(p.page, C.double(dpi), out))
}

func (Backend) RenderPDF(page document.Page, output string) error {
	p, ok := page.(*Page)
	if !ok {
		return render.ErrUnsupportedPage
	}

	out := C.CString(output)
	defer C.free(unsafe.Pointer(out))
	return renderStatus(C.render_page_pdf(p.page, out))
}

func renderStatus(code C.int) error {
	switch code {
	case C.RENDER_OK:
		return nil
	case C.RENDER_SURFACE_ERROR:
		return render.ErrSurface
	case C.RENDER_CONTEXT_ERROR:
		return render.ErrContext
	default:
		return render.ErrEncode
	}
}
