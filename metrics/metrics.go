// Package metrics records search and render activity.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer receives events from the search engine and the renderer.
// Implementations must be safe for concurrent use.
type Observer interface {
	PageScanned()
	PageFailed()
	MatchFound()
	RenderFinished(wait, took time.Duration, err error)
}

// Nop discards all events.
type Nop struct{}

func (Nop) PageScanned()                                       {}
func (Nop) PageFailed()                                        {}
func (Nop) MatchFound()                                        {}
func (Nop) RenderFinished(time.Duration, time.Duration, error) {}

// Prometheus exports events as Prometheus metrics.
type Prometheus struct {
	pages      prometheus.Counter
	pageErrors prometheus.Counter
	matches    prometheus.Counter
	renderWait prometheus.Histogram
	renderTime *prometheus.HistogramVec
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pdfgrep_pages_scanned_total",
			Help: "Total pages whose text was searched",
		}),
		pageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pdfgrep_page_errors_total",
			Help: "Total pages skipped because they could not be read",
		}),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pdfgrep_matches_total",
			Help: "Total pattern matches emitted",
		}),
		renderWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pdfgrep_render_gate_wait_seconds",
			Help:    "Time spent waiting to acquire the render gate",
			Buckets: prometheus.DefBuckets,
		}),
		renderTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pdfgrep_render_seconds",
			Help:    "Time spent rendering a page while holding the render gate",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
	}

	reg.MustRegister(p.pages, p.pageErrors, p.matches, p.renderWait, p.renderTime)
	return p
}

func (p *Prometheus) PageScanned() { p.pages.Inc() }
func (p *Prometheus) PageFailed()  { p.pageErrors.Inc() }
func (p *Prometheus) MatchFound()  { p.matches.Inc() }

func (p *Prometheus) RenderFinished(wait, took time.Duration, err error) {
	p.renderWait.Observe(wait.Seconds())
	p.renderTime.WithLabelValues(status(err)).Observe(took.Seconds())
}

func status(err error) string {
	var s interface{ Stage() string }
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &s):
		return s.Stage()
	default:
		return "error"
	}
}
