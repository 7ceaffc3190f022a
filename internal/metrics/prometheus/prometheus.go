// Package prometheus implements a Prometheus backend for the internal/metrics
// package.
//
// A scrape is a batch job, so nothing listens for /metrics. Instead Flush
// writes the registry in text exposition format to a file, for the
// node_exporter textfile collector to pick up. Close flushes once more.
package prometheus

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"wbdscrape/internal/metrics"
)

// Options controls the Prometheus backend.
type Options struct {
	// Path is the textfile written on every Flush, e.g.
	// /var/lib/node_exporter/textfile/wbdscrape.prom. Required.
	Path string

	// JobName becomes the constant label job="<name>". If empty, defaults to
	// "wbdscrape".
	JobName string
}

type spec struct {
	name    string
	help    string
	labels  []string
	buckets []float64 // nil for counters
}

// specs maps facade metric names to Prometheus metrics. Metrics not listed
// here are dropped.
var specs = map[string]spec{
	metrics.PagesTotal: {
		name: "wbdscrape_pages_total", help: "Listing pages processed.",
		labels: []string{"status"},
	},
	metrics.RecordsTotal: {
		name: "wbdscrape_records_total", help: "Directory entries kept or skipped.",
		labels: []string{"kind"},
	},
	metrics.PageDurationSeconds: {
		name: "wbdscrape_page_duration_seconds", help: "Time to fetch, extract and store one page.",
		labels: []string{"status"}, buckets: prometheus.DefBuckets,
	},
	metrics.HTTPRequestsTotal: {
		name: "wbdscrape_http_requests_total", help: "HTTP requests made.",
		labels: []string{"status"},
	},
	metrics.HTTPErrorsTotal: {
		name: "wbdscrape_http_errors_total", help: "HTTP requests that failed or answered non-2xx.",
		labels: []string{"status"},
	},
	metrics.HTTPRequestDurationSeconds: {
		name: "wbdscrape_http_request_duration_seconds", help: "HTTP request duration.",
		labels: []string{"status"}, buckets: prometheus.DefBuckets,
	},
	metrics.HTTPDownloadBytes: {
		name: "wbdscrape_http_download_bytes", help: "Response body size.",
		labels: []string{"status"}, buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	},
}

// Backend implements metrics.Backend on a private registry.
type Backend struct {
	path string
	reg  *prometheus.Registry

	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec

	closeOnce sync.Once
	closeErr  error
}

// NewBackend registers every known metric on a fresh registry.
func NewBackend(opts Options) (*Backend, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("prometheus backend init: textfile path is required")
	}
	job := opts.JobName
	if job == "" {
		job = "wbdscrape"
	}

	b := &Backend{
		path:       opts.Path,
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	constLabels := prometheus.Labels{"job": job}

	for facadeName, s := range specs {
		var c prometheus.Collector
		if s.buckets == nil {
			cv := prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: s.name, Help: s.help, ConstLabels: constLabels,
			}, s.labels)
			b.counters[facadeName] = cv
			c = cv
		} else {
			hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name: s.name, Help: s.help, ConstLabels: constLabels, Buckets: s.buckets,
			}, s.labels)
			b.histograms[facadeName] = hv
			c = hv
		}
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prometheus backend init: register %s: %w", s.name, err)
		}
	}
	return b, nil
}

// IncCounter adds delta to a known counter. Negative deltas, unknown
// metrics and label sets that do not fit the metric are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	cv, ok := b.counters[name]
	if !ok || delta < 0 {
		return
	}
	c, err := cv.GetMetricWith(promLabels(specs[name].labels, labels))
	if err != nil {
		return
	}
	c.Add(delta)
}

// ObserveHistogram records one sample on a known histogram.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	hv, ok := b.histograms[name]
	if !ok {
		return
	}
	o, err := hv.GetMetricWith(promLabels(specs[name].labels, labels))
	if err != nil {
		return
	}
	o.Observe(value)
}

// Flush writes the current state to the textfile. The write goes through a
// temp file and a rename, so the collector never reads a partial file.
func (b *Backend) Flush() error {
	if err := prometheus.WriteToTextfile(b.path, b.reg); err != nil {
		return fmt.Errorf("prometheus textfile: %w", err)
	}
	return nil
}

// Close writes the textfile a final time. It is safe to call more than once.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() { b.closeErr = b.Flush() })
	return b.closeErr
}

// promLabels returns exactly the label names a metric declares; missing
// labels become "".
func promLabels(names []string, in metrics.Labels) prometheus.Labels {
	out := make(prometheus.Labels, len(names))
	for _, n := range names {
		out[n] = in[n]
	}
	return out
}

var _ metrics.Backend = (*Backend)(nil)
