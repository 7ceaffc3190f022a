// Package metrics is the backend-neutral metrics facade used by the scraper.
//
// Code records through the package-level functions; a backend (Datadog, or
// the default no-op) is installed once at startup with SetBackend.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels are metric dimensions, e.g. {"status": "ok"}.
type Labels map[string]string

// Backend receives metric events.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names understood by the backends.
const (
	PagesTotal          = "scrape_pages_total"
	RecordsTotal        = "scrape_records_total"
	PageDurationSeconds = "scrape_page_duration_seconds"

	HTTPRequestsTotal          = "scrape_http_requests_total"
	HTTPErrorsTotal            = "scrape_http_errors_total"
	HTTPRequestDurationSeconds = "scrape_http_request_duration_seconds"
	HTTPDownloadBytes          = "scrape_http_download_bytes"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter forwards to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend.
func Flush() error {
	return current().Flush()
}

// RecordPage records one processed listing page.
//
// status is "ok" or "error"; kept and skipped count the records assembled
// and the malformed entries dropped on that page.
func RecordPage(status string, d time.Duration, kept, skipped int) {
	b := current()
	b.IncCounter(PagesTotal, 1, Labels{"status": status})
	b.ObserveHistogram(PageDurationSeconds, d.Seconds(), Labels{"status": status})
	if kept > 0 {
		b.IncCounter(RecordsTotal, float64(kept), Labels{"kind": "kept"})
	}
	if skipped > 0 {
		b.IncCounter(RecordsTotal, float64(skipped), Labels{"kind": "skipped"})
	}
}

// RecordHTTP records one HTTP fetch. A status of 0 means the request never
// got a response.
func RecordHTTP(status int, err error, d time.Duration, size int64) {
	st := "none"
	if status > 0 {
		st = strconv.Itoa(status)
	}
	l := Labels{"status": st}

	b := current()
	b.IncCounter(HTTPRequestsTotal, 1, l)
	if err != nil || status < 200 || status >= 300 {
		b.IncCounter(HTTPErrorsTotal, 1, l)
	}
	b.ObserveHistogram(HTTPRequestDurationSeconds, d.Seconds(), l)
	if size > 0 {
		b.ObserveHistogram(HTTPDownloadBytes, float64(size), l)
	}
}
