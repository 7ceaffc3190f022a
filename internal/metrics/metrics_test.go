package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type event struct {
	kind  string
	name  string
	value float64
	label string
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{"counter", name, delta, labels["status"] + labels["kind"]})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{"histogram", name, value, labels["status"]})
}

func (r *recorder) Flush() error { return nil }

func (r *recorder) count(name, label string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total float64
	for _, e := range r.events {
		if e.kind == "counter" && e.name == name && e.label == label {
			total += e.value
		}
	}
	return total
}

// TestRecordHelpers verifies page and HTTP helpers emit the expected metrics.
//
// Not parallel: the backend is process-global.
func TestRecordHelpers(t *testing.T) {
	rec := &recorder{}
	SetBackend(rec)
	t.Cleanup(func() { SetBackend(nil) })

	RecordPage("ok", 2*time.Second, 25, 1)
	RecordHTTP(200, nil, time.Second, 1024)
	RecordHTTP(403, nil, time.Second, 10)
	RecordHTTP(0, errors.New("dial"), time.Second, 0)

	if got := rec.count(PagesTotal, "ok"); got != 1 {
		t.Fatalf("pages ok: want 1, got %v", got)
	}
	if got := rec.count(RecordsTotal, "kept"); got != 25 {
		t.Fatalf("records kept: want 25, got %v", got)
	}
	if got := rec.count(RecordsTotal, "skipped"); got != 1 {
		t.Fatalf("records skipped: want 1, got %v", got)
	}
	if got := rec.count(HTTPErrorsTotal, "403"); got != 1 {
		t.Fatalf("http errors 403: want 1, got %v", got)
	}
	if got := rec.count(HTTPErrorsTotal, "none"); got != 1 {
		t.Fatalf("http errors none: want 1, got %v", got)
	}
	if got := rec.count(HTTPErrorsTotal, "200"); got != 0 {
		t.Fatalf("http errors 200: want 0, got %v", got)
	}
}

// TestSetBackendNil verifies a nil backend falls back to the no-op backend.
func TestSetBackendNil(t *testing.T) {
	SetBackend(nil)
	IncCounter(PagesTotal, 1, nil)
	if err := Flush(); err != nil {
		t.Fatalf("Flush on nop backend: %v", err)
	}
}
