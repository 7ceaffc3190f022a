package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"wbdscrape/internal/directory"
	"wbdscrape/internal/output"
	"wbdscrape/internal/storage"
)

func listing(names ...string) string {
	s := "<html><body>"
	for _, n := range names {
		s += `<p class="entryName">` + n + `</p><p class="entryDetail"><strong>Address:</strong> 1 Main St` + "\n" +
			` Chicago, IL<br><strong>Phone:</strong> 555<br></p><hr>`
	}
	return s + "</body></html>"
}

// listingServer serves one listing page per offset and records the offsets
// it was asked for. Offsets missing from pages answer 500.
type listingServer struct {
	*httptest.Server

	mu      sync.Mutex
	offsets []string
}

func newListingServer(t *testing.T, pages map[string]string) *listingServer {
	t.Helper()

	ls := &listingServer{}
	ls.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		off := r.URL.Query().Get("offset")
		ls.mu.Lock()
		ls.offsets = append(ls.offsets, off)
		ls.mu.Unlock()

		body, ok := pages[off]
		if !ok {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(ls.Close)
	return ls
}

func (ls *listingServer) requested() []string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return append([]string(nil), ls.offsets...)
}

// baseArgs pins every env-backed flag so the tests do not depend on the
// caller's environment.
func baseArgs(srv *listingServer, out string) []string {
	return []string{
		"-list-url", srv.URL + "/wbd?offset=%d",
		"-out", out,
		"-metrics-backend", "none",
	}
}

func TestRun_ScrapesPagesIntoFileAndStore(t *testing.T) {
	t.Parallel()

	srv := newListingServer(t, map[string]string{
		"0":  listing("Alpha Sangha", "Beta Zen"),
		"25": listing("Gamma Temple"),
	})
	tmp := t.TempDir()
	out := filepath.Join(tmp, "centers.json")
	db := filepath.Join(tmp, "centers.db")

	args := append(baseArgs(srv, out), "-to-page", "2", "-store", "sqlite", "-dsn", db)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr, srv.Client())
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr.String())
	}

	recs, err := output.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("want 3 records, got %d", len(recs))
	}
	if recs[0].Name != "Alpha Sangha" || recs[0].Page != 1 || recs[2].Name != "Gamma Temple" || recs[2].Page != 2 {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if addr, _ := recs[0].Get("Address"); addr != "1 Main St, Chicago, IL" {
		t.Fatalf("unexpected address %q", addr)
	}

	if !strings.Contains(stdout.String(), "wrote 3 records") {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "page 2/2 (page=2 records=1)") {
		t.Fatalf("missing progress line; stderr=%s", stderr.String())
	}

	repo, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: db})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer repo.Close()
	page, ok, err := repo.LastPage(context.Background())
	if err != nil || !ok || page != 2 {
		t.Fatalf("store LastPage: page=%d ok=%v err=%v", page, ok, err)
	}
}

func TestRun_ReuseFetchesOnlyMissingPages(t *testing.T) {
	t.Parallel()

	srv := newListingServer(t, map[string]string{
		"25": listing("Second Page"),
		"50": listing("Third Page"),
	})
	out := filepath.Join(t.TempDir(), "centers.json")

	saved := []directory.Record{{Name: "First Page", Page: 1}}
	if err := output.WriteFile(out, saved); err != nil {
		t.Fatal(err)
	}

	args := append(baseArgs(srv, out), "-to-page", "3", "-reuse")
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), args, &stdout, &stderr, srv.Client()); code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr.String())
	}

	if got := srv.requested(); strings.Join(got, ",") != "25,50" {
		t.Fatalf("requested offsets %v, want [25 50]", got)
	}

	recs, err := output.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, r := range recs {
		names = append(names, r.Name)
	}
	if strings.Join(names, "|") != "First Page|Second Page|Third Page" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestRun_ReuseUpToDateFetchesNothing(t *testing.T) {
	t.Parallel()

	srv := newListingServer(t, nil)
	out := filepath.Join(t.TempDir(), "centers.json")
	if err := output.WriteFile(out, []directory.Record{{Name: "A", Page: 2}}); err != nil {
		t.Fatal(err)
	}

	args := append(baseArgs(srv, out), "-to-page", "2", "-reuse")
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), args, &stdout, &stderr, srv.Client()); code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr.String())
	}
	if got := srv.requested(); len(got) != 0 {
		t.Fatalf("expected no requests, got %v", got)
	}
	if !strings.Contains(stdout.String(), "wrote 1 records") {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
}

// TestRun_FetchFailureKeepsPartialOutput checks that pages scraped before a
// failing page are written so a later -reuse run can resume.
func TestRun_FetchFailureKeepsPartialOutput(t *testing.T) {
	t.Parallel()

	srv := newListingServer(t, map[string]string{
		"0": listing("Alpha"),
	})
	out := filepath.Join(t.TempDir(), "centers.json")

	args := append(baseArgs(srv, out), "-to-page", "3")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr, srv.Client())
	if code != 1 {
		t.Fatalf("want exit 1, got %d; stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "http status 500") {
		t.Fatalf("expected http status in stderr; got %s", stderr.String())
	}

	recs, err := output.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Name != "Alpha" {
		t.Fatalf("unexpected partial output: %+v", recs)
	}
	if got := srv.requested(); len(got) != 2 {
		t.Fatalf("expected the run to stop at the failing page, got %v", got)
	}
}

// TestRun_PrometheusTextfile is not parallel: it installs a process-wide
// metrics backend.
func TestRun_PrometheusTextfile(t *testing.T) {
	srv := newListingServer(t, map[string]string{
		"0":  listing("Alpha"),
		"25": listing("Beta", "Gamma"),
	})
	tmp := t.TempDir()
	out := filepath.Join(tmp, "centers.json")
	prom := filepath.Join(tmp, "wbdscrape.prom")

	args := []string{
		"-list-url", srv.URL + "/wbd?offset=%d",
		"-out", out,
		"-to-page", "2",
		"-rate", "1000",
		"-metrics-backend", "prometheus",
		"-metrics-textfile", prom,
	}
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), args, &stdout, &stderr, srv.Client()); code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr.String())
	}

	b, err := os.ReadFile(prom)
	if err != nil {
		t.Fatalf("textfile not written: %v", err)
	}
	for _, want := range []string{
		`wbdscrape_pages_total{job="wbdscrape",status="ok"} 2`,
		`wbdscrape_records_total{job="wbdscrape",kind="kept"} 3`,
		`wbdscrape_http_requests_total{job="wbdscrape",status="200"} 2`,
	} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("textfile missing %q:\n%s", want, b)
		}
	}
}

func TestRun_UsageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-nope"}},
		{"extra args", []string{"extra"}},
		{"negative to-page", []string{"-to-page", "-1"}},
		{"negative rate", []string{"-rate", "-2"}},
		{"prometheus without textfile", []string{"-metrics-backend", "prometheus", "-metrics-textfile", ""}},
		{"store without dsn", []string{"-store", "sqlite", "-dsn", ""}},
		{"bad policy", []string{"-on-malformed", "explode"}},
		{"bad list url", []string{"-list-url", "http://example.com/no-offset"}},
		{"missing profile", []string{"-profile", filepath.Join(t.TempDir(), "missing.json")}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var stdout, stderr bytes.Buffer
			code := run(context.Background(), tt.args, &stdout, &stderr, http.DefaultClient)
			if code != 2 {
				t.Fatalf("want exit 2, got %d; stderr=%s", code, stderr.String())
			}
			if stderr.Len() == 0 {
				t.Fatalf("expected a message on stderr")
			}
		})
	}
}
