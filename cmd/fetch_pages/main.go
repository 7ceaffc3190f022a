// Command fetch-pages downloads listing pages 1..N into a directory, one
// file per page (page-0001.html, ...), so they can be extracted offline with
// extract-html -dir.
//
// Pages are fetched one at a time with a jittered pause between requests.
// Every request is logged as one JSON line on stdout. The first page that
// cannot be saved stops the run; -keep-existing resumes it.
//
// Usage:
//
//	fetch-pages -to-page 120 -out-dir ./pages
//	fetch-pages -to-page 120 -out-dir ./pages -keep-existing
//	fetch-pages -to-page 5 -metrics-backend datadog -dd-tags env:dev
//	fetch-pages -metrics-backend prometheus -metrics-textfile fetch.prom
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"

	"wbdscrape/internal/directory"
	"wbdscrape/internal/extracthtml"
	"wbdscrape/internal/metrics"
	"wbdscrape/internal/metrics/datadog"
	"wbdscrape/internal/metrics/prometheus"
)

// logRecord is emitted as JSONL to stdout for each page request.
//
// This output is intended for machine parsing. Additive changes are safe;
// renames/removals are breaking changes for downstream log consumers.
type logRecord struct {
	Timestamp  string `json:"ts"`
	RunID      string `json:"run_id"`
	Page       int    `json:"page"`
	URL        string `json:"url"`
	StatusCode int    `json:"http_code"`
	DurationMs int64  `json:"duration_ms"`
	DownloadSz int64  `json:"size_bytes"`
	File       string `json:"file,omitempty"`
	Error      string `json:"error,omitempty"`
}

// backendCloser is the metrics backend this command owns.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	BackendFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error)
	HTTPClient     *http.Client
	Now            func() time.Time
	Sleep          func(d time.Duration)
}

// runConfig holds the parsed flags for a run.
type runConfig struct {
	ToPage         int
	OutDir         string
	ProfilePath    string
	ListURL        string
	KeepExisting   bool
	Timeout        time.Duration
	JitterMax      time.Duration
	SleepBefore    time.Duration
	MetricsBackend string
	DDTagsCSV      string
	Textfile       string
	FlushEvery     time.Duration
}

// envConfig holds the environment fallbacks for flags left empty.
type envConfig struct {
	MetricsBackend  string `env:"METRICS_BACKEND"`
	MetricsTags     string `env:"METRICS_TAGS"`
	MetricsTextfile string `env:"METRICS_TEXTFILE"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	code := run(ctx, os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
		Now:   time.Now,
		Sleep: time.Sleep,
	})
	os.Exit(code)
}

// pageJob is one page to download.
type pageJob struct {
	page int
	url  string
}

// run executes the downloader and returns an exit code.
//
// Exit codes:
//   - 0: every page was saved.
//   - 1: a page could not be saved, or the run was interrupted.
//   - 2: configuration/initialization error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sleep == nil {
		d.Sleep = time.Sleep
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	jobs, err := buildJobs(cfg)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		fmt.Fprintf(d.Stderr, "failed to create output directory: %v\n", err)
		return 2
	}

	var backend backendCloser
	switch cfg.MetricsBackend {
	case "datadog":
		if d.BackendFactory == nil {
			fmt.Fprintln(d.Stderr, "internal error: BackendFactory is nil")
			return 2
		}
		tags := append(datadog.ParseTagsCSV(cfg.DDTagsCSV), "tool:fetch_pages")
		// The backend outlives ctx so the final flush still runs after an
		// interrupt.
		backend, err = d.BackendFactory(context.Background(), "wbdscrape", tags, cfg.FlushEvery)
	case "prometheus":
		backend, err = prometheus.NewBackend(prometheus.Options{Path: cfg.Textfile, JobName: "wbdscrape_fetch_pages"})
	}
	if err != nil {
		fmt.Fprintf(d.Stderr, "%s backend init failed: %v\n", cfg.MetricsBackend, err)
		return 2
	}
	if backend != nil {
		metrics.SetBackend(backend)
		defer func() {
			_ = backend.Close()
			metrics.SetBackend(nil)
		}()
	}

	client := d.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	rng := rand.New(rand.NewSource(d.Now().UnixNano()))
	s := newSleeper(rng, cfg.SleepBefore, cfg.JitterMax, d.Sleep)
	enc := json.NewEncoder(d.Stdout)
	runID := uuid.NewString()

	saved, present := 0, 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			fmt.Fprintf(d.Stderr, "fetch-pages: interrupted after %d pages\n", saved)
			return 1
		}
		outputPath := filepath.Join(cfg.OutDir, pageFile(job.page))
		if cfg.KeepExisting && fileExists(outputPath) {
			present++
			continue
		}

		s.Sleep()
		rec := doRequest(ctx, client, job, outputPath, d.Now)
		rec.RunID = runID

		var reqErr error
		if rec.Error != "" {
			reqErr = errors.New(rec.Error)
		}
		metrics.RecordHTTP(rec.StatusCode, reqErr, time.Duration(rec.DurationMs)*time.Millisecond, max(rec.DownloadSz, 0))
		_ = enc.Encode(rec)

		if rec.File == "" {
			// A missing page would shift page numbering in extract-html -dir.
			fmt.Fprintf(d.Stderr, "fetch-pages: page %d not saved (http_code=%d %s); rerun with -keep-existing to resume\n",
				job.page, rec.StatusCode, rec.Error)
			return 1
		}
		saved++
	}

	fmt.Fprintf(d.Stderr, "fetch-pages: saved %d pages to %s (%d already present)\n", saved, cfg.OutDir, present)
	return 0
}

// parseFlags parses command arguments into a validated runConfig.
//
// Errors:
//   - Returns an error for invalid flags, including the usage text.
//   - Does not exit the process (caller decides exit code).
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("fetch-pages", flag.ContinueOnError)

	// Capture help/usage text so the caller decides where it goes.
	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.IntVar(&cfg.ToPage, "to-page", extracthtml.DefaultToPage, "Download pages 1..to-page")
	fs.StringVar(&cfg.OutDir, "out-dir", "pages", "Directory to save pages to")
	fs.StringVar(&cfg.ProfilePath, "profile", "", "Optional site profile JSON (list_url, per_page)")
	fs.StringVar(&cfg.ListURL, "list-url", "", "Override the profile's listing URL template")
	fs.BoolVar(&cfg.KeepExisting, "keep-existing", false, "Skip pages whose file already exists")
	fs.DurationVar(&cfg.Timeout, "timeout", 60*time.Second, "HTTP timeout per request")
	fs.DurationVar(&cfg.SleepBefore, "sleep-before", 500*time.Millisecond, "Base pause before each request")
	fs.DurationVar(&cfg.JitterMax, "jitter-max", 350*time.Millisecond, "Max jitter added to the pause")
	fs.StringVar(&cfg.MetricsBackend, "metrics-backend", "", "Metrics backend: datadog, prometheus or none (env METRICS_BACKEND)")
	fs.StringVar(&cfg.DDTagsCSV, "dd-tags", "", "Extra Datadog tags CSV (env METRICS_TAGS)")
	fs.StringVar(&cfg.Textfile, "metrics-textfile", "", "Prometheus textfile path (env METRICS_TEXTFILE)")
	fs.DurationVar(&cfg.FlushEvery, "metrics-flush", time.Minute, "Datadog flush interval")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}
	if fs.NArg() > 0 {
		return runConfig{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return runConfig{}, fmt.Errorf("environment: %w", err)
	}
	if cfg.MetricsBackend == "" {
		cfg.MetricsBackend = ec.MetricsBackend
	}
	if cfg.DDTagsCSV == "" {
		cfg.DDTagsCSV = ec.MetricsTags
	}
	if cfg.Textfile == "" {
		cfg.Textfile = ec.MetricsTextfile
	}

	switch {
	case cfg.ToPage < 1:
		return runConfig{}, errors.New("-to-page must be >= 1")
	case cfg.SleepBefore < 0 || cfg.JitterMax < 0:
		return runConfig{}, errors.New("-sleep-before and -jitter-max must be >= 0")
	}
	switch cfg.MetricsBackend {
	case "", "none", "datadog":
	case "prometheus":
		if cfg.Textfile == "" {
			return runConfig{}, errors.New("-metrics-backend prometheus requires -metrics-textfile")
		}
	default:
		return runConfig{}, fmt.Errorf("unknown -metrics-backend %q", cfg.MetricsBackend)
	}
	return cfg, nil
}

// buildJobs resolves the profile and turns pages 1..ToPage into URLs.
func buildJobs(cfg runConfig) ([]pageJob, error) {
	profile := directory.DefaultProfile()
	if cfg.ProfilePath != "" {
		p, err := directory.LoadProfile(cfg.ProfilePath)
		if err != nil {
			return nil, fmt.Errorf("load profile: %w", err)
		}
		profile = p
	}
	if cfg.ListURL != "" {
		profile.ListURL = cfg.ListURL
	}

	jobs := make([]pageJob, 0, cfg.ToPage)
	for _, page := range extracthtml.PagesToFetch(cfg.ToPage, 0) {
		u, err := extracthtml.PageURL(profile.ListURL, page, profile.PerPage)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, pageJob{page: page, url: u})
	}
	return jobs, nil
}

// pageFile names the saved file for page so that lexical order is page
// order, which is what extract-html -dir relies on.
func pageFile(page int) string {
	return fmt.Sprintf("page-%04d.html", page)
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// doRequest fetches one page and, on 2xx, streams the body to outputPath.
// File is set only when the page was saved.
func doRequest(
	ctx context.Context,
	client *http.Client,
	job pageJob,
	outputPath string,
	now func() time.Time,
) logRecord {
	start := now()

	rec := logRecord{
		Timestamp:  start.UTC().Format("2006-01-02T15:04:05.000Z"),
		Page:       job.page,
		URL:        job.url,
		DownloadSz: -1,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.url, nil)
	if err != nil {
		rec.DurationMs = now().Sub(start).Milliseconds()
		rec.Error = err.Error()
		return rec
	}
	req.Header.Set("User-Agent", extracthtml.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		rec.DurationMs = now().Sub(start).Milliseconds()
		rec.Error = err.Error()
		return rec
	}
	defer resp.Body.Close()

	rec.StatusCode = resp.StatusCode

	// For non-2xx, discard the body so connections can be reused.
	// For 2xx, stream directly to the output file.
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		n, werr := writeBodyToFile(outputPath, resp.Body)
		rec.DownloadSz = n
		if werr != nil {
			rec.Error = werr.Error()
		} else {
			rec.File = outputPath
		}
	} else {
		n, derr := io.Copy(io.Discard, resp.Body)
		rec.DownloadSz = n
		if derr != nil {
			rec.Error = derr.Error()
		}
	}

	rec.DurationMs = now().Sub(start).Milliseconds()
	return rec
}

// writeBodyToFile writes r to outputPath through a temp file in the same
// directory, so a page file is either complete or absent.
//
// Returns the number of bytes written.
func writeBodyToFile(outputPath string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".fetch-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()

	n, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()

	if copyErr != nil {
		_ = os.Remove(tmpName)
		return n, copyErr
	}
	if closeErr != nil {
		_ = os.Remove(tmpName)
		return n, closeErr
	}
	if err := os.Rename(tmpName, outputPath); err != nil {
		_ = os.Remove(tmpName)
		return n, err
	}
	return n, nil
}

// sleeper spaces out requests: base plus a random jitter in [0, jitterMax].
type sleeper struct {
	rng       *rand.Rand
	base      time.Duration
	jitterMax time.Duration
	sleep     func(d time.Duration)
}

func newSleeper(rng *rand.Rand, base, jitterMax time.Duration, sleep func(d time.Duration)) *sleeper {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &sleeper{
		rng:       rng,
		base:      base,
		jitterMax: jitterMax,
		sleep:     sleep,
	}
}

func (s *sleeper) Sleep() {
	jitter := time.Duration(0)
	if s.jitterMax > 0 {
		jitter = time.Duration(s.rng.Int63n(int64(s.jitterMax) + 1))
	}
	s.sleep(s.base + jitter)
}
