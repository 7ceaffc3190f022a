// Command scrape downloads the World Buddhist Directory listing for the
// United States page by page and writes every center as a JSON record.
//
// Usage:
//
//	scrape                          # pages 1..120 into buddhist_centers.json
//	scrape -to-page 5 -reuse        # only fetch pages after the last saved one
//	scrape -store sqlite -dsn centers.db
//	scrape -profile site.json -on-malformed abort -v
//	scrape -rate 0.5 -metrics-backend prometheus -metrics-textfile wbd.prom
//
// Environment fallbacks (flag -> env -> default):
//
//	METRICS_BACKEND   datadog | prometheus | none
//	METRICS_TAGS      extra Datadog tags, e.g. "env:prod,team:data"
//	METRICS_TEXTFILE  Prometheus textfile path
//	SCRAPE_STORE      sqlite | postgres | mssql
//	SCRAPE_DSN        DSN for SCRAPE_STORE
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/time/rate"

	"wbdscrape/internal/directory"
	"wbdscrape/internal/extracthtml"
	"wbdscrape/internal/metrics"
	"wbdscrape/internal/metrics/datadog"
	"wbdscrape/internal/metrics/prometheus"
	"wbdscrape/internal/output"
	"wbdscrape/internal/storage"

	// register all backends with the storage factory.
	_ "wbdscrape/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, http.DefaultClient))
}

// config is the resolved command line.
type config struct {
	toPage         int
	reuse          bool
	out            string
	profilePath    string
	listURL        string
	timeout        time.Duration
	onMalformed    string
	store          string
	dsn            string
	table          string
	rate           float64
	metricsBackend string
	metricsTags    string
	textfile       string
	verbose        bool
}

// envConfig holds the environment fallbacks for flags left empty.
type envConfig struct {
	Store           string `env:"SCRAPE_STORE"`
	DSN             string `env:"SCRAPE_DSN"`
	MetricsBackend  string `env:"METRICS_BACKEND"`
	MetricsTags     string `env:"METRICS_TAGS"`
	MetricsTextfile string `env:"METRICS_TEXTFILE"`
}

func parseFlags(args []string, stderr io.Writer) (config, error) {
	var c config

	fs := flag.NewFlagSet("scrape", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&c.toPage, "to-page", extracthtml.DefaultToPage, "parse up to and including this page")
	fs.BoolVar(&c.reuse, "reuse", false, "reuse records already saved to -out and only scrape missing pages")
	fs.StringVar(&c.out, "out", "buddhist_centers.json", "output JSON file")
	fs.StringVar(&c.profilePath, "profile", "", "optional site profile JSON (selectors, labels, paging)")
	fs.StringVar(&c.listURL, "list-url", "", "override the profile's listing URL template (%d is the entry offset)")
	fs.DurationVar(&c.timeout, "timeout", 30*time.Second, "per-request HTTP timeout")
	fs.StringVar(&c.onMalformed, "on-malformed", "skip", "what to do with a malformed entry: skip or abort the page")
	fs.StringVar(&c.store, "store", "", "optional storage backend: sqlite, postgres or mssql (env SCRAPE_STORE)")
	fs.StringVar(&c.dsn, "dsn", "", "storage DSN (env SCRAPE_DSN)")
	fs.StringVar(&c.table, "table", storage.DefaultTable, "storage table, optionally schema-qualified")
	fs.Float64Var(&c.rate, "rate", 0, "max pages per second; 0 means no limit")
	fs.StringVar(&c.metricsBackend, "metrics-backend", "", "metrics backend: datadog, prometheus or none (env METRICS_BACKEND)")
	fs.StringVar(&c.textfile, "metrics-textfile", "", "Prometheus textfile path (env METRICS_TEXTFILE)")
	fs.BoolVar(&c.verbose, "v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		return c, err
	}
	if fs.NArg() > 0 {
		return c, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return c, fmt.Errorf("environment: %w", err)
	}
	c.store = firstNonEmpty(c.store, ec.Store)
	c.dsn = firstNonEmpty(c.dsn, ec.DSN)
	c.metricsBackend = firstNonEmpty(c.metricsBackend, ec.MetricsBackend)
	c.textfile = firstNonEmpty(c.textfile, ec.MetricsTextfile)
	c.metricsTags = ec.MetricsTags

	if c.toPage < 0 {
		return c, fmt.Errorf("-to-page must be >= 0")
	}
	if c.rate < 0 {
		return c, fmt.Errorf("-rate must be >= 0")
	}
	if c.metricsBackend == "prometheus" && c.textfile == "" {
		return c, fmt.Errorf("-metrics-backend prometheus requires -metrics-textfile")
	}
	if c.store != "" && c.dsn == "" {
		return c, fmt.Errorf("-store %s requires -dsn", c.store)
	}
	return c, nil
}

// run is split out from main so the command can be tested without spawning
// a process.
//
// It returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage/config errors
//   - 1 for operational/runtime errors
func run(ctx context.Context, args []string, stdout, stderr io.Writer, httpClient *http.Client) int {
	c, err := parseFlags(args, stderr)
	if err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintf(stderr, "%v\n", err)
		}
		return 2
	}
	logger := log.New(stderr, "", log.LstdFlags)

	profile := directory.DefaultProfile()
	if c.profilePath != "" {
		if profile, err = directory.LoadProfile(c.profilePath); err != nil {
			fmt.Fprintf(stderr, "load profile: %v\n", err)
			return 2
		}
	}
	if c.listURL != "" {
		profile.ListURL = c.listURL
	}
	if err := profile.Validate(); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}
	if profile.ListURL == "" {
		fmt.Fprintf(stderr, "no listing URL: set list_url in the profile or pass -list-url\n")
		return 2
	}
	policy, err := directory.ParsePolicy(c.onMalformed)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	closeMetrics := setupMetrics(c, logger)
	defer closeMetrics()

	var repo storage.Repository
	if c.store != "" {
		repo, err = storage.New(ctx, storage.Config{Kind: c.store, DSN: c.dsn, Table: c.table})
		if err != nil {
			fmt.Fprintf(stderr, "open storage: %v\n", err)
			return 1
		}
		defer repo.Close()
		if err := repo.EnsureTable(ctx); err != nil {
			fmt.Fprintf(stderr, "ensure table: %v\n", err)
			return 1
		}
	}

	var records []directory.Record
	lastSaved := 0
	if c.reuse {
		if records, err = output.ReadFile(c.out); err != nil {
			fmt.Fprintf(stderr, "reuse: %v\n", err)
			return 1
		}
		if p, ok := output.LastPage(records); ok {
			lastSaved = p
		}
		if repo != nil {
			if err := backfill(ctx, repo, records, lastSaved, logger); err != nil {
				fmt.Fprintf(stderr, "backfill storage: %v\n", err)
				return 1
			}
		}
	}

	pages := extracthtml.PagesToFetch(c.toPage, lastSaved)
	if c.verbose {
		logger.Printf("scrape: out=%s reused=%d records last_saved_page=%d pages_to_fetch=%d policy=%s store=%q",
			c.out, len(records), lastSaved, len(pages), policy, c.store)
	}

	s := &scraper{
		loader:  extracthtml.NewLoader(httpClient, c.timeout),
		profile: profile,
		policy:  policy,
		repo:    repo,
		logger:  logger,
		verbose: c.verbose,
	}

	var limiter *rate.Limiter
	if c.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.rate), 1)
	}

	start := time.Now()
	for i, page := range pages {
		var recs []directory.Record
		err := ctx.Err()
		if err == nil && limiter != nil {
			err = limiter.Wait(ctx)
		}
		if err == nil {
			recs, err = s.scrapePage(ctx, page)
		}
		if err != nil {
			logger.Printf("page %d: %v", page, err)
			// Keep what was scraped so far; -reuse resumes from here.
			if werr := output.WriteFile(c.out, records); werr != nil {
				logger.Printf("write partial output: %v", werr)
			}
			return 1
		}
		records = append(records, recs...)
		fmt.Fprintf(stderr, "page %d/%d (page=%d records=%d)\n", i+1, len(pages), page, len(recs))
	}

	if err := output.WriteFile(c.out, records); err != nil {
		fmt.Fprintf(stderr, "write output: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %d records to %s (%d pages fetched, %d entries skipped) in %s\n",
		len(records), c.out, len(pages), s.skipped, time.Since(start).Truncate(time.Millisecond))
	return 0
}

// scraper fetches and extracts pages one at a time.
type scraper struct {
	loader  *extracthtml.Loader
	profile directory.Profile
	policy  directory.Policy
	repo    storage.Repository
	logger  *log.Logger
	verbose bool

	skipped int
}

func (s *scraper) scrapePage(ctx context.Context, page int) (recs []directory.Record, err error) {
	start := time.Now()
	skipped := 0
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RecordPage(status, time.Since(start), len(recs), skipped)
	}()

	url, err := extracthtml.PageURL(s.profile.ListURL, page, s.profile.PerPage)
	if err != nil {
		return nil, err
	}
	html, err := s.loader.Load(ctx, extracthtml.Input{URL: url})
	if err != nil {
		return nil, err
	}

	ex := directory.NewExtractor(s.profile, directory.Options{
		OnMalformed: s.policy,
		OnSkip: func(page int, err error) {
			skipped++
			s.logger.Printf("page %d: skipped: %v", page, err)
		},
	})
	recs, err = ex.ExtractPage(html, page)
	if err != nil {
		return nil, err
	}
	s.skipped += skipped

	if s.repo != nil {
		n, err := s.repo.SaveRecords(ctx, recs)
		if err != nil {
			return nil, fmt.Errorf("save records: %w", err)
		}
		if s.verbose {
			s.logger.Printf("page %d: stored %d new rows", page, n)
		}
	}
	return recs, nil
}

// backfill saves reused records into the store when it is behind the
// output file.
func backfill(ctx context.Context, repo storage.Repository, records []directory.Record, fileLast int, logger *log.Logger) error {
	storeLast, ok, err := repo.LastPage(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 || (ok && storeLast >= fileLast) {
		return nil
	}
	n, err := repo.SaveRecords(ctx, records)
	if err != nil {
		return err
	}
	logger.Printf("storage: backfilled %d rows (store was at page %d, file at page %d)", n, storeLast, fileLast)
	return nil
}

// setupMetrics installs the selected backend and returns its shutdown func.
//
// The Datadog backend gets its own background context so the final flush
// still goes out after an interrupt cancels the run.
func setupMetrics(c config, logger *log.Logger) func() {
	var b interface {
		metrics.Backend
		Close() error
	}
	var err error

	switch c.metricsBackend {
	case "datadog":
		extraTags := datadog.ParseTagsCSV(c.metricsTags)
		b, err = datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    "wbdscrape",
			Tags:       extraTags,
			FlushEvery: 60 * time.Second,
		})
		if err == nil {
			logger.Printf("metrics: backend=datadog tags=%v", extraTags)
		}

	case "prometheus":
		b, err = prometheus.NewBackend(prometheus.Options{Path: c.textfile, JobName: "wbdscrape"})
		if err == nil {
			logger.Printf("metrics: backend=prometheus textfile=%s", c.textfile)
		}

	case "", "none":
		if c.verbose {
			logger.Printf("metrics: disabled (backend=%q)", c.metricsBackend)
		}
		return func() {}

	default:
		logger.Printf("metrics: unknown backend %q; metrics disabled", c.metricsBackend)
		return func() {}
	}

	if err != nil {
		logger.Printf("metrics: failed to init %s backend: %v; using nop", c.metricsBackend, err)
		return func() {}
	}
	metrics.SetBackend(b)
	return func() {
		if err := b.Close(); err != nil {
			logger.Printf("metrics: %s close/flush error: %v", c.metricsBackend, err)
		}
		metrics.SetBackend(nil)
	}
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
