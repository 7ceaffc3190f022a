// Command extract-html runs the directory extractor over saved or fetched
// listing pages and prints the records as JSON. It is the offline companion
// of cmd/scrape, used while tuning a site profile.
//
// Usage (stdin):
//
//	cat page.html | extract-html -page 3
//
// Usage (fetch URL):
//
//	extract-html -url "http://www.buddhanet.info/wbd/country.php?country_id=2&offset=0"
//
// Usage (directory mode, one page per *.html file):
//
//	extract-html -dir "./pages" -profile site.json
//
// Debug (print outer HTML blocks / text for selector matches):
//
//	cat page.html | extract-html -selector "p.entryDetail"
//	cat page.html | extract-html -selector "p.entryName" -text
//
// Debug (classify every <strong> label as known, ignored or unknown):
//
//	cat page.html | extract-html -labels
//
// Print the listing URLs cmd/scrape would fetch:
//
//	extract-html -print-page-urls -to-page 5
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"wbdscrape/internal/directory"
	"wbdscrape/internal/extracthtml"
	"wbdscrape/internal/output"
)

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdin,
		os.Stdout,
		os.Stderr,
		http.DefaultClient,
	))
}

// run is split out from main so we can unit test the command without spawning
// an OS process.
//
// It returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage/config errors
//   - 1 for operational/runtime errors
func run(
	ctx context.Context,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	httpClient *http.Client,
) int {
	fs := flag.NewFlagSet("extract-html", flag.ContinueOnError)
	fs.SetOutput(stderr)

	printPageURLs := fs.Bool("print-page-urls", false, "Print listing URLs for pages 1..-to-page instead of extracting")
	toPage := fs.Int("to-page", extracthtml.DefaultToPage, "Last page for -print-page-urls")
	onlyText := fs.Bool("text", false, "Debug: print text blocks for -selector matches (not JSON)")
	debugSelector := fs.String("selector", "", "Debug: CSS selector to print matches for (not JSON)")
	debugLabels := fs.Bool("labels", false, "Debug: print each entry label as known, ignored or unknown (not JSON)")
	profilePath := fs.String("profile", "", "Optional site profile JSON (defaults to the World Buddhist Directory)")
	onMalformed := fs.String("on-malformed", "skip", "What to do with a malformed entry: skip or abort")
	page := fs.Int("page", 1, "Page number stamped on records from stdin or -url")
	urlFlag := fs.String("url", "", "Optional: fetch HTML from URL instead of stdin")
	timeout := fs.Duration("timeout", 20*time.Second, "Timeout for -url fetch")
	dirFlag := fs.String("dir", "", "Optional: directory of saved listing pages (*.html, one page per file)")
	verbose := fs.Bool("v", false, "Log skipped entries to stderr")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *page < 1 {
		fmt.Fprintf(stderr, "-page must be >= 1\n")
		return 2
	}

	profile := directory.DefaultProfile()
	if *profilePath != "" {
		var err error
		if profile, err = directory.LoadProfile(*profilePath); err != nil {
			fmt.Fprintf(stderr, "load profile: %v\n", err)
			return 2
		}
	}
	policy, err := directory.ParsePolicy(*onMalformed)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	if *printPageURLs {
		if err := extracthtml.PrintPageURLs(stdout, profile.ListURL, *toPage, profile.PerPage); err != nil {
			fmt.Fprintf(stderr, "print-page-urls: %v\n", err)
			return 2
		}
		return 0
	}

	logger := log.New(stderr, "", 0)
	ex := directory.NewExtractor(profile, directory.Options{
		OnMalformed: policy,
		OnSkip: func(page int, err error) {
			if *verbose {
				logger.Printf("page %d: skipped: %v", page, err)
			}
		},
	})

	// Directory mode: stream output as a single JSON array.
	if *dirFlag != "" {
		enc := json.NewEncoder(stdout)
		enc.SetEscapeHTML(false)
		if err := extracthtml.StreamFromDir(stdout, *dirFlag, ex, enc); err != nil {
			fmt.Fprintf(stderr, "dir extract: %v\n", err)
			return 1
		}
		return 0
	}

	// Single input mode: stdin OR -url
	loader := extracthtml.NewLoader(httpClient, *timeout)
	html, err := loader.Load(ctx, extracthtml.Input{
		URL:   *urlFlag,
		Stdin: stdin,
	})
	if err != nil {
		fmt.Fprintf(stderr, "load html: %v\n", err)
		return 1
	}

	// Debug modes print text, not JSON, and need no profile validation.
	if *debugSelector != "" {
		if err := extracthtml.DebugPrintSelector(stdout, html, *debugSelector, *onlyText); err != nil {
			fmt.Fprintf(stderr, "debug selector: %v\n", err)
			return 1
		}
		return 0
	}
	if *debugLabels {
		if err := extracthtml.DebugPrintLabels(stdout, html, profile); err != nil {
			fmt.Fprintf(stderr, "debug labels: %v\n", err)
			return 1
		}
		return 0
	}

	records, err := ex.ExtractPage(html, *page)
	if err != nil {
		fmt.Fprintf(stderr, "extract: %v\n", err)
		return 1
	}
	if err := output.Write(stdout, records); err != nil {
		fmt.Fprintf(stderr, "encode json: %v\n", err)
		return 1
	}
	return 0
}
