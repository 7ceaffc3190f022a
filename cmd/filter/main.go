// Command filter selects records by keyword from a scrape output file and
// writes them to a second file.
//
// Usage:
//
//	filter                                        # buddhist_centers.json -> chicago_centers.json
//	filter -in all.json -out il.json -keywords "IL,Illinois"
//	cat all.json | filter -in - -out -
//
// A record is kept when any keyword is a case-sensitive substring of its
// name or its Address field.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"wbdscrape/internal/directory"
	"wbdscrape/internal/filter"
	"wbdscrape/internal/output"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run returns 0 on success, 2 for usage errors and 1 for I/O or decode
// errors.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("filter", flag.ContinueOnError)
	fs.SetOutput(stderr)

	in := fs.String("in", "buddhist_centers.json", "input JSON file written by scrape (- for stdin)")
	out := fs.String("out", "chicago_centers.json", "output JSON file (- for stdout)")
	keywords := fs.String("keywords", strings.Join(filter.DefaultKeywords, ","), "comma-separated keywords")
	verbose := fs.Bool("v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		return 2
	}
	kw := filter.ParseKeywords(*keywords)
	if len(kw) == 0 {
		fmt.Fprintf(stderr, "-keywords must name at least one keyword\n")
		return 2
	}
	logger := log.New(stderr, "", log.LstdFlags)

	var r io.Reader = stdin
	if *in != "-" {
		f, err := os.Open(*in)
		if err != nil {
			fmt.Fprintf(stderr, "open input: %v\n", err)
			return 1
		}
		defer f.Close()
		r = f
	}

	m := filter.New(kw)
	kept := make([]directory.Record, 0)
	total := 0
	err := output.Stream(ctx, r, func(rec directory.Record) error {
		total++
		if m.Match(rec) {
			kept = append(kept, rec)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(stderr, "read %s: %v\n", *in, err)
		return 1
	}

	if *out == "-" {
		err = output.Write(stdout, kept)
	} else {
		err = output.WriteFile(*out, kept)
	}
	if err != nil {
		fmt.Fprintf(stderr, "write output: %v\n", err)
		return 1
	}
	if *verbose {
		logger.Printf("filter: kept %d of %d records (keywords=%v)", len(kept), total, kw)
	}
	if *out != "-" {
		fmt.Fprintf(stdout, "kept %d of %d records in %s\n", len(kept), total, *out)
	}
	return 0
}
