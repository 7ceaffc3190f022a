package directory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Policy decides what a page does with a malformed entry.
type Policy int

const (
	// PolicySkip drops the malformed entry and keeps the rest of the page.
	PolicySkip Policy = iota
	// PolicyAbort fails the whole page on the first malformed entry.
	PolicyAbort
)

// ParsePolicy parses "skip" or "abort".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return PolicySkip, nil
	case "abort":
		return PolicyAbort, nil
	default:
		return 0, fmt.Errorf("unknown malformed-entry policy %q (want skip or abort)", s)
	}
}

func (p Policy) String() string {
	if p == PolicyAbort {
		return "abort"
	}
	return "skip"
}

// Options tunes page extraction.
type Options struct {
	OnMalformed Policy

	// OnSkip, if set, is called for every entry dropped under PolicySkip.
	OnSkip func(page int, err error)
}

// ExtractPage parses one listing page and returns its records in document
// order.
func (e *Extractor) ExtractPage(src string, page int) ([]Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return e.ExtractDocument(doc, page)
}

// ExtractDocument pairs name and detail blocks by position and assembles one
// record per pair.
//
// Errors:
//   - ErrPairingMismatch when the block counts differ.
//   - A *MalformedEntryError under PolicyAbort.
func (e *Extractor) ExtractDocument(doc *goquery.Document, page int) ([]Record, error) {
	names := doc.Find(e.profile.NameSelector)
	details := doc.Find(e.profile.DetailSelector)
	if names.Length() != details.Length() {
		return nil, fmt.Errorf("page %d: %w: %d names, %d details",
			page, ErrPairingMismatch, names.Length(), details.Length())
	}

	records := make([]Record, 0, names.Length())
	for i := range names.Nodes {
		rec, err := e.ExtractEntry(names.Eq(i), details.Eq(i), page)
		if err != nil {
			if e.opts.OnMalformed == PolicyAbort || !errors.Is(err, ErrMalformedEntry) {
				return nil, fmt.Errorf("page %d: %w", page, err)
			}
			if e.opts.OnSkip != nil {
				e.opts.OnSkip(page, err)
			}
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
