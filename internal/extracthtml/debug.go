package extracthtml

import (
	"fmt"
	"io"
	"strings"

	"wbdscrape/internal/directory"

	"github.com/PuerkitoBio/goquery"
)

// DebugPrintSelector prints either outer HTML or text of matches for a selector.
// This is used by the command's "-selector" debug mode.
func DebugPrintSelector(w io.Writer, html, selector string, textOnly bool) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if textOnly {
			fmt.Fprintln(w, strings.TrimSpace(s.Text()))
			fmt.Fprintln(w)
			return
		}
		out, err := goquery.OuterHtml(s)
		if err != nil {
			in, _ := s.Html()
			out = in
		}
		fmt.Fprintln(w, out)
		fmt.Fprintln(w)
	})
	return nil
}

// DebugPrintLabels lists every label candidate of every detail block and how
// the profile classifies it, one line per candidate:
//
//	<entry index>\t<known|ignored|unknown>\t<label text>
//
// It is meant for tuning a profile's label list against a new page.
func DebugPrintLabels(w io.Writer, html string, p directory.Profile) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	ls := directory.NewLabelSet(p.Labels, p.IgnoredLabels)
	ignored := make(map[string]bool, len(p.IgnoredLabels))
	for _, l := range p.IgnoredLabels {
		ignored[l] = true
	}

	var werr error
	doc.Find(p.DetailSelector).Each(func(i int, detail *goquery.Selection) {
		detail.Find("strong").Each(func(_ int, s *goquery.Selection) {
			if werr != nil {
				return
			}
			raw := s.Text()
			kind := "unknown"
			if ignored[raw] {
				kind = "ignored"
			} else if _, ok := ls.Match(s.Nodes[0]); ok {
				kind = "known"
			}
			_, werr = fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, kind, strings.TrimSpace(raw))
		})
	})
	return werr
}
