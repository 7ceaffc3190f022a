// Package filter selects records by keyword.
package filter

import (
	"strings"

	"wbdscrape/internal/directory"
)

// DefaultKeywords select the Chicago-area centers.
var DefaultKeywords = []string{"IL", "Illinois", "Chi", "Chicago"}

// AddressField is the record field searched besides the name.
const AddressField = "Address"

// Matcher keeps records whose name or address contains any keyword.
// Matching is case-sensitive substring search.
type Matcher struct {
	keywords []string
}

// New returns a Matcher over keywords. Empty keywords are dropped.
func New(keywords []string) *Matcher {
	m := &Matcher{}
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			m.keywords = append(m.keywords, k)
		}
	}
	return m
}

// ParseKeywords splits a comma-separated keyword list.
func ParseKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Match reports whether r is selected. A record without an address is
// matched on its name only.
func (m *Matcher) Match(r directory.Record) bool {
	addr, _ := r.Get(AddressField)
	for _, k := range m.keywords {
		if strings.Contains(r.Name, k) || strings.Contains(addr, k) {
			return true
		}
	}
	return false
}

// Filter returns the selected records in input order. The result is never
// nil.
func (m *Matcher) Filter(records []directory.Record) []directory.Record {
	out := make([]directory.Record, 0)
	for _, r := range records {
		if m.Match(r) {
			out = append(out, r)
		}
	}
	return out
}
