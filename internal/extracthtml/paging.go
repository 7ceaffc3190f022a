package extracthtml

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DefaultPerPage is the number of entries the directory lists per page.
const DefaultPerPage = 25

// DefaultToPage covers the roughly 3000 US entries at 25 per page.
const DefaultToPage = 3000 / DefaultPerPage

// PageURL renders the listing URL of a 1-based page. template carries a
// single %d placeholder that receives the entry offset (page-1)*perPage.
// Other percent sequences, such as %20, are copied as they are.
//
// Example (perPage=25):
//
//	page 1 -> offset=0
//	page 2 -> offset=25
func PageURL(template string, page, perPage int) (string, error) {
	if page < 1 {
		return "", fmt.Errorf("page must be >= 1, got %d", page)
	}
	if perPage <= 0 {
		return "", fmt.Errorf("perPage must be > 0, got %d", perPage)
	}
	if strings.Count(template, "%d") != 1 {
		return "", fmt.Errorf("url template %q must contain exactly one %%d", template)
	}
	return strings.Replace(template, "%d", strconv.Itoa((page-1)*perPage), 1), nil
}

// PagesToFetch returns pages 1..toPage in order, leaving out those already
// saved (page <= lastSaved).
func PagesToFetch(toPage, lastSaved int) []int {
	start := lastSaved + 1
	if start < 1 {
		start = 1
	}
	if toPage < start {
		return nil
	}
	pages := make([]int, 0, toPage-start+1)
	for p := start; p <= toPage; p++ {
		pages = append(pages, p)
	}
	return pages
}

// PrintPageURLs prints one listing URL per line for pages 1..toPage.
func PrintPageURLs(w io.Writer, template string, toPage, perPage int) error {
	for _, p := range PagesToFetch(toPage, 0) {
		u, err := PageURL(template, p, perPage)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, u); err != nil {
			return err
		}
	}
	return nil
}
