package extracthtml

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"wbdscrape/internal/directory"
)

// StreamFromDir streams a single JSON array of records to w, treating every
// *.html file in dir as one saved listing page.
//
// Behavior:
//   - files are processed in filename order; the 1-based position is the page
//   - every record gets a "source_file" field naming its file
//   - unreadable files are skipped, extraction errors stop the stream
func StreamFromDir(w io.Writer, dir string, ex *directory.Extractor, enc *json.Encoder) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".html") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	if _, err := io.WriteString(w, "["); err != nil {
		return fmt.Errorf("write [: %w", err)
	}

	first := true
	for i, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}

		recs, err := ex.ExtractPage(string(b), i+1)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		for _, r := range recs {
			r.Set("source_file", name)
			if !first {
				if _, err := io.WriteString(w, ","); err != nil {
					return fmt.Errorf("write comma: %w", err)
				}
			}
			first = false
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
		}
	}

	if _, err := io.WriteString(w, "]"); err != nil {
		return fmt.Errorf("write ]: %w", err)
	}
	return nil
}
