// Package output reads and writes the scraped records as a JSON array file.
package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"wbdscrape/internal/directory"
)

// ReadFile loads every record from path. A missing file yields no records
// and no error, so a first run can start from scratch.
func ReadFile(path string) ([]directory.Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var recs []directory.Record
	if err := Stream(context.Background(), f, func(r directory.Record) error {
		recs = append(recs, r)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return recs, nil
}

// Write encodes records to w as a JSON array indented by two spaces, without
// HTML escaping.
func Write(w io.Writer, records []directory.Record) error {
	if records == nil {
		records = []directory.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteFile replaces path with records. It writes a temporary file in the
// same directory and renames it over path, so readers never see a partial
// array.
func WriteFile(path string, records []directory.Record) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := Write(tmp, records); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}

// Stream decodes a JSON array of records from r and calls fn for each one
// without holding the whole array in memory. An empty input is an empty
// array. A non-nil error from fn stops the stream and is returned.
func Stream(ctx context.Context, r io.Reader, fn func(directory.Record) error) error {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("json: read first token: %w", err)
	}
	if tok != json.Delim('[') {
		return fmt.Errorf("json: expected array, got %v", tok)
	}

	for i := 0; dec.More(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var rec directory.Record
		if err := dec.Decode(&rec); err != nil {
			return fmt.Errorf("json: record %d: %w", i, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}

	if end, err := dec.Token(); err != nil {
		return fmt.Errorf("json: read array end: %w", err)
	} else if end != json.Delim(']') {
		return fmt.Errorf("json: expected array end ']', got %v", end)
	}
	return nil
}

// LastPage returns the page of the last record, which is the highest saved
// page because output is written in page order. ok is false when there are
// no records.
func LastPage(records []directory.Record) (page int, ok bool) {
	if len(records) == 0 {
		return 0, false
	}
	return records[len(records)-1].Page, true
}
