package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"wbdscrape/internal/directory"
)

// Columns is the insert column order shared by every backend. The table
// also has a surrogate id column that backends generate.
var Columns = []string{"page", "position", "name", "address", "fields", "row_hash"}

// AddressField is the record field copied into the address column.
const AddressField = "Address"

// Row is one record flattened for insertion.
type Row struct {
	Page     int
	Position int    // 1-based position of the record within its page
	Name     string
	Address  string // "" when the record has no address
	Fields   string // JSON object of every field, in record order
	RowHash  string
}

// Values returns the row in Columns order.
func (r Row) Values() []any {
	return []any{r.Page, r.Position, r.Name, r.Address, r.Fields, r.RowHash}
}

// ToRows flattens records for insertion. Positions restart at 1 on every
// page change. Records whose hash repeats an earlier one are dropped.
func ToRows(records []directory.Record) ([]Row, error) {
	rows := make([]Row, 0, len(records))
	seen := make(map[string]bool, len(records))

	page, pos := 0, 0
	for i, rec := range records {
		if i == 0 || rec.Page != page {
			page, pos = rec.Page, 0
		}
		pos++

		h := RowHash(rec)
		if seen[h] {
			continue
		}
		seen[h] = true

		fields, err := fieldsJSON(rec)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", rec.Name, err)
		}
		addr, _ := rec.Get(AddressField)
		rows = append(rows, Row{
			Page:     rec.Page,
			Position: pos,
			Name:     rec.Name,
			Address:  addr,
			Fields:   fields,
			RowHash:  h,
		})
	}
	return rows, nil
}

// fieldsJSON encodes rec's fields (not name or page) as an ordered object.
func fieldsJSON(rec directory.Record) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, f := range rec.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(f.Key); err != nil {
			return "", err
		}
		trimNewline(&buf)
		buf.WriteByte(':')
		if err := enc.Encode(f.Value); err != nil {
			return "", err
		}
		trimNewline(&buf)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

func trimNewline(buf *bytes.Buffer) {
	if n := buf.Len(); n > 0 && buf.Bytes()[n-1] == '\n' {
		buf.Truncate(n - 1)
	}
}

// RowHash fingerprints a record's content: SHA-256 over "name=<name>"
// followed by every "key=value" field in order, joined by 0x1f, hex encoded.
//
// The page is not part of the hash, so an entry that moves to another page
// between runs is still recognized as stored.
func RowHash(rec directory.Record) string {
	var b strings.Builder
	b.WriteString("name=")
	b.WriteString(rec.Name)
	for _, f := range rec.Fields {
		b.WriteByte(0x1f)
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(f.Value)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Chunk splits rows into batches of at most size rows.
func Chunk(rows []Row, size int) [][]Row {
	if size <= 0 {
		size = len(rows)
	}
	var out [][]Row
	for len(rows) > 0 {
		n := size
		if n > len(rows) {
			n = len(rows)
		}
		out = append(out, rows[:n])
		rows = rows[n:]
	}
	return out
}
