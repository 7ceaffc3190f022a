package directory

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is one labelled value of a Record.
type Field struct {
	Key   string
	Value string
}

// Record is the assembled output for one directory entry.
//
// Fields keep insertion order so the JSON output lists them in the order
// they were found in the markup. A key appears at most once.
type Record struct {
	Name   string
	Page   int
	Fields []Field
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (string, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Set stores value under key, replacing an existing value in place.
func (r *Record) Set(key, value string) {
	for i := range r.Fields {
		if r.Fields[i].Key == key {
			r.Fields[i].Value = value
			return
		}
	}
	r.Fields = append(r.Fields, Field{Key: key, Value: value})
}

// Keys returns every output key of the record, "name" and "page" first.
func (r *Record) Keys() []string {
	keys := make([]string, 0, len(r.Fields)+2)
	keys = append(keys, "name", "page")
	for _, f := range r.Fields {
		keys = append(keys, f.Key)
	}
	return keys
}

// MarshalJSON encodes the record as a flat object:
//
//	{"name": "...", "page": 3, "Address": "...", ...}
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"name":`)
	if err := writeJSONString(&buf, r.Name); err != nil {
		return nil, err
	}
	fmt.Fprintf(&buf, `,"page":%d`, r.Page)
	for _, f := range r.Fields {
		buf.WriteByte(',')
		if err := writeJSONString(&buf, f.Key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSONString(&buf, f.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat object and keeps the key order of the input.
// Every key other than "page" must hold a string.
func (r *Record) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record: expected object, got %v", tok)
	}

	out := Record{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		switch key {
		case "page":
			var n json.Number
			if err := dec.Decode(&n); err != nil {
				return fmt.Errorf("record: page: %w", err)
			}
			p, err := n.Int64()
			if err != nil {
				return fmt.Errorf("record: page: %w", err)
			}
			out.Page = int(p)
		default:
			var s string
			if err := dec.Decode(&s); err != nil {
				return fmt.Errorf("record: field %q: %w", key, err)
			}
			if key == "name" {
				out.Name = s
				continue
			}
			out.Set(key, s)
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*r = out
	return nil
}

// writeJSONString writes s as a JSON string without HTML escaping, so
// addresses like "A & B" stay readable in the output file.
func writeJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}
