package extracthtml

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"wbdscrape/internal/directory"
)

func listing(entries ...[2]string) string {
	s := "<html><body>"
	for _, e := range entries {
		s += `<p class="entryName">` + e[0] + `</p><p class="entryDetail">` + e[1] + `</p><hr>`
	}
	return s + "</body></html>"
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// TestStreamFromDir verifies:
//   - stable filename ordering, with position as the page number
//   - several records per file
//   - source_file is injected and other files are ignored
func TestStreamFromDir(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()

	// Created out of order to check sorting.
	writeFile(t, tmp, "page-002.html", listing([2]string{"C", "<strong>Phone:</strong> 3<br>"}))
	writeFile(t, tmp, "page-001.html", listing(
		[2]string{"A", "<strong>Phone:</strong> 1<br>"},
		[2]string{"B", "<strong>Address:</strong> 12 Elm St\n Chicago, IL<br>"},
	))
	writeFile(t, tmp, "notes.txt", "not a page")

	ex := directory.NewExtractor(directory.DefaultProfile(), directory.Options{})

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := StreamFromDir(&buf, tmp, ex, enc); err != nil {
		t.Fatalf("StreamFromDir: %v", err)
	}

	var arr []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &arr); err != nil {
		t.Fatalf("invalid json: %v; out=%s", err, buf.String())
	}
	if len(arr) != 3 {
		t.Fatalf("want 3 records got %d: %s", len(arr), buf.String())
	}

	want := []struct {
		name string
		page float64
		file string
	}{
		{"A", 1, "page-001.html"},
		{"B", 1, "page-001.html"},
		{"C", 2, "page-002.html"},
	}
	for i, w := range want {
		if arr[i]["name"] != w.name || arr[i]["page"] != w.page || arr[i]["source_file"] != w.file {
			t.Fatalf("record %d: unexpected %#v", i, arr[i])
		}
	}
	if arr[1]["Address"] != "12 Elm St, Chicago, IL" {
		t.Fatalf("unexpected address: %#v", arr[1]["Address"])
	}
}

// TestStreamFromDir_PairingMismatch verifies a broken page stops the stream
// and names the file.
func TestStreamFromDir_PairingMismatch(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	writeFile(t, tmp, "a.html", `<p class="entryName">A</p>`)

	ex := directory.NewExtractor(directory.DefaultProfile(), directory.Options{})
	var buf bytes.Buffer
	err := StreamFromDir(&buf, tmp, ex, json.NewEncoder(&buf))
	if !errors.Is(err, directory.ErrPairingMismatch) {
		t.Fatalf("expected ErrPairingMismatch, got %v", err)
	}
}

func TestStreamFromDir_Empty(t *testing.T) {
	t.Parallel()

	ex := directory.NewExtractor(directory.DefaultProfile(), directory.Options{})
	var buf bytes.Buffer
	if err := StreamFromDir(&buf, t.TempDir(), ex, json.NewEncoder(&buf)); err != nil {
		t.Fatalf("StreamFromDir: %v", err)
	}
	if buf.String() != "[]" {
		t.Fatalf("want [] got %q", buf.String())
	}
}
