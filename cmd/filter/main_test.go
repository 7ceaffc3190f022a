package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wbdscrape/internal/directory"
	"wbdscrape/internal/output"
)

func sampleRecords() []directory.Record {
	a := directory.Record{Name: "Chicago Zen Center", Page: 1}
	b := directory.Record{Name: "Lotus Sangha", Page: 1}
	b.Set("Address", "1 Main St, Evanston, IL")
	c := directory.Record{Name: "Dharma House", Page: 2}
	c.Set("Address", "9 Pine Rd, Austin, TX")
	return []directory.Record{a, b, c}
}

func TestRun_FiltersFileToFile(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	in := filepath.Join(tmp, "all.json")
	out := filepath.Join(tmp, "chicago.json")
	if err := output.WriteFile(in, sampleRecords()); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-in", in, "-out", out}, nil, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr.String())
	}

	got, err := output.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "Chicago Zen Center" || got[1].Name != "Lotus Sangha" {
		t.Fatalf("unexpected records: %+v", got)
	}
	if !strings.Contains(stdout.String(), "kept 2 of 3 records") {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
}

func TestRun_StdinToStdoutWithKeywords(t *testing.T) {
	t.Parallel()

	var in bytes.Buffer
	if err := output.Write(&in, sampleRecords()); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-in", "-", "-out", "-", "-keywords", " TX ,"}, &in, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr.String())
	}

	var got []map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("stdout is not valid json: %v; out=%s", err, stdout.String())
	}
	if len(got) != 1 || got[0]["name"] != "Dharma House" {
		t.Fatalf("unexpected output: %s", stdout.String())
	}
}

func TestRun_NoMatchesWritesEmptyArray(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-in", "-", "-out", "-", "-keywords", "Nowhere"},
		strings.NewReader("[]"), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr.String())
	}
	if stdout.String() != "[]\n" {
		t.Fatalf("want empty array, got %q", stdout.String())
	}
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	bad := filepath.Join(tmp, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"not":"an array"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown flag", []string{"-nope"}, 2},
		{"extra args", []string{"x"}, 2},
		{"empty keywords", []string{"-keywords", " , "}, 2},
		{"missing input", []string{"-in", filepath.Join(tmp, "missing.json")}, 1},
		{"not an array", []string{"-in", bad, "-out", "-"}, 1},
	}
	for _, tt := range tests {
		var stdout, stderr bytes.Buffer
		if code := run(context.Background(), tt.args, nil, &stdout, &stderr); code != tt.want {
			t.Fatalf("%s: want exit %d, got %d; stderr=%s", tt.name, tt.want, code, stderr.String())
		}
	}
}
