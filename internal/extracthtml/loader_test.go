package extracthtml

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestLoader_Stdin verifies stdin input is read and returned as string.
func TestLoader_Stdin(t *testing.T) {
	t.Parallel()

	l := NewLoader(http.DefaultClient, 1*time.Second)
	html, err := l.Load(context.Background(), Input{
		Stdin: bytes.NewBufferString("<p>x</p>"),
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if html != "<p>x</p>" {
		t.Fatalf("unexpected html: %q", html)
	}
}

// TestLoader_URL_Non2xx verifies we include status code and a body snippet.
func TestLoader_URL_Non2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	l := NewLoader(&http.Client{Timeout: 2 * time.Second}, 2*time.Second)
	_, err := l.Load(context.Background(), Input{URL: srv.URL})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "http status 403") || !strings.Contains(msg, "nope") {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestLoader_SendsBrowserUserAgent verifies the site sees a browser agent.
func TestLoader_SendsBrowserUserAgent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.UserAgent() != UserAgent {
			http.Error(w, "bot", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("<p>ok</p>"))
	}))
	t.Cleanup(srv.Close)

	html, err := NewLoader(nil, time.Second).Load(context.Background(), Input{URL: srv.URL})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if html != "<p>ok</p>" {
		t.Fatalf("unexpected html: %q", html)
	}
}

// TestLoader_DecodesCharset verifies Latin-1 pages come back as UTF-8.
func TestLoader_DecodesCharset(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		// "Zürich" in Latin-1.
		_, _ = w.Write([]byte{'Z', 0xfc, 'r', 'i', 'c', 'h'})
	}))
	t.Cleanup(srv.Close)

	html, err := NewLoader(nil, time.Second).Load(context.Background(), Input{URL: srv.URL})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if html != "Zürich" {
		t.Fatalf("unexpected html: %q", html)
	}
}

func TestDecodeBody_Fallbacks(t *testing.T) {
	t.Parallel()

	raw := []byte("caf\xc3\xa9")
	for _, ct := range []string{"", "text/html", "text/html; charset=utf-8", "text/html; charset=x-made-up", ";;"} {
		if got := decodeBody(raw, ct); got != "café" {
			t.Fatalf("decodeBody(%q) = %q", ct, got)
		}
	}
}
