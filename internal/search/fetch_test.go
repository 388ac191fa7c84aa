package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetcherExtract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Hello World</h1><p>This is a test.</p></body></html>`))
	}))
	defer server.Close()

	pages, err := NewFetcher().Extract(context.Background(), []string{server.URL})
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if !strings.Contains(pages[0].Content, "Hello World") {
		t.Errorf("expected 'Hello World' in result, got %q", pages[0].Content)
	}
	if !strings.Contains(pages[0].Content, "This is a test") {
		t.Errorf("expected 'This is a test' in result, got %q", pages[0].Content)
	}
}

func TestFetcherPartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<p>ok page</p>`))
	}))
	defer server.Close()

	pages, err := NewFetcher().Extract(context.Background(), []string{server.URL + "/missing", server.URL + "/ok"})
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[0].Error == "" {
		t.Error("expected error for missing page")
	}
	if !strings.Contains(pages[1].Content, "ok page") {
		t.Errorf("expected content for ok page, got %q", pages[1].Content)
	}
}

func TestFetcherNoURLs(t *testing.T) {
	if _, err := NewFetcher().Extract(context.Background(), nil); err == nil {
		t.Fatal("expected error for missing URLs")
	}
}

func TestFetcherTruncation(t *testing.T) {
	long := strings.Repeat("x", 60000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><p>" + long + "</p></body></html>"))
	}))
	defer server.Close()

	pages, err := NewFetcher().Extract(context.Background(), []string{server.URL})
	if err != nil {
		t.Fatal(err)
	}
	if len(pages[0].Content) > 51000 {
		t.Errorf("expected truncation, got length %d", len(pages[0].Content))
	}
}
