// Package search adapts hosted web search and page extraction APIs.
package search

import (
	"context"
	"fmt"
)

// MaxResults caps the results of a single search call.
const MaxResults = 3

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"content_preview"`
}

// Page is the readable content of one URL.
type Page struct {
	URL     string `json:"url"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, query string, n int) ([]Result, error)
}

// Extractor fetches readable page content.
type Extractor interface {
	Extract(ctx context.Context, urls []string) ([]Page, error)
}

// ClampResults bounds n to [1, MaxResults].
func ClampResults(n int) int {
	if n <= 0 || n > MaxResults {
		return MaxResults
	}
	return n
}

// Fallback tries each searcher in order until one returns results.
type Fallback []Searcher

// Search returns the first non-empty result set. If every searcher fails the
// last error is returned.
func (f Fallback) Search(ctx context.Context, query string, n int) ([]Result, error) {
	var lastErr error
	for _, s := range f {
		results, err := s.Search(ctx, query, n)
		if err != nil {
			lastErr = err
			continue
		}
		if len(results) > 0 {
			return results, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("all searchers failed: %w", lastErr)
	}
	return nil, nil
}
