package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const maxPageChars = 50000

// Fetcher extracts pages by fetching them directly and converting the HTML
// to markdown. It is the extractor used when no Tavily key is configured.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher creates a new Fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: "contentcrew/1.0",
	}
}

// Extract fetches every URL. A failed URL yields a page with Error set so one
// bad link does not hide the others.
func (f *Fetcher) Extract(ctx context.Context, urls []string) ([]Page, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one url is required")
	}
	pages := make([]Page, 0, len(urls))
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		md, err := f.fetch(ctx, u)
		if err != nil {
			pages = append(pages, Page{URL: u, Error: err.Error()})
			continue
		}
		pages = append(pages, Page{URL: u, Content: md})
	}
	return pages, nil
}

func (f *Fetcher) fetch(ctx context.Context, u string) (string, error) {
	if u == "" {
		return "", fmt.Errorf("url is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	md, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}

	if len(md) > maxPageChars {
		md = md[:maxPageChars] + "\n\n[Content truncated]"
	}
	return md, nil
}
