package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Tavily searches and extracts through the Tavily API.
type Tavily struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewTavily creates a Tavily client.
func NewTavily(apiKey string) *Tavily {
	return &Tavily{
		apiKey:  apiKey,
		baseURL: "https://api.tavily.com",
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type tavilySearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	Topic      string `json:"topic"`
}

type tavilySearchResponse struct {
	Query   string         `json:"query"`
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type tavilyExtractRequest struct {
	URLs []string `json:"urls"`
}

type tavilyExtractResponse struct {
	Results       []tavilyPage   `json:"results"`
	FailedResults []tavilyFailed `json:"failed_results"`
}

type tavilyPage struct {
	URL        string `json:"url"`
	RawContent string `json:"raw_content"`
}

type tavilyFailed struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Search runs a general-topic search returning at most MaxResults hits.
func (t *Tavily) Search(ctx context.Context, query string, n int) ([]Result, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	var resp tavilySearchResponse
	err := t.post(ctx, "/search", tavilySearchRequest{
		Query:      query,
		MaxResults: ClampResults(n),
		Topic:      "general",
	}, &resp)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	if len(results) > ClampResults(n) {
		results = results[:ClampResults(n)]
	}
	return results, nil
}

// Extract returns the readable content of each URL. URLs Tavily could not
// extract come back as pages with Error set.
func (t *Tavily) Extract(ctx context.Context, urls []string) ([]Page, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one url is required")
	}
	var resp tavilyExtractResponse
	if err := t.post(ctx, "/extract", tavilyExtractRequest{URLs: urls}, &resp); err != nil {
		return nil, err
	}

	pages := make([]Page, 0, len(resp.Results)+len(resp.FailedResults))
	for _, p := range resp.Results {
		pages = append(pages, Page{URL: p.URL, Content: p.RawContent})
	}
	for _, f := range resp.FailedResults {
		pages = append(pages, Page{URL: f.URL, Error: f.Error})
	}
	return pages, nil
}

func (t *Tavily) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Tavily API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
