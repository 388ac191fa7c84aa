package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctxengine "github.com/user/contentcrew/internal/context"
	"github.com/user/contentcrew/internal/search"
	"github.com/user/contentcrew/internal/types"
	"github.com/user/contentcrew/pkg/llm"
)

// scriptedProvider replays responses in order and records requests.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*llm.Response
	errs      []error
	requests  []*llm.Request
}

func (p *scriptedProvider) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := len(p.requests)
	p.requests = append(p.requests, req)
	if idx < len(p.errs) && p.errs[idx] != nil {
		return nil, p.errs[idx]
	}
	if idx < len(p.responses) {
		return p.responses[idx], nil
	}
	return &llm.Response{Content: "fallback"}, nil
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type stubSearch struct {
	results []search.Result
	err     error
	queries []string
}

func (s *stubSearch) Search(_ context.Context, query string, _ int) ([]search.Result, error) {
	s.queries = append(s.queries, query)
	return s.results, s.err
}

type stubExtract struct{}

func (stubExtract) Extract(_ context.Context, urls []string) ([]search.Page, error) {
	pages := make([]search.Page, len(urls))
	for i, u := range urls {
		pages[i] = search.Page{URL: u, Content: "full text of " + u}
	}
	return pages, nil
}

func call(id, name string, args any) llm.ToolCall {
	b, _ := json.Marshal(args)
	return llm.ToolCall{ID: id, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: b}}
}

func toolResponse(calls ...llm.ToolCall) *llm.Response {
	return &llm.Response{ToolCalls: calls}
}

func newEngine(t *testing.T) *ctxengine.Engine {
	t.Helper()
	e, err := ctxengine.New("gpt-4o-mini", 128000, 4096)
	require.NoError(t, err)
	return e
}

var goResult = search.Result{Title: "Go 1.24 release notes", URL: "https://go.dev/doc/go1.24", Snippet: "Go 1.24 adds generic type aliases."}

func TestResearchFilesReport(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolResponse(call("c1", ToolSearchWeb, map[string]any{"query": "go 1.24", "num_results": "5"})),
		toolResponse(call("c2", ToolExtractContent, map[string]any{"urls": "https://go.dev/doc/go1.24"})),
		toolResponse(call("c3", ToolResearchReport, map[string]any{
			"topic":        "Go 1.24",
			"report":       "Go 1.24 ships generic type aliases.",
			"key_findings": []string{"generic type aliases"},
			"sources":      []string{"https://go.dev/doc/go1.24"},
		})),
	}}
	searcher := &stubSearch{results: []search.Result{goResult}}
	r := NewResearcher(provider, newEngine(t), searcher, stubExtract{}, ResearcherConfig{})

	var traced []*types.Message
	report, err := r.Research(context.Background(), "Go 1.24", func(m *types.Message) { traced = append(traced, m) })
	require.NoError(t, err)

	assert.Equal(t, "Go 1.24", report.Topic)
	assert.Equal(t, "Go 1.24 ships generic type aliases.", report.Summary)
	assert.Equal(t, []string{"generic type aliases"}, report.Findings)
	require.Len(t, report.Sources, 1)
	assert.Equal(t, types.Source{Title: "Go 1.24 release notes", URL: "https://go.dev/doc/go1.24"}, report.Sources[0])

	assert.Equal(t, 3, provider.calls(), "loop ends once the report is filed")
	assert.Equal(t, []string{"go 1.24"}, searcher.queries)

	require.Len(t, traced, 6)
	assert.Equal(t, types.KindToolCall, traced[0].Kind)
	assert.Equal(t, ToolSearchWeb, traced[0].ToolCall.Name)
	assert.Equal(t, types.KindToolResult, traced[1].Kind)
	assert.Equal(t, "c1", traced[1].CallID)
	assert.Contains(t, traced[1].Content, "content_preview")
	assert.Contains(t, traced[3].Content, "full text of https://go.dev/doc/go1.24")

	// The second request must carry the search call and its tool result.
	second := provider.requests[1].Messages
	last := second[len(second)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	assert.Equal(t, llm.RoleSystem, second[0].Role)
	assert.Len(t, provider.requests[0].Tools, 3)
}

func TestResearchNoResultsIsRetrievalFailure(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolResponse(call("c1", ToolSearchWeb, map[string]any{"query": "zzzz"})),
		toolResponse(call("c2", ToolResearchReport, map[string]any{"topic": "zzzz", "report": "made up"})),
		{Content: "I could not find anything."},
	}}
	r := NewResearcher(provider, newEngine(t), &stubSearch{}, stubExtract{}, ResearcherConfig{})

	var traced []*types.Message
	report, err := r.Research(context.Background(), "zzzz", func(m *types.Message) { traced = append(traced, m) })
	require.Error(t, err)
	assert.Nil(t, report, "no fabricated report")
	assert.True(t, types.IsKind(err, types.FailureRetrieval))

	// The refused report call is visible in the trace.
	require.Len(t, traced, 4)
	assert.Contains(t, traced[3].Content, "no search results")
}

func TestResearchSearchErrorsAreRetrievalFailure(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolResponse(call("c1", ToolSearchWeb, map[string]any{"query": "x"})),
		{Content: "search is down"},
	}}
	r := NewResearcher(provider, newEngine(t), &stubSearch{err: errors.New("503")}, nil, ResearcherConfig{})

	_, err := r.Research(context.Background(), "x", nil)
	assert.True(t, types.IsKind(err, types.FailureRetrieval))
}

func TestResearchFallbackReportFromText(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolResponse(call("c1", ToolSearchWeb, map[string]any{"query": "go"})),
		{Content: "Go 1.24 adds generic type aliases."},
	}}
	r := NewResearcher(provider, newEngine(t), &stubSearch{results: []search.Result{goResult}}, nil, ResearcherConfig{})

	report, err := r.Research(context.Background(), "Go 1.24", nil)
	require.NoError(t, err)
	assert.Equal(t, "Go 1.24", report.Topic)
	assert.Equal(t, "Go 1.24 adds generic type aliases.", report.Summary)
	require.Len(t, report.Sources, 1)
	assert.Equal(t, goResult.URL, report.Sources[0].URL)
}

func TestResearchMaxRounds(t *testing.T) {
	var responses []*llm.Response
	for i := 0; i < 10; i++ {
		responses = append(responses, toolResponse(call("c", ToolSearchWeb, map[string]any{"query": "go"})))
	}
	provider := &scriptedProvider{responses: responses}
	r := NewResearcher(provider, newEngine(t), &stubSearch{results: []search.Result{goResult}}, nil, ResearcherConfig{MaxRounds: 3})

	report, err := r.Research(context.Background(), "go", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, provider.calls())
	assert.False(t, report.Empty())
}

func TestResearchLLMError(t *testing.T) {
	provider := &scriptedProvider{errs: []error{errors.New("connection refused")}}
	r := NewResearcher(provider, newEngine(t), &stubSearch{}, nil, ResearcherConfig{})

	_, err := r.Research(context.Background(), "go", nil)
	assert.True(t, types.IsKind(err, types.FailureRetrieval))
}

func TestResearchEmptyTopic(t *testing.T) {
	provider := &scriptedProvider{}
	r := NewResearcher(provider, newEngine(t), &stubSearch{}, nil, ResearcherConfig{})
	_, err := r.Research(context.Background(), "  ", nil)
	assert.True(t, types.IsKind(err, types.FailureRetrieval))
	assert.Equal(t, 0, provider.calls())
}

func TestClipKeepsRunes(t *testing.T) {
	assert.Equal(t, "short", clip("short", maxExtractChars))

	long := strings.Repeat("a", maxExtractChars-1) + "é" + "tail"
	got := clip(long, maxExtractChars)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "[Content truncated]"))
	assert.Equal(t, strings.Repeat("a", maxExtractChars-1), strings.TrimSuffix(got, "\n\n[Content truncated]"))
}
