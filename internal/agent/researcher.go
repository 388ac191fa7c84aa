package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	ctxengine "github.com/user/contentcrew/internal/context"
	"github.com/user/contentcrew/internal/search"
	"github.com/user/contentcrew/internal/tools"
	"github.com/user/contentcrew/internal/types"
	"github.com/user/contentcrew/pkg/llm"
)

// Researcher tool names.
const (
	ToolSearchWeb      = "search_web"
	ToolExtractContent = "extract_content_from_webpage"
	ToolResearchReport = "generate_research_report"
)

// maxExtractChars bounds the content of one extracted page handed to the model.
const maxExtractChars = 8000

// clip cuts s to at most n bytes on a rune boundary and marks the cut.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n\n[Content truncated]"
}

// TraceFunc receives the messages a worker produces while it runs so they can
// be recorded in the session transcript.
type TraceFunc func(m *types.Message)

// ResearcherConfig tunes the research tool loop.
type ResearcherConfig struct {
	MaxRounds   int
	MaxMessages int
	MaxTokens   int
	CallTimeout time.Duration
}

// Researcher gathers web material on a topic and files a ResearchReport.
type Researcher struct {
	provider  llm.Provider
	engine    *ctxengine.Engine
	searcher  search.Searcher
	extractor search.Extractor
	cfg       ResearcherConfig
}

// NewResearcher creates a Researcher. Zero config values fall back to
// 8 rounds, 10 messages and a 60s call timeout.
func NewResearcher(provider llm.Provider, engine *ctxengine.Engine, searcher search.Searcher, extractor search.Extractor, cfg ResearcherConfig) *Researcher {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 8
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 10
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	return &Researcher{
		provider:  provider,
		engine:    engine,
		searcher:  searcher,
		extractor: extractor,
		cfg:       cfg,
	}
}

// researchRun is the state of one Research call.
type researchRun struct {
	searches int
	failures int
	hits     []search.Result
	report   *types.ResearchReport
}

type searchArgs struct {
	Query      string `json:"query" jsonschema_description:"Search query"`
	NumResults int    `json:"num_results,omitempty" jsonschema_description:"Number of results, at most 3"`
}

type extractArgs struct {
	URLs []string `json:"urls" jsonschema_description:"URLs to extract readable content from"`
}

type reportArgs struct {
	Topic       string   `json:"topic" jsonschema_description:"The researched topic"`
	Report      string   `json:"report" jsonschema_description:"The research report in markdown"`
	KeyFindings []string `json:"key_findings,omitempty" jsonschema_description:"Short list of the key findings"`
	Sources     []string `json:"sources,omitempty" jsonschema_description:"URLs the report relies on"`
}

type searchOutput struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
}

func (r *Researcher) registry(run *researchRun) *tools.Registry {
	return tools.NewRegistry(
		tools.New(ToolSearchWeb, "Search the web and return summarized search results.",
			func(ctx context.Context, a searchArgs) (string, error) {
				if a.Query == "" {
					return "", fmt.Errorf("query is required")
				}
				run.searches++
				results, err := r.searcher.Search(ctx, a.Query, search.ClampResults(a.NumResults))
				if err != nil {
					run.failures++
					return "", fmt.Errorf("search: %w", err)
				}
				if len(results) > search.MaxResults {
					results = results[:search.MaxResults]
				}
				run.hits = append(run.hits, results...)
				out, err := json.Marshal(searchOutput{Query: a.Query, Results: results})
				if err != nil {
					return "", fmt.Errorf("marshal results: %w", err)
				}
				return string(out), nil
			}),
		tools.New(ToolExtractContent, "Extract readable content from one or more webpages.",
			func(ctx context.Context, a extractArgs) (string, error) {
				if r.extractor == nil {
					return "", fmt.Errorf("extraction is not configured")
				}
				pages, err := r.extractor.Extract(ctx, a.URLs)
				if err != nil {
					return "", fmt.Errorf("extract: %w", err)
				}
				for i := range pages {
					pages[i].Content = clip(pages[i].Content, maxExtractChars)
				}
				out, err := json.Marshal(pages)
				if err != nil {
					return "", fmt.Errorf("marshal pages: %w", err)
				}
				return string(out), nil
			}),
		tools.New(ToolResearchReport, "Generate a structured research report for a given topic.",
			func(_ context.Context, a reportArgs) (string, error) {
				if len(run.hits) == 0 {
					return "", fmt.Errorf("no search results to report on; search first")
				}
				if strings.TrimSpace(a.Report) == "" {
					return "", fmt.Errorf("report is required")
				}
				run.report = &types.ResearchReport{
					Topic:    a.Topic,
					Summary:  a.Report,
					Findings: a.KeyFindings,
					Sources:  run.sources(a.Sources),
				}
				out, _ := json.Marshal(run.report)
				return string(out), nil
			}),
	)
}

// sources resolves cited URLs against the search hits for titles. With no
// citations every hit is a source.
func (run *researchRun) sources(urls []string) []types.Source {
	titles := make(map[string]string, len(run.hits))
	for _, h := range run.hits {
		if _, ok := titles[h.URL]; !ok {
			titles[h.URL] = h.Title
		}
	}
	if len(urls) == 0 {
		for _, h := range run.hits {
			urls = append(urls, h.URL)
		}
	}
	seen := make(map[string]bool, len(urls))
	var out []types.Source
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, types.Source{Title: titles[u], URL: u})
	}
	return out
}

// fallbackReport builds a report from the search hits when the model never
// filed one.
func (run *researchRun) fallbackReport(topic, text string) *types.ResearchReport {
	summary := strings.TrimSpace(text)
	var findings []string
	for _, h := range run.hits {
		if h.Snippet == "" {
			continue
		}
		findings = append(findings, fmt.Sprintf("%s: %s", h.Title, h.Snippet))
	}
	if summary == "" {
		summary = strings.Join(findings, "\n\n")
	}
	return &types.ResearchReport{
		Topic:    topic,
		Summary:  summary,
		Findings: findings,
		Sources:  run.sources(nil),
	}
}

// Research runs the tool loop for topic. It fails with a retrieval failure
// when no search produced results; it never returns a report that is not
// backed by at least one search hit.
func (r *Researcher) Research(ctx context.Context, topic string, trace TraceFunc) (*types.ResearchReport, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, types.Failf(types.FailureRetrieval, "research", "topic is required")
	}
	if trace == nil {
		trace = func(*types.Message) {}
	}
	start := time.Now()
	run := &researchRun{}
	reg := r.registry(run)

	system, err := ctxengine.ResearcherSystem(ctxengine.PromptData{Topic: topic, Tools: reg.Names()})
	if err != nil {
		return nil, types.Fail(types.FailureRetrieval, "research", err)
	}
	history := []llm.Message{{Role: llm.RoleUser, Content: "Research this topic: " + topic}}
	budget := ctxengine.Budget{MaxMessages: r.cfg.MaxMessages, MaxTokens: r.cfg.MaxTokens}

	var lastText string
	for round := 0; round < r.cfg.MaxRounds && run.report == nil; round++ {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		resp, err := r.provider.Complete(callCtx, &llm.Request{
			Messages:   r.engine.Fit(system, history, budget),
			Tools:      reg.AsLLMTools(),
			ToolChoice: llm.ToolChoiceAuto,
		})
		cancel()
		if err != nil {
			return nil, types.Fail(types.FailureRetrieval, "research LLM call", err)
		}

		history = append(history, resp.Message())
		if len(resp.ToolCalls) == 0 {
			lastText = resp.Content
			break
		}

		for _, tc := range resp.ToolCalls {
			trace(&types.Message{
				Role:     types.RoleTool,
				Agent:    types.AgentResearcher,
				Kind:     types.KindToolCall,
				Content:  string(tc.Function.Arguments),
				CallID:   tc.ID,
				ToolCall: &types.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments},
			})

			callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
			result, err := reg.Execute(callCtx, tc.Function.Name, tc.Function.Arguments)
			cancel()
			if err != nil {
				slog.Warn("researcher tool failed", "tool", tc.Function.Name, "error", err)
				result = fmt.Sprintf("error: %v", err)
			}

			trace(&types.Message{
				Role:    types.RoleTool,
				Agent:   types.AgentResearcher,
				Kind:    types.KindToolResult,
				Content: result,
				CallID:  tc.ID,
			})
			history = append(history, llm.Message{Role: llm.RoleTool, Content: result, ToolCallID: tc.ID})
		}
		if err := ctx.Err(); err != nil {
			return nil, types.Fail(types.FailureRetrieval, "research", err)
		}
	}

	if len(run.hits) == 0 {
		slog.Info("research found nothing", "topic", topic, "searches", run.searches, "failed", run.failures)
		if run.searches == 0 {
			return nil, types.Failf(types.FailureRetrieval, "research", "no search was attempted for %q", topic)
		}
		return nil, types.Failf(types.FailureRetrieval, "research", "%d searches for %q returned no results", run.searches, topic)
	}

	report := run.report
	if report == nil {
		report = run.fallbackReport(topic, lastText)
	}
	if report.Topic == "" {
		report.Topic = topic
	}
	slog.Info("research complete", "topic", topic, "searches", run.searches, "sources", len(report.Sources), "dur", time.Since(start).Round(time.Millisecond))
	return report, nil
}
