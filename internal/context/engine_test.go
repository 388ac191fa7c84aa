package context

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/user/contentcrew/pkg/llm"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New("gpt-4", 128000, 4096)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func toolCall(id string) llm.Message {
	return llm.Message{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{
			ID:       id,
			Type:     "function",
			Function: llm.FunctionCall{Name: "search_web", Arguments: json.RawMessage(`{"query":"q"}`)},
		}},
	}
}

func toolResult(id, content string) llm.Message {
	return llm.Message{Role: llm.RoleTool, ToolCallID: id, Content: content}
}

func TestEncodingsLoadWithoutCache(t *testing.T) {
	t.Setenv("TIKTOKEN_CACHE_DIR", t.TempDir())
	e, err := New("unknown-model", 8000, 500)
	if err != nil {
		t.Fatalf("expected cl100k_base from the embedded loader, got %v", err)
	}
	if got := e.CountTokens("hello world"); got != 2 {
		t.Errorf("expected 2 tokens, got %d", got)
	}
}

func TestNewEngine(t *testing.T) {
	e := newEngine(t)
	if e.CountTokens("hello world") <= 0 {
		t.Error("expected positive token count")
	}
	if e.CountTokens("") != 0 {
		t.Error("expected zero tokens for empty string")
	}
}

func TestFitBasic(t *testing.T) {
	e := newEngine(t)
	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: "hello"},
		{Role: llm.RoleAssistant, Content: "hi there"},
	}

	out := e.Fit("system prompt", msgs, Budget{})
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	if out[0].Role != llm.RoleSystem || out[0].Content != "system prompt" {
		t.Errorf("expected system message first, got %+v", out[0])
	}
	if out[1].Content != "hello" || out[2].Content != "hi there" {
		t.Errorf("expected chronological order, got %q, %q", out[1].Content, out[2].Content)
	}
}

func TestFitDropsInputSystemMessages(t *testing.T) {
	e := newEngine(t)
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "old system"},
		{Role: llm.RoleUser, Content: "hello"},
	}
	out := e.Fit("new system", msgs, Budget{})
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[0].Content != "new system" {
		t.Errorf("expected new system prompt, got %q", out[0].Content)
	}
}

func TestFitMaxMessagesKeepsNewest(t *testing.T) {
	e := newEngine(t)
	var msgs []llm.Message
	for i := 0; i < 6; i++ {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: string(rune('a' + i))})
	}

	out := e.Fit("sys", msgs, Budget{MaxMessages: 3})
	if len(out) != 4 {
		t.Fatalf("expected system + 3 messages, got %d", len(out))
	}
	if out[1].Content != "d" || out[3].Content != "f" {
		t.Errorf("expected newest messages d..f, got %q..%q", out[1].Content, out[3].Content)
	}
}

func TestFitNeverSplitsToolSequence(t *testing.T) {
	e := newEngine(t)
	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: "research go"},
		toolCall("c1"),
		toolResult("c1", "result one"),
		{Role: llm.RoleAssistant, Content: "done"},
	}

	// Room for 2 messages: the tool pair (2) no longer fits after "done" (1).
	out := e.Fit("sys", msgs, Budget{MaxMessages: 2})
	if len(out) != 2 {
		t.Fatalf("expected system + 1 message, got %d: %+v", len(out), out)
	}
	if out[1].Content != "done" {
		t.Errorf("expected only 'done', got %q", out[1].Content)
	}

	out = e.Fit("sys", msgs, Budget{MaxMessages: 3})
	if len(out) != 4 {
		t.Fatalf("expected system + 3 messages, got %d", len(out))
	}
	if !out[1].HasToolCalls() || out[2].ToolCallID != "c1" {
		t.Errorf("expected tool call followed by its result, got %+v", out[1:])
	}
}

func TestFitDropsIncompleteSequence(t *testing.T) {
	e := newEngine(t)
	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		toolCall("c1"),
		{Role: llm.RoleUser, Content: "interrupted"},
	}

	out := e.Fit("sys", msgs, Budget{})
	for _, m := range out {
		if m.HasToolCalls() {
			t.Fatalf("incomplete tool call should be dropped: %+v", out)
		}
	}
	if len(out) != 3 {
		t.Errorf("expected system + 2 user messages, got %d", len(out))
	}
}

func TestFitDropsOrphanToolResult(t *testing.T) {
	e := newEngine(t)
	msgs := []llm.Message{
		toolResult("ghost", "no call"),
		{Role: llm.RoleUser, Content: "hi"},
	}
	out := e.Fit("sys", msgs, Budget{})
	for _, m := range out {
		if m.Role == llm.RoleTool {
			t.Fatalf("orphan tool result should be dropped: %+v", out)
		}
	}
}

func TestFitTokenBudget(t *testing.T) {
	e := newEngine(t)
	big := strings.Repeat("word ", 500)
	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: big},
		{Role: llm.RoleUser, Content: "small"},
	}

	out := e.Fit("sys", msgs, Budget{MaxTokens: 100})
	if len(out) != 2 {
		t.Fatalf("expected system + newest small message, got %d", len(out))
	}
	if out[1].Content != "small" {
		t.Errorf("expected 'small', got %q", out[1].Content)
	}
}

func TestFitSkipsOversizedMessage(t *testing.T) {
	e := newEngine(t)
	huge := strings.Repeat("token ", maxMessageTokens+100)
	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: "first"},
		{Role: llm.RoleUser, Content: huge},
		{Role: llm.RoleUser, Content: "last"},
	}

	out := e.Fit("sys", msgs, Budget{MaxTokens: 1000000})
	if len(out) != 3 {
		t.Fatalf("expected oversized message skipped, got %d messages", len(out))
	}
	if out[1].Content != "first" || out[2].Content != "last" {
		t.Errorf("unexpected messages: %q, %q", out[1].Content, out[2].Content)
	}
}

func TestPrompts(t *testing.T) {
	sup, err := SupervisorSystem(PromptData{MaxTurns: 8, TurnsLeft: 5})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sup, "5 of 8") {
		t.Errorf("expected turns in supervisor prompt, got %q", sup)
	}

	res, err := ResearcherSystem(PromptData{Time: "now", Topic: "rust async", Tools: []string{"search_web"}})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Time: now", "Topic: rust async", "- search_web"} {
		if !strings.Contains(res, want) {
			t.Errorf("expected %q in researcher prompt", want)
		}
	}

	cw, err := CopywriterSystem(CopywriterData{Format: "blog", Tone: "friendly", Instructions: "mention benchmarks"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(cw, "producing a blog") || !strings.Contains(cw, "mention benchmarks") {
		t.Errorf("unexpected copywriter prompt: %q", cw)
	}
}
