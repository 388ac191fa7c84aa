package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/user/contentcrew/internal/config"
	"github.com/user/contentcrew/internal/delivery"
	"github.com/user/contentcrew/internal/gateway"
	"github.com/user/contentcrew/internal/render"
	"github.com/user/contentcrew/internal/search"
	"github.com/user/contentcrew/internal/state"
	"github.com/user/contentcrew/internal/supervisor"
	"github.com/user/contentcrew/internal/types"
)

func TestStatusExitCode(t *testing.T) {
	tests := []struct {
		outcome types.Outcome
		want    int
	}{
		{types.Outcome{Status: types.StatusCompleted}, 0},
		{types.Outcome{Status: types.StatusTruncated, Truncated: true}, 0},
		{types.Outcome{Status: types.StatusTruncated, Truncated: true, Empty: true}, 5},
		{types.Outcome{Status: types.StatusRoutingFailed}, 2},
		{types.Outcome{Status: types.StatusRetrievalFailed}, 3},
		{types.Outcome{Status: types.StatusGenerationFailed}, 4},
	}
	for _, tt := range tests {
		if got := statusExitCode(&tt.outcome); got != tt.want {
			t.Errorf("%s (empty=%v): expected %d, got %d", tt.outcome.Status, tt.outcome.Empty, tt.want, got)
		}
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(nil); got != 0 {
		t.Errorf("nil error: expected 0, got %d", got)
	}
	if got := exitCode(errors.New("boom")); got != 1 {
		t.Errorf("plain error: expected 1, got %d", got)
	}
	cfgErr := types.Failf(types.FailureConfiguration, "validate config", "llm.api_key is not set")
	if got := exitCode(cfgErr); got != 1 {
		t.Errorf("configuration error: expected 1, got %d", got)
	}
	if got := exitCode(outcomeError(&types.Outcome{Status: types.StatusRetrievalFailed})); got != 3 {
		t.Errorf("retrieval outcome: expected 3, got %d", got)
	}
	if err := outcomeError(&types.Outcome{Status: types.StatusCompleted}); err != nil {
		t.Errorf("completed outcome: expected nil, got %v", err)
	}
}

type stubRunner struct {
	requests []string
	outcomes map[string]types.Outcome
}

func (s *stubRunner) Run(_ context.Context, key types.SessionKey, request string) (*supervisor.Result, error) {
	s.requests = append(s.requests, request)
	o, ok := s.outcomes[request]
	if !ok {
		o = types.Outcome{SessionID: "s1", Status: types.StatusCompleted, Output: "content for " + request}
	}
	return &supervisor.Result{Outcome: o}, nil
}

func TestRunOnce(t *testing.T) {
	var buf bytes.Buffer
	runner := &stubRunner{outcomes: map[string]types.Outcome{
		"nothing": {Status: types.StatusRetrievalFailed, Failure: types.FailureRetrieval, Output: "No usable research"},
	}}
	out := render.New(&buf)

	if err := runOnce(context.Background(), runner, out, "Go"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "content for Go") {
		t.Errorf("expected content in output, got %q", buf.String())
	}

	err := runOnce(context.Background(), runner, out, "nothing")
	if exitCode(err) != 3 {
		t.Errorf("expected exit code 3, got %d (%v)", exitCode(err), err)
	}
}

func TestRunInteractive(t *testing.T) {
	var buf, prompt bytes.Buffer
	runner := &stubRunner{}
	in := strings.NewReader("first\n\nsecond\nexit\nnever\n")

	if err := runInteractive(context.Background(), runner, render.New(&buf), in, &prompt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.requests) != 2 || runner.requests[0] != "first" || runner.requests[1] != "second" {
		t.Errorf("unexpected requests: %v", runner.requests)
	}
	if !strings.Contains(prompt.String(), "> ") {
		t.Errorf("expected prompt, got %q", prompt.String())
	}
}

func TestPrintSession(t *testing.T) {
	var buf bytes.Buffer
	sess := &types.SessionIndex{SessionID: "s1", SessionKey: "cli", Request: "Post about Go", Status: types.StatusCompleted, Turns: 3, OutputPath: "/out/post.md"}
	msgs := []*types.Message{
		{Seq: 1, Role: types.RoleUser, Kind: types.KindRequest, Content: "Post about Go"},
		{Seq: 2, Role: types.RoleAgent, Agent: types.AgentSupervisor, Kind: types.KindHandoff, Content: "transfer to researcher: Go"},
		{Seq: 3, Role: types.RoleTool, Active: types.AgentResearcher, Kind: types.KindToolCall, ToolCall: &types.ToolCall{Name: "search_web", Arguments: []byte(`{"query":"Go"}`)}},
		{Seq: 4, Role: types.RoleAgent, Agent: types.AgentResearcher, Kind: types.KindReport, Report: &types.ResearchReport{Summary: "Go is fast.", Sources: []types.Source{{URL: "https://go.dev"}}}},
		{Seq: 5, Role: types.RoleAgent, Agent: types.AgentCopywriter, Kind: types.KindFailure, Failure: &types.Failure{Kind: types.FailurePersistence, Message: "disk full"}},
	}
	printSession(&buf, sess, msgs)
	out := buf.String()

	for _, want := range []string{
		"Session:   s1",
		"Output:    /out/post.md",
		"transfer to researcher: Go",
		`search_web {"query":"Go"}`,
		"Go is fast. (1 sources)",
		"[persistence] disk full",
		"researcher",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestPrintSessionsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := printSessions(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No sessions found.") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("expected short unchanged, got %q", got)
	}
	if got := truncate("a  b\n c", 10); got != "a b c" {
		t.Errorf("expected whitespace collapsed, got %q", got)
	}
	if got := truncate(strings.Repeat("é", 20), 10); got != strings.Repeat("é", 7)+"..." {
		t.Errorf("unexpected truncation %q", got)
	}
}

func TestNewSearcher(t *testing.T) {
	cfg := config.Defaults()
	cfg.Tavily.APIKey = "tvly-key"
	if _, ok := newSearcher(cfg).(*search.Tavily); !ok {
		t.Errorf("expected tavily alone, got %T", newSearcher(cfg))
	}

	cfg.Brave.APIKey = "brave-key"
	chain, ok := newSearcher(cfg).(search.Fallback)
	if !ok || len(chain) != 2 {
		t.Fatalf("expected two-searcher fallback, got %T", newSearcher(cfg))
	}
	if _, ok := chain[0].(*search.Tavily); !ok {
		t.Errorf("expected tavily first, got %T", chain[0])
	}

	cfg.Search.Provider = "brave"
	chain = newSearcher(cfg).(search.Fallback)
	if _, ok := chain[0].(*search.Brave); !ok {
		t.Errorf("expected brave first, got %T", chain[0])
	}
}

func TestNewExtractor(t *testing.T) {
	cfg := config.Defaults()
	if _, ok := newExtractor(cfg).(*search.Fetcher); !ok {
		t.Errorf("expected direct fetcher without a tavily key")
	}
	cfg.Tavily.APIKey = "tvly-key"
	if _, ok := newExtractor(cfg).(*search.Tavily); !ok {
		t.Errorf("expected tavily extractor")
	}
}

func TestOpenStore(t *testing.T) {
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()

	store, closeStore, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer closeStore()
	if _, ok := store.(*state.Store); !ok {
		t.Errorf("expected file store, got %T", store)
	}

	cfg.Checkpoint.Backend = "none"
	store, _, err = openStore(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if store != nil {
		t.Errorf("expected no store, got %T", store)
	}
}

func TestNewAppRejectsBadConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()

	_, err := newApp(context.Background(), cfg)
	if !types.IsKind(err, types.FailureConfiguration) {
		t.Fatalf("expected configuration failure, got %v", err)
	}
}

func TestRunWizard(t *testing.T) {
	cfg := config.Defaults()
	var out bytes.Buffer
	input := strings.Join([]string{
		"",          // base URL
		"sk-test",   // API key
		"gpt-4o",    // model
		"google",    // invalid provider
		"brave",     // provider
		"",          // tavily key
		"brave-key", // brave key
		"/tmp/out",  // output dir
		"5",         // max turns
		"",          // telegram token
	}, "\n") + "\n"

	runWizard(bufio.NewScanner(strings.NewReader(input)), &out, cfg)

	if cfg.LLM.APIKey != "sk-test" || cfg.LLM.Model != "gpt-4o" {
		t.Errorf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.LLM.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("expected default base URL kept, got %q", cfg.LLM.BaseURL)
	}
	if cfg.Search.Provider != "brave" || cfg.Brave.APIKey != "brave-key" {
		t.Errorf("unexpected search config: %q %q", cfg.Search.Provider, cfg.Brave.APIKey)
	}
	if cfg.OutputDir != "/tmp/out" || cfg.MaxTurns != 5 {
		t.Errorf("unexpected output dir %q or max turns %d", cfg.OutputDir, cfg.MaxTurns)
	}
	if !strings.Contains(out.String(), "Please enter tavily or brave.") {
		t.Error("expected provider to be re-asked")
	}
}

func TestRunTaskDelivers(t *testing.T) {
	runner := &stubRunner{}
	gw := gateway.New(runner, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gw.Start(ctx)
	defer gw.Stop()

	reg := delivery.NewRegistry()
	delivered := make(chan string, 1)
	reg.Register("task:", func(_ context.Context, key string, o *types.Outcome) error {
		delivered <- key + "=" + o.Output
		return nil
	})

	runTask(ctx, gw, reg, state.Task{Name: "weekly", Request: "Go news", Format: "blog", Enabled: true})

	select {
	case got := <-delivered:
		if got != "task:weekly=content for Go news\n\nFormat: blog" {
			t.Errorf("unexpected delivery %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task was not delivered")
	}
}

func TestPlanReload(t *testing.T) {
	store := state.NewTaskStore(filepath.Join(t.TempDir(), "tasks.json"))
	for _, task := range []*state.Task{
		{Name: "daily", Request: "Go news", Schedule: "30 9 * * *", Enabled: true},
		{Name: "hourly", Request: "Go tips", Schedule: "@hourly", Enabled: true},
		{Name: "hook", Request: "On demand", Enabled: true},
		{Name: "paused", Request: "Old", Schedule: "@daily", Enabled: false},
		{Name: "broken", Request: "Bad", Schedule: "every tuesday", Enabled: true},
	} {
		if err := store.Add(task); err != nil {
			t.Fatal(err)
		}
	}

	now := time.Date(2026, 5, 1, 8, 30, 0, 0, time.Local)
	plan, err := planReload(store, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Scheduled) != 2 || plan.Scheduled[0].Name != "hourly" || plan.Scheduled[1].Name != "daily" {
		t.Fatalf("expected hourly then daily, got %+v", plan.Scheduled)
	}
	if plan.WebhookOnly != 1 || plan.Disabled != 1 {
		t.Errorf("expected 1 webhook-only and 1 disabled, got %+v", plan)
	}
	if len(plan.Invalid) != 1 || plan.Invalid[0] != "broken" {
		t.Errorf("expected broken to be skipped, got %v", plan.Invalid)
	}

	var out bytes.Buffer
	printReloadPlan(&out, plan)
	for _, want := range []string{"2 scheduled, 1 webhook only, 1 disabled", "hourly", "broken", "invalid schedule"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected %q in %q", want, out.String())
		}
	}
}

func TestServerProcess(t *testing.T) {
	dir := t.TempDir()
	if _, err := serverProcess(dir); err == nil || !strings.Contains(err.Error(), "not running") {
		t.Errorf("expected not running without a PID file, got %v", err)
	}

	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(pidPath(dir), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("garbage")
	if _, err := serverProcess(dir); err == nil || !strings.Contains(err.Error(), "corrupt") {
		t.Errorf("expected corrupt PID error, got %v", err)
	}

	write("999999999\n")
	if _, err := serverProcess(dir); err == nil || !strings.Contains(err.Error(), "stale") {
		t.Errorf("expected stale PID error, got %v", err)
	}

	write(strconv.Itoa(os.Getpid()) + "\n")
	proc, err := serverProcess(dir)
	if err != nil {
		t.Fatalf("expected live process, got %v", err)
	}
	if proc.Pid != os.Getpid() {
		t.Errorf("expected pid %d, got %d", os.Getpid(), proc.Pid)
	}
	if waitForExit(proc, 10*time.Millisecond) {
		t.Error("a live process must not be reported as exited")
	}
}
