package gateway_test

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/contentcrew/internal/agent"
	"github.com/user/contentcrew/internal/checkpoint/redis"
	ctxengine "github.com/user/contentcrew/internal/context"
	"github.com/user/contentcrew/internal/gateway"
	"github.com/user/contentcrew/internal/search"
	"github.com/user/contentcrew/internal/state"
	"github.com/user/contentcrew/internal/supervisor"
	"github.com/user/contentcrew/internal/tools"
	"github.com/user/contentcrew/internal/types"
	"github.com/user/contentcrew/pkg/llm"
)

const draft = "# Go 1.25 is out\n\nGo 1.25 brings a faster garbage collector."

// scriptedModel answers the supervisor, researcher and copywriter calls of
// one research, write, finish session. Calls are told apart by their tools.
type scriptedModel struct {
	mu       sync.Mutex
	routes   int
	research int
	writes   int
}

func call(id, name string, args any) llm.ToolCall {
	raw, _ := json.Marshal(args)
	return llm.ToolCall{ID: id, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: raw}}
}

func hasTool(req *llm.Request, name string) bool {
	for _, t := range req.Tools {
		if t.Function.Name == name {
			return true
		}
	}
	return false
}

func (m *scriptedModel) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case hasTool(req, supervisor.ToolTransferResearcher):
		m.routes++
		switch m.routes {
		case 1:
			return &llm.Response{ToolCalls: []llm.ToolCall{call("route_1", supervisor.ToolTransferResearcher, map[string]string{"topic": "Go 1.25 release"})}}, nil
		case 2:
			return &llm.Response{ToolCalls: []llm.ToolCall{call("route_2", supervisor.ToolTransferCopywriter, map[string]string{"format": "post"})}}, nil
		default:
			return &llm.Response{ToolCalls: []llm.ToolCall{call("route_3", supervisor.ToolFinish, map[string]string{"output": draft})}}, nil
		}

	case hasTool(req, agent.ToolSearchWeb):
		m.research++
		if m.research == 1 {
			return &llm.Response{ToolCalls: []llm.ToolCall{call("r1", agent.ToolSearchWeb, map[string]any{"query": "Go 1.25 release notes"})}}, nil
		}
		return &llm.Response{ToolCalls: []llm.ToolCall{call("r2", agent.ToolResearchReport, map[string]any{
			"topic":        "Go 1.25 release",
			"report":       "Go 1.25 ships a new garbage collector.",
			"key_findings": []string{"faster GC"},
		})}}, nil

	default:
		m.writes++
		return &llm.Response{Content: draft}, nil
	}
}

type fixedSearcher struct{}

func (fixedSearcher) Search(context.Context, string, int) ([]search.Result, error) {
	return []search.Result{{Title: "Go 1.25 Release Notes", URL: "https://go.dev/doc/go1.25", Snippet: "Go 1.25 is released."}}, nil
}

func newSupervisor(t *testing.T, model llm.Provider, store types.Checkpointer, outDir string) *supervisor.Supervisor {
	t.Helper()
	engine, err := ctxengine.New("gpt-4o-mini", 128000, 4096)
	require.NoError(t, err)

	researcher := agent.NewResearcher(model, engine, fixedSearcher{}, nil, agent.ResearcherConfig{})
	copywriter := agent.NewCopywriter(model, tools.NewFileWriter(outDir), agent.CopywriterConfig{})
	router := supervisor.NewLLMRouter(model, engine, supervisor.DefaultMaxTurns)
	return supervisor.New(router, researcher, copywriter, store, supervisor.Config{}, supervisor.Hooks{})
}

func TestEndToEnd(t *testing.T) {
	backends := map[string]func(t *testing.T) types.Checkpointer{
		"file": func(t *testing.T) types.Checkpointer {
			return state.NewStore(t.TempDir())
		},
		"redis": func(t *testing.T) types.Checkpointer {
			mr := miniredis.RunT(t)
			store := redis.NewFromClient(backend.NewClient(&backend.Options{Addr: mr.Addr()}))
			t.Cleanup(func() { store.Close() })
			return store
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			outDir := t.TempDir()
			model := &scriptedModel{}

			gw := gateway.New(newSupervisor(t, model, store, outDir), 1)
			ctx := context.Background()
			gw.Start(ctx)
			defer gw.Stop()

			outcome, err := gw.Generate(ctx, &types.InboundEvent{
				Source:     "test",
				SessionKey: types.NewSessionKey("test", "user1"),
				UserID:     "user1",
				Text:       "Write a LinkedIn post about the Go 1.25 release",
			})
			require.NoError(t, err)
			require.NotNil(t, outcome)

			assert.Equal(t, types.StatusCompleted, outcome.Status)
			assert.Equal(t, draft, outcome.Output)
			assert.False(t, outcome.Truncated)
			assert.Equal(t, 3, model.routes)
			assert.Equal(t, 1, model.writes)

			require.NotEmpty(t, outcome.OutputPath)
			assert.True(t, strings.HasPrefix(outcome.OutputPath, outDir))
			written, err := os.ReadFile(outcome.OutputPath)
			require.NoError(t, err)
			assert.Equal(t, draft+"\n", string(written))

			sess, err := store.Get(ctx, outcome.SessionID)
			require.NoError(t, err)
			assert.Equal(t, types.StatusCompleted, sess.Status)
			assert.Equal(t, 3, sess.Turns)

			msgs, err := store.Load(ctx, outcome.SessionID)
			require.NoError(t, err)
			var kinds []types.MessageKind
			for i, m := range msgs {
				assert.Equal(t, int64(i+1), m.Seq, "transcript is numbered in append order")
				kinds = append(kinds, m.Kind)
			}
			assert.Equal(t, []types.MessageKind{
				types.KindRequest,
				types.KindHandoff,
				types.KindToolCall, types.KindToolResult,
				types.KindToolCall, types.KindToolResult,
				types.KindReport,
				types.KindHandoff,
				types.KindDraft,
				types.KindRoute,
				types.KindFinal,
			}, kinds)
		})
	}
}
