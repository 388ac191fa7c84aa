package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/user/contentcrew/internal/agent"
	"github.com/user/contentcrew/internal/checkpoint/redis"
	"github.com/user/contentcrew/internal/config"
	ctxengine "github.com/user/contentcrew/internal/context"
	"github.com/user/contentcrew/internal/metrics"
	"github.com/user/contentcrew/internal/search"
	"github.com/user/contentcrew/internal/state"
	"github.com/user/contentcrew/internal/supervisor"
	"github.com/user/contentcrew/internal/tools"
	"github.com/user/contentcrew/internal/types"
	"github.com/user/contentcrew/pkg/llm"
	"github.com/user/contentcrew/pkg/llm/openai"
)

// sessionStore is a checkpointer that can also forget sessions.
type sessionStore interface {
	types.Checkpointer
	Delete(ctx context.Context, id types.SessionID) error
}

// openStore opens the configured checkpoint backend. It returns a nil store
// when checkpointing is disabled.
func openStore(ctx context.Context, cfg *config.Config) (sessionStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Checkpoint.Backend {
	case "none":
		return nil, noop, nil
	case "redis":
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, redis.WithTTL(cfg.CheckpointTTL()))
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, noop, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		return store, store.Close, nil
	default:
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, noop, fmt.Errorf("create data dir: %w", err)
		}
		return state.NewStore(cfg.DataDir), noop, nil
	}
}

// newSearcher returns the configured search provider, falling back to the
// other one when it has a key.
func newSearcher(cfg *config.Config) search.Searcher {
	var tavily, brave search.Searcher
	if cfg.Tavily.APIKey != "" {
		tavily = search.NewTavily(cfg.Tavily.APIKey)
	}
	if cfg.Brave.APIKey != "" {
		brave = search.NewBrave(cfg.Brave.APIKey)
	}
	order := []search.Searcher{tavily, brave}
	if cfg.Search.Provider == "brave" {
		order = []search.Searcher{brave, tavily}
	}
	var chain search.Fallback
	for _, s := range order {
		if s != nil {
			chain = append(chain, s)
		}
	}
	if len(chain) == 1 {
		return chain[0]
	}
	return chain
}

// newExtractor prefers the Tavily extract API and falls back to fetching
// pages directly.
func newExtractor(cfg *config.Config) search.Extractor {
	if cfg.Tavily.APIKey != "" {
		return search.NewTavily(cfg.Tavily.APIKey)
	}
	return search.NewFetcher()
}

func loadStyles(cfg *config.Config) (map[types.Format]agent.Style, error) {
	if cfg.Copywriter.StylesFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(cfg.Copywriter.StylesFile)
	if err != nil {
		return nil, types.Fail(types.FailureConfiguration, "load styles", err)
	}
	styles, err := agent.LoadStyles(data)
	if err != nil {
		return nil, types.Fail(types.FailureConfiguration, "load styles", err)
	}
	return styles, nil
}

// app holds the wired supervisor and what it depends on.
type app struct {
	cfg     *config.Config
	store   sessionStore
	sup     *supervisor.Supervisor
	metrics *metrics.Metrics
	close   func() error
}

// newApp validates cfg and wires the agents. Configuration problems are
// reported before any agent runs.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	styles, err := loadStyles(cfg)
	if err != nil {
		return nil, err
	}

	provider := openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})

	engine, err := ctxengine.New(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		return nil, types.Fail(types.FailureConfiguration, "create context engine", err)
	}

	researcher := agent.NewResearcher(provider, engine, newSearcher(cfg), newExtractor(cfg), agent.ResearcherConfig{
		MaxRounds:   cfg.Researcher.MaxRounds,
		MaxMessages: cfg.Researcher.MaxMessages,
		CallTimeout: cfg.CallTimeout(),
	})
	copywriter := agent.NewCopywriter(provider, tools.NewFileWriter(cfg.OutputDir), agent.CopywriterConfig{
		CallTimeout: cfg.CallTimeout(),
		Styles:      styles,
	})
	router := supervisor.NewLLMRouter(provider, engine, cfg.MaxTurns)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var checkpointer types.Checkpointer
	if store != nil {
		checkpointer = store
	}

	m := metrics.New()
	sup := supervisor.New(router, researcher, copywriter, checkpointer, supervisor.Config{
		MaxTurns:    cfg.MaxTurns,
		CallTimeout: cfg.CallTimeout(),
	}, metrics.Chain(m.Hooks(), timingHooks()))

	slog.Debug("agents wired",
		"model", cfg.LLM.Model,
		"search", cfg.Search.Provider,
		"checkpoint", cfg.Checkpoint.Backend,
		"max_turns", cfg.MaxTurns,
	)
	return &app{cfg: cfg, store: store, sup: sup, metrics: m, close: closeStore}, nil
}

// Close releases the checkpoint backend.
func (a *app) Close() error {
	return a.close()
}

// timingHooks logs each routing decision and handoff duration.
func timingHooks() supervisor.Hooks {
	return supervisor.Hooks{
		OnDecision: func(id types.SessionID, d types.Decision) {
			slog.Debug("routing decision", "session_id", string(id), "decision", string(d.Kind))
		},
		OnHandoff: func(id types.SessionID, worker types.AgentName, dur time.Duration, err error) {
			if err != nil {
				slog.Warn("handoff failed", "session_id", string(id), "worker", string(worker), "duration", dur, "error", err)
				return
			}
			slog.Info("handoff finished", "session_id", string(id), "worker", string(worker), "duration", dur)
		},
	}
}
