package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/user/contentcrew/internal/supervisor"
	"github.com/user/contentcrew/internal/types"
)

// Runner runs one content session.
type Runner interface {
	Run(ctx context.Context, key types.SessionKey, request string) (*supervisor.Result, error)
}

// Gateway turns inbound events from any front end into queued supervisor
// sessions. Events sharing a session key run one at a time in arrival order.
type Gateway struct {
	runner Runner
	Queue  *Queue
}

// New creates a Gateway with the given limit on concurrent sessions.
func New(runner Runner, maxConcurrent int64) *Gateway {
	g := &Gateway{
		runner: runner,
		Queue:  NewQueue(maxConcurrent),
	}
	g.Queue.SetProcessor(g.process)
	return g
}

// Start starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.Queue.Start(ctx)
}

// Stop stops the queue and waits for in-flight sessions to finish.
func (g *Gateway) Stop() {
	g.Queue.Stop()
}

func (g *Gateway) process(run *Run) (*types.Outcome, error) {
	result, err := g.runner.Run(run.Ctx, run.SessionKey, run.Event.Text)
	if result == nil {
		return nil, err
	}
	return &result.Outcome, err
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked with the session outcome.
func WithOnComplete(fn func(*types.Outcome)) RunOption {
	return func(r *Run) { r.OnComplete = fn }
}

// HandleInbound validates the event and enqueues it. The returned Run can be
// waited on with Done.
func (g *Gateway) HandleInbound(_ context.Context, event *types.InboundEvent, opts ...RunOption) (*Run, error) {
	if event.SessionKey == "" {
		return nil, errors.New("event has no session key")
	}
	if strings.TrimSpace(event.Text) == "" {
		return nil, errors.New("event has no text")
	}
	run := NewRun(event)
	for _, opt := range opts {
		opt(run)
	}
	if err := g.Queue.Enqueue(run); err != nil {
		return nil, fmt.Errorf("enqueue run: %w", err)
	}
	return run, nil
}

// Generate enqueues the event and waits for its outcome.
func (g *Gateway) Generate(ctx context.Context, event *types.InboundEvent) (*types.Outcome, error) {
	run, err := g.HandleInbound(ctx, event)
	if err != nil {
		return nil, err
	}
	select {
	case <-run.Done():
		return run.Outcome, run.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
