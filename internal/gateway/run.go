package gateway

import (
	"context"
	"time"

	"github.com/user/contentcrew/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run tracks one inbound request waiting in, or leaving, a session-key lane.
type Run struct {
	ID         types.RunID
	SessionKey types.SessionKey
	Event      *types.InboundEvent
	Status     RunStatus
	CreatedAt  time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time

	// Ctx is set by the queue before the processor runs.
	Ctx context.Context
	// Outcome and Error are set once the run leaves the processor.
	Outcome *types.Outcome
	Error   error
	// OnComplete is invoked with the outcome, or a failure outcome when the
	// run could not be processed.
	OnComplete func(o *types.Outcome)

	done chan struct{}
}

// NewRun creates a Run in the Queued state for the given event.
func NewRun(event *types.InboundEvent) *Run {
	return &Run{
		ID:         types.NewRunID(),
		SessionKey: event.SessionKey,
		Event:      event,
		Status:     RunStatusQueued,
		CreatedAt:  time.Now(),
		done:       make(chan struct{}),
	}
}

// Done is closed once the run has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

func (r *Run) start() {
	now := time.Now()
	r.StartedAt = &now
	r.Status = RunStatusRunning
}

func (r *Run) finish(o *types.Outcome, err error) {
	now := time.Now()
	r.EndedAt = &now
	r.Outcome, r.Error = o, err
	r.Status = RunStatusComplete
	if o == nil {
		r.Status = RunStatusFailed
	}
	if r.OnComplete != nil {
		out := o
		if out == nil {
			out = &types.Outcome{Status: types.StatusRoutingFailed, Output: "Sorry, something went wrong processing your request."}
		}
		r.OnComplete(out)
	}
	if r.done != nil {
		close(r.done)
	}
}
