package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/contentcrew/internal/types"
)

// ErrStopped is returned when enqueueing into a stopped queue.
var ErrStopped = errors.New("queue stopped")

// Processor handles one run. A nil outcome with an error means the run could
// not produce any result.
type Processor func(run *Run) (*types.Outcome, error)

// Queue manages per-session-key lanes with a global concurrency semaphore.
// Each key gets its own FIFO channel (lane) so that requests from one chat
// are processed sequentially, while the semaphore limits the total number of
// concurrent sessions across all keys.
type Queue struct {
	lanes     map[types.SessionKey]chan *Run
	laneSize  int
	semaphore *semaphore.Weighted
	processor Processor
	active    atomic.Int64
	pending   atomic.Int64
	onDepth   func(int)
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewQueue creates a Queue that allows up to maxConcurrent runs to execute
// simultaneously across all lanes.
func NewQueue(maxConcurrent int64) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Queue{
		lanes:     make(map[types.SessionKey]chan *Run),
		laneSize:  100,
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// processors to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		for _, lane := range q.lanes {
			close(lane)
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a Run to its key's lane, creating the lane (and its
// goroutine) on first use. Returns an error if the lane's buffer is full.
func (q *Queue) Enqueue(run *Run) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped || q.ctx == nil {
		return ErrStopped
	}
	lane, exists := q.lanes[run.SessionKey]
	if !exists {
		lane = make(chan *Run, q.laneSize)
		q.lanes[run.SessionKey] = lane
		q.wg.Add(1)
		go q.processLane(lane)
	}

	select {
	case lane <- run:
		q.depth(1)
		return nil
	default:
		return fmt.Errorf("queue full for session key %s", run.SessionKey)
	}
}

// processLane drains a single lane, acquiring a semaphore slot before
// running the processor synchronously. This keeps strict FIFO order within a
// key while the semaphore limits cross-key parallelism.
func (q *Queue) processLane(lane chan *Run) {
	defer q.wg.Done()
	for {
		select {
		case run, ok := <-lane:
			if !ok {
				return
			}
			q.depth(-1)
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				run.finish(nil, err)
				return
			}
			q.process(run)
			q.semaphore.Release(1)
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) process(run *Run) {
	if q.processor == nil {
		run.finish(nil, errors.New("no processor"))
		return
	}
	q.active.Add(1)
	defer q.active.Add(-1)

	run.Ctx = q.ctx
	run.start()
	outcome, err := q.processor(run)
	if err != nil {
		slog.Error("run failed", "run_id", string(run.ID), "session_key", string(run.SessionKey), "error", err)
	}
	run.finish(outcome, err)
}

func (q *Queue) depth(delta int64) {
	n := q.pending.Add(delta)
	if q.onDepth != nil {
		q.onDepth(int(n))
	}
}

// Pending returns the number of runs waiting in lanes.
func (q *Queue) Pending() int {
	return int(q.pending.Load())
}

// WaitIdle blocks until no runs are actively being processed, or the timeout
// expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 && q.pending.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// SetProcessor sets the function invoked for each dequeued Run.
func (q *Queue) SetProcessor(fn Processor) {
	q.processor = fn
}

// OnDepth registers a callback for changes in the number of waiting runs.
func (q *Queue) OnDepth(fn func(int)) {
	q.onDepth = fn
}
