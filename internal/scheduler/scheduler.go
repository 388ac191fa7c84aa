// internal/scheduler/scheduler.go
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/contentcrew/internal/state"
)

// Handler is the callback invoked when a scheduled task fires.
type Handler func(task state.Task)

// Scheduler evaluates cron expressions from the task store and fires tasks
// through a handler callback.
type Scheduler struct {
	store   *state.TaskStore
	handler Handler

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate reports whether expr is a schedule the scheduler accepts.
func Validate(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// Next returns the next time expr fires after from.
func Next(expr string, from time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return sched.Next(from), nil
}

// New creates a new Scheduler backed by the given task store. The handler is
// called each time a scheduled task fires.
func New(store *state.TaskStore, handler Handler) *Scheduler {
	return &Scheduler{
		store:   store,
		handler: handler,
		cron:    cron.New(cron.WithParser(cronParser)),
		entries: make(map[string]cron.EntryID),
	}
}

// Start loads tasks from the store, registers enabled tasks that have a
// schedule as cron entries, and starts the cron ticker.
func (s *Scheduler) Start() error {
	tasks, err := s.store.List()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range tasks {
		if task.Schedule == "" || !task.Enabled {
			continue
		}

		t := *task
		id, err := s.cron.AddFunc(t.Schedule, func() {
			slog.Info("cron firing task", "name", t.Name, "session_key", t.SessionKey)
			s.handler(t)
		})
		if err != nil {
			slog.Error("invalid cron schedule", "name", t.Name, "schedule", t.Schedule, "error", err)
			continue
		}
		s.entries[t.Name] = id
		slog.Info("scheduled task", "name", t.Name, "schedule", t.Schedule)
	}

	s.cron.Start()
	return nil
}

// Scheduled returns the names of registered tasks and their next fire time.
func (s *Scheduler) Scheduled() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}

// Reload stops the existing cron, creates a new one, and calls Start() again.
func (s *Scheduler) Reload() error {
	s.mu.Lock()
	s.cron.Stop()
	s.cron = cron.New(cron.WithParser(cronParser))
	s.entries = make(map[string]cron.EntryID)
	s.mu.Unlock()
	return s.Start()
}

// Stop stops the cron ticker.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Stop()
}
