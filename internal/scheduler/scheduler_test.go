// internal/scheduler/scheduler_test.go
package scheduler

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/contentcrew/internal/state"
)

func newStore(t *testing.T, tasks ...*state.Task) *state.TaskStore {
	t.Helper()
	store := state.NewTaskStore(filepath.Join(t.TempDir(), "tasks.json"))
	for _, task := range tasks {
		if err := store.Add(task); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func TestSchedulerFiresTask(t *testing.T) {
	store := newStore(t, &state.Task{
		Name:       "every-second",
		Request:    "Write a post about today's Go news",
		Format:     "post",
		Schedule:   "* * * * * *",
		SessionKey: "telegram:123",
		Enabled:    true,
	})

	var fires atomic.Int32
	var got atomic.Value
	sched := New(store, func(task state.Task) {
		got.Store(task)
		fires.Add(1)
	})
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	if next, ok := sched.Scheduled()["every-second"]; !ok || next.IsZero() {
		t.Errorf("expected a next fire time, got %v", sched.Scheduled())
	}

	// Wait up to 2.5 seconds for at least one fire
	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("handler did not fire within 2.5s, fires=%d", fires.Load())
		case <-ticker.C:
			if fires.Load() > 0 {
				task := got.Load().(state.Task)
				if task.SessionKey != "telegram:123" || task.Format != "post" {
					t.Errorf("unexpected task fired: %+v", task)
				}
				return
			}
		}
	}
}

func TestSchedulerSkipsDisabledAndUnscheduled(t *testing.T) {
	store := newStore(t,
		&state.Task{Name: "disabled-task", Request: "should not fire", Schedule: "* * * * * *", SessionKey: "telegram:123"},
		&state.Task{Name: "no-schedule", Request: "webhook only", SessionKey: "telegram:123", Enabled: true},
	)

	var fires atomic.Int32
	sched := New(store, func(state.Task) { fires.Add(1) })
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	if n := len(sched.Scheduled()); n != 0 {
		t.Errorf("expected nothing scheduled, got %d", n)
	}
	time.Sleep(1500 * time.Millisecond)

	if n := fires.Load(); n != 0 {
		t.Errorf("expected 0 fires, got %d", n)
	}
}

func TestSchedulerSkipsInvalidSchedule(t *testing.T) {
	store := newStore(t,
		&state.Task{Name: "broken", Request: "r", Schedule: "not a schedule", Enabled: true},
		&state.Task{Name: "daily", Request: "r", Schedule: "@daily", Enabled: true},
	)

	sched := New(store, func(state.Task) {})
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	scheduled := sched.Scheduled()
	if _, ok := scheduled["broken"]; ok {
		t.Error("invalid schedule should be skipped")
	}
	if _, ok := scheduled["daily"]; !ok {
		t.Error("expected daily task to be scheduled")
	}
}

func TestSchedulerReload(t *testing.T) {
	store := newStore(t)
	sched := New(store, func(state.Task) {})
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	if err := store.Add(&state.Task{Name: "later", Request: "r", Schedule: "0 9 * * 1", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := sched.Reload(); err != nil {
		t.Fatal(err)
	}
	if _, ok := sched.Scheduled()["later"]; !ok {
		t.Error("expected reloaded task to be scheduled")
	}
}

func TestValidateAndNext(t *testing.T) {
	if err := Validate("0 9 * * 1"); err != nil {
		t.Errorf("expected valid schedule: %v", err)
	}
	if err := Validate("*/5 * * * * *"); err != nil {
		t.Errorf("expected seconds field to be accepted: %v", err)
	}
	if err := Validate("every tuesday"); err == nil {
		t.Error("expected invalid schedule error")
	}

	from := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC) // a Wednesday
	next, err := Next("0 9 * * 1", from)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected next fire %v, got %v", want, next)
	}
}
