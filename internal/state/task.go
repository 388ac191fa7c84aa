// internal/state/task.go
package state

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrTaskNotFound is returned for unknown task names.
var ErrTaskNotFound = errors.New("task not found")

// Task is a stored content request that runs on a schedule or via webhook.
type Task struct {
	Name    string `json:"name"`
	Request string `json:"request"`
	// Format is an optional "post" or "blog" hint added to the request.
	Format     string `json:"format,omitempty"`
	Schedule   string `json:"schedule,omitempty"`
	SessionKey string `json:"session_key"`
	Enabled    bool   `json:"enabled"`
}

// Prompt returns the request text handed to the supervisor.
func (t *Task) Prompt() string {
	if t.Format == "" {
		return t.Request
	}
	return fmt.Sprintf("%s\n\nFormat: %s", t.Request, t.Format)
}

// Validate checks the fields every task needs.
func (t *Task) Validate() error {
	if t.Name == "" || strings.ContainsAny(t.Name, " /\\") {
		return fmt.Errorf("task name %q must be non-empty without spaces or slashes", t.Name)
	}
	if strings.TrimSpace(t.Request) == "" {
		return fmt.Errorf("task %s has no request", t.Name)
	}
	return nil
}

// TaskStore is a JSON-file-backed store for tasks.
type TaskStore struct {
	path string
	mu   sync.RWMutex
}

// NewTaskStore creates a new file-backed TaskStore at the given file path.
func NewTaskStore(path string) *TaskStore {
	return &TaskStore{path: path}
}

// Path returns the file path used by this store.
func (s *TaskStore) Path() string {
	return s.path
}

// List returns all tasks. Returns an empty slice if the file doesn't exist.
func (s *TaskStore) List() ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks, err := s.load()
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		return []*Task{}, nil
	}
	return tasks, nil
}

// Get finds a task by name.
func (s *TaskStore) Get(name string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks, err := s.load()
	if err != nil {
		return nil, err
	}
	if i := find(tasks, name); i >= 0 {
		return tasks[i], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
}

// Add stores a new task. Names are unique.
func (s *TaskStore) Add(task *Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	return s.mutate(func(tasks []*Task) ([]*Task, error) {
		if find(tasks, task.Name) >= 0 {
			return nil, fmt.Errorf("task already exists: %s", task.Name)
		}
		return append(tasks, task), nil
	})
}

// Remove deletes a task by name.
func (s *TaskStore) Remove(name string) error {
	return s.mutate(func(tasks []*Task) ([]*Task, error) {
		i := find(tasks, name)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
		}
		return append(tasks[:i], tasks[i+1:]...), nil
	})
}

// SetEnabled toggles the enabled flag for a task.
func (s *TaskStore) SetEnabled(name string, enabled bool) error {
	return s.mutate(func(tasks []*Task) ([]*Task, error) {
		i := find(tasks, name)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
		}
		tasks[i].Enabled = enabled
		return tasks, nil
	})
}

func find(tasks []*Task, name string) int {
	for i, task := range tasks {
		if task.Name == name {
			return i
		}
	}
	return -1
}

// mutate loads the task list, applies fn and saves the result under the write lock.
func (s *TaskStore) mutate(fn func([]*Task) ([]*Task, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return err
	}
	tasks, err = fn(tasks)
	if err != nil {
		return err
	}
	if err := writeJSON(s.path, tasks); err != nil {
		return fmt.Errorf("write tasks file: %w", err)
	}
	return nil
}

// load reads the JSON file. Returns nil if the file doesn't exist.
func (s *TaskStore) load() ([]*Task, error) {
	var tasks []*Task
	if err := readJSON(s.path, &tasks); err != nil {
		return nil, fmt.Errorf("read tasks file: %w", err)
	}
	return tasks, nil
}
