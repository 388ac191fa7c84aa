// internal/state/session.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/user/contentcrew/internal/types"
)

// SessionStore is a JSON-file-backed session index.
// It stores index data in sessions/sessions.json and creates per-session
// directories at sessions/<sessionID>/.
type SessionStore struct {
	root string
	mu   sync.RWMutex
}

// NewSessionStore creates a new file-backed SessionStore rooted at the given directory.
func NewSessionStore(root string) *SessionStore {
	return &SessionStore{root: root}
}

func (s *SessionStore) indexPath() string {
	return filepath.Join(s.root, "sessions", "sessions.json")
}

func (s *SessionStore) sessionDir(id types.SessionID) string {
	return filepath.Join(s.root, "sessions", string(id))
}

// loadIndex reads sessions.json and returns a map keyed by SessionID.
func (s *SessionStore) loadIndex() (map[types.SessionID]*types.SessionIndex, error) {
	var sessions []*types.SessionIndex
	if err := readJSON(s.indexPath(), &sessions); err != nil {
		return nil, fmt.Errorf("read session index: %w", err)
	}
	index := make(map[types.SessionID]*types.SessionIndex, len(sessions))
	for _, sess := range sessions {
		index[sess.SessionID] = sess
	}
	return index, nil
}

// saveIndex writes the index oldest first.
func (s *SessionStore) saveIndex(index map[types.SessionID]*types.SessionIndex) error {
	if err := writeJSON(s.indexPath(), sorted(index)); err != nil {
		return fmt.Errorf("write session index: %w", err)
	}
	return nil
}

func sorted(index map[types.SessionID]*types.SessionIndex) []*types.SessionIndex {
	sessions := make([]*types.SessionIndex, 0, len(index))
	for _, sess := range index {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].SessionID < sessions[j].SessionID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// Create records a new session and its directory.
func (s *SessionStore) Create(_ context.Context, session *types.SessionIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	if _, ok := index[session.SessionID]; ok {
		return fmt.Errorf("session already exists: %s", session.SessionID)
	}

	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	c := *session
	index[session.SessionID] = &c

	if err := s.saveIndex(index); err != nil {
		return err
	}
	if err := os.MkdirAll(s.sessionDir(session.SessionID), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	return nil
}

// Get returns the session with the given ID.
func (s *SessionStore) Get(_ context.Context, id types.SessionID) (*types.SessionIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	sess, ok := index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	return sess, nil
}

// List returns all sessions, oldest first.
func (s *SessionStore) List(_ context.Context) ([]*types.SessionIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	return sorted(index), nil
}

// Update persists changes to the given session, setting UpdatedAt to now.
func (s *SessionStore) Update(_ context.Context, session *types.SessionIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	if _, ok := index[session.SessionID]; !ok {
		return fmt.Errorf("%w: %s", types.ErrSessionNotFound, session.SessionID)
	}

	session.UpdatedAt = time.Now()
	c := *session
	index[session.SessionID] = &c
	return s.saveIndex(index)
}

// Delete removes a session from the index together with its directory.
func (s *SessionStore) Delete(_ context.Context, id types.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	if _, ok := index[id]; !ok {
		return fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	delete(index, id)
	if err := s.saveIndex(index); err != nil {
		return err
	}
	if err := os.RemoveAll(s.sessionDir(id)); err != nil {
		return fmt.Errorf("remove session dir: %w", err)
	}
	return nil
}

// readJSON decodes path into v. A missing file leaves v untouched.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSON marshals v with indentation and writes it atomically.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
