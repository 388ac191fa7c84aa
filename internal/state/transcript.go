// internal/state/transcript.go
package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/contentcrew/internal/types"
)

// maxLine bounds a single JSONL record; drafts of long articles fit easily.
const maxLine = 4 << 20

// TranscriptStore is a JSONL-backed append-only transcript store.
// Messages are stored per-session in sessions/<sessionID>/transcript.jsonl.
type TranscriptStore struct {
	root  string
	mu    sync.Mutex
	locks map[types.SessionID]*sync.Mutex
}

// NewTranscriptStore creates a new file-backed TranscriptStore rooted at the given directory.
func NewTranscriptStore(root string) *TranscriptStore {
	return &TranscriptStore{
		root:  root,
		locks: make(map[types.SessionID]*sync.Mutex),
	}
}

// getLock returns the per-session mutex, creating one if it doesn't exist.
func (t *TranscriptStore) getLock(id types.SessionID) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	if lock, ok := t.locks[id]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	t.locks[id] = lock
	return lock
}

func (t *TranscriptStore) path(id types.SessionID) string {
	return filepath.Join(t.root, "sessions", string(id), "transcript.jsonl")
}

// scan calls fn for every line of the transcript. Caller must hold the session lock.
func (t *TranscriptStore) scan(id types.SessionID, fn func(line []byte) error) error {
	f, err := os.Open(t.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan transcript: %w", err)
	}
	return nil
}

func (t *TranscriptStore) count(id types.SessionID) (int64, error) {
	var n int64
	err := t.scan(id, func([]byte) error { n++; return nil })
	return n, err
}

// Append adds a message to the session's transcript. A message without a
// sequence number gets the next one.
func (t *TranscriptStore) Append(_ context.Context, msg *types.Message) error {
	lock := t.getLock(msg.SessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.path(msg.SessionID)), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	if msg.Seq == 0 {
		existing, err := t.count(msg.SessionID)
		if err != nil {
			return err
		}
		msg.Seq = existing + 1
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	f, err := os.OpenFile(t.path(msg.SessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Load returns the whole transcript in append order.
func (t *TranscriptStore) Load(_ context.Context, id types.SessionID) ([]*types.Message, error) {
	lock := t.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	var msgs []*types.Message
	err := t.scan(id, func(line []byte) error {
		var m types.Message
		if err := json.Unmarshal(line, &m); err != nil {
			return fmt.Errorf("unmarshal message: %w", err)
		}
		msgs = append(msgs, &m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// Count returns the number of messages for the given session.
func (t *TranscriptStore) Count(_ context.Context, id types.SessionID) (int64, error) {
	lock := t.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	return t.count(id)
}
