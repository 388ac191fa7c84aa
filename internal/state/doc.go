// Package state provides filesystem-backed storage implementations.
package state

import "github.com/user/contentcrew/internal/types"

// Compile-time interface compliance checks.
var _ types.SessionStore = (*SessionStore)(nil)
var _ types.TranscriptStore = (*TranscriptStore)(nil)
var _ types.Checkpointer = (*Store)(nil)

// Store checkpoints sessions under one root directory.
type Store struct {
	*SessionStore
	*TranscriptStore
}

// NewStore creates a file checkpointer rooted at dir.
func NewStore(dir string) *Store {
	return &Store{
		SessionStore:    NewSessionStore(dir),
		TranscriptStore: NewTranscriptStore(dir),
	}
}
