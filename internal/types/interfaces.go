// internal/types/interfaces.go
package types

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned by stores for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

type SessionStore interface {
	Create(ctx context.Context, session *SessionIndex) error
	Get(ctx context.Context, id SessionID) (*SessionIndex, error)
	List(ctx context.Context) ([]*SessionIndex, error)
	Update(ctx context.Context, session *SessionIndex) error
}

type TranscriptStore interface {
	Append(ctx context.Context, msg *Message) error
	Load(ctx context.Context, id SessionID) ([]*Message, error)
	Count(ctx context.Context, id SessionID) (int64, error)
}

// Checkpointer persists sessions so they can be resumed after a restart.
type Checkpointer interface {
	SessionStore
	TranscriptStore
}
