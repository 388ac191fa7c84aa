// Package redis checkpoints sessions in Redis: a JSON index per session, an
// RPUSH list per transcript and a ZSET ordering sessions by creation time.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/user/contentcrew/internal/types"
)

var _ types.Checkpointer = (*Store)(nil)

// Store implements types.Checkpointer using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for sessions and their transcripts.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	return NewFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "contentcrew:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) sessionKey(id types.SessionID) string {
	return s.prefix + "session:" + string(id)
}

func (s *Store) transcriptKey(id types.SessionID) string {
	return s.prefix + "transcript:" + string(id)
}

func (s *Store) indexKey() string {
	return s.prefix + "sessions"
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Create stores a new session index and adds it to the listing.
func (s *Store) Create(ctx context.Context, session *types.SessionIndex) error {
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.sessionKey(session.SessionID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return fmt.Errorf("session already exists: %s", session.SessionID)
	}
	err = s.client.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(session.CreatedAt.UnixMilli()),
		Member: string(session.SessionID),
	}).Err()
	if err != nil {
		return fmt.Errorf("index session: %w", err)
	}
	return nil
}

// Get returns the session with the given ID.
func (s *Store) Get(ctx context.Context, id types.SessionID) (*types.SessionIndex, error) {
	val, err := s.client.Get(ctx, s.sessionKey(id)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	var session types.SessionIndex
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// List returns sessions oldest first. Entries whose index expired are pruned.
func (s *Store) List(ctx context.Context) ([]*types.SessionIndex, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(ids) == 0 {
		return []*types.SessionIndex{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(types.SessionID(id))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	sessions := make([]*types.SessionIndex, 0, len(vals))
	var expired []any
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var session types.SessionIndex
		if err := json.Unmarshal([]byte(str), &session); err != nil {
			return nil, fmt.Errorf("unmarshal session %s: %w", ids[i], err)
		}
		sessions = append(sessions, &session)
	}
	if len(expired) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("prune expired sessions: %w", err)
		}
	}
	return sessions, nil
}

// Update overwrites the session index, setting UpdatedAt to now.
func (s *Store) Update(ctx context.Context, session *types.SessionIndex) error {
	session.UpdatedAt = time.Now()
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := s.client.SetXX(ctx, s.sessionKey(session.SessionID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrSessionNotFound, session.SessionID)
	}
	return nil
}

// Delete removes the session, its transcript and its listing entry.
func (s *Store) Delete(ctx context.Context, id types.SessionID) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.sessionKey(id), s.transcriptKey(id))
	pipe.ZRem(ctx, s.indexKey(), string(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	return nil
}

// Append pushes a message onto the session's transcript list. A message
// without a sequence number gets the next one.
func (s *Store) Append(ctx context.Context, msg *types.Message) error {
	key := s.transcriptKey(msg.SessionID)
	if msg.Seq == 0 {
		n, err := s.client.LLen(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("count transcript: %w", err)
		}
		msg.Seq = n + 1
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Load returns the whole transcript in append order.
func (s *Store) Load(ctx context.Context, id types.SessionID) ([]*types.Message, error) {
	vals, err := s.client.LRange(ctx, s.transcriptKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	msgs := make([]*types.Message, 0, len(vals))
	for _, v := range vals {
		var m types.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

// Count returns the transcript length.
func (s *Store) Count(ctx context.Context, id types.SessionID) (int64, error) {
	n, err := s.client.LLen(ctx, s.transcriptKey(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("count transcript: %w", err)
	}
	return n, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
