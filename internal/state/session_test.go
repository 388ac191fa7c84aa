// internal/state/session_test.go
package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/contentcrew/internal/types"
)

func TestSessionStore(t *testing.T) {
	dir := t.TempDir()
	store := NewSessionStore(dir)
	ctx := context.Background()

	id := types.NewSessionID()
	key := types.NewSessionKey("telegram", "123")
	if err := store.Create(ctx, &types.SessionIndex{SessionID: id, SessionKey: key, Request: "Post about Go", Status: types.StatusActive}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sessions", string(id))); err != nil {
		t.Errorf("expected session dir: %v", err)
	}

	session, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if session.SessionKey != key {
		t.Errorf("expected key %s, got %s", key, session.SessionKey)
	}
	if session.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	// Two sessions may share a key.
	second := types.NewSessionID()
	if err := store.Create(ctx, &types.SessionIndex{SessionID: second, SessionKey: key, Request: "again", CreatedAt: time.Now().Add(time.Second)}); err != nil {
		t.Fatal(err)
	}
	sessions, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 || sessions[0].SessionID != id || sessions[1].SessionID != second {
		t.Errorf("expected both sessions oldest first, got %+v", sessions)
	}

	session.Status = types.StatusCompleted
	session.Output = "done"
	session.Turns = 3
	if err := store.Update(ctx, session); err != nil {
		t.Fatal(err)
	}
	updated, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != types.StatusCompleted || updated.Output != "done" || updated.Turns != 3 {
		t.Errorf("update not persisted: %+v", updated)
	}
}

func TestSessionStoreErrors(t *testing.T) {
	store := NewSessionStore(t.TempDir())
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := store.Update(ctx, &types.SessionIndex{SessionID: "missing"}); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	id := types.NewSessionID()
	if err := store.Create(ctx, &types.SessionIndex{SessionID: id}); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, &types.SessionIndex{SessionID: id}); err == nil {
		t.Error("expected error creating a duplicate session")
	}
}

func TestSessionStoreDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	ctx := context.Background()

	id := types.NewSessionID()
	if err := store.Create(ctx, &types.SessionIndex{SessionID: id}); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, &types.Message{SessionID: id, Kind: types.KindRequest, Content: "hi"}); err != nil {
		t.Fatal(err)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("expected deleted session to be gone, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sessions", string(id))); !os.IsNotExist(err) {
		t.Error("expected session dir to be removed")
	}
	if err := store.Delete(ctx, id); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}
