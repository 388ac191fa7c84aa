// internal/delivery/registry.go
package delivery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/user/contentcrew/internal/types"
)

// Handler delivers a finished session to the chat identified by sessionKey.
type Handler func(ctx context.Context, sessionKey string, o *types.Outcome) error

// Registry routes outcomes to the appropriate delivery handler based on
// session key prefix (e.g. "telegram:", "log:").
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for session keys starting with prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// Deliver calls the handler with the longest prefix matching the session key.
// Returns an error if no handler is registered for the key.
func (r *Registry) Deliver(ctx context.Context, sessionKey string, o *types.Outcome) error {
	r.mu.RLock()
	var best string
	var handler Handler
	for prefix, h := range r.handlers {
		if strings.HasPrefix(sessionKey, prefix) && (handler == nil || len(prefix) > len(best)) {
			best, handler = prefix, h
		}
	}
	r.mu.RUnlock()

	if handler == nil {
		return fmt.Errorf("no delivery handler for session key: %s", sessionKey)
	}
	return handler(ctx, sessionKey, o)
}

// Message renders an outcome as chat text.
func Message(o *types.Outcome) string {
	var sb strings.Builder
	if o.Truncated {
		sb.WriteString("(Stopped at the step limit; this is the best result so far.)\n\n")
	}
	sb.WriteString(o.Output)
	if o.OutputPath != "" {
		fmt.Fprintf(&sb, "\n\nSaved to %s", o.OutputPath)
	}
	return sb.String()
}
