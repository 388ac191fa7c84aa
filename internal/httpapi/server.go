// Package httpapi serves the HTTP front end: ad-hoc generation, named task
// webhooks and a read-only view of checkpointed sessions.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/user/contentcrew/internal/state"
	"github.com/user/contentcrew/internal/types"
)

// Generator runs one request to completion.
type Generator interface {
	Generate(ctx context.Context, event *types.InboundEvent) (*types.Outcome, error)
}

// Options holds the optional pieces of the server. Nil fields disable the
// routes that need them.
type Options struct {
	Tasks   *state.TaskStore
	Store   types.Checkpointer
	Metrics http.Handler
}

// Server is the chi-routed HTTP API.
type Server struct {
	gen    Generator
	opts   Options
	router chi.Router
}

// NewServer creates the API server.
func NewServer(gen Generator, opts Options) *Server {
	s := &Server{gen: gen, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)
		r.Get("/sessions", s.handleSessions)
		r.Get("/sessions/{id}", s.handleSession)
	})
	r.Post("/webhook/{task}", s.handleTask)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// generateRequest is the JSON body for POST /v1/generate.
type generateRequest struct {
	Request    string `json:"request"`
	SessionKey string `json:"session_key"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Request) == "" {
		writeError(w, http.StatusBadRequest, "request is required")
		return
	}
	key := req.SessionKey
	if key == "" {
		key = "http:" + middleware.GetReqID(r.Context())
	}

	s.generate(w, r, &types.InboundEvent{
		Source:     "http",
		SessionKey: types.SessionKey(key),
		UserID:     r.RemoteAddr,
		Text:       req.Request,
	})
}

// taskRequest is the optional JSON body for POST /webhook/{task}.
type taskRequest struct {
	Request string `json:"request"`
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	if s.opts.Tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "tasks not configured")
		return
	}
	name := chi.URLParam(r, "task")
	task, err := s.opts.Tasks.Get(name)
	if err != nil {
		if errors.Is(err, state.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		slog.Error("load task", "task", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !task.Enabled {
		writeError(w, http.StatusForbidden, "task is disabled")
		return
	}

	text := task.Prompt()
	// Allow body to override the request
	var body taskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && strings.TrimSpace(body.Request) != "" {
		override := *task
		override.Request = body.Request
		text = override.Prompt()
	}

	key := task.SessionKey
	if key == "" {
		key = "webhook:" + task.Name
	}
	s.generate(w, r, &types.InboundEvent{
		Source:     "webhook",
		SessionKey: types.SessionKey(key),
		UserID:     "webhook",
		Text:       text,
	})
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request, event *types.InboundEvent) {
	outcome, err := s.gen.Generate(r.Context(), event)
	if outcome == nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, "request cancelled")
			return
		}
		slog.Error("generate", "session_key", event.SessionKey, "error", err)
		writeError(w, http.StatusServiceUnavailable, "could not run request")
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "checkpointing disabled")
		return
	}
	sessions, err := s.opts.Store.List(r.Context())
	if err != nil {
		slog.Error("list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	if key := r.URL.Query().Get("session_key"); key != "" {
		filtered := sessions[:0]
		for _, sess := range sessions {
			if string(sess.SessionKey) == key {
				filtered = append(filtered, sess)
			}
		}
		sessions = filtered
	}
	writeJSON(w, http.StatusOK, sessions)
}

// sessionResponse is the body of GET /v1/sessions/{id}.
type sessionResponse struct {
	Session    *types.SessionIndex `json:"session"`
	Transcript []*types.Message    `json:"transcript"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "checkpointing disabled")
		return
	}
	id := types.SessionID(chi.URLParam(r, "id"))
	sess, err := s.opts.Store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, types.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("get session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	msgs, err := s.opts.Store.Load(r.Context(), id)
	if err != nil {
		slog.Error("load transcript", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if msgs == nil {
		msgs = []*types.Message{}
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess, Transcript: msgs})
}
