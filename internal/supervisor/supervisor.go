// Package supervisor drives the handoff state machine between the research
// and writing agents.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/contentcrew/internal/agent"
	"github.com/user/contentcrew/internal/types"
)

// DefaultMaxTurns is the routing-decision cap per session.
const DefaultMaxTurns = 8

// Researcher is the research worker.
type Researcher interface {
	Research(ctx context.Context, topic string, trace agent.TraceFunc) (*types.ResearchReport, error)
}

// Copywriter is the writing worker.
type Copywriter interface {
	Write(ctx context.Context, report *types.ResearchReport, format types.Format, instructions string) (*types.GeneratedContent, error)
}

// Config bounds a session.
type Config struct {
	// MaxTurns caps routing decisions; the session is force-finished with a
	// truncation flag when it is reached.
	MaxTurns int
	// CallTimeout bounds each routing call.
	CallTimeout time.Duration
}

// Hooks observe a session. Any field may be nil.
type Hooks struct {
	OnDecision func(id types.SessionID, d types.Decision)
	OnHandoff  func(id types.SessionID, worker types.AgentName, dur time.Duration, err error)
	OnFinish   func(o *types.Outcome)
}

// Result is a finished session.
type Result struct {
	Outcome    types.Outcome
	Transcript []types.Message
	Report     *types.ResearchReport
	Content    *types.GeneratedContent
}

// Supervisor owns sessions from request to final output.
type Supervisor struct {
	router     Router
	researcher Researcher
	copywriter Copywriter
	store      types.Checkpointer
	cfg        Config
	hooks      Hooks
}

// New creates a Supervisor. store may be nil to keep sessions in memory only.
func New(router Router, researcher Researcher, copywriter Copywriter, store types.Checkpointer, cfg Config, hooks Hooks) *Supervisor {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	return &Supervisor{
		router:     router,
		researcher: researcher,
		copywriter: copywriter,
		store:      store,
		cfg:        cfg,
		hooks:      hooks,
	}
}

// MaxTurns returns the routing-decision cap.
func (s *Supervisor) MaxTurns() int { return s.cfg.MaxTurns }

// session is the mutable state of one run. Only the goroutine driving it
// touches it.
type session struct {
	index   *types.SessionIndex
	t       *Transcript
	m       machine
	persist bool
}

func (s *Supervisor) newSession(ctx context.Context, key types.SessionKey, request string) *session {
	now := time.Now()
	id := types.NewSessionID()
	sess := &session{
		index: &types.SessionIndex{
			SessionID:  id,
			SessionKey: key,
			Request:    request,
			Status:     types.StatusActive,
			State:      string(StateAwaitingRoute),
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		t:       NewTranscript(id),
		m:       machine{state: StateAwaitingRoute},
		persist: s.store != nil,
	}
	if sess.persist {
		if err := s.store.Create(ctx, sess.index); err != nil {
			slog.Warn("checkpoint create failed, continuing in memory", "session_id", string(id), "error", err)
			sess.persist = false
		}
	}
	return sess
}

// Run handles one request. The returned Result is always non-nil once the
// session has started; the error is the failure that ended the session, if
// any. Persistence failures never end a session.
func (s *Supervisor) Run(ctx context.Context, key types.SessionKey, request string) (*Result, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, errors.New("request is empty")
	}
	sess := s.newSession(ctx, key, request)
	slog.Info("session started", "session_id", string(sess.index.SessionID), "session_key", string(key))
	s.append(ctx, sess, &types.Message{Role: types.RoleUser, Kind: types.KindRequest, Content: request})
	return s.drive(ctx, sess)
}

// Resume continues a checkpointed session. A handoff left open by a crash is
// closed with an interrupted failure first. The decisions already taken
// count against the cap.
func (s *Supervisor) Resume(ctx context.Context, id types.SessionID) (*Result, error) {
	if s.store == nil {
		return nil, errors.New("resume needs a checkpoint store")
	}
	index, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	msgs, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	sess := &session{index: index, t: RestoreTranscript(id, msgs), m: machine{state: StateAwaitingRoute}, persist: true}

	if index.Status != types.StatusActive {
		slog.Info("session already finished", "session_id", string(id), "status", string(index.Status))
		return s.result(sess, s.storedOutcome(sess)), nil
	}

	if open, ok := sess.t.OpenHandoff(); ok {
		worker := open.Active
		slog.Warn("closing interrupted handoff", "session_id", string(id), "worker", string(worker))
		s.append(ctx, sess, &types.Message{
			Role:    types.RoleAgent,
			Agent:   worker,
			Kind:    types.KindFailure,
			Active:  worker,
			CallID:  open.CallID,
			Content: "interrupted before returning",
			Failure: &types.Failure{Kind: types.FailureInterrupted, Agent: worker, Message: fmt.Sprintf("%s was interrupted before returning", worker)},
		})
	}
	slog.Info("session resumed", "session_id", string(id), "decisions", sess.t.Decisions(), "cap", s.cfg.MaxTurns)
	return s.drive(ctx, sess)
}

func (s *Supervisor) storedOutcome(sess *session) types.Outcome {
	o := types.Outcome{
		SessionID:  sess.index.SessionID,
		Status:     sess.index.Status,
		Output:     sess.index.Output,
		OutputPath: sess.index.OutputPath,
		Truncated:  sess.index.Status == types.StatusTruncated,
	}
	switch sess.index.Status {
	case types.StatusRoutingFailed:
		o.Failure = types.FailureRouting
	case types.StatusRetrievalFailed:
		o.Failure = types.FailureRetrieval
	case types.StatusGenerationFailed:
		o.Failure = types.FailureGeneration
	}
	o.Empty = o.Truncated && sess.t.LatestDraft() == nil && sess.t.LatestReport().Empty()
	return o
}

func (s *Supervisor) drive(ctx context.Context, sess *session) (*Result, error) {
	id := sess.index.SessionID
	for {
		if sess.t.Decisions() >= s.cfg.MaxTurns {
			return s.truncate(ctx, sess)
		}

		routeCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		d, err := s.router.Route(routeCtx, sess.t.Messages())
		cancel()
		if err != nil {
			if types.KindOf(err) == "" {
				err = types.Fail(types.FailureRouting, "route", err)
			}
			slog.Error("routing failed", "session_id", string(id), "error", err)
			s.recordFailure(ctx, sess, types.AgentSupervisor, err)
			return s.finish(ctx, sess, types.StatusRoutingFailed, types.FailureRouting,
				fmt.Sprintf("The session stopped because the next step could not be decided: %v", err), err)
		}
		if d.CallID == "" {
			d.CallID = types.NewCallID()
		}
		if s.hooks.OnDecision != nil {
			s.hooks.OnDecision(id, d)
		}
		slog.Info("routing decision", "session_id", string(id), "decision", string(d.Kind), "turn", sess.t.Decisions()+1, "cap", s.cfg.MaxTurns)

		switch d.Kind {
		case types.DecideFinish:
			s.append(ctx, sess, &types.Message{
				Role: types.RoleAgent, Agent: types.AgentSupervisor, Kind: types.KindRoute,
				CallID: d.CallID, Decision: &d, Content: "finish",
			})
			return s.finish(ctx, sess, types.StatusCompleted, "", d.Output, nil)

		case types.DecideResearch:
			if err := s.handoff(ctx, sess, d); err != nil {
				return s.finish(ctx, sess, types.StatusRetrievalFailed, types.FailureRetrieval,
					fmt.Sprintf("No usable research could be found for %q, so no content was written. (%v)", d.Topic, err), err)
			}

		case types.DecideWrite:
			if err := s.handoff(ctx, sess, d); err != nil {
				return s.finish(ctx, sess, types.StatusGenerationFailed, types.FailureGeneration,
					fmt.Sprintf("Content generation failed after a retry: %v", err), err)
			}

		default:
			err := types.Failf(types.FailureRouting, "route", "unknown decision %q", d.Kind)
			s.recordFailure(ctx, sess, types.AgentSupervisor, err)
			return s.finish(ctx, sess, types.StatusRoutingFailed, types.FailureRouting, err.Error(), err)
		}
	}
}

// handoff runs one worker turn. It returns an error only for failures that
// end the session.
func (s *Supervisor) handoff(ctx context.Context, sess *session, d types.Decision) error {
	id := sess.index.SessionID
	worker := d.Target()
	if err := sess.m.to(stateFor(d.Kind)); err != nil {
		return err
	}
	s.append(ctx, sess, &types.Message{
		Role: types.RoleAgent, Agent: types.AgentSupervisor, Kind: types.KindHandoff,
		Active: worker, CallID: d.CallID, Decision: &d, Content: describe(d),
	})
	defer func() {
		if err := sess.m.to(StateAwaitingRoute); err != nil {
			slog.Error("state machine", "session_id", string(id), "error", err)
		}
		s.checkpoint(ctx, sess)
	}()
	s.checkpoint(ctx, sess)

	start := time.Now()
	var err error
	switch worker {
	case types.AgentResearcher:
		err = s.research(ctx, sess, d)
	case types.AgentCopywriter:
		err = s.write(ctx, sess, d)
	}
	if s.hooks.OnHandoff != nil {
		s.hooks.OnHandoff(id, worker, time.Since(start), err)
	}
	return err
}

func (s *Supervisor) research(ctx context.Context, sess *session, d types.Decision) error {
	trace := func(m *types.Message) {
		m.Active = types.AgentResearcher
		s.append(ctx, sess, m)
	}
	report, err := s.researcher.Research(ctx, d.Topic, trace)
	if err != nil {
		if types.KindOf(err) == "" {
			err = types.Fail(types.FailureRetrieval, "research", err)
		}
		s.closeWithFailure(ctx, sess, types.AgentResearcher, d.CallID, err)
		return err
	}
	s.append(ctx, sess, &types.Message{
		Role: types.RoleAgent, Agent: types.AgentResearcher, Kind: types.KindReport,
		Active: types.AgentResearcher, CallID: d.CallID, Content: report.Summary, Report: report,
	})
	return nil
}

func (s *Supervisor) write(ctx context.Context, sess *session, d types.Decision) error {
	report := sess.t.LatestReport()
	if report.Empty() {
		// Refused: the copywriter never writes without research.
		err := types.Failf(types.FailureRouting, "handoff", "the copywriter needs a research report; hand off to the researcher first")
		s.closeWithFailure(ctx, sess, types.AgentCopywriter, d.CallID, err)
		return nil
	}

	content, err := s.copywriter.Write(ctx, report, d.Format, d.Instructions)
	if err != nil && !types.IsKind(err, types.FailurePersistence) {
		if types.KindOf(err) == "" {
			err = types.Fail(types.FailureGeneration, "write", err)
		}
		s.closeWithFailure(ctx, sess, types.AgentCopywriter, d.CallID, err)
		return err
	}
	s.append(ctx, sess, &types.Message{
		Role: types.RoleAgent, Agent: types.AgentCopywriter, Kind: types.KindDraft,
		Active: types.AgentCopywriter, CallID: d.CallID, Content: content.Text, Draft: content,
	})
	if err != nil {
		slog.Warn("content not persisted", "session_id", string(sess.index.SessionID), "error", err)
		s.recordFailure(ctx, sess, types.AgentCopywriter, err)
	}
	return nil
}

// closeWithFailure appends a worker return carrying the failure.
func (s *Supervisor) closeWithFailure(ctx context.Context, sess *session, worker types.AgentName, callID string, err error) {
	f := &types.Failure{Kind: failureKind(err), Agent: worker, Message: err.Error()}
	s.append(ctx, sess, &types.Message{
		Role: types.RoleAgent, Agent: worker, Kind: types.KindFailure,
		Active: worker, CallID: callID, Content: f.Message, Failure: f,
	})
}

// recordFailure appends a failure note outside any handoff.
func (s *Supervisor) recordFailure(ctx context.Context, sess *session, agentName types.AgentName, err error) {
	f := &types.Failure{Kind: failureKind(err), Agent: agentName, Message: err.Error()}
	s.append(ctx, sess, &types.Message{
		Role: types.RoleAgent, Agent: agentName, Kind: types.KindFailure, Content: f.Message, Failure: f,
	})
}

func failureKind(err error) types.FailureKind {
	if k := types.KindOf(err); k != "" {
		return k
	}
	return types.FailureRouting
}

// truncate force-finishes a session that hit the cap with the best content
// available: the newest draft, else the newest report summary.
func (s *Supervisor) truncate(ctx context.Context, sess *session) (*Result, error) {
	slog.Warn("routing cap reached", "session_id", string(sess.index.SessionID), "cap", s.cfg.MaxTurns)
	output := fmt.Sprintf("Stopped after %d routing decisions without a final result.", s.cfg.MaxTurns)
	if draft := sess.t.LatestDraft(); draft != nil {
		output = draft.Text
	} else if report := sess.t.LatestReport(); !report.Empty() {
		output = report.Summary
	}
	return s.finish(ctx, sess, types.StatusTruncated, "", output, nil)
}

func (s *Supervisor) finish(ctx context.Context, sess *session, status types.SessionStatus, kind types.FailureKind, output string, cause error) (*Result, error) {
	if sess.m.state != StateDone {
		sess.m.state, sess.m.active = StateDone, types.AgentNone
	}
	s.append(ctx, sess, &types.Message{
		Role: types.RoleAgent, Agent: types.AgentSupervisor, Kind: types.KindFinal, Content: output,
	})

	o := types.Outcome{
		SessionID: sess.index.SessionID,
		Status:    status,
		Output:    output,
		Truncated: status == types.StatusTruncated,
		Failure:   kind,
	}
	draft := sess.t.LatestDraft()
	if draft != nil && draft.Persisted && kind == "" {
		o.OutputPath = draft.Path
	}
	o.Empty = o.Truncated && draft == nil && sess.t.LatestReport().Empty()

	sess.index.Status = status
	sess.index.Output = output
	sess.index.OutputPath = o.OutputPath
	s.checkpoint(ctx, sess)

	slog.Info("session finished", "session_id", string(o.SessionID), "status", string(status), "decisions", sess.t.Decisions(), "truncated", o.Truncated)
	if s.hooks.OnFinish != nil {
		s.hooks.OnFinish(&o)
	}
	return s.result(sess, o), cause
}

func (s *Supervisor) result(sess *session, o types.Outcome) *Result {
	return &Result{
		Outcome:    o,
		Transcript: sess.t.Messages(),
		Report:     sess.t.LatestReport(),
		Content:    sess.t.LatestDraft(),
	}
}

// append adds m to the transcript and checkpoints it. Checkpoint errors are
// logged and the session carries on in memory.
func (s *Supervisor) append(ctx context.Context, sess *session, m *types.Message) {
	stored := sess.t.Append(m)
	if !sess.persist {
		return
	}
	if err := s.store.Append(ctx, stored); err != nil {
		slog.Warn("checkpoint append failed", "session_id", string(sess.index.SessionID), "seq", stored.Seq, "error", err)
	}
}

func (s *Supervisor) checkpoint(ctx context.Context, sess *session) {
	sess.index.State = string(sess.m.state)
	sess.index.Active = sess.m.active
	sess.index.Turns = sess.t.Decisions()
	if !sess.persist {
		return
	}
	if err := s.store.Update(ctx, sess.index); err != nil {
		slog.Warn("checkpoint update failed", "session_id", string(sess.index.SessionID), "error", err)
	}
}

func describe(d types.Decision) string {
	switch d.Kind {
	case types.DecideResearch:
		return fmt.Sprintf("transfer to researcher: %s", d.Topic)
	case types.DecideWrite:
		if d.Instructions != "" {
			return fmt.Sprintf("transfer to copywriter: %s (%s)", d.Format, d.Instructions)
		}
		return fmt.Sprintf("transfer to copywriter: %s", d.Format)
	}
	return string(d.Kind)
}
