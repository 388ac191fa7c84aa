package supervisor

import (
	"time"

	"github.com/user/contentcrew/internal/types"
)

// Transcript is the append-only message log of one session. It hands out
// copies only; there is no way to edit or remove an appended message.
type Transcript struct {
	sessionID types.SessionID
	msgs      []*types.Message
}

// NewTranscript creates an empty transcript for a session.
func NewTranscript(id types.SessionID) *Transcript {
	return &Transcript{sessionID: id}
}

// RestoreTranscript rebuilds a transcript from checkpointed messages, which
// must be in append order.
func RestoreTranscript(id types.SessionID, msgs []*types.Message) *Transcript {
	t := NewTranscript(id)
	for _, m := range msgs {
		t.msgs = append(t.msgs, m.Clone())
	}
	return t
}

// Append stamps m with its sequence number, id, session and time, stores a
// copy and returns another copy.
func (t *Transcript) Append(m *types.Message) *types.Message {
	c := m.Clone()
	c.SessionID = t.sessionID
	c.Seq = int64(len(t.msgs) + 1)
	if c.ID == "" {
		c.ID = types.NewMessageID()
	}
	if c.At.IsZero() {
		c.At = time.Now()
	}
	t.msgs = append(t.msgs, c)
	return c.Clone()
}

// Len returns the number of messages.
func (t *Transcript) Len() int { return len(t.msgs) }

// Messages returns a deep copy of the transcript.
func (t *Transcript) Messages() []types.Message {
	out := make([]types.Message, len(t.msgs))
	for i, m := range t.msgs {
		out[i] = *m.Clone()
	}
	return out
}

// Request returns the text of the first user request.
func (t *Transcript) Request() string {
	for _, m := range t.msgs {
		if m.Kind == types.KindRequest {
			return m.Content
		}
	}
	return ""
}

// Decisions counts the routing decisions taken so far.
func (t *Transcript) Decisions() int {
	n := 0
	for _, m := range t.msgs {
		if m.Decision != nil {
			n++
		}
	}
	return n
}

// LatestReport returns a copy of the newest research report, or nil.
func (t *Transcript) LatestReport() *types.ResearchReport {
	for i := len(t.msgs) - 1; i >= 0; i-- {
		if m := t.msgs[i]; m.Kind == types.KindReport && m.Report != nil {
			return m.Clone().Report
		}
	}
	return nil
}

// LatestDraft returns a copy of the newest generated content, or nil.
func (t *Transcript) LatestDraft() *types.GeneratedContent {
	for i := len(t.msgs) - 1; i >= 0; i-- {
		if m := t.msgs[i]; m.Kind == types.KindDraft && m.Draft != nil {
			return m.Clone().Draft
		}
	}
	return nil
}

// OpenHandoff returns the newest handoff that no worker return has closed.
func (t *Transcript) OpenHandoff() (*types.Message, bool) {
	for i := len(t.msgs) - 1; i >= 0; i-- {
		m := t.msgs[i]
		if m.Kind == types.KindHandoff {
			return m.Clone(), true
		}
		if m.CallID != "" && isReturn(m) {
			return nil, false
		}
	}
	return nil, false
}

// isReturn reports whether m hands control back to the supervisor.
func isReturn(m *types.Message) bool {
	switch m.Kind {
	case types.KindReport, types.KindDraft, types.KindFailure:
		return true
	}
	return false
}
