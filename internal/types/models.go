// internal/types/models.go
package types

import (
	"encoding/json"
	"time"
)

// Role is the conversational role of a transcript message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleTool  Role = "tool"
)

// AgentName identifies a participant in a session.
type AgentName string

const (
	AgentNone       AgentName = ""
	AgentSupervisor AgentName = "supervisor"
	AgentResearcher AgentName = "researcher"
	AgentCopywriter AgentName = "copywriter"
)

// IsWorker reports whether the agent is one the supervisor hands off to.
func (a AgentName) IsWorker() bool {
	return a == AgentResearcher || a == AgentCopywriter
}

// MessageKind classifies transcript messages.
type MessageKind string

const (
	KindRequest    MessageKind = "request"
	KindRoute      MessageKind = "route"
	KindHandoff    MessageKind = "handoff"
	KindToolCall   MessageKind = "tool_call"
	KindToolResult MessageKind = "tool_result"
	KindReport     MessageKind = "report"
	KindDraft      MessageKind = "draft"
	KindFailure    MessageKind = "failure"
	KindFinal      MessageKind = "final"
)

// Format is the shape of the generated content.
type Format string

const (
	FormatPost Format = "post"
	FormatBlog Format = "blog"
)

// ParseFormat maps loose model output ("Blog post", "BLOG") onto a Format.
func ParseFormat(s string) (Format, bool) {
	switch normalize(s) {
	case "post", "social", "socialpost", "linkedin", "linkedinpost", "tweet":
		return FormatPost, true
	case "blog", "blogpost", "article", "longform":
		return FormatBlog, true
	}
	return "", false
}

func normalize(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		case c >= 'a' && c <= 'z':
			out = append(out, c)
		}
	}
	return string(out)
}

// Source is a single cited web page.
type Source struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// ResearchReport is the researcher's structured output.
type ResearchReport struct {
	Topic    string   `json:"topic"`
	Summary  string   `json:"summary"`
	Findings []string `json:"findings,omitempty"`
	Sources  []Source `json:"sources,omitempty"`
}

// Empty reports whether the report carries no usable research.
func (r *ResearchReport) Empty() bool {
	return r == nil || (r.Summary == "" && len(r.Findings) == 0)
}

func (r *ResearchReport) clone() *ResearchReport {
	if r == nil {
		return nil
	}
	c := *r
	c.Findings = append([]string(nil), r.Findings...)
	c.Sources = append([]Source(nil), r.Sources...)
	return &c
}

// GeneratedContent is the copywriter's artifact.
type GeneratedContent struct {
	Format       Format `json:"format"`
	Title        string `json:"title,omitempty"`
	Text         string `json:"text"`
	Path         string `json:"path,omitempty"`
	Persisted    bool   `json:"persisted"`
	PersistError string `json:"persist_error,omitempty"`
}

func (g *GeneratedContent) clone() *GeneratedContent {
	if g == nil {
		return nil
	}
	c := *g
	return &c
}

// Failure is a recorded worker or routing failure.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Agent   AgentName   `json:"agent,omitempty"`
	Message string      `json:"message"`
}

// DecisionKind enumerates what the supervisor may decide.
type DecisionKind string

const (
	DecideResearch DecisionKind = "handoff_researcher"
	DecideWrite    DecisionKind = "handoff_copywriter"
	DecideFinish   DecisionKind = "finish"
)

// Decision is the result of one routing step.
type Decision struct {
	Kind DecisionKind `json:"kind"`
	// Topic is the research topic for DecideResearch.
	Topic string `json:"topic,omitempty"`
	// Format and Instructions parametrize DecideWrite.
	Format       Format `json:"format,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	// Output is the final answer for DecideFinish.
	Output string `json:"output,omitempty"`
	// CallID links the decision to the worker's reply.
	CallID string `json:"call_id,omitempty"`
}

// Target returns the worker a decision hands off to, if any.
func (d Decision) Target() AgentName {
	switch d.Kind {
	case DecideResearch:
		return AgentResearcher
	case DecideWrite:
		return AgentCopywriter
	}
	return AgentNone
}

// ToolCall records a worker's tool invocation.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is one append-only entry of a session transcript.
type Message struct {
	ID        MessageID   `json:"id"`
	SessionID SessionID   `json:"session_id"`
	Seq       int64       `json:"seq"`
	Role      Role        `json:"role"`
	Agent     AgentName   `json:"agent,omitempty"`
	Kind      MessageKind `json:"kind"`
	Content   string      `json:"content,omitempty"`
	Active    AgentName   `json:"active,omitempty"`
	CallID    string      `json:"call_id,omitempty"`
	At        time.Time   `json:"at"`

	Decision *Decision         `json:"decision,omitempty"`
	ToolCall *ToolCall         `json:"tool_call,omitempty"`
	Report   *ResearchReport   `json:"report,omitempty"`
	Draft    *GeneratedContent `json:"draft,omitempty"`
	Failure  *Failure          `json:"failure,omitempty"`
}

// Clone returns a deep copy so callers cannot reach back into a transcript.
func (m *Message) Clone() *Message {
	c := *m
	if m.Decision != nil {
		d := *m.Decision
		c.Decision = &d
	}
	if m.ToolCall != nil {
		tc := *m.ToolCall
		tc.Arguments = append(json.RawMessage(nil), m.ToolCall.Arguments...)
		c.ToolCall = &tc
	}
	if m.Failure != nil {
		f := *m.Failure
		c.Failure = &f
	}
	c.Report = m.Report.clone()
	c.Draft = m.Draft.clone()
	return &c
}

// SessionStatus is the lifecycle state of a persisted session.
type SessionStatus string

const (
	StatusActive           SessionStatus = "active"
	StatusCompleted        SessionStatus = "completed"
	StatusTruncated        SessionStatus = "truncated"
	StatusRoutingFailed    SessionStatus = "routing_failed"
	StatusRetrievalFailed  SessionStatus = "retrieval_failed"
	StatusGenerationFailed SessionStatus = "generation_failed"
)

// SessionIndex is the checkpointed summary of a session.
type SessionIndex struct {
	SessionID  SessionID     `json:"session_id"`
	SessionKey SessionKey    `json:"session_key,omitempty"`
	Request    string        `json:"request"`
	Status     SessionStatus `json:"status"`
	State      string        `json:"state"`
	Active     AgentName     `json:"active,omitempty"`
	Turns      int           `json:"turns"`
	Output     string        `json:"output,omitempty"`
	OutputPath string        `json:"output_path,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Outcome is what a finished session hands back to its caller.
type Outcome struct {
	SessionID  SessionID     `json:"session_id"`
	Status     SessionStatus `json:"status"`
	Output     string        `json:"output"`
	Truncated  bool          `json:"truncated"`
	OutputPath string        `json:"output_path,omitempty"`
	Failure    FailureKind   `json:"failure,omitempty"`

	// Empty marks a truncated session that produced neither a draft nor a
	// report.
	Empty bool `json:"empty,omitempty"`
}

// InboundEvent is a request arriving from any front end.
type InboundEvent struct {
	Source     string          `json:"source"`
	SessionKey SessionKey      `json:"session_key"`
	UserID     string          `json:"user_id"`
	Text       string          `json:"text"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}
