package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	ctxengine "github.com/user/contentcrew/internal/context"
	"github.com/user/contentcrew/internal/tools"
	"github.com/user/contentcrew/internal/types"
	"github.com/user/contentcrew/pkg/llm"
)

// Router decides the next step of a session from its transcript.
type Router interface {
	Route(ctx context.Context, transcript []types.Message) (types.Decision, error)
}

// RouterFunc adapts a function into a Router.
type RouterFunc func(ctx context.Context, transcript []types.Message) (types.Decision, error)

func (f RouterFunc) Route(ctx context.Context, transcript []types.Message) (types.Decision, error) {
	return f(ctx, transcript)
}

// Routing tool names.
const (
	ToolTransferResearcher = "transfer_to_researcher"
	ToolTransferCopywriter = "transfer_to_copywriter"
	ToolFinish             = "finish"
)

type transferResearcherArgs struct {
	Topic string `json:"topic" jsonschema_description:"The focused topic to research"`
}

type transferCopywriterArgs struct {
	Format       string `json:"format" jsonschema:"enum=post,enum=blog" jsonschema_description:"post for a social media post, blog for a long-form article"`
	Instructions string `json:"instructions,omitempty" jsonschema_description:"Audience, angle or other wishes from the user"`
}

type finishArgs struct {
	Output string `json:"output" jsonschema_description:"The final answer or content for the user"`
}

// routingTool is a schema-only tool; the router interprets calls itself.
type routingTool struct {
	name, description string
	schema            json.RawMessage
}

func (t routingTool) Name() string                { return t.name }
func (t routingTool) Description() string         { return t.description }
func (t routingTool) Parameters() json.RawMessage { return t.schema }
func (t routingTool) Execute(context.Context, json.RawMessage) (string, error) {
	return "", fmt.Errorf("%s is interpreted by the supervisor", t.name)
}

func routingTools() *tools.Registry {
	return tools.NewRegistry(
		routingTool{ToolTransferResearcher, "Hand off to the researcher to search the web and file a research report.", tools.Schema(transferResearcherArgs{})},
		routingTool{ToolTransferCopywriter, "Hand off to the copywriter to write a post or blog from the latest research report.", tools.Schema(transferCopywriterArgs{})},
		routingTool{ToolFinish, "Finish the session and return the final output to the user.", tools.Schema(finishArgs{})},
	)
}

// LLMRouter routes with one tool-calling completion per decision.
type LLMRouter struct {
	provider llm.Provider
	engine   *ctxengine.Engine
	registry *tools.Registry
	maxTurns int
}

// NewLLMRouter creates an LLMRouter. maxTurns is shown to the model so it
// can plan within the cap.
func NewLLMRouter(provider llm.Provider, engine *ctxengine.Engine, maxTurns int) *LLMRouter {
	return &LLMRouter{
		provider: provider,
		engine:   engine,
		registry: routingTools(),
		maxTurns: maxTurns,
	}
}

// Route asks the model for the next decision. A plain text reply finishes
// the session with that text. Transport errors, empty replies, unknown tools
// and bad arguments are routing failures.
func (r *LLMRouter) Route(ctx context.Context, transcript []types.Message) (types.Decision, error) {
	decisions := 0
	for _, m := range transcript {
		if m.Decision != nil {
			decisions++
		}
	}
	left := r.maxTurns - decisions
	if left < 0 {
		left = 0
	}
	system, err := ctxengine.SupervisorSystem(ctxengine.PromptData{MaxTurns: r.maxTurns, TurnsLeft: left})
	if err != nil {
		return types.Decision{}, types.Fail(types.FailureRouting, "route", err)
	}

	resp, err := r.provider.Complete(ctx, &llm.Request{
		Messages:   r.engine.Fit(system, ToLLM(transcript), ctxengine.Budget{}),
		Tools:      r.registry.AsLLMTools(),
		ToolChoice: llm.ToolChoiceAuto,
	})
	if err != nil {
		return types.Decision{}, types.Fail(types.FailureRouting, "route LLM call", err)
	}
	return ParseDecision(resp)
}

// ParseDecision interprets a routing completion.
func ParseDecision(resp *llm.Response) (types.Decision, error) {
	if len(resp.ToolCalls) == 0 {
		text := strings.TrimSpace(resp.Content)
		if text == "" {
			return types.Decision{}, types.Failf(types.FailureRouting, "route", "empty reply")
		}
		return types.Decision{Kind: types.DecideFinish, Output: text, CallID: types.NewCallID()}, nil
	}
	if len(resp.ToolCalls) > 1 {
		slog.Warn("router returned several tool calls, using the first", "count", len(resp.ToolCalls))
	}

	tc := resp.ToolCalls[0]
	callID := tc.ID
	if callID == "" {
		callID = types.NewCallID()
	}

	switch tc.Function.Name {
	case ToolTransferResearcher:
		var a transferResearcherArgs
		if err := tools.Decode(tc.Function.Arguments, &a); err != nil {
			return types.Decision{}, types.Fail(types.FailureRouting, "route", err)
		}
		if strings.TrimSpace(a.Topic) == "" {
			return types.Decision{}, types.Failf(types.FailureRouting, "route", "%s without a topic", tc.Function.Name)
		}
		return types.Decision{Kind: types.DecideResearch, Topic: strings.TrimSpace(a.Topic), CallID: callID}, nil

	case ToolTransferCopywriter:
		var a transferCopywriterArgs
		if err := tools.Decode(tc.Function.Arguments, &a); err != nil {
			return types.Decision{}, types.Fail(types.FailureRouting, "route", err)
		}
		format := types.FormatPost
		if a.Format != "" {
			f, ok := types.ParseFormat(a.Format)
			if !ok {
				return types.Decision{}, types.Failf(types.FailureRouting, "route", "unknown format %q", a.Format)
			}
			format = f
		}
		return types.Decision{Kind: types.DecideWrite, Format: format, Instructions: a.Instructions, CallID: callID}, nil

	case ToolFinish:
		var a finishArgs
		if err := tools.Decode(tc.Function.Arguments, &a); err != nil {
			return types.Decision{}, types.Fail(types.FailureRouting, "route", err)
		}
		if strings.TrimSpace(a.Output) == "" {
			return types.Decision{}, types.Failf(types.FailureRouting, "route", "finish without output")
		}
		return types.Decision{Kind: types.DecideFinish, Output: a.Output, CallID: callID}, nil
	}
	return types.Decision{}, types.Failf(types.FailureRouting, "route", "unknown tool %q", tc.Function.Name)
}

// ToLLM renders the supervisor's view of a transcript. Handoffs become tool
// calls and worker returns their tool results. Worker-internal tool traffic
// is left out.
func ToLLM(transcript []types.Message) []llm.Message {
	var out []llm.Message
	for _, m := range transcript {
		switch {
		case m.Kind == types.KindRequest:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: m.Content})

		case m.Kind == types.KindHandoff && m.Decision != nil:
			out = append(out, llm.Message{
				Role:      llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{decisionCall(*m.Decision, m.CallID)},
			})

		case m.Role == types.RoleTool:
			continue

		case m.CallID != "" && isReturn(&m):
			out = append(out, llm.Message{Role: llm.RoleTool, ToolCallID: m.CallID, Content: returnText(m)})

		case m.Kind == types.KindFailure && m.Failure != nil:
			out = append(out, llm.Message{
				Role:    llm.RoleUser,
				Content: fmt.Sprintf("[%s %s failure] %s", m.Failure.Agent, m.Failure.Kind, m.Failure.Message),
			})

		case m.Kind == types.KindRoute || m.Kind == types.KindFinal:
			if m.Content != "" {
				out = append(out, llm.Message{Role: llm.RoleAssistant, Content: m.Content})
			}
		}
	}
	return out
}

func decisionCall(d types.Decision, callID string) llm.ToolCall {
	var name string
	var args any
	switch d.Kind {
	case types.DecideResearch:
		name, args = ToolTransferResearcher, transferResearcherArgs{Topic: d.Topic}
	case types.DecideWrite:
		name, args = ToolTransferCopywriter, transferCopywriterArgs{Format: string(d.Format), Instructions: d.Instructions}
	default:
		name, args = ToolFinish, finishArgs{Output: d.Output}
	}
	b, _ := json.Marshal(args)
	return llm.ToolCall{ID: callID, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: b}}
}

func returnText(m types.Message) string {
	switch {
	case m.Report != nil:
		b, _ := json.Marshal(m.Report)
		return "Research report filed:\n" + string(b)
	case m.Draft != nil:
		var sb strings.Builder
		fmt.Fprintf(&sb, "Draft %s written", m.Draft.Format)
		if m.Draft.Persisted {
			fmt.Fprintf(&sb, " and saved to %s", m.Draft.Path)
		} else if m.Draft.PersistError != "" {
			fmt.Fprintf(&sb, " but not saved (%s)", m.Draft.PersistError)
		}
		sb.WriteString(":\n\n")
		sb.WriteString(m.Draft.Text)
		return sb.String()
	case m.Failure != nil:
		return fmt.Sprintf("FAILED (%s): %s", m.Failure.Kind, m.Failure.Message)
	}
	return m.Content
}
