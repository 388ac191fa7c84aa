// internal/context/engine.go
package context

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/user/contentcrew/pkg/llm"
)

// maxMessageTokens is the ceiling above which a single message is left out,
// as long as something newer already made it into the window.
const maxMessageTokens = 30000

// Encodings ship with the binary so counting never downloads BPE files.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Engine assembles token-budgeted prompts for the LLM.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
	reserve   int
}

// Budget bounds the history handed to one LLM call. Zero fields fall back to
// the engine's token window and no message limit.
type Budget struct {
	MaxMessages int
	MaxTokens   int
}

// New creates a context engine with the specified token budget.
// model is used to select the appropriate tokenizer (e.g. "gpt-4").
// maxTokens is the model's context window size.
// reserve is the number of tokens to reserve for the model's response.
func New(model string, maxTokens, reserve int) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Engine{
		tokenizer: enc,
		maxTokens: maxTokens,
		reserve:   reserve,
	}, nil
}

// CountTokens returns the token count for a string.
func (e *Engine) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(e.tokenizer.Encode(text, nil, nil))
}

// MessageTokens counts the content and tool calls of msg.
func (e *Engine) MessageTokens(msg llm.Message) int {
	n := e.CountTokens(msg.Content)
	for _, tc := range msg.ToolCalls {
		n += e.CountTokens(tc.Function.Name)
		n += e.CountTokens(string(tc.Function.Arguments))
	}
	return n
}

// sequence is a run of messages that must be kept or dropped together: an
// assistant message with tool calls plus its tool results, or a single
// message. pending holds tool call ids still waiting for a result.
type sequence struct {
	msgs    []llm.Message
	pending map[string]bool
	orphan  bool
}

func (s *sequence) complete() bool { return len(s.pending) == 0 && !s.orphan }

func group(msgs []llm.Message) []*sequence {
	var out []*sequence
	var cur *sequence
	flush := func() {
		if cur != nil {
			out = append(out, cur)
			cur = nil
		}
	}

	for _, m := range msgs {
		switch {
		case m.Role == llm.RoleSystem:
			continue
		case m.HasToolCalls():
			flush()
			cur = &sequence{msgs: []llm.Message{m}, pending: make(map[string]bool)}
			for _, tc := range m.ToolCalls {
				cur.pending[tc.ID] = true
			}
		case m.Role == llm.RoleTool:
			if cur != nil && cur.pending[m.ToolCallID] {
				cur.msgs = append(cur.msgs, m)
				delete(cur.pending, m.ToolCallID)
				continue
			}
			// A tool result whose call is not in view cannot be sent.
			flush()
			out = append(out, &sequence{msgs: []llm.Message{m}, orphan: true})
		default:
			flush()
			out = append(out, &sequence{msgs: []llm.Message{m}})
		}
	}
	flush()
	return out
}

// Fit returns the system message followed by the newest history that fits
// the budget. An assistant tool-call message is never separated from its tool
// results; sequences missing a result are dropped entirely.
func (e *Engine) Fit(system string, msgs []llm.Message, b Budget) []llm.Message {
	maxTokens := b.MaxTokens
	if maxTokens <= 0 {
		maxTokens = e.maxTokens - e.reserve
	}
	used := e.CountTokens(system)
	count := 0

	seqs := group(msgs)
	var kept []*sequence
	for i := len(seqs) - 1; i >= 0; i-- {
		seq := seqs[i]
		if !seq.complete() {
			continue
		}

		tokens := 0
		oversized := false
		for _, m := range seq.msgs {
			n := e.MessageTokens(m)
			tokens += n
			if n > maxMessageTokens {
				oversized = true
			}
		}
		if oversized && len(kept) > 0 {
			continue
		}

		if b.MaxMessages > 0 && count+len(seq.msgs) > b.MaxMessages {
			break
		}
		if used+tokens > maxTokens {
			break
		}
		kept = append(kept, seq)
		used += tokens
		count += len(seq.msgs)
	}

	out := make([]llm.Message, 0, 1+count)
	if system != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: system})
	}
	for i := len(kept) - 1; i >= 0; i-- {
		out = append(out, kept[i].msgs...)
	}
	return out
}
