package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/contentcrew/pkg/llm"
)

// Client implements the llm.Provider interface for OpenAI-compatible APIs.
type Client struct {
	config     *llm.Config
	httpClient *http.Client
}

// New creates a new OpenAI-compatible client with the given configuration.
func New(config *llm.Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// APIError is a non-200 reply from the backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// chatRequest is the OpenAI chat completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []llm.Tool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float32      `json:"temperature,omitempty"`
}

// wireMessage is the OpenAI message format. Content is a pointer so that an
// assistant message carrying only tool calls serializes as null.
type wireMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// wireToolCall carries arguments as a JSON-encoded string, as the API does.
type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// chatResponse is the OpenAI chat completions response body.
type chatResponse struct {
	Choices []choice      `json:"choices"`
	Usage   responseUsage `json:"usage"`
}

type choice struct {
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// responseUsage is the OpenAI token usage format.
type responseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func toWire(msg llm.Message) wireMessage {
	wm := wireMessage{
		Role:       msg.Role,
		Name:       msg.Name,
		ToolCallID: msg.ToolCallID,
	}
	if msg.Content != "" || len(msg.ToolCalls) == 0 {
		content := msg.Content
		wm.Content = &content
	}
	for _, tc := range msg.ToolCalls {
		var w wireToolCall
		w.ID = tc.ID
		w.Type = "function"
		w.Function.Name = tc.Function.Name
		w.Function.Arguments = string(tc.Function.Arguments)
		if w.Function.Arguments == "" {
			w.Function.Arguments = "{}"
		}
		wm.ToolCalls = append(wm.ToolCalls, w)
	}
	return wm
}

func fromWire(calls []wireToolCall) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]llm.ToolCall, 0, len(calls))
	for _, w := range calls {
		args := json.RawMessage(w.Function.Arguments)
		if !json.Valid(args) {
			// Keep malformed arguments visible to the caller as a JSON string.
			quoted, _ := json.Marshal(w.Function.Arguments)
			args = quoted
		}
		out = append(out, llm.ToolCall{
			ID:   w.ID,
			Type: w.Type,
			Function: llm.FunctionCall{
				Name:      w.Function.Name,
				Arguments: args,
			},
		})
	}
	return out
}

// Complete sends a chat completion request and returns the full response.
func (c *Client) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	reqBody := chatRequest{
		Model:    c.config.Model,
		Messages: make([]wireMessage, len(req.Messages)),
	}
	for i, msg := range req.Messages {
		reqBody.Messages[i] = toWire(msg)
	}

	if len(req.Tools) > 0 {
		reqBody.Tools = req.Tools
		reqBody.ToolChoice = req.ToolChoice
	}

	reqBody.MaxTokens = c.config.MaxTokens
	if req.MaxTokens > 0 {
		reqBody.MaxTokens = req.MaxTokens
	}

	if c.config.Temperature != 0 {
		temp := c.config.Temperature
		reqBody.Temperature = &temp
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := c.config.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	msg := chatResp.Choices[0].Message
	out := &llm.Response{
		ToolCalls: fromWire(msg.ToolCalls),
		Usage: llm.Usage{
			InputTokens:  chatResp.Usage.PromptTokens,
			OutputTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:  chatResp.Usage.TotalTokens,
		},
	}
	if msg.Content != nil {
		out.Content = *msg.Content
	}
	return out, nil
}
