package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/contentcrew/internal/types"
)

type stubGenerator struct {
	last    *types.InboundEvent
	outcome *types.Outcome
	err     error
}

func (g *stubGenerator) Generate(_ context.Context, event *types.InboundEvent) (*types.Outcome, error) {
	g.last = event
	return g.outcome, g.err
}

func TestHandleGenerate(t *testing.T) {
	gen := &stubGenerator{outcome: &types.Outcome{
		SessionID:  "s1",
		Status:     types.StatusCompleted,
		Output:     "A post about Go.",
		OutputPath: "/out/post.md",
	}}
	s := NewServer(gen, "test")

	resp, err := s.handleGenerate(context.Background(), mcp.CallToolRequest{}, GenerateArgs{Request: "Write a post about Go"})
	require.NoError(t, err)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, "A post about Go.", resp.Output)
	assert.Equal(t, "/out/post.md", resp.OutputPath)
	assert.Equal(t, "mcp", gen.last.Source)
	assert.Equal(t, "Write a post about Go", gen.last.Text)
}

func TestHandleGenerateFailedSession(t *testing.T) {
	gen := &stubGenerator{
		outcome: &types.Outcome{Status: types.StatusRetrievalFailed, Failure: types.FailureRetrieval, Output: "No usable research"},
		err:     errors.New("no results"),
	}
	s := NewServer(gen, "test")

	resp, err := s.handleGenerate(context.Background(), mcp.CallToolRequest{}, GenerateArgs{Request: "Write about nothing"})
	require.NoError(t, err, "a finished session is a result, not a tool error")
	assert.Equal(t, "retrieval", resp.Failure)
	assert.Equal(t, "No usable research", resp.Output)
}

func TestHandleGenerateErrors(t *testing.T) {
	s := NewServer(&stubGenerator{err: errors.New("queue stopped")}, "test")

	_, err := s.handleGenerate(context.Background(), mcp.CallToolRequest{}, GenerateArgs{Request: "  "})
	assert.Error(t, err)

	_, err = s.handleGenerate(context.Background(), mcp.CallToolRequest{}, GenerateArgs{Request: "Write a post"})
	assert.ErrorContains(t, err, "queue stopped")
}

func TestToolRegistered(t *testing.T) {
	s := NewServer(&stubGenerator{}, "test")

	tool := s.mcpServer.GetTool(ToolGenerate)
	require.NotNil(t, tool)
	assert.Contains(t, tool.Tool.InputSchema.Required, "request")

	raw, err := json.Marshal(tool.Tool)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"name":"generate_content"`)
}
