// Package mcpserver exposes content generation as an MCP tool.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/user/contentcrew/internal/types"
)

// ToolGenerate is the name of the generation tool.
const ToolGenerate = "generate_content"

// Generator runs one request to completion.
type Generator interface {
	Generate(ctx context.Context, event *types.InboundEvent) (*types.Outcome, error)
}

// GenerateArgs are the arguments of generate_content.
type GenerateArgs struct {
	Request string `json:"request"`
}

// GenerateResponse is the structured result of generate_content.
type GenerateResponse struct {
	SessionID  string `json:"session_id" jsonschema_description:"Checkpointed session ID, usable with resume"`
	Status     string `json:"status" jsonschema_description:"Terminal session status"`
	Output     string `json:"output" jsonschema_description:"Final content or an explanation of why none was produced"`
	OutputPath string `json:"output_path,omitempty" jsonschema_description:"Where the content was saved"`
	Truncated  bool   `json:"truncated" jsonschema_description:"The routing limit was reached"`
	Failure    string `json:"failure,omitempty" jsonschema_description:"Failure kind for failed sessions"`
}

// Server wraps a Generator as an MCP server.
type Server struct {
	gen       Generator
	mcpServer *server.MCPServer
}

// NewServer creates the MCP server.
func NewServer(gen Generator, version string) *Server {
	s := &Server{
		gen:       gen,
		mcpServer: server.NewMCPServer("contentcrew", version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s
}

// ServeStdio serves on stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	tool := mcp.NewTool(ToolGenerate,
		mcp.WithDescription("Research a topic on the web and write a social media post or blog article about it."),
		mcp.WithString("request", mcp.Required(), mcp.Description("What to write, e.g. \"Write a blog article about Go generics\"")),
		mcp.WithOutputSchema[GenerateResponse](),
	)
	s.mcpServer.AddTool(tool, mcp.NewStructuredToolHandler(s.handleGenerate))
}

func (s *Server) handleGenerate(ctx context.Context, _ mcp.CallToolRequest, args GenerateArgs) (GenerateResponse, error) {
	if strings.TrimSpace(args.Request) == "" {
		return GenerateResponse{}, fmt.Errorf("request is required")
	}
	outcome, err := s.gen.Generate(ctx, &types.InboundEvent{
		Source:     "mcp",
		SessionKey: "mcp",
		UserID:     "mcp",
		Text:       args.Request,
	})
	if outcome == nil {
		return GenerateResponse{}, fmt.Errorf("generate content: %w", err)
	}
	return GenerateResponse{
		SessionID:  string(outcome.SessionID),
		Status:     string(outcome.Status),
		Output:     outcome.Output,
		OutputPath: outcome.OutputPath,
		Truncated:  outcome.Truncated,
		Failure:    string(outcome.Failure),
	}, nil
}
