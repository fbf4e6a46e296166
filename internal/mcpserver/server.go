package mcpserver

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/JamesPrial/mysql-mcp/internal/dispatch"
)

const (
	ServerName    = "mysql-mcp"
	ServerVersion = "1.0.0"
)

// NewServer creates an MCP server with every tool routed to d.
func NewServer(d *dispatch.Dispatcher) (*server.MCPServer, error) {
	if d == nil {
		return nil, errors.New("mcpserver: nil dispatcher")
	}

	s := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(true),
	)

	for _, tool := range Tools() {
		s.AddTool(tool, Handler(d, tool.Name))
	}

	return s, nil
}

// Handler adapts one dispatcher operation to an MCP tool handler.
//
// Failures are reported as tool results with IsError set, never as
// protocol errors, so the client sees the message.
func Handler(d *dispatch.Dispatcher, operation string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := d.Dispatch(ctx, operation, request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(result.Text), nil
	}
}
