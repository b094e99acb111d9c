// Package mcpserver exposes a running shelf connection as an MCP tool
// surface: get/set/keys/append/pop, each a thin wrapper over the same
// internal/client convenience methods the CLI commands use. This is
// additive surface, not required by anything in the wire protocol.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ohler55/ojg/oj"

	"github.com/shelfdb/shelf/internal/client"
)

// New builds an MCP server whose tools drive c.
func New(c *client.Client) *server.MCPServer {
	s := server.NewMCPServer("shelf", "1.0.0")

	s.AddTool(mcp.NewTool("get",
		mcp.WithDescription("Read the value stored at a path. Omit keys for the root."),
		mcp.WithString("keys", mcp.Description("space-separated path segments")),
	), handleGet(c))

	s.AddTool(mcp.NewTool("set",
		mcp.WithDescription("Replace the subtree at a path with a JSON-encoded value."),
		mcp.WithString("keys", mcp.Description("space-separated path segments")),
		mcp.WithString("value", mcp.Required(), mcp.Description("JSON-encoded replacement value")),
	), handleSet(c))

	s.AddTool(mcp.NewTool("keys",
		mcp.WithDescription("List the sorted keys of the mapping at a path."),
		mcp.WithString("keys", mcp.Description("space-separated path segments")),
	), handleKeys(c))

	s.AddTool(mcp.NewTool("append",
		mcp.WithDescription("Append one or more values to the sequence at a path."),
		mcp.WithString("keys", mcp.Required(), mcp.Description("space-separated path segments")),
		mcp.WithString("values", mcp.Required(), mcp.Description("space-separated values to append")),
	), handleAppend(c))

	s.AddTool(mcp.NewTool("pop",
		mcp.WithDescription("Return and remove the value at a path."),
		mcp.WithString("keys", mcp.Description("space-separated path segments")),
	), handlePop(c))

	return s
}

// ServeStdio runs s over stdio until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func pathArg(request mcp.CallToolRequest) []string {
	raw := request.GetString("keys", "")
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}

func handleGet(c *client.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		v, err := c.Get(pathArg(request)...)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%v", v)), nil
	}
}

func handleSet(c *client.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw := request.GetString("value", "")
		if raw == "" {
			return mcp.NewToolResultError("value is required"), nil
		}
		value, err := oj.ParseString(raw)
		if err != nil {
			return mcp.NewToolResultError("value is not valid JSON: " + err.Error()), nil
		}
		if err := c.Set(pathArg(request), value); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("ok"), nil
	}
}

func handleKeys(c *client.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		keys, err := c.Keys(pathArg(request)...)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(strings.Join(keys, "\n")), nil
	}
}

func handleAppend(c *client.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		values := strings.Fields(request.GetString("values", ""))
		if len(values) == 0 {
			return mcp.NewToolResultError("values is required"), nil
		}
		if err := c.Append(pathArg(request), values...); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("ok"), nil
	}
}

func handlePop(c *client.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := c.Pop(pathArg(request)...)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}
