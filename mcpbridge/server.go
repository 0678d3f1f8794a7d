// Package mcpbridge exposes the read-only slice of the tool registry
// as an MCP stdio server, so external agent clients can query business
// data without going through the chat surface. Confirmation-gated
// tools are excluded: MCP has no confirmation channel, so nothing
// state-changing is reachable from here.
package mcpbridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/donhauser/atlas-agent/binding"
	"github.com/donhauser/atlas-agent/tools"
)

// Bridge builds the MCP server over a tool registry and executor.
type Bridge struct {
	registry *tools.Registry
	executor *tools.Executor
	logger   *slog.Logger
}

// NewBridge creates a bridge.
func NewBridge(registry *tools.Registry, executor *tools.Executor, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{registry: registry, executor: executor, logger: logger}
}

// Server builds the MCP server with every read-only tool registered.
func (b *Bridge) Server(name, version string) *server.MCPServer {
	srv := server.NewMCPServer(name, version, server.WithToolCapabilities(false))
	serverTools := b.ServerTools()
	srv.AddTools(serverTools...)
	b.logger.Info("mcp bridge ready", "tools", len(serverTools))
	return srv
}

// ServeStdio runs the MCP server over stdin/stdout until EOF.
func (b *Bridge) ServeStdio(name, version string) error {
	return server.ServeStdio(b.Server(name, version))
}

// ServerTools converts the registry's read-only tools into MCP server
// tools. Tools with RequiresConfirmation are skipped.
func (b *Bridge) ServerTools() []server.ServerTool {
	var out []server.ServerTool
	for _, id := range b.registry.IDs() {
		def, ok := b.registry.Get(id)
		if !ok || def.RequiresConfirmation {
			continue
		}
		out = append(out, server.ServerTool{
			Tool:    b.buildTool(def),
			Handler: b.buildHandler(def),
		})
	}
	return out
}

func (b *Bridge) buildTool(def *tools.Definition) mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(def.Description),
		mcp.WithTitleAnnotation(def.Name),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	}
	for _, p := range def.Parameters {
		opts = append(opts, parameterOption(p))
	}
	return mcp.NewTool(def.ID, opts...)
}

func parameterOption(p tools.Parameter) mcp.ToolOption {
	var propOpts []mcp.PropertyOption
	propOpts = append(propOpts, mcp.Description(p.Description))
	if p.Required {
		propOpts = append(propOpts, mcp.Required())
	}
	switch p.Type {
	case "number", "integer":
		return mcp.WithNumber(p.Name, propOpts...)
	case "boolean":
		return mcp.WithBoolean(p.Name, propOpts...)
	case "object":
		return mcp.WithObject(p.Name, propOpts...)
	case "array":
		return mcp.WithArray(p.Name, propOpts...)
	default:
		return mcp.WithString(p.Name, propOpts...)
	}
}

func (b *Bridge) buildHandler(def *tools.Definition) server.ToolHandlerFunc {
	toolID := def.ID
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params := request.GetArguments()
		b.logger.Info("mcp tool called", "tool", toolID)

		result := b.executor.Execute(ctx, toolID, params, binding.Context{})
		if !result.Success() {
			return mcp.NewToolResultError(
				fmt.Sprintf("%s: %s", result.Error.Code, result.Error.Message)), nil
		}
		return mcp.NewToolResultText(result.String()), nil
	}
}
