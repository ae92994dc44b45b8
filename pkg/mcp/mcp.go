// Package mcp defines an MCP adapter contract: given a connected MCP
// client, list its tools once and register each into a
// toolregistry.Registry as "{server}__{tool}", delegating execution back
// to the client's call_tool. The contract is specified as plain Go
// interfaces rather than tied to a specific wire implementation.
package mcp

import (
	"context"
	"fmt"

	"github.com/nstogner/agentcore/pkg/toolregistry"
)

// ToolSpec describes one tool exposed by an MCP server.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Client is the minimal surface an MCP transport implementation must
// provide for RegisterServer to wire it into a Registry.
type Client interface {
	// ListTools returns every tool the server currently exposes.
	ListTools(ctx context.Context) ([]ToolSpec, error)

	// CallTool invokes name with arguments and returns its textual result.
	CallTool(ctx context.Context, name string, arguments map[string]any) (string, error)
}

// RegisterServer calls client.ListTools once and registers each result
// into registry as "{server}__{tool}". Each registered tool's handler is
// tagged with source "mcp" via Registry.SetSource, the same tagging
// applied to native and skill-provided tools.
func RegisterServer(ctx context.Context, registry *toolregistry.Registry, server string, client Client) error {
	tools, err := client.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("mcp: listing tools from %q: %w", server, err)
	}

	for _, spec := range tools {
		qualified := server + "__" + spec.Name
		toolName := spec.Name // capture for the closure
		handler := func(ctx context.Context, args map[string]any) (string, error) {
			return client.CallTool(ctx, toolName, args)
		}
		if err := registry.Register(qualified, spec.Description, spec.Parameters, handler, ""); err != nil {
			return fmt.Errorf("mcp: registering %q: %w", qualified, err)
		}
		if err := registry.SetSource(qualified, "mcp"); err != nil {
			return fmt.Errorf("mcp: tagging %q: %w", qualified, err)
		}
	}
	return nil
}
