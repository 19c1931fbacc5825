package mcphost

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/MrWong99/fledge/internal/mcp"
)

// BuiltinTool represents a tool implemented as a Go function that runs in-process.
//
// Built-in tools bypass MCP protocol overhead: Invoke calls the Handler
// directly without any network or subprocess round-trip. They are otherwise
// identical to external tools — subject to the same argument validation,
// duplicate policy, and metrics.
type BuiltinTool struct {
	// Name is the tool's unique identifier.
	Name string

	// Description is the summary presented to the LLM.
	Description string

	// InputSchema is the JSON Schema for the tool's arguments. May be nil,
	// in which case any arguments validate.
	InputSchema *jsonschema.Schema

	// Citation is attached to the tool's descriptor for attribution.
	// Tool is filled in automatically.
	Citation mcp.Citation

	// Handler is the function invoked for this tool. Returning a non-nil
	// error produces a tool-error failure on the result.
	Handler func(ctx context.Context, args map[string]any) (string, error)
}

// RegisterBuiltin registers a built-in tool that is called in-process.
// Name collisions with tools from external servers follow the host's
// duplicate policy; re-registering the same builtin name replaces it.
//
// RegisterBuiltin is safe for concurrent use.
func (h *Host) RegisterBuiltin(tool BuiltinTool) error {
	if tool.Name == "" {
		return fmt.Errorf("mcp host: builtin tool must have a non-empty name")
	}
	if tool.Handler == nil {
		return fmt.Errorf("mcp host: builtin tool %q must have a non-nil handler", tool.Name)
	}

	citation := tool.Citation
	citation.Tool = tool.Name
	if citation.Origin == "" {
		citation.Origin = noCitation
	}
	if citation.Implementation == "" {
		citation.Implementation = noCitation
	}

	desc := mcp.ToolDescriptor{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: tool.InputSchema,
		Server:      builtinServerName,
		Citation:    citation,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// The registry replaces per server, so re-register the full builtin set
	// with the new tool merged in. Descriptors for already-registered
	// builtins are taken from the registry to keep their enumeration order.
	descs := make([]mcp.ToolDescriptor, 0, len(h.builtins)+1)
	for name := range h.builtins {
		if name == tool.Name {
			continue
		}
		if existing, ok := h.registry.Lookup(name); ok {
			descs = append(descs, existing)
		}
	}
	descs = append(descs, desc)

	if err := h.registry.ReplaceServer(builtinServerName, descs); err != nil {
		return err
	}
	h.builtins[tool.Name] = tool
	return nil
}

// invokeBuiltin calls the in-process handler for a builtin tool.
func (h *Host) invokeBuiltin(ctx context.Context, req mcp.ToolCallRequest) mcp.ToolCallResult {
	result := mcp.ToolCallResult{ID: req.ID, Name: req.Name}

	h.mu.RLock()
	tool, ok := h.builtins[req.Name]
	h.mu.RUnlock()

	if !ok {
		result.Failure = &mcp.Failure{
			Kind:    mcp.FailureUnknownTool,
			Message: fmt.Sprintf("no builtin tool named %q", req.Name),
		}
		return result
	}

	output, err := tool.Handler(ctx, req.Arguments)
	if err != nil {
		result.Failure = &mcp.Failure{
			Kind:    mcp.FailureToolError,
			Message: err.Error(),
		}
		return result
	}
	result.Content = output
	return result
}
