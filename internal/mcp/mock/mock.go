// Package mock provides an in-memory test double for the MCP [mcp.Host] interface.
//
// [Host] records every method call for assertion in tests and exposes exported
// fields that control what the mock returns. It is safe for concurrent use via
// an internal [sync.Mutex].
//
// Typical usage:
//
//	h := &mock.Host{}
//	h.ToolsResult = []mcp.ToolDescriptor{{Name: "multiply"}}
//	h.InvokeResults = map[string]mcp.ToolCallResult{
//	    "multiply": {Content: "105"},
//	}
//
//	// inject h into the system under test …
//
//	if got := h.CallCount("Invoke"); got != 1 {
//	    t.Errorf("expected 1 Invoke call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/fledge/internal/mcp"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Host is a configurable test double for [mcp.Host].
// All exported *Err fields default to nil (success); all exported *Result
// fields default to nil / zero values.
type Host struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// ──── RegisterServer / RemoveServer ────────────────────────────────────

	// RegisterServerErr is returned by [Host.RegisterServer] when non-nil.
	RegisterServerErr error

	// RemoveServerErr is returned by [Host.RemoveServer] when non-nil.
	RemoveServerErr error

	// ──── Tools / Lookup ───────────────────────────────────────────────────

	// ToolsResult is returned by [Host.Tools] and searched by [Host.Lookup].
	// When nil, Tools returns an empty non-nil slice.
	ToolsResult []mcp.ToolDescriptor

	// ──── Invoke ───────────────────────────────────────────────────────────

	// InvokeResults maps tool names to canned results. ID and Name on the
	// canned result are overwritten with the request's values.
	InvokeResults map[string]mcp.ToolCallResult

	// InvokeFn, when non-nil, takes precedence over InvokeResults and
	// computes the result per request.
	InvokeFn func(ctx context.Context, req mcp.ToolCallRequest) mcp.ToolCallResult

	// ──── Close ────────────────────────────────────────────────────────────

	// CloseErr is returned by [Host.Close] when non-nil.
	CloseErr error
}

// Calls returns a copy of all recorded method invocations.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Call, len(h.calls))
	copy(out, h.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (h *Host) CallCount(method string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (h *Host) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = nil
}

// RegisterServer implements [mcp.Host].
func (h *Host) RegisterServer(_ context.Context, cfg mcp.ServerConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Method: "RegisterServer", Args: []any{cfg}})
	return h.RegisterServerErr
}

// RemoveServer implements [mcp.Host].
func (h *Host) RemoveServer(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Method: "RemoveServer", Args: []any{name}})
	return h.RemoveServerErr
}

// Tools implements [mcp.Host].
func (h *Host) Tools() []mcp.ToolDescriptor {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Method: "Tools", Args: nil})
	if h.ToolsResult == nil {
		return []mcp.ToolDescriptor{}
	}
	out := make([]mcp.ToolDescriptor, len(h.ToolsResult))
	copy(out, h.ToolsResult)
	return out
}

// Lookup implements [mcp.Host]. It searches ToolsResult by name.
func (h *Host) Lookup(name string) (mcp.ToolDescriptor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Method: "Lookup", Args: []any{name}})
	for _, d := range h.ToolsResult {
		if d.Name == name {
			return d, true
		}
	}
	return mcp.ToolDescriptor{}, false
}

// Invoke implements [mcp.Host]. Unknown tool names (no InvokeFn, no entry in
// InvokeResults) produce an unknown-tool failure, mirroring the real host.
func (h *Host) Invoke(ctx context.Context, req mcp.ToolCallRequest) mcp.ToolCallResult {
	h.mu.Lock()
	h.calls = append(h.calls, Call{Method: "Invoke", Args: []any{req}})
	fn := h.InvokeFn
	canned, ok := h.InvokeResults[req.Name]
	h.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if !ok {
		return mcp.ToolCallResult{
			ID:   req.ID,
			Name: req.Name,
			Failure: &mcp.Failure{
				Kind:    mcp.FailureUnknownTool,
				Message: "no tool named " + req.Name,
			},
		}
	}
	canned.ID = req.ID
	canned.Name = req.Name
	return canned
}

// Close implements [mcp.Host].
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Method: "Close", Args: nil})
	return h.CloseErr
}

// Ensure Host satisfies the interface at compile time.
var _ mcp.Host = (*Host)(nil)
