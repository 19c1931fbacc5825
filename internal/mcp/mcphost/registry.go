package mcphost

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/fledge/internal/mcp"
)

// Registry is the concurrent-safe tool catalogue shared by all server
// connections of a [Host].
//
// Tools are keyed by name, which must be unique across servers. Enumeration
// order is first-registration order: a tool re-discovered during a server
// refresh keeps its original position, new tools append at the end.
type Registry struct {
	mu      sync.RWMutex
	policy  mcp.DuplicatePolicy
	logger  *slog.Logger
	entries map[string]mcp.ToolDescriptor
	order   []string
}

// NewRegistry creates an empty registry with the given duplicate policy.
// An invalid policy defaults to [mcp.DuplicateReject].
func NewRegistry(policy mcp.DuplicatePolicy, logger *slog.Logger) *Registry {
	if !policy.IsValid() {
		policy = mcp.DuplicateReject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		policy:  policy,
		logger:  logger,
		entries: make(map[string]mcp.ToolDescriptor),
	}
}

// ReplaceServer atomically replaces all tools belonging to server with descs.
// It is the single mutation path for server (re-)registration, so calling it
// twice with the same catalogue is a no-op.
//
// Under [mcp.DuplicateReject], a desc whose name is already held by a
// different server fails the whole replacement with [mcp.ErrDuplicateTool]
// and leaves the registry untouched. Under [mcp.DuplicateOverride] the newer
// tool wins and a warning is logged.
func (r *Registry) ReplaceServer(server string, descs []mcp.ToolDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Validate before mutating so a rejected registration has no effect.
	for _, d := range descs {
		existing, ok := r.entries[d.Name]
		if !ok || existing.Server == server {
			continue
		}
		if r.policy == mcp.DuplicateReject {
			return fmt.Errorf("registry: tool %q already registered by server %q: %w",
				d.Name, existing.Server, mcp.ErrDuplicateTool)
		}
		r.logger.Warn("overriding duplicate tool",
			"tool", d.Name, "old_server", existing.Server, "new_server", server)
	}

	incoming := make(map[string]bool, len(descs))
	for _, d := range descs {
		incoming[d.Name] = true
	}

	// Drop tools this server no longer provides.
	for name, e := range r.entries {
		if e.Server == server && !incoming[name] {
			delete(r.entries, name)
			r.removeFromOrder(name)
		}
	}

	for _, d := range descs {
		if _, known := r.entries[d.Name]; !known {
			r.order = append(r.order, d.Name)
		}
		r.entries[d.Name] = d
	}
	return nil
}

// RemoveServer drops every tool belonging to server. Unknown servers are a
// no-op.
func (r *Registry) RemoveServer(server string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, e := range r.entries {
		if e.Server == server {
			delete(r.entries, name)
			r.removeFromOrder(name)
		}
	}
}

// Lookup returns the descriptor for the named tool.
func (r *Registry) Lookup(name string) (mcp.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.entries[name]
	return d, ok
}

// Tools returns all registered descriptors in first-registration order.
func (r *Registry) Tools() []mcp.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]mcp.ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// removeFromOrder deletes name from the enumeration order.
// Callers must hold r.mu.
func (r *Registry) removeFromOrder(name string) {
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
