package mcphost

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/MrWong99/fledge/internal/mcp"
)

// desc returns a minimal descriptor for the given tool and server.
func desc(name, server string) mcp.ToolDescriptor {
	return mcp.ToolDescriptor{
		Name:        name,
		Description: "test tool",
		Server:      server,
	}
}

// toolNames extracts the names of all descriptors in order.
func toolNames(descs []mcp.ToolDescriptor) []string {
	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	return names
}

// assertOrder fails the test when the registry's enumeration order differs
// from want.
func assertOrder(t *testing.T, r *Registry, want ...string) {
	t.Helper()
	got := toolNames(r.Tools())
	if len(got) != len(want) {
		t.Fatalf("Tools() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tools() = %v, want %v", got, want)
		}
	}
}

// TestReplaceServer_RegistersTools verifies basic registration and lookup.
func TestReplaceServer_RegistersTools(t *testing.T) {
	t.Parallel()
	r := NewRegistry(mcp.DuplicateReject, slog.Default())

	err := r.ReplaceServer("alpha", []mcp.ToolDescriptor{desc("one", "alpha"), desc("two", "alpha")})
	if err != nil {
		t.Fatalf("ReplaceServer: %v", err)
	}

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	if _, ok := r.Lookup("one"); !ok {
		t.Error("Lookup(one) = not found")
	}
	assertOrder(t, r, "one", "two")
}

// TestReplaceServer_Idempotent verifies that re-registering the same
// catalogue leaves the registry unchanged.
func TestReplaceServer_Idempotent(t *testing.T) {
	t.Parallel()
	r := NewRegistry(mcp.DuplicateReject, slog.Default())

	catalogue := []mcp.ToolDescriptor{desc("one", "alpha"), desc("two", "alpha")}
	if err := r.ReplaceServer("alpha", catalogue); err != nil {
		t.Fatalf("first ReplaceServer: %v", err)
	}
	if err := r.ReplaceServer("alpha", catalogue); err != nil {
		t.Fatalf("second ReplaceServer: %v", err)
	}

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	assertOrder(t, r, "one", "two")
}

// TestReplaceServer_DuplicateReject verifies that a cross-server name
// collision fails the whole replacement and leaves the registry untouched.
func TestReplaceServer_DuplicateReject(t *testing.T) {
	t.Parallel()
	r := NewRegistry(mcp.DuplicateReject, slog.Default())

	if err := r.ReplaceServer("alpha", []mcp.ToolDescriptor{desc("shared", "alpha")}); err != nil {
		t.Fatalf("ReplaceServer(alpha): %v", err)
	}

	err := r.ReplaceServer("beta", []mcp.ToolDescriptor{desc("fresh", "beta"), desc("shared", "beta")})
	if !errors.Is(err, mcp.ErrDuplicateTool) {
		t.Fatalf("ReplaceServer(beta) error = %v, want ErrDuplicateTool", err)
	}

	// Nothing from beta may have been registered.
	if _, ok := r.Lookup("fresh"); ok {
		t.Error("rejected replacement still registered tool \"fresh\"")
	}
	got, _ := r.Lookup("shared")
	if got.Server != "alpha" {
		t.Errorf("shared tool server = %q, want %q", got.Server, "alpha")
	}
}

// TestReplaceServer_DuplicateOverride verifies last-write-wins under the
// override policy.
func TestReplaceServer_DuplicateOverride(t *testing.T) {
	t.Parallel()
	r := NewRegistry(mcp.DuplicateOverride, slog.Default())

	if err := r.ReplaceServer("alpha", []mcp.ToolDescriptor{desc("shared", "alpha")}); err != nil {
		t.Fatalf("ReplaceServer(alpha): %v", err)
	}
	if err := r.ReplaceServer("beta", []mcp.ToolDescriptor{desc("shared", "beta")}); err != nil {
		t.Fatalf("ReplaceServer(beta): %v", err)
	}

	got, ok := r.Lookup("shared")
	if !ok {
		t.Fatal("Lookup(shared) = not found")
	}
	if got.Server != "beta" {
		t.Errorf("shared tool server = %q, want %q", got.Server, "beta")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

// TestReplaceServer_DropsStaleTools verifies that tools absent from a
// refreshed catalogue are removed.
func TestReplaceServer_DropsStaleTools(t *testing.T) {
	t.Parallel()
	r := NewRegistry(mcp.DuplicateReject, slog.Default())

	if err := r.ReplaceServer("alpha", []mcp.ToolDescriptor{desc("keep", "alpha"), desc("drop", "alpha")}); err != nil {
		t.Fatalf("first ReplaceServer: %v", err)
	}
	if err := r.ReplaceServer("alpha", []mcp.ToolDescriptor{desc("keep", "alpha")}); err != nil {
		t.Fatalf("second ReplaceServer: %v", err)
	}

	if _, ok := r.Lookup("drop"); ok {
		t.Error("stale tool \"drop\" still registered")
	}
	assertOrder(t, r, "keep")
}

// TestTools_OrderAcrossServers verifies first-registration order is kept
// across servers and across refreshes.
func TestTools_OrderAcrossServers(t *testing.T) {
	t.Parallel()
	r := NewRegistry(mcp.DuplicateReject, slog.Default())

	if err := r.ReplaceServer("alpha", []mcp.ToolDescriptor{desc("a1", "alpha")}); err != nil {
		t.Fatalf("ReplaceServer(alpha): %v", err)
	}
	if err := r.ReplaceServer("beta", []mcp.ToolDescriptor{desc("b1", "beta")}); err != nil {
		t.Fatalf("ReplaceServer(beta): %v", err)
	}
	// Refresh alpha with one extra tool. a1 keeps its slot, a2 appends.
	if err := r.ReplaceServer("alpha", []mcp.ToolDescriptor{desc("a1", "alpha"), desc("a2", "alpha")}); err != nil {
		t.Fatalf("refresh ReplaceServer(alpha): %v", err)
	}

	assertOrder(t, r, "a1", "b1", "a2")
}

// TestRemoveServer verifies that removal drops all of a server's tools and
// that removing an unknown server is a no-op.
func TestRemoveServer(t *testing.T) {
	t.Parallel()
	r := NewRegistry(mcp.DuplicateReject, slog.Default())

	if err := r.ReplaceServer("alpha", []mcp.ToolDescriptor{desc("a1", "alpha")}); err != nil {
		t.Fatalf("ReplaceServer: %v", err)
	}
	r.RemoveServer("alpha")
	if r.Len() != 0 {
		t.Errorf("Len() after remove = %d, want 0", r.Len())
	}

	r.RemoveServer("ghost") // must not panic
}

// TestNewRegistry_InvalidPolicyDefaultsToReject verifies the policy fallback.
func TestNewRegistry_InvalidPolicyDefaultsToReject(t *testing.T) {
	t.Parallel()
	r := NewRegistry(mcp.DuplicatePolicy("bogus"), slog.Default())

	if err := r.ReplaceServer("alpha", []mcp.ToolDescriptor{desc("shared", "alpha")}); err != nil {
		t.Fatalf("ReplaceServer(alpha): %v", err)
	}
	err := r.ReplaceServer("beta", []mcp.ToolDescriptor{desc("shared", "beta")})
	if !errors.Is(err, mcp.ErrDuplicateTool) {
		t.Errorf("error = %v, want ErrDuplicateTool", err)
	}
}
