// Package mcphost provides a concrete implementation of the [mcp.Host] interface.
//
// It connects to MCP servers via stdio or streamable-HTTP transports using the
// official MCP Go SDK (github.com/modelcontextprotocol/go-sdk), maintains a
// concurrent-safe in-memory tool registry, validates tool arguments against
// their published JSON Schemas, and reads per-server citation resources for
// attribution in chat output.
//
// Typical usage:
//
//	h := mcphost.New()
//
//	// Register an external MCP server.
//	err := h.RegisterServer(ctx, mcp.ServerConfig{
//	    Name:      "weather",
//	    Transport: mcp.TransportStdio,
//	    Command:   "/usr/local/bin/mcp-weather-server",
//	})
//
//	// Or register a built-in Go function.
//	h.RegisterBuiltin(mcphost.BuiltinTool{
//	    Name:    "multiply",
//	    Handler: multiply,
//	})
//
//	// Enumerate tools for the model.
//	tools := h.Tools()
//
//	// Invoke a tool on behalf of the chat loop.
//	result := h.Invoke(ctx, mcp.ToolCallRequest{ID: "1", Name: "multiply", Arguments: args})
//
//	// Shut down when done.
//	h.Close()
package mcphost

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/fledge/internal/mcp"
	"github.com/MrWong99/fledge/internal/observe"
)

// builtinServerName is the pseudo server name used for in-process tools.
const builtinServerName = "builtin"

// Citation resource URIs published by tool servers. Servers that publish
// nothing degrade to placeholder text.
const (
	resourceServerName     = "name://"
	resourceCitationOrigin = "citation://origin/"
	resourceCitationMCP    = "citation://mcp/"
)

const noCitation = "No citation available"

// Host is a concrete implementation of [mcp.Host].
//
// It manages connections to one or more MCP servers (external via stdio /
// streamable-HTTP, or internal Go functions), validates arguments before
// dispatch, and reports failed invocations as data on the
// [mcp.ToolCallResult] so the chat loop can surface them to the model.
//
// The zero value is NOT usable; create instances with [New].
type Host struct {
	mu       sync.RWMutex
	sessions map[string]*mcpsdk.ClientSession // key: server name
	builtins map[string]BuiltinTool           // key: tool name

	// client is reused across all server connections. The official SDK allows
	// a single Client to manage multiple sessions concurrently.
	client *mcpsdk.Client

	registry *Registry
	schemas  *schemaCache
	metrics  *observe.Metrics
	logger   *slog.Logger

	policy mcp.DuplicatePolicy
}

// Compile-time check: Host must implement mcp.Host.
var _ mcp.Host = (*Host)(nil)

// Option customises a [Host] created by [New].
type Option func(*Host)

// WithDuplicatePolicy sets how tool name collisions across servers are
// handled. Default: [mcp.DuplicateReject].
func WithDuplicatePolicy(p mcp.DuplicatePolicy) Option {
	return func(h *Host) { h.policy = p }
}

// WithMetrics sets the metrics instance to record to.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Host) { h.metrics = m }
}

// WithLogger sets the structured logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// New creates and returns a ready-to-use Host.
func New(opts ...Option) *Host {
	h := &Host{
		sessions: make(map[string]*mcpsdk.ClientSession),
		builtins: make(map[string]BuiltinTool),
		schemas:  newSchemaCache(),
		policy:   mcp.DuplicateReject,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.registry = NewRegistry(h.policy, h.logger)
	h.client = mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "fledge-mcphost", Version: "1.0.0"},
		nil,
	)
	return h
}

// RegisterServer connects to the MCP server described by cfg and imports its
// tool catalogue into the host. If a server with the same Name is already
// registered, the old connection is closed and replaced.
//
// For [mcp.TransportStdio] transport: cfg.Command is split on spaces into
// executable + args; cfg.Env is passed as additional environment variables.
//
// For [mcp.TransportStreamableHTTP] transport: cfg.URL is the endpoint
// address; cfg.BearerToken, when set, is sent as an Authorization header.
//
// Returns an error if the transport cannot be established, the initial tool
// listing fails, or a discovered tool collides with another server's under
// the [mcp.DuplicateReject] policy.
func (h *Host) RegisterServer(ctx context.Context, cfg mcp.ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcp host: server config must have a non-empty name")
	}
	if cfg.Name == builtinServerName {
		return fmt.Errorf("mcp host: server name %q is reserved", builtinServerName)
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("mcp host: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport

	switch cfg.Transport {
	case mcp.TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcp host: stdio server %q requires a non-empty Command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		if len(cfg.Env) > 0 {
			cmd.Env = mergedEnv(cfg.Env)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case mcp.TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcp host: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		st := &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
		if cfg.BearerToken != "" {
			st.HTTPClient = &http.Client{
				Transport: &bearerRoundTripper{token: cfg.BearerToken},
			}
		}
		transport = st
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp host: failed to connect to server %q: %w", cfg.Name, err)
	}

	// Discover tools using the iterator.
	var discoveredTools []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcp host: failed to list tools for server %q: %w", cfg.Name, err)
		}
		discoveredTools = append(discoveredTools, *tool)
	}

	citation := h.readServerCitation(ctx, session, cfg.Name)

	descs := make([]mcp.ToolDescriptor, 0, len(discoveredTools))
	for _, t := range discoveredTools {
		c := citation
		c.Tool = t.Name
		descs = append(descs, mcp.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
			Server:      cfg.Name,
			Citation:    c,
		})
	}

	if err := h.registry.ReplaceServer(cfg.Name, descs); err != nil {
		_ = session.Close()
		return err
	}

	h.mu.Lock()
	if old, ok := h.sessions[cfg.Name]; ok {
		_ = old.Close()
	}
	h.sessions[cfg.Name] = session
	h.mu.Unlock()

	h.logger.Info("registered MCP server",
		"server", cfg.Name, "transport", string(cfg.Transport), "tools", len(descs))
	return nil
}

// readServerCitation reads the server's citation resources. Missing or
// unreadable resources degrade to placeholder text, never fail registration.
func (h *Host) readServerCitation(ctx context.Context, session *mcpsdk.ClientSession, server string) mcp.Citation {
	c := mcp.Citation{Origin: noCitation, Implementation: noCitation}

	if origin, ok := h.readTextResource(ctx, session, resourceCitationOrigin+server); ok {
		c.Origin = origin
	}
	if impl, ok := h.readTextResource(ctx, session, resourceCitationMCP+server); ok {
		c.Implementation = impl
	} else if name, ok := h.readTextResource(ctx, session, resourceServerName); ok {
		c.Implementation = name
	}
	return c
}

// readTextResource reads a resource and concatenates its text contents.
// Returns false when the resource is missing, unreadable or empty.
func (h *Host) readTextResource(ctx context.Context, session *mcpsdk.ClientSession, uri string) (string, bool) {
	res, err := session.ReadResource(ctx, &mcpsdk.ReadResourceParams{URI: uri})
	if err != nil {
		h.logger.Debug("citation resource unavailable", "uri", uri, "error", err)
		return "", false
	}
	var sb strings.Builder
	for _, c := range res.Contents {
		sb.WriteString(c.Text)
	}
	text := strings.TrimSpace(sb.String())
	return text, text != ""
}

// RemoveServer disconnects the named server and drops its tools from the
// catalogue. Removing an unknown server is a no-op.
func (h *Host) RemoveServer(name string) error {
	h.mu.Lock()
	session, ok := h.sessions[name]
	delete(h.sessions, name)
	h.mu.Unlock()

	h.registry.RemoveServer(name)

	if !ok {
		return nil
	}
	if err := session.Close(); err != nil {
		return fmt.Errorf("mcp host: error closing server %q: %w", name, err)
	}
	return nil
}

// Tools returns all registered tools in first-registration order.
func (h *Host) Tools() []mcp.ToolDescriptor {
	return h.registry.Tools()
}

// Lookup returns the descriptor for the named tool.
func (h *Host) Lookup(name string) (mcp.ToolDescriptor, bool) {
	return h.registry.Lookup(name)
}

// Invoke runs a single tool call and returns its outcome. Unknown tools,
// invalid arguments, transport failures and server-reported errors are all
// returned as [mcp.Failure] values on the result, never as Go errors, so the
// chat loop can feed them back to the model.
func (h *Host) Invoke(ctx context.Context, req mcp.ToolCallRequest) mcp.ToolCallResult {
	ctx, span := observe.StartSpan(ctx, "mcp.tool."+req.Name)
	defer span.End()

	result := mcp.ToolCallResult{ID: req.ID, Name: req.Name}

	desc, ok := h.registry.Lookup(req.Name)
	if !ok {
		result.Failure = &mcp.Failure{
			Kind:    mcp.FailureUnknownTool,
			Message: fmt.Sprintf("no tool named %q is registered", req.Name),
		}
		h.metrics.RecordToolCall(ctx, req.Name, "unknown_tool")
		return result
	}

	if err := h.schemas.validate(desc.InputSchema, req.Arguments); err != nil {
		result.Failure = &mcp.Failure{
			Kind:    mcp.FailureInvalidArguments,
			Message: err.Error(),
		}
		h.metrics.RecordToolCall(ctx, req.Name, "invalid_arguments")
		return result
	}

	start := time.Now()

	if desc.Server == builtinServerName {
		result = h.invokeBuiltin(ctx, req)
	} else {
		result = h.invokeMCPTool(ctx, desc, req)
	}

	elapsed := time.Since(start)
	h.metrics.ToolExecutionDuration.Record(ctx, elapsed.Seconds())

	status := "ok"
	if result.Failure != nil {
		status = string(result.Failure.Kind)
		h.logger.Warn("tool call failed",
			"tool", req.Name, "kind", status, "duration", elapsed)
	} else {
		h.logger.Debug("tool call succeeded", "tool", req.Name, "duration", elapsed)
	}
	h.metrics.RecordToolCall(ctx, req.Name, status)
	return result
}

// invokeMCPTool routes the call to the appropriate server session.
func (h *Host) invokeMCPTool(ctx context.Context, desc mcp.ToolDescriptor, req mcp.ToolCallRequest) mcp.ToolCallResult {
	result := mcp.ToolCallResult{ID: req.ID, Name: req.Name}

	h.mu.RLock()
	session, ok := h.sessions[desc.Server]
	h.mu.RUnlock()

	if !ok {
		result.Failure = &mcp.Failure{
			Kind:    mcp.FailureServerUnreachable,
			Message: fmt.Sprintf("server %q for tool %q is not connected", desc.Server, req.Name),
		}
		return result
	}

	callResult, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      req.Name,
		Arguments: req.Arguments,
	})
	if err != nil {
		result.Failure = &mcp.Failure{
			Kind:    mcp.FailureServerUnreachable,
			Message: fmt.Sprintf("call to server %q failed: %v", desc.Server, err),
		}
		return result
	}

	// Concatenate all text content from the result.
	var sb strings.Builder
	for _, c := range callResult.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}

	if callResult.IsError {
		result.Failure = &mcp.Failure{
			Kind:    mcp.FailureToolError,
			Message: sb.String(),
		}
		return result
	}

	result.Content = sb.String()
	return result
}

// Close shuts down all server connections and releases associated resources.
// After Close returns the Host must not be used again.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for name, session := range h.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcp host: error closing server %q: %w", name, err)
		}
		h.registry.RemoveServer(name)
		delete(h.sessions, name)
	}
	return firstErr
}

// mergedEnv extends the current process environment with extra variables, so
// spawned servers keep PATH, HOME and the rest of the inherited environment.
func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" → ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}

// bearerRoundTripper adds an Authorization header to every request.
type bearerRoundTripper struct {
	token string
}

func (rt *bearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+rt.token)
	return http.DefaultTransport.RoundTrip(clone)
}
