// Package mcp defines the interface for a Model Context Protocol (MCP) host.
//
// The MCP host manages connections to one or more MCP servers, maintains a
// catalogue of available tools, validates arguments, and executes tool calls
// on behalf of the chat loop. Failed invocations are reported as
// [ToolCallResult] values carrying a [Failure], never as Go errors, so that
// the model can see and react to them.
//
// Lifecycle:
//
//  1. Call [Host.RegisterServer] for each MCP server to connect to.
//  2. Use [Host.Tools] to enumerate registered tools for the model.
//  3. Use [Host.Invoke] to run tools on behalf of the chat loop.
//  4. Call [Host.Close] to release all connections and background goroutines.
//
// All methods must be safe for concurrent use.
package mcp

import (
	"context"
	"errors"
)

// ErrDuplicateTool is returned by RegisterServer when a newly discovered tool
// name collides with a tool from a different server and the host's policy is
// [DuplicateReject].
var ErrDuplicateTool = errors.New("mcp: duplicate tool name")

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name is the human-readable identifier for this server.
	// Must be unique within a single [Host]. Used in log messages, citations
	// and errors.
	Name string

	// Transport specifies the connection mechanism.
	Transport Transport

	// Command is the executable path (and optional arguments) used when
	// Transport is [TransportStdio].
	// Example: "/usr/local/bin/mcp-weather --config /etc/weather.json"
	// Ignored for streamable-http transport.
	Command string

	// URL is the endpoint address used when Transport is
	// [TransportStreamableHTTP].
	// Example: "https://tools.example.com/mcp"
	// Ignored for stdio transport.
	URL string

	// Env holds additional environment variables injected into the server
	// process when Transport is [TransportStdio]. May be nil.
	Env map[string]string

	// BearerToken, when non-empty, is sent as an Authorization header on
	// streamable-http connections.
	BearerToken string
}

// Host manages connections to MCP servers, maintains the tool catalogue and
// routes tool calls.
//
// Implementations must be safe for concurrent use.
type Host interface {
	// RegisterServer connects to the MCP server described by cfg and imports
	// its tool catalogue into the host. If a server with the same Name is
	// already registered it is reconnected / refreshed rather than duplicated.
	//
	// Returns an error if the transport cannot be established, the initial
	// tool listing fails, or a discovered tool name collides with another
	// server's tool under the [DuplicateReject] policy (ErrDuplicateTool).
	RegisterServer(ctx context.Context, cfg ServerConfig) error

	// RemoveServer disconnects the named server and drops its tools from the
	// catalogue. Removing an unknown server is a no-op.
	RemoveServer(name string) error

	// Tools returns all registered tools in first-registration order.
	Tools() []ToolDescriptor

	// Lookup returns the descriptor for the named tool.
	Lookup(name string) (ToolDescriptor, bool)

	// Invoke runs a single tool call and returns its outcome. The result is
	// always usable: unknown tools, invalid arguments, transport failures and
	// server-reported errors are reported via [ToolCallResult.Failure] rather
	// than a Go error, ready to feed back into the conversation.
	//
	// Invoke must be safe to call concurrently for independent requests.
	Invoke(ctx context.Context, req ToolCallRequest) ToolCallResult

	// Close shuts down all server connections and releases associated
	// resources. After Close returns the Host must not be used again.
	Close() error
}
