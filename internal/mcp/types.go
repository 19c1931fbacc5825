package mcp

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// DuplicatePolicy controls what happens when a newly discovered tool carries
// the same name as a tool already registered by a different server.
type DuplicatePolicy string

const (
	// DuplicateReject fails registration of the offending server with
	// ErrDuplicateTool, leaving the existing tool in place.
	DuplicateReject DuplicatePolicy = "reject"

	// DuplicateOverride replaces the existing tool with the newer one and
	// logs a warning.
	DuplicateOverride DuplicatePolicy = "override"
)

// IsValid reports whether p is a recognised policy.
func (p DuplicatePolicy) IsValid() bool {
	return p == DuplicateReject || p == DuplicateOverride
}

// Citation identifies where a tool comes from, for attribution in chat
// output. Tool servers publish this via well-known resource URIs
// (name://, citation://origin/<server>, citation://mcp/<server>); servers
// that publish nothing get placeholder text.
type Citation struct {
	// Tool is the tool name the citation belongs to.
	Tool string

	// Origin describes the upstream work the tool wraps, e.g. a paper or
	// dataset reference.
	Origin string

	// Implementation describes the tool server itself.
	Implementation string
}

// ToolDescriptor is the host's view of a single registered tool.
type ToolDescriptor struct {
	// Name is the tool's unique identifier across all registered servers.
	Name string

	// Description is the human/LLM-readable summary forwarded to the model.
	Description string

	// InputSchema is the JSON Schema for the tool's arguments. May be nil
	// when the server declares none, in which case any arguments validate.
	InputSchema *jsonschema.Schema

	// Server is the name of the MCP server (or "builtin") providing the tool.
	Server string

	// Citation carries the attribution attached to this tool.
	Citation Citation
}

// ToolCallRequest is a single tool invocation requested by the model.
type ToolCallRequest struct {
	// ID is the model-assigned call identifier, echoed back in the result so
	// the conversation can pair requests with responses.
	ID string

	// Name is the tool to invoke.
	Name string

	// Arguments holds the decoded argument object. May be nil for
	// parameter-less tools.
	Arguments map[string]any
}

// FailureKind classifies why a tool invocation produced no usable output.
type FailureKind string

const (
	// FailureUnknownTool means no registered tool matches the requested name.
	// The host does not contact any server for these.
	FailureUnknownTool FailureKind = "unknown_tool"

	// FailureInvalidArguments means the arguments did not validate against
	// the tool's input schema. The host does not contact the server.
	FailureInvalidArguments FailureKind = "invalid_arguments"

	// FailureServerUnreachable means the transport to the tool's server
	// failed (process died, connection refused, context deadline).
	FailureServerUnreachable FailureKind = "server_unreachable"

	// FailureToolError means the server executed the tool and reported an
	// application-level error.
	FailureToolError FailureKind = "tool_error"
)

// Failure describes a failed tool invocation. Failures are data, not Go
// errors: they flow back into the conversation so the model can react.
type Failure struct {
	// Kind classifies the failure.
	Kind FailureKind

	// Message is the human/LLM-readable explanation.
	Message string
}

// ToolCallResult holds the outcome of a single tool invocation.
type ToolCallResult struct {
	// ID echoes ToolCallRequest.ID.
	ID string

	// Name echoes ToolCallRequest.Name.
	Name string

	// Content is the tool's textual output on success, typically JSON or
	// human-readable text ready for insertion into an LLM context window.
	// Empty when Failure is set.
	Content string

	// Failure is non-nil when the invocation produced no usable output.
	Failure *Failure
}

// Text returns the string to feed back to the model: Content on success, or
// the failure message prefixed with its kind.
func (r ToolCallResult) Text() string {
	if r.Failure != nil {
		return string(r.Failure.Kind) + ": " + r.Failure.Message
	}
	return r.Content
}
