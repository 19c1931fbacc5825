// Package config provides the configuration schema, loader, and file watcher
// for the Fledge chat front end.
package config

import (
	"fmt"
	"time"

	"github.com/MrWong99/fledge/internal/mcp"
	"gopkg.in/yaml.v3"
)

// Duration wraps [time.Duration] so YAML values like "30s" or "2m" decode.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a [time.Duration].
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// LogLevel controls log verbosity for the Fledge process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Fledge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	// Chat configures the primary LLM provider and per-turn tool budgets.
	Chat ChatConfig `yaml:"chat"`

	// Fallback optionally configures a secondary LLM provider that is tried
	// when the primary one fails. When nil, no fallback is used.
	Fallback *ProviderEntry `yaml:"fallback"`

	// MCP holds the Model Context Protocol tool server connections.
	MCP MCPConfig `yaml:"mcp"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus metrics endpoint listens
	// on (e.g., ":9090"). Empty disables the metrics server.
	MetricsAddr string `yaml:"metrics_addr"`
}

// ChatConfig configures the primary LLM provider together with the
// conversation behaviour: system prompt, tool call budgets, and pacing.
type ChatConfig struct {
	ProviderEntry `yaml:",inline"`

	// SystemPrompt is prepended to every conversation. Empty means no
	// system message is sent.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxToolCallIterations caps the number of tool invocations per user
	// turn. 0 means the default of 5.
	MaxToolCallIterations int `yaml:"max_tool_call_iterations"`

	// MaxWorkingTime caps the wall-clock duration of a single user turn.
	// 0 means the default of 30s.
	MaxWorkingTime Duration `yaml:"max_working_time"`

	// RequestsPerMinute rate-limits outgoing LLM requests. 0 disables pacing.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// ProviderEntry is the configuration block shared by all LLM provider slots.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// Empty falls back to the provider's environment variable.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "qwen3:8b").
	Model string `yaml:"model"`
}

// MCPConfig holds the list of Model Context Protocol servers to connect to
// and how name collisions between their tools are resolved.
type MCPConfig struct {
	// DuplicatePolicy decides what happens when two servers expose a tool
	// with the same name. Empty means "reject".
	DuplicatePolicy mcp.DuplicatePolicy `yaml:"duplicate_policy"`

	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes how to connect to a single MCP tool server.
type MCPServerConfig struct {
	// Name is a unique human-readable identifier for this server (used in
	// logs and citations).
	Name string `yaml:"name"`

	// Transport specifies the connection mechanism.
	Transport mcp.Transport `yaml:"transport"`

	// Command is the executable (with optional arguments) launched when
	// Transport is "stdio". Ignored for streamable-http transport.
	Command string `yaml:"command"`

	// URL is the MCP endpoint address used when Transport is "streamable-http"
	// (e.g., "https://mcp.example.com/mcp"). Ignored for stdio transport.
	URL string `yaml:"url"`

	// Auth configures authentication for streamable-http servers.
	// Ignored for stdio transport (use Env for credential injection instead).
	// When nil, requests are sent without authentication.
	Auth *MCPAuthConfig `yaml:"auth"`

	// Env holds additional environment variables injected into the subprocess
	// when Transport is "stdio". May be nil.
	Env map[string]string `yaml:"env"`
}

// MCPAuthConfig configures authentication for HTTP-based MCP servers.
type MCPAuthConfig struct {
	// Token is a static Bearer token sent in the Authorization header of
	// every request.
	Token string `yaml:"token"`
}

// ServerConfig converts s into the connection config used by the MCP host.
func (s MCPServerConfig) ServerConfig() mcp.ServerConfig {
	sc := mcp.ServerConfig{
		Name:      s.Name,
		Transport: s.Transport,
		Command:   s.Command,
		URL:       s.URL,
		Env:       s.Env,
	}
	if s.Auth != nil {
		sc.BearerToken = s.Auth.Token
	}
	return sc
}
