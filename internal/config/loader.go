package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/MrWong99/fledge/internal/chat"
	"github.com/MrWong99/fledge/internal/mcp"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the LLM provider names known to work out of the
// box. Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields that have documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Chat.MaxToolCallIterations == 0 {
		cfg.Chat.MaxToolCallIterations = chat.DefaultMaxToolCallIterations
	}
	if cfg.Chat.MaxWorkingTime == 0 {
		cfg.Chat.MaxWorkingTime = Duration(chat.DefaultMaxWorkingTime)
	}
	if cfg.MCP.DuplicatePolicy == "" {
		cfg.MCP.DuplicatePolicy = mcp.DuplicateReject
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Chat provider
	if cfg.Chat.Name == "" {
		errs = append(errs, errors.New("chat.name is required"))
	} else {
		validateProviderName("chat", cfg.Chat.Name)
	}
	if cfg.Chat.Model == "" {
		errs = append(errs, errors.New("chat.model is required"))
	}
	if cfg.Chat.MaxToolCallIterations < 0 {
		slog.Warn("chat.max_tool_call_iterations is negative; tool calls will be disabled entirely",
			"value", cfg.Chat.MaxToolCallIterations)
	}
	if cfg.Chat.MaxWorkingTime < 0 {
		errs = append(errs, fmt.Errorf("chat.max_working_time %s is negative", cfg.Chat.MaxWorkingTime))
	}
	if cfg.Chat.MaxWorkingTime > 0 && cfg.Chat.MaxWorkingTime.Std() < time.Second {
		slog.Warn("chat.max_working_time is very short; most turns will be cut off",
			"value", cfg.Chat.MaxWorkingTime)
	}
	if cfg.Chat.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("chat.requests_per_minute %d is negative", cfg.Chat.RequestsPerMinute))
	}

	// Fallback provider
	if cfg.Fallback != nil {
		if cfg.Fallback.Name == "" {
			errs = append(errs, errors.New("fallback.name is required when fallback is set"))
		} else {
			validateProviderName("fallback", cfg.Fallback.Name)
		}
		if cfg.Fallback.Model == "" {
			errs = append(errs, errors.New("fallback.model is required when fallback is set"))
		}
	}

	// MCP
	if cfg.MCP.DuplicatePolicy != "" && !cfg.MCP.DuplicatePolicy.IsValid() {
		errs = append(errs, fmt.Errorf("mcp.duplicate_policy %q is invalid; valid values: reject, override", cfg.MCP.DuplicatePolicy))
	}

	serverNamesSeen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := serverNamesSeen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			serverNamesSeen[srv.Name] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcp.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcp.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
		if srv.Transport == mcp.TransportStdio && srv.Auth != nil {
			slog.Warn("auth is ignored for stdio transport; use env for credential injection",
				"server", srv.Name)
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not found in
// [ValidProviderNames]. Unknown names are not an error so that third-party
// OpenAI-compatible endpoints keep working.
func validateProviderName(slot, name string) {
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"slot", slot,
		"name", name,
		"known", ValidProviderNames,
	)
}
