package config

import "time"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded between turns are tracked;
// provider and MCP server changes require a restart.
type ConfigDiff struct {
	LimitsChanged       bool // max_tool_call_iterations or max_working_time changed
	NewIterations       int
	NewWorkingTime      time.Duration
	SystemPromptChanged bool
	NewSystemPrompt     string
	LogLevelChanged     bool
	NewLogLevel         LogLevel
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Chat.MaxToolCallIterations != new.Chat.MaxToolCallIterations ||
		old.Chat.MaxWorkingTime != new.Chat.MaxWorkingTime {
		d.LimitsChanged = true
		d.NewIterations = new.Chat.MaxToolCallIterations
		d.NewWorkingTime = new.Chat.MaxWorkingTime.Std()
	}

	if old.Chat.SystemPrompt != new.Chat.SystemPrompt {
		d.SystemPromptChanged = true
		d.NewSystemPrompt = new.Chat.SystemPrompt
	}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	return d
}
