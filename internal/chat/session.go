package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrWong99/fledge/internal/mcp"
	"github.com/MrWong99/fledge/internal/observe"
	"github.com/MrWong99/fledge/pkg/provider/llm"
)

// ErrTurnActive is returned when a session mutation is attempted while a
// turn is being processed. Limits, history and the tool catalogue may only
// change between turns.
var ErrTurnActive = errors.New("chat: a turn is currently being processed")

// Limits holds the per-turn resource allowances of a session.
type Limits struct {
	// MaxToolCallIterations caps the number of tool invocations per turn.
	MaxToolCallIterations int

	// MaxWorkingTime caps the wall-clock duration of a turn. Zero disables
	// the check.
	MaxWorkingTime time.Duration
}

// DefaultLimits returns the standard per-turn allowances.
func DefaultLimits() Limits {
	return Limits{
		MaxToolCallIterations: DefaultMaxToolCallIterations,
		MaxWorkingTime:        DefaultMaxWorkingTime,
	}
}

// Session owns a conversation and processes turns one at a time. Each turn
// runs in a fresh [Loop] with its own [Budget] and [Ledger]; the conversation
// history persists across turns.
//
// Session methods are safe for concurrent use, but only one turn may be
// active at a time: concurrent ProcessTurn calls and mid-turn mutations fail
// with [ErrTurnActive].
type Session struct {
	provider llm.Provider
	host     mcp.Host
	conv     *Conversation

	metrics *observe.Metrics
	logger  *slog.Logger

	// turn is a 1-slot token channel gating turn processing and mutations.
	turn chan struct{}

	limits       Limits
	systemPrompt string
	providerName string
}

// SessionOption customises a [Session] created by [NewSession].
type SessionOption func(*Session)

// WithLimits sets the initial per-turn limits. Default: [DefaultLimits].
func WithLimits(l Limits) SessionOption {
	return func(s *Session) { s.limits = l }
}

// WithSystemPrompt sets the system prompt sent with every completion.
func WithSystemPrompt(prompt string) SessionOption {
	return func(s *Session) { s.systemPrompt = prompt }
}

// WithProviderName sets the provider label on completion metrics.
func WithProviderName(name string) SessionOption {
	return func(s *Session) { s.providerName = name }
}

// WithSessionMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithSessionMetrics(m *observe.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithSessionLogger sets the structured logger. Default: [slog.Default].
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession creates a session over the given provider and tool host.
func NewSession(provider llm.Provider, host mcp.Host, opts ...SessionOption) *Session {
	s := &Session{
		provider: provider,
		host:     host,
		conv:     NewConversation(),
		limits:   DefaultLimits(),
	}
	s.turn = make(chan struct{}, 1)
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// acquire takes the turn gate without blocking. It returns ErrTurnActive when
// a turn is running.
func (s *Session) acquire() error {
	select {
	case s.turn <- struct{}{}:
		return nil
	default:
		return ErrTurnActive
	}
}

func (s *Session) release() {
	<-s.turn
}

// ProcessTurn runs one full turn for userMessage and returns its result.
// A second concurrent call fails with [ErrTurnActive].
func (s *Session) ProcessTurn(ctx context.Context, userMessage string) (*TurnResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	budget := NewBudget(s.limits.MaxToolCallIterations, s.limits.MaxWorkingTime)
	loop := NewLoop(s.provider, s.host, s.conv, budget, NewLedger(), s.systemPrompt, s.providerName, s.metrics, s.logger)
	return loop.ProcessTurn(ctx, userMessage)
}

// Limits returns the current per-turn limits.
func (s *Session) Limits() Limits {
	if err := s.acquire(); err != nil {
		// A turn is active; limits cannot change meanwhile, so reading the
		// stored value stays consistent.
		return s.limits
	}
	defer s.release()
	return s.limits
}

// SetLimits replaces the per-turn limits, taking effect from the next turn.
// Fails with [ErrTurnActive] while a turn is running.
func (s *Session) SetLimits(l Limits) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	if l.MaxToolCallIterations < 0 {
		l.MaxToolCallIterations = 0
	}
	if l.MaxWorkingTime < 0 {
		l.MaxWorkingTime = 0
	}
	s.limits = l
	s.logger.Info("limits updated",
		"max_tool_call_iterations", l.MaxToolCallIterations,
		"max_working_time", l.MaxWorkingTime)
	return nil
}

// SetSystemPrompt replaces the system prompt sent with future completions.
// Fails with [ErrTurnActive] while a turn is running.
func (s *Session) SetSystemPrompt(prompt string) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()
	s.systemPrompt = prompt
	return nil
}

// ClearHistory empties the conversation. Fails with [ErrTurnActive] while a
// turn is running.
func (s *Session) ClearHistory() error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()
	s.conv.Clear()
	return nil
}

// History returns a snapshot of the conversation.
func (s *Session) History() []llm.Message {
	return s.conv.Messages()
}

// Tools returns the host's current tool catalogue.
func (s *Session) Tools() []mcp.ToolDescriptor {
	return s.host.Tools()
}

// EnableServer connects the given MCP server and imports its tools. Fails
// with [ErrTurnActive] while a turn is running.
func (s *Session) EnableServer(ctx context.Context, cfg mcp.ServerConfig) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()
	return s.host.RegisterServer(ctx, cfg)
}

// DisableServer disconnects the named MCP server and drops its tools. Fails
// with [ErrTurnActive] while a turn is running.
func (s *Session) DisableServer(name string) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()
	return s.host.RemoveServer(name)
}
