package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/fledge/internal/mcp"
	"github.com/MrWong99/fledge/internal/observe"
	"github.com/MrWong99/fledge/pkg/provider/llm"
)

// TerminalReason names why a turn ended.
type TerminalReason string

const (
	// ReasonCompleted means the model produced a final answer on its own.
	ReasonCompleted TerminalReason = "completed"

	// ReasonIterationLimit means the tool call allowance ran out.
	ReasonIterationLimit TerminalReason = "iteration_limit_exceeded"

	// ReasonTimeLimit means the working time window elapsed.
	ReasonTimeLimit TerminalReason = "time_limit_exceeded"
)

// TurnResult is the outcome of a single processed turn.
type TurnResult struct {
	// FinalText is the answer presented to the user. On a budget trip this
	// is the model's partial summary (or the last assistant text when even
	// that could not be produced).
	FinalText string

	// Citations lists the distinct tools used during the turn, in first-use
	// order.
	Citations []mcp.Citation

	// Reason names why the turn ended.
	Reason TerminalReason

	// ToolTurns counts the tool dispatch rounds that ran.
	ToolTurns int
}

// Loop drives one turn of the conversation: it alternates between model
// completions and concurrent MCP tool dispatch until the model answers
// without requesting tools or the turn's budget trips.
//
// A Loop is created per turn by [Session.ProcessTurn]; it is not reused.
type Loop struct {
	provider llm.Provider
	host     mcp.Host
	conv     *Conversation
	budget   *Budget
	ledger   *Ledger

	systemPrompt string
	providerName string
	metrics      *observe.Metrics
	logger       *slog.Logger
}

// NewLoop assembles a loop over the given collaborators. providerName labels
// the completion metrics; metrics and logger fall back to the package
// defaults when nil.
func NewLoop(provider llm.Provider, host mcp.Host, conv *Conversation, budget *Budget, ledger *Ledger, systemPrompt, providerName string, metrics *observe.Metrics, logger *slog.Logger) *Loop {
	if providerName == "" {
		providerName = "llm"
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		provider:     provider,
		host:         host,
		conv:         conv,
		budget:       budget,
		ledger:       ledger,
		systemPrompt: systemPrompt,
		providerName: providerName,
		metrics:      metrics,
		logger:       logger,
	}
}

// ProcessTurn appends userMessage to the conversation and runs the loop until
// a terminal state. Tool failures are fed back to the model as tool messages
// and never abort the turn; only an unreachable LLM provider (or context
// cancellation) returns a Go error.
func (l *Loop) ProcessTurn(ctx context.Context, userMessage string) (*TurnResult, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "chat.turn")
	defer span.End()

	l.conv.Append(llm.Message{Role: llm.RoleUser, Content: userMessage})

	result, err := l.run(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("turn.reason", string(result.Reason)),
		attribute.Int("turn.tool_turns", result.ToolTurns),
	)
	l.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	l.metrics.RecordTurn(ctx, string(result.Reason))
	l.logger.Info("turn finished",
		"trace_id", observe.CorrelationID(ctx),
		"reason", string(result.Reason),
		"tool_turns", result.ToolTurns,
		"iterations", l.budget.Used(),
		"duration", time.Since(start))
	return result, nil
}

func (l *Loop) run(ctx context.Context) (*TurnResult, error) {
	toolTurns := 0

	for {
		if err := l.budget.CheckTime(); err != nil {
			l.metrics.RecordBudgetTrip(ctx, "time")
			return l.partialAnswer(ctx, ReasonTimeLimit, toolTurns)
		}

		resp, err := l.complete(ctx, l.toolDefinitions())
		if err != nil {
			return nil, err
		}

		if len(resp.ToolCalls) == 0 {
			l.conv.Append(llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
			return &TurnResult{
				FinalText: resp.Content,
				Citations: l.ledger.Drain(),
				Reason:    ReasonCompleted,
				ToolTurns: toolTurns,
			}, nil
		}

		l.conv.Append(llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		tripped := l.dispatch(ctx, resp.ToolCalls)
		toolTurns++

		if tripped {
			l.metrics.RecordBudgetTrip(ctx, "iterations")
			return l.partialAnswer(ctx, ReasonIterationLimit, toolTurns)
		}
	}
}

// complete performs one model completion and records its metrics.
func (l *Loop) complete(ctx context.Context, tools []llm.ToolDefinition) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := l.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     l.conv.Messages(),
		Tools:        tools,
		SystemPrompt: l.systemPrompt,
	})
	l.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		l.metrics.RecordProviderRequest(ctx, l.providerName, "error")
		l.metrics.RecordProviderError(ctx, l.providerName)
		return nil, fmt.Errorf("chat: model completion failed: %w", err)
	}
	l.metrics.RecordProviderRequest(ctx, l.providerName, "ok")
	if resp.Usage != nil {
		l.metrics.RecordTokens(ctx, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	return resp, nil
}

// dispatch runs one batch of tool calls concurrently and appends their
// results to the conversation in request order. It returns true when the
// iteration budget tripped during the batch.
//
// Iterations are reserved sequentially before any goroutine launches: a trip
// stops dispatch of the remaining calls in the batch but never cancels calls
// already in flight. Denied calls produce no tool message; only calls that
// were actually handled appear in the conversation.
func (l *Loop) dispatch(ctx context.Context, calls []llm.ToolCall) bool {
	results := make([]mcp.ToolCallResult, len(calls))
	handled := make([]bool, len(calls))
	invoked := make([]bool, len(calls))
	tripped := false

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		if tripped {
			continue
		}

		req, parseErr := decodeCall(call)
		if parseErr != nil {
			handled[i] = true
			results[i] = mcp.ToolCallResult{
				ID:   call.ID,
				Name: call.Name,
				Failure: &mcp.Failure{
					Kind:    mcp.FailureInvalidArguments,
					Message: parseErr.Error(),
				},
			}
			continue
		}

		if l.budget.ConsumeIteration() != nil {
			tripped = true
			continue
		}

		handled[i] = true
		invoked[i] = true
		g.Go(func() error {
			results[i] = l.host.Invoke(gctx, req)
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range results {
		if !handled[i] {
			continue
		}
		if invoked[i] && res.Failure == nil {
			if desc, ok := l.host.Lookup(res.Name); ok {
				l.ledger.Record(desc.Citation)
			}
		}
		l.conv.Append(llm.Message{
			Role:       llm.RoleTool,
			Name:       res.Name,
			ToolCallID: res.ID,
			Content:    res.Text(),
		})
	}
	return tripped
}

// partialAnswer asks the model, without tools, for a best-effort answer from
// the results gathered so far. When even that fails, the last assistant text
// is used.
func (l *Loop) partialAnswer(ctx context.Context, reason TerminalReason, toolTurns int) (*TurnResult, error) {
	notice := "The tool call limit for this request has been reached."
	if reason == ReasonTimeLimit {
		notice = "The working time limit for this request has been reached."
	}

	messages := append(l.conv.Messages(), llm.Message{
		Role: llm.RoleUser,
		Content: notice + " Do not request any more tools. " +
			"Give the best answer you can from the information gathered so far, " +
			"and say which parts are incomplete.",
	})

	start := time.Now()
	resp, err := l.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     messages,
		SystemPrompt: l.systemPrompt,
	})
	l.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())

	finalText := ""
	if err != nil {
		l.metrics.RecordProviderRequest(ctx, l.providerName, "error")
		l.metrics.RecordProviderError(ctx, l.providerName)
		l.logger.Warn("partial answer completion failed, falling back to last assistant text", "error", err)
		finalText = l.conv.LastAssistantText()
	} else {
		l.metrics.RecordProviderRequest(ctx, l.providerName, "ok")
		if resp.Usage != nil {
			l.metrics.RecordTokens(ctx, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		}
		finalText = resp.Content
		l.conv.Append(llm.Message{Role: llm.RoleAssistant, Content: finalText})
	}

	return &TurnResult{
		FinalText: finalText,
		Citations: l.ledger.Drain(),
		Reason:    reason,
		ToolTurns: toolTurns,
	}, nil
}

// toolDefinitions converts the host's catalogue into the provider's tool
// format.
func (l *Loop) toolDefinitions() []llm.ToolDefinition {
	descs := l.host.Tools()
	defs := make([]llm.ToolDefinition, 0, len(descs))
	for _, d := range descs {
		var params map[string]any
		if d.InputSchema != nil {
			params = schemaToMap(d.InputSchema)
		} else {
			params = map[string]any{"type": "object"}
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  params,
		})
	}
	return defs
}

// decodeCall parses a model-issued tool call into a host request. Malformed
// argument JSON is reported to the caller, not to the host.
func decodeCall(call llm.ToolCall) (mcp.ToolCallRequest, error) {
	req := mcp.ToolCallRequest{ID: call.ID, Name: call.Name}
	if call.Arguments == "" || call.Arguments == "{}" {
		return req, nil
	}
	if err := json.Unmarshal([]byte(call.Arguments), &req.Arguments); err != nil {
		return req, fmt.Errorf("arguments are not a valid JSON object: %v", err)
	}
	return req, nil
}

// schemaToMap converts any schema value to a map[string]any via a JSON
// round-trip.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}
