// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the chat loop sends correct
// CompletionRequests and to feed controlled responses without a live LLM
// backend. For multi-step tool-calling exchanges, set Script to the sequence
// of responses the fake model should produce; each call to Complete consumes
// the next entry.
//
// Example:
//
//	p := &mock.Provider{
//	    Script: []*llm.CompletionResponse{
//	        {ToolCalls: []llm.ToolCall{{ID: "1", Name: "multiply", Arguments: `{"a":15,"b":7}`}}},
//	        {Content: "15 times 7 is 105."},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/fledge/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Script is a sequence of responses consumed in order by Complete.
	// When exhausted (or nil), Complete falls back to CompleteResponse.
	Script []*llm.CompletionResponse

	// CompleteResponse is returned by Complete once Script is exhausted.
	// May be nil (returns an empty response).
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// ExhaustedErr, if non-nil, is returned by Complete once Script is
	// exhausted and no CompleteResponse is set. Use it to simulate a
	// provider that goes away mid-turn.
	ExhaustedErr error

	// StreamChunks is the sequence of Chunk values emitted on the channel
	// returned by StreamCompletion. All chunks are sent before the channel is
	// closed.
	StreamChunks []llm.Chunk

	// StreamErr, if non-nil, is returned as the error from StreamCompletion
	// instead of starting a channel.
	StreamErr error

	// TokenCount is returned by CountTokens when CountTokensErr is nil.
	TokenCount int

	// CountTokensErr, if non-nil, is returned as the error from CountTokens.
	CountTokensErr error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities llm.ModelCapabilities

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	scriptPos int
}

// Complete records the call and returns the next scripted response, or
// CompleteResponse once the script is exhausted.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if p.scriptPos < len(p.Script) {
		resp := p.Script[p.scriptPos]
		p.scriptPos++
		return resp, nil
	}
	if p.CompleteResponse != nil {
		return p.CompleteResponse, nil
	}
	if p.ExhaustedErr != nil {
		return nil, p.ExhaustedErr
	}
	return &llm.CompletionResponse{}, nil
}

// StreamCompletion records nothing extra and emits StreamChunks on a channel.
// If StreamErr is set, it returns nil, StreamErr without opening a channel.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([]llm.Chunk, len(p.StreamChunks))
	copy(chunks, p.StreamChunks)
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// CountTokens returns TokenCount, or CountTokensErr when set.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CountTokensErr != nil {
		return 0, p.CountTokensErr
	}
	return p.TokenCount, nil
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Requests returns a copy of the CompletionRequests recorded by Complete.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.CompleteCalls))
	for i, c := range p.CompleteCalls {
		out[i] = c.Req
	}
	return out
}

// Reset clears all recorded calls and rewinds the script. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.scriptPos = 0
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
