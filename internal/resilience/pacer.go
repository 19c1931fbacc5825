package resilience

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/MrWong99/fledge/pkg/provider/llm"
)

// Pacer wraps an [llm.Provider] with a token-bucket rate limit so that bursts
// of completions (e.g. rapid tool call rounds) do not starve a local model
// server. Completion calls wait for a token or for ctx; CountTokens and
// Capabilities pass through unlimited.
type Pacer struct {
	inner   llm.Provider
	limiter *rate.Limiter
}

// Compile-time interface assertion.
var _ llm.Provider = (*Pacer)(nil)

// NewPacer limits inner to requestsPerMinute completions, with a burst of one
// minute's allowance. requestsPerMinute <= 0 returns inner unchanged.
func NewPacer(inner llm.Provider, requestsPerMinute int) llm.Provider {
	if requestsPerMinute <= 0 {
		return inner
	}
	return &Pacer{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute),
	}
}

// Complete waits for a rate token, then delegates to the wrapped provider.
func (p *Pacer) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Complete(ctx, req)
}

// StreamCompletion waits for a rate token, then delegates to the wrapped
// provider.
func (p *Pacer) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.StreamCompletion(ctx, req)
}

// CountTokens delegates to the wrapped provider without rate limiting.
func (p *Pacer) CountTokens(messages []llm.Message) (int, error) {
	return p.inner.CountTokens(messages)
}

// Capabilities delegates to the wrapped provider.
func (p *Pacer) Capabilities() llm.ModelCapabilities {
	return p.inner.Capabilities()
}
