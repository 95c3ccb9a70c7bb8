package resilience

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/studylens/pkg/provider/llm"
	"github.com/MrWong99/studylens/pkg/types"
)

// LLMFallback implements [llm.Provider] over a primary LLM and optional
// fallbacks, each behind its own circuit breaker. Notes, quiz and
// verification requests go to the first backend that answers.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var (
	_ llm.Provider      = (*LLMFallback)(nil)
	_ llm.HealthChecker = (*LLMFallback)(nil)
)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	if cfg.Kind == "" {
		cfg.Kind = "llm"
	}
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backend names in the order they are tried.
func (f *LLMFallback) Names() []string { return f.group.Names() }

// Complete sends req to the first backend that returns non-empty content. An
// empty reply counts as a failure so the next backend gets a chance.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		resp, err := p.Complete(ctx, req)
		if err == nil && (resp == nil || strings.TrimSpace(resp.Content) == "") {
			err = llm.ErrMissingResponse
		}
		return resp, err
	})
}

// StreamCompletion opens a stream on the first backend that accepts the
// request. Errors after the stream opened are not failed over.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// CountTokens asks the primary. It does not touch the breakers: counting is
// local work for most backends.
func (f *LLMFallback) CountTokens(messages []types.Message) (int, error) {
	return f.group.Primary().CountTokens(messages)
}

// Capabilities returns the primary's capabilities.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	return f.group.Primary().Capabilities()
}

// Health reports ready when at least one backend is healthy. Backends without
// a health probe count as healthy.
func (f *LLMFallback) Health(ctx context.Context) error {
	var errs []error
	for _, e := range f.group.entries {
		hc, ok := e.value.(llm.HealthChecker)
		if !ok {
			return nil
		}
		err := hc.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
