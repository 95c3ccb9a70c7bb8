// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a local or remote model API (a local Ollama instance by
// default, or any backend reachable through any-llm-go) and exposes a uniform
// interface for the study orchestrator to request notes, quizzes and claim
// verifications without coupling to a specific wire format.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import (
	"context"
	"errors"

	"github.com/MrWong99/studylens/pkg/types"
)

// ErrMissingResponse is returned when the backend answered successfully at the
// transport level but the body carried no model response (e.g. a JSON body
// of {"response": null}).
var ErrMissingResponse = errors.New("llm: missing model response")

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The study orchestrator sends a
	// single "user" message holding the fully rendered prompt.
	Messages []types.Message

	// Temperature controls output randomness. Zero leaves the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int

	// SystemPrompt is an optional instruction placed before Messages.
	// Providers without a dedicated system slot prepend it to the prompt.
	SystemPrompt string
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content of this chunk.
	Text string

	// FinishReason is set on the final chunk ("stop", "length", or "error").
	FinishReason string
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the model's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// StreamCompletion sends req to the model and returns a channel that emits
	// Chunk values as they arrive. The channel is closed when generation
	// finishes or ctx is cancelled. Errors after the stream opened are
	// reported as a Chunk with FinishReason "error".
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req to the model and waits for the full response.
	// A reply without content must be reported as ErrMissingResponse.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the number of tokens messages would consume.
	// The result need not be exact but should not undercount.
	CountTokens(messages []types.Message) (int, error)

	// Capabilities returns static metadata about the underlying model.
	Capabilities() types.ModelCapabilities
}

// HealthChecker is implemented by providers that expose a readiness probe.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// EstimateTokens is a rough token estimate (four characters per token, rounded
// up) shared by providers whose backends have no tokenizer endpoint.
func EstimateTokens(messages []types.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Role) + len(m.Content)
	}
	return (chars + 3) / 4
}
