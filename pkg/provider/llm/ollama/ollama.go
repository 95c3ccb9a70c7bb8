// Package ollama provides an LLM provider backed by a local Ollama server's
// native /api/generate endpoint.
//
// The whole conversation is flattened into a single prompt, which is how the
// study orchestrator talks to the model anyway. Non-streaming requests send
// "stream": false and read one JSON object; streaming requests read the
// newline-delimited JSON objects Ollama emits with "stream": true.
//
// Example usage:
//
//	p, err := ollama.New("", "llama3.1:8b") // connects to http://localhost:11434
//	resp, err := p.Complete(ctx, llm.CompletionRequest{
//	    Messages: []types.Message{{Role: "user", Content: prompt}},
//	})
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/studylens/pkg/provider/llm"
	"github.com/MrWong99/studylens/pkg/types"
)

const (
	// DefaultBaseURL is the default base URL for a locally running Ollama instance.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultModel is the model used when none is configured.
	DefaultModel = "llama3.1:8b"
)

// Ensure Provider implements the llm interfaces at compile time.
var (
	_ llm.Provider      = (*Provider)(nil)
	_ llm.HealthChecker = (*Provider)(nil)
)

// Provider implements llm.Provider against Ollama's /api/generate endpoint.
// Provider is safe for concurrent use.
type Provider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type config struct {
	timeout    time.Duration
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout. A zero or negative value means
// no timeout, which is the default: local generation of long notes can take
// minutes.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// New constructs a new Ollama Provider. An empty baseURL selects
// DefaultBaseURL and an empty model selects DefaultModel.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("ollama: base URL %q must start with http:// or https://", baseURL)
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{}
	}
	if cfg.timeout > 0 {
		// Copy so a caller's shared client keeps its own timeout.
		c := *hc
		c.Timeout = cfg.timeout
		hc = &c
	}

	return &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: hc,
	}, nil
}

// generateRequest is the JSON body sent to /api/generate.
type generateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	System  string           `json:"system,omitempty"`
	Stream  bool             `json:"stream"`
	Options *generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

// generateResponse is one JSON object returned by /api/generate. Response is a
// pointer so an explicit null can be told apart from an empty string.
type generateResponse struct {
	Response        *string `json:"response"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason"`
	Error           string  `json:"error"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

// Complete implements llm.Provider. A missing, null or empty "response" field
// yields llm.ErrMissingResponse.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.post(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("ollama: complete: %w", err)
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama: complete: decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ollama: complete: %s", out.Error)
	}
	if out.Response == nil || *out.Response == "" {
		return nil, fmt.Errorf("ollama: complete: %w", llm.ErrMissingResponse)
	}

	return &llm.CompletionResponse{
		Content: *out.Response,
		Usage: llm.Usage{
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
			TotalTokens:      out.PromptEvalCount + out.EvalCount,
		},
	}, nil
}

// StreamCompletion implements llm.Provider by reading Ollama's NDJSON stream.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	resp, err := p.post(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("ollama: stream: %w", err)
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		send := func(c llm.Chunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			var part generateResponse
			if err := json.Unmarshal(line, &part); err != nil {
				send(llm.Chunk{FinishReason: "error", Text: fmt.Sprintf("decode stream line: %v", err)})
				return
			}
			if part.Error != "" {
				send(llm.Chunk{FinishReason: "error", Text: part.Error})
				return
			}
			c := llm.Chunk{}
			if part.Response != nil {
				c.Text = *part.Response
			}
			if part.Done {
				c.FinishReason = finishReason(part.DoneReason)
			}
			if !send(c) || part.Done {
				return
			}
		}
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			send(llm.Chunk{FinishReason: "error", Text: err.Error()})
		}
	}()
	return ch, nil
}

// CountTokens implements llm.Provider with a character-based estimate.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	return llm.EstimateTokens(messages), nil
}

// Capabilities implements llm.Provider. Ollama's default context for the
// llama3 family is 8k tokens unless the server is configured otherwise.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return types.ModelCapabilities{
		ContextWindow:     8_192,
		MaxOutputTokens:   4_096,
		SupportsVision:    strings.Contains(strings.ToLower(p.model), "llava"),
		SupportsStreaming: true,
	}
}

// Health implements llm.HealthChecker by listing local models via GET /api/tags.
func (p *Provider) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama: health: build request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ollama: health: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

func (p *Provider) buildRequest(req llm.CompletionRequest, stream bool) generateRequest {
	var prompt strings.Builder
	for i, m := range req.Messages {
		if i > 0 {
			prompt.WriteString("\n\n")
		}
		if len(req.Messages) > 1 && m.Role != "" && m.Role != "user" {
			prompt.WriteString(m.Role)
			prompt.WriteString(": ")
		}
		prompt.WriteString(m.Content)
	}

	out := generateRequest{
		Model:  p.model,
		Prompt: prompt.String(),
		System: req.SystemPrompt,
		Stream: stream,
	}
	if req.Temperature != 0 || req.MaxTokens > 0 {
		out.Options = &generateOptions{NumPredict: req.MaxTokens}
		if req.Temperature != 0 {
			t := req.Temperature
			out.Options.Temperature = &t
		}
	}
	return out
}

// post sends body to /api/generate and returns the response when the status is 2xx.
func (p *Provider) post(ctx context.Context, body generateRequest) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

func finishReason(doneReason string) string {
	if doneReason == "" {
		return "stop"
	}
	return doneReason
}
