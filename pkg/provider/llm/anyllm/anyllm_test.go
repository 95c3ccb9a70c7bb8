package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/studylens/pkg/provider/llm"
	"github.com/MrWong99/studylens/pkg/types"
)

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a study assistant.",
		Messages:     []types.Message{{Role: "user", Content: "Make notes."}},
	})
	if params.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem || params.Messages[0].ContentString() != "You are a study assistant." {
		t.Errorf("first message = %+v", params.Messages[0])
	}
	if params.Messages[1].Role != "user" || params.Messages[1].ContentString() != "Make notes." {
		t.Errorf("second message = %+v", params.Messages[1])
	}
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Error("unset Temperature/MaxTokens should stay nil")
	}
}

func TestBuildParams_Sampling(t *testing.T) {
	p := &Provider{model: "claude-3-5-haiku-latest"}
	params := p.buildParams(llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: "x"}},
		Temperature: 0.3,
		MaxTokens:   512,
	})
	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Errorf("Temperature = %v, want 0.3", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 512 {
		t.Errorf("MaxTokens = %v, want 512", params.MaxTokens)
	}
}

// ── modelCapabilities ─────────────────────────────────────────────────────────

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model   string
		context int
		vision  bool
	}{
		{"gpt-4o-mini", 128_000, true},
		{"GPT-4O", 128_000, true},
		{"gpt-3.5-turbo", 16_385, false},
		{"claude-3-5-sonnet-latest", 200_000, true},
		{"gemini-2.0-flash", 1_048_576, true},
		{"deepseek-chat", 64_000, false},
		{"llama3.1:8b", 8_192, false},
		{"my-custom-model", 32_000, false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.context {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tt.context)
			}
			if caps.SupportsVision != tt.vision {
				t.Errorf("SupportsVision = %v, want %v", caps.SupportsVision, tt.vision)
			}
			if !caps.SupportsStreaming || caps.MaxOutputTokens <= 0 {
				t.Errorf("unexpected caps %+v", caps)
			}
		})
	}
}

// ── Constructor ───────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty backend name")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Error("expected error for unsupported backend")
	}
}

func TestNew_Backends(t *testing.T) {
	tests := []struct {
		backend string
		model   string
		opts    []anyllmlib.Option
	}{
		{"openai", "gpt-4o-mini", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{"anthropic", "claude-3-5-haiku-latest", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{"ollama", "llama3.1:8b", nil},
		{"llamacpp", "llama3", nil},
		{"llamafile", "llama3", nil},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			p, err := New(tt.backend, tt.model, tt.opts...)
			if err != nil {
				t.Fatalf("New(%q): %v", tt.backend, err)
			}
			if p.model != tt.model {
				t.Errorf("model = %q, want %q", p.model, tt.model)
			}
		})
	}
}

func TestNew_OpenAIMissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

// ── CountTokens ───────────────────────────────────────────────────────────────

func TestCountTokens(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	if n, _ := p.CountTokens(nil); n != 0 {
		t.Errorf("CountTokens(nil) = %d, want 0", n)
	}
	one, _ := p.CountTokens([]types.Message{{Role: "user", Content: "Hello"}})
	two, _ := p.CountTokens([]types.Message{
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there, how can I help?"},
	})
	if one <= 0 || two <= one {
		t.Errorf("token counts not increasing: one=%d two=%d", one, two)
	}
}
