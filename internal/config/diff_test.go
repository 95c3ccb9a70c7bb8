package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/studylens/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	if d := config.Diff(cfg, cfg); !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v", d)
	}
	if d.SessionChanged || d.StudyChanged || len(d.RestartRequired) != 0 {
		t.Errorf("unexpected extra changes: %+v", d)
	}
}

func TestDiff_SessionChanged(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"interval", func(c *config.Config) { c.Capture.Interval = time.Minute }},
		{"gate", func(c *config.Config) { c.Capture.SimilarityThreshold = 0.7 }},
		{"mode threshold", func(c *config.Config) { c.Mode.Threshold = 0.3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := config.Default(), config.Default()
			tt.mutate(new)
			if d := config.Diff(old, new); !d.SessionChanged {
				t.Errorf("SessionChanged = false for %s", tt.name)
			}
		})
	}
}

func TestDiff_StudyChanged(t *testing.T) {
	t.Parallel()
	old, new := config.Default(), config.Default()
	new.Study.QuizDifficulty = config.DifficultyEasy

	d := config.Diff(old, new)
	if !d.StudyChanged {
		t.Error("expected StudyChanged")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := config.Default(), config.Default()
	new.Server.ListenAddr = ":9999"
	new.Providers.LLM.Model = "mistral"
	new.Providers.LLM.Options = map[string]any{"num_ctx": 4096}
	new.Study.MaxClaims = 2

	d := config.Diff(old, new)
	for _, want := range []string{"server", "providers", "study"} {
		if !slices.Contains(d.RestartRequired, want) {
			t.Errorf("RestartRequired = %v, missing %q", d.RestartRequired, want)
		}
	}
	if slices.Contains(d.RestartRequired, "audio") {
		t.Errorf("audio reported changed: %v", d.RestartRequired)
	}
}

func TestDiff_FallbackOrderMatters(t *testing.T) {
	t.Parallel()
	old, new := config.Default(), config.Default()
	a := config.ProviderEntry{Name: "openai"}
	b := config.ProviderEntry{Name: "anthropic"}
	old.Providers.LLMFallbacks = []config.ProviderEntry{a, b}
	new.Providers.LLMFallbacks = []config.ProviderEntry{b, a}

	if d := config.Diff(old, new); !slices.Contains(d.RestartRequired, "providers") {
		t.Errorf("reordered fallbacks not detected: %+v", d)
	}
}
