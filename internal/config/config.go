// Package config provides the configuration schema, loader, watcher and
// provider registry for the studylens server.
package config

import "time"

// LogLevel controls log verbosity for the studylens server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Difficulty is a quiz difficulty offered by the page.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// IsValid reports whether d is a recognised difficulty.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Config is the root configuration structure for studylens.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
// Zero values are replaced by [ApplyDefaults].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Capture   CaptureConfig   `yaml:"capture"`
	Audio     AudioConfig     `yaml:"audio"`
	Mode      ModeConfig      `yaml:"mode"`
	Providers ProvidersConfig `yaml:"providers"`
	Study     StudyConfig     `yaml:"study"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Reloaded without restart.
	LogLevel LogLevel `yaml:"log_level"`

	// StaticDir is the directory holding the page (index.html, app.js).
	StaticDir string `yaml:"static_dir"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// ReadinessTimeout bounds each readiness probe at startup and on /readyz.
	ReadinessTimeout time.Duration `yaml:"readiness_timeout"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// CaptureConfig controls the screenshot loop and the text acceptance gate.
type CaptureConfig struct {
	// Interval is the default time between screenshots (e.g., "20s").
	Interval time.Duration `yaml:"interval"`

	// JPEGQuality is used when re-encoding pushed frames (1-100).
	JPEGQuality int `yaml:"jpeg_quality"`

	// FrameMaxAge is how old the latest pushed frame may be when a tick
	// captures it.
	FrameMaxAge time.Duration `yaml:"frame_max_age"`

	// MinTextLength is the number of characters OCR text must exceed.
	MinTextLength int `yaml:"min_text_length"`

	// SimilarityThreshold rejects OCR text whose Jaccard similarity to any
	// accepted text is above it.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// AudioConfig controls the volume meter and the server-side STT stream.
type AudioConfig struct {
	// MeterInterval is how often the volume level is sampled.
	MeterInterval time.Duration `yaml:"meter_interval"`

	// SampleRate and Channels describe the PCM sent to the STT provider.
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// Language is an optional BCP-47 hint for the STT provider.
	Language string `yaml:"language"`
}

// ModeConfig controls automatic switching between visual and audio capture.
type ModeConfig struct {
	// PollInterval is how often auto mode checks the volume level.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Threshold is the volume level above which auto mode switches to audio.
	Threshold float64 `yaml:"threshold"`
}

// ProvidersConfig declares which provider implementation serves each
// collaborator. Each entry selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	OCR ProviderEntry `yaml:"ocr"`
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order when the primary LLM fails.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	STT        ProviderEntry `yaml:"stt"`
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "ollama", "easyocr").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "llama3.1:8b").
	Model string `yaml:"model"`

	// Timeout bounds a single request. Zero keeps the provider default.
	Timeout time.Duration `yaml:"timeout"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// StudyConfig holds defaults for notes, quiz and verification requests.
type StudyConfig struct {
	// QuizCount is the number of questions when a request names none.
	QuizCount int `yaml:"quiz_count"`

	// QuizDifficulty is used when a request names none.
	QuizDifficulty Difficulty `yaml:"quiz_difficulty"`

	// MaxClaims caps how many claims one verification pass checks.
	MaxClaims int `yaml:"max_claims"`

	// Temperature is passed to the LLM. Zero leaves the provider default.
	Temperature float64 `yaml:"temperature"`
}
