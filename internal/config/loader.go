package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/studylens/internal/mode"
	"github.com/MrWong99/studylens/internal/session"
	"github.com/MrWong99/studylens/internal/study"
	"github.com/MrWong99/studylens/pkg/audio"
	"github.com/MrWong99/studylens/pkg/frame"
)

// Defaults applied by [ApplyDefaults] for values the file leaves empty.
const (
	DefaultListenAddr       = ":8080"
	DefaultStaticDir        = "web/static"
	DefaultReadinessTimeout = 5 * time.Second
	DefaultOCRURL           = "http://localhost:5001"
	DefaultLLMURL           = "http://localhost:11434"
	DefaultLLMModel         = "llama3.1:8b"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"ocr":        {"easyocr"},
	"llm":        {"ollama", "openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"browser", "whisper"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config]
// with defaults applied. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero field of cfg with its default.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.StaticDir == "" {
		s.StaticDir = DefaultStaticDir
	}
	if s.ReadinessTimeout == 0 {
		s.ReadinessTimeout = DefaultReadinessTimeout
	}

	c := &cfg.Capture
	if c.Interval == 0 {
		c.Interval = session.DefaultCaptureInterval
	}
	if c.JPEGQuality == 0 {
		c.JPEGQuality = frame.DefaultQuality
	}
	if c.FrameMaxAge == 0 {
		c.FrameMaxAge = session.DefaultFrameMaxAge
	}
	if c.MinTextLength == 0 {
		c.MinTextLength = session.DefaultMinTextLength
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = session.DefaultSimilarityThreshold
	}

	a := &cfg.Audio
	if a.MeterInterval == 0 {
		a.MeterInterval = audio.DefaultMeterInterval
	}
	if a.SampleRate == 0 {
		a.SampleRate = audio.SpeechFormat.SampleRate
	}
	if a.Channels == 0 {
		a.Channels = audio.SpeechFormat.Channels
	}

	if cfg.Mode.PollInterval == 0 {
		cfg.Mode.PollInterval = mode.DefaultPollInterval
	}
	if cfg.Mode.Threshold == 0 {
		cfg.Mode.Threshold = mode.DefaultThreshold
	}

	p := &cfg.Providers
	if p.OCR.Name == "" {
		p.OCR.Name = "easyocr"
	}
	if p.OCR.Name == "easyocr" && p.OCR.BaseURL == "" {
		p.OCR.BaseURL = DefaultOCRURL
	}
	if p.LLM.Name == "" {
		p.LLM.Name = "ollama"
	}
	if p.LLM.Name == "ollama" {
		if p.LLM.BaseURL == "" {
			p.LLM.BaseURL = DefaultLLMURL
		}
		if p.LLM.Model == "" {
			p.LLM.Model = DefaultLLMModel
		}
	}
	if p.STT.Name == "" {
		p.STT.Name = "browser"
	}

	st := &cfg.Study
	if st.QuizCount == 0 {
		st.QuizCount = study.DefaultQuestionCount
	}
	if st.QuizDifficulty == "" {
		st.QuizDifficulty = study.DefaultDifficulty
	}
	if st.MaxClaims == 0 {
		st.MaxClaims = study.DefaultMaxClaims
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.ReadinessTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.readiness_timeout %s must not be negative", cfg.Server.ReadinessTimeout))
	}

	// Capture
	c := cfg.Capture
	if c.Interval < 0 {
		errs = append(errs, fmt.Errorf("capture.interval %s must not be negative", c.Interval))
	} else if c.Interval > 0 && c.Interval < time.Second {
		errs = append(errs, fmt.Errorf("capture.interval %s is below the 1s minimum", c.Interval))
	}
	if c.JPEGQuality < 0 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("capture.jpeg_quality %d is out of range [1, 100]", c.JPEGQuality))
	}
	if c.MinTextLength < 0 {
		errs = append(errs, fmt.Errorf("capture.min_text_length %d must not be negative", c.MinTextLength))
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("capture.similarity_threshold %.2f is out of range [0, 1]", c.SimilarityThreshold))
	}

	// Audio and mode
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is out of range [1, 2]", cfg.Audio.Channels))
	}
	if cfg.Audio.MeterInterval < 0 {
		errs = append(errs, fmt.Errorf("audio.meter_interval %s must not be negative", cfg.Audio.MeterInterval))
	}
	if cfg.Mode.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("mode.poll_interval %s must not be negative", cfg.Mode.PollInterval))
	}
	if cfg.Mode.Threshold < 0 || cfg.Mode.Threshold > 1 {
		errs = append(errs, fmt.Errorf("mode.threshold %.2f is out of range [0, 1]", cfg.Mode.Threshold))
	}

	// Study
	if d := cfg.Study.QuizDifficulty; d != "" && !d.IsValid() {
		errs = append(errs, fmt.Errorf("study.quiz_difficulty %q is invalid; valid values: easy, medium, hard", d))
	}
	if cfg.Study.QuizCount < 0 {
		errs = append(errs, fmt.Errorf("study.quiz_count %d must not be negative", cfg.Study.QuizCount))
	}
	if cfg.Study.MaxClaims < 0 {
		errs = append(errs, fmt.Errorf("study.max_claims %d must not be negative", cfg.Study.MaxClaims))
	}

	// Providers
	validateProviderName("ocr", cfg.Providers.OCR.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.STT.Name == "whisper" && cfg.Providers.STT.BaseURL == "" {
		errs = append(errs, errors.New("providers.stt.base_url is required for the whisper provider"))
	}
	for i, fb := range cfg.Providers.LLMFallbacks {
		prefix := fmt.Sprintf("providers.llm_fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName("llm", fb.Name)
	}
	if cfg.Providers.Embeddings.Name == "openai" && cfg.Providers.Embeddings.APIKey == "" {
		slog.Warn("providers.embeddings uses openai without an api_key; requests will rely on OPENAI_API_KEY")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
