// Command studylens is the main entry point for the studylens capture server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/studylens/internal/app"
	"github.com/MrWong99/studylens/internal/config"
	"github.com/MrWong99/studylens/internal/observe"
	"github.com/MrWong99/studylens/internal/resilience"
	"github.com/MrWong99/studylens/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/studylens/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/studylens/pkg/provider/embeddings/openai"
	"github.com/MrWong99/studylens/pkg/provider/llm"
	"github.com/MrWong99/studylens/pkg/provider/llm/anyllm"
	"github.com/MrWong99/studylens/pkg/provider/llm/ollama"
	"github.com/MrWong99/studylens/pkg/provider/ocr"
	"github.com/MrWong99/studylens/pkg/provider/ocr/easyocr"
	"github.com/MrWong99/studylens/pkg/provider/stt"
	"github.com/MrWong99/studylens/pkg/provider/stt/relay"
	"github.com/MrWong99/studylens/pkg/provider/stt/whisper"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (defaults are used when empty)")
	listenAddr := flag.String("listen", "", "override server.listen_addr")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "studylens: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "studylens: %v\n", err)
		}
		return 1
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(&level))

	slog.Info("studylens starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "studylens",
		ServiceVersion: version,
		Registry:       promReg,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(cfg, providers,
		app.WithMetrics(metrics),
		app.WithLogLevel(&level),
		app.WithMetricsHandler(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Service readiness ─────────────────────────────────────────────────────
	// Unreachable services are reported once; the server starts anyway and
	// /readyz keeps reporting them.
	for name, err := range application.Readiness(ctx) {
		slog.Warn("service not ready", "service", name, "err", err)
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, func(_, next *config.Config) {
			if *listenAddr != "" {
				next.Server.ListenAddr = *listenAddr
			}
			if err := application.Reload(ctx, next); err != nil {
				slog.Warn("config reload failed", "err", err)
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer watcher.Stop()
		}
	}

	slog.Info("server ready; press Ctrl+C to shut down", "url", pageURL(cfg))

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── OCR ───────────────────────────────────────────────────────────────────

	reg.RegisterOCR("easyocr", func(entry config.ProviderEntry) (ocr.Provider, error) {
		var opts []easyocr.Option
		if entry.Timeout > 0 {
			opts = append(opts, easyocr.WithTimeout(entry.Timeout))
		}
		return easyocr.New(entry.BaseURL, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	// ollama talks to /api/generate directly; it needs no API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []ollama.Option
		if entry.Timeout > 0 {
			opts = append(opts, ollama.WithTimeout(entry.Timeout))
		}
		return ollama.New(entry.BaseURL, entry.Model, opts...)
	})

	// The hosted backends share the same pattern: optional APIKey + optional
	// BaseURL, served through any-llm.
	for _, backend := range anyllm.Backends {
		if backend == "ollama" {
			continue
		}
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	// browser: the page's speech recogniser posts utterances to the server.
	reg.RegisterSTT("browser", func(config.ProviderEntry) (stt.Provider, error) {
		return relay.New(), nil
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if ms := optInt(entry.Options, "silence_threshold_ms"); ms > 0 {
			opts = append(opts, whisper.WithSilenceThresholdMs(ms))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if entry.Timeout > 0 {
			opts = append(opts, oaembed.WithTimeout(entry.Timeout))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if entry.Timeout > 0 {
			opts = append(opts, ollamaembed.WithTimeout(entry.Timeout))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	for _, kind := range []string{"ocr", "llm", "stt", "embeddings"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// The OCR provider is guarded by a circuit breaker and the LLM by a fallback
// group holding the configured fallbacks.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, error) {
	ps := &app.Providers{}
	fallback := resilience.FallbackConfig{
		Metrics: metrics,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, to resilience.State) {
				slog.Warn("circuit breaker state changed", "breaker", name, "state", to.String())
				metrics.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	}

	// ── OCR (required) ────────────────────────────────────────────────────────
	entry := cfg.Providers.OCR
	o, err := reg.CreateOCR(entry)
	if err != nil {
		return nil, fmt.Errorf("create ocr provider %q: %w", entry.Name, err)
	}
	ps.OCR = resilience.NewOCRBreaker(o, entry.Name, fallback)
	slog.Info("provider created", "kind", "ocr", "name", entry.Name)

	// ── LLM (required) + fallbacks ────────────────────────────────────────────
	entry = cfg.Providers.LLM
	primary, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	group := resilience.NewLLMFallback(primary, entry.Name, fallback)
	slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model)
	for i, fb := range cfg.Providers.LLMFallbacks {
		p, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %d %q: %w", i, fb.Name, err)
		}
		group.AddFallback(fmt.Sprintf("%s#%d", fb.Name, i+1), p)
		slog.Info("provider created", "kind", "llm-fallback", "name", fb.Name, "model", fb.Model)
	}
	ps.LLM = group

	// ── STT (optional) ────────────────────────────────────────────────────────
	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown stt provider; audio mode disabled", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		} else {
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", name)
		}
	}

	// ── Embeddings (optional) ─────────────────────────────────────────────────
	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown embeddings provider; attribution stays proportional", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			ps.Embeddings = p
			slog.Info("provider created", "kind", "embeddings", "name", name)
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        studylens  startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("OCR", cfg.Providers.OCR.Name, "")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	fmt.Printf("║  %-12s    : %-19d ║\n", "Fallbacks", len(cfg.Providers.LLMFallbacks))
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	fmt.Printf("║  Capture every   : %-19s ║\n", cfg.Capture.Interval)
	fmt.Printf("║  Quiz default    : %-19s ║\n", fmt.Sprintf("%d %s", cfg.Study.QuizCount, cfg.Study.QuizDifficulty))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// pageURL is the address to open in a browser.
func pageURL(cfg *config.Config) string {
	scheme := "http"
	if cfg.Server.TLS != nil {
		scheme = "https"
	}
	addr := cfg.Server.ListenAddr
	if len(addr) > 0 && addr[0] == ':' {
		addr = "localhost" + addr
	}
	return scheme + "://" + addr + "/"
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer from a provider Options map. YAML numbers
// decode as int; anything else yields 0.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
