// Package app wires all studylens subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the study orchestrator,
// the session manager and the HTTP surface, Run serves until the context is
// cancelled, and Shutdown tears everything down in order. Reload applies a
// changed config without a restart where that is possible.
//
// For testing, inject test doubles via functional options (WithMetrics,
// WithListener, etc.) and pass mock providers in [Providers].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/studylens/internal/config"
	"github.com/MrWong99/studylens/internal/health"
	"github.com/MrWong99/studylens/internal/observe"
	"github.com/MrWong99/studylens/internal/session"
	"github.com/MrWong99/studylens/internal/study"
	"github.com/MrWong99/studylens/internal/web"
	"github.com/MrWong99/studylens/pkg/provider/embeddings"
	"github.com/MrWong99/studylens/pkg/provider/llm"
	"github.com/MrWong99/studylens/pkg/provider/ocr"
	"github.com/MrWong99/studylens/pkg/provider/stt"
)

// ErrMissingProvider is returned by New when a required provider slot is nil.
var ErrMissingProvider = errors.New("app: required provider not configured")

// shutdownGrace bounds how long Run waits for in-flight HTTP requests after
// its context is cancelled.
const shutdownGrace = 5 * time.Second

// Providers holds one interface value per provider slot. OCR and LLM are
// required; STT and Embeddings may be nil. Populated by main.go via the
// config registry.
type Providers struct {
	OCR        ocr.Provider
	LLM        llm.Provider
	STT        stt.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	providers *Providers
	metrics   *observe.Metrics
	logLevel  *slog.LevelVar
	listener  net.Listener
	scrape    http.Handler
	tls       *config.TLSConfig
	extra     []health.Checker

	mu  sync.Mutex
	cfg *config.Config

	// Subsystems, initialised in New and torn down in Shutdown.
	study   *study.Orchestrator
	manager *session.Manager
	health  *health.Handler
	web     *web.Server
	server  *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics records metrics into m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets Reload change the log level at runtime. main.go passes
// the LevelVar its handler was built with.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithListener serves on ln instead of listening on cfg.Server.ListenAddr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithMetricsHandler serves h at /metrics. main.go passes a handler bound to
// the registry the OTel Prometheus exporter writes into.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// WithReadinessCheck adds a checker to /readyz next to the provider probes.
func WithReadinessCheck(c health.Checker) Option {
	return func(a *App) { a.extra = append(a.extra, c) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Nothing is started
// until Run is called.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.OCR == nil {
		return nil, fmt.Errorf("%w: ocr", ErrMissingProvider)
	}
	if providers.LLM == nil {
		return nil, fmt.Errorf("%w: llm", ErrMissingProvider)
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Study orchestrator ────────────────────────────────────────────
	a.initStudy()

	// ── 2. Session manager ───────────────────────────────────────────────
	a.manager = session.NewManager(
		SessionConfig(cfg),
		providers.OCR,
		providers.STT,
		a.study,
		session.WithMetrics(a.metrics),
	)

	// ── 3. Readiness checks ──────────────────────────────────────────────
	a.health = health.New(a.checkers(), health.WithTimeout(cfg.Server.ReadinessTimeout))

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.initWeb()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initStudy() {
	opts := []study.Option{
		study.WithMaxClaims(a.cfg.Study.MaxClaims),
		study.WithQuizDefaults(a.cfg.Study.QuizCount, string(a.cfg.Study.QuizDifficulty)),
		study.WithTemperature(a.cfg.Study.Temperature),
		study.WithMetrics(a.metrics),
	}
	if a.providers.Embeddings != nil {
		opts = append(opts, study.WithEmbeddings(a.providers.Embeddings))
		slog.Debug("verification attribution uses embeddings", "model", a.providers.Embeddings.ModelID())
	}
	a.study = study.New(a.providers.LLM, opts...)
}

// checkers returns one readiness check per provider that exposes a probe.
func (a *App) checkers() []health.Checker {
	checks := []health.Checker{health.Provider("ocr", a.providers.OCR)}
	if p, ok := a.providers.LLM.(health.Pinger); ok {
		checks = append(checks, health.Provider("llm", p))
	}
	if p, ok := a.providers.STT.(health.Pinger); ok {
		checks = append(checks, health.Provider("stt", p))
	}
	return append(checks, a.extra...)
}

func (a *App) initWeb() {
	opts := []web.Option{
		web.WithHealth(a.health),
		web.WithMetrics(a.metrics),
	}
	if dir := a.cfg.Server.StaticDir; dir != "" {
		opts = append(opts, web.WithStaticDir(dir))
	}
	if a.scrape != nil {
		opts = append(opts, web.WithMetricsHandler(a.scrape))
	}
	// The browser STT provider receives utterances from the page.
	if r, ok := a.providers.STT.(web.Relay); ok {
		opts = append(opts, web.WithRelay(r))
	}
	a.web = web.New(a.manager, opts...)

	a.tls = a.cfg.Server.TLS
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.web,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.closers = append(a.closers, a.server.Close)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler serving the page, the API and the
// operational endpoints.
func (a *App) Handler() http.Handler { return a.web }

// Manager returns the session manager.
func (a *App) Manager() *session.Manager { return a.manager }

// Readiness runs every readiness check once and returns the failures, or nil
// when all passed.
func (a *App) Readiness(ctx context.Context) map[string]error {
	a.mu.Lock()
	timeout := a.cfg.Server.ReadinessTimeout
	a.mu.Unlock()
	return health.Probe(ctx, timeout, a.checkers()...)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the session manager and the HTTP server and blocks until ctx is
// cancelled or either of them fails. On cancellation the HTTP server drains
// in-flight requests for a short grace period and Run returns nil.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.manager.Run(gctx)
	})

	g.Go(func() error {
		err := a.serve()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown", "err", err)
		}
		return nil
	})

	slog.Info("app running", "addr", a.addr(), "tls", a.tls != nil)
	return g.Wait()
}

func (a *App) serve() error {
	tls := a.tls
	switch {
	case a.listener != nil && tls != nil:
		return a.server.ServeTLS(a.listener, tls.CertFile, tls.KeyFile)
	case a.listener != nil:
		return a.server.Serve(a.listener)
	case tls != nil:
		return a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	default:
		return a.server.ListenAndServe()
	}
}

func (a *App) addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.server.Addr
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable parts of cfg: the log level, capture and
// mode settings, and quiz defaults. Changes to anything else are logged and
// take effect after a restart.
func (a *App) Reload(ctx context.Context, cfg *config.Config) error {
	a.mu.Lock()
	old := a.cfg
	a.mu.Unlock()

	d := config.Diff(old, cfg)
	if d.Empty() {
		return nil
	}

	var errs []error
	if d.LogLevelChanged {
		if a.logLevel != nil {
			a.logLevel.Set(SlogLevel(d.NewLogLevel))
		}
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SessionChanged {
		if err := a.manager.Reconfigure(ctx, SessionConfig(cfg)); err != nil {
			errs = append(errs, fmt.Errorf("app: reload session settings: %w", err))
		}
	}
	if d.StudyChanged {
		a.study.SetQuizDefaults(cfg.Study.QuizCount, string(cfg.Study.QuizDifficulty))
		slog.Info("quiz defaults changed", "count", cfg.Study.QuizCount, "difficulty", cfg.Study.QuizDifficulty)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart", "sections", d.RestartRequired)
	}

	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	return errors.Join(errs...)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// SessionConfig converts the capture, audio and mode sections of cfg into
// session manager settings.
func SessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		CaptureInterval:     cfg.Capture.Interval,
		FrameMaxAge:         cfg.Capture.FrameMaxAge,
		JPEGQuality:         cfg.Capture.JPEGQuality,
		MinTextLength:       cfg.Capture.MinTextLength,
		SimilarityThreshold: cfg.Capture.SimilarityThreshold,
		MeterInterval:       cfg.Audio.MeterInterval,
		PollInterval:        cfg.Mode.PollInterval,
		ModeThreshold:       cfg.Mode.Threshold,
		Stream: stt.StreamConfig{
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
			Language:   cfg.Audio.Language,
		},
	}
}

// SlogLevel converts a config.LogLevel to the matching slog.Level. Unknown
// values map to info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
