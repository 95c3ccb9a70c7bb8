// Package web is the HTTP surface of studylens.
//
// The capture page talks to the server through a small JSON API and a
// websocket. The page pushes screen frames, recognised utterances and audio;
// the server pushes session events back. Everything that is not an API route
// is served from the static directory.
package web

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/studylens/internal/health"
	"github.com/MrWong99/studylens/internal/observe"
	"github.com/MrWong99/studylens/internal/session"
	"github.com/MrWong99/studylens/internal/study"
	"github.com/MrWong99/studylens/pkg/types"
)

// DefaultMaxBodyBytes caps request bodies. Frames are the largest uploads.
const DefaultMaxBodyBytes = 16 << 20

// Sessions is the part of [session.Manager] the handlers use.
type Sessions interface {
	Start(ctx context.Context, opts session.StartOptions) (session.Summary, error)
	Stop(ctx context.Context) (session.Summary, error)
	Summary(ctx context.Context) (session.Summary, error)

	PushFrame(ctx context.Context, raw []byte) error
	PushLevel(level float64)
	PushAudio(ctx context.Context, f types.AudioFrame) error

	Capture(ctx context.Context, i int) (session.Capture, error)
	Texts(ctx context.Context) ([]session.ExtractedText, error)
	Segments(ctx context.Context) ([]session.TranscriptSegment, error)
	Notes(ctx context.Context) (notes, quiz string, err error)

	GenerateNotes(ctx context.Context) (string, error)
	GenerateQuiz(ctx context.Context, count int, difficulty string) (string, error)
	Verify(ctx context.Context) (study.Report, error)

	Subscribe() (<-chan session.Event, func())
}

var _ Sessions = (*session.Manager)(nil)

// Relay receives speech recognised by the page. The browser STT provider
// implements it.
type Relay interface {
	Publish(t types.Transcript) error
	End()
}

// Option configures a [Server].
type Option func(*Server)

// WithRelay routes utterances and stream-ended notices to r. Without a relay
// the utterance endpoints answer 409.
func WithRelay(r Relay) Option {
	return func(s *Server) { s.relay = r }
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics records HTTP metrics into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler serves h at /metrics instead of the default Prometheus
// registry handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithStaticDir serves the page from dir.
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.staticDir = dir }
}

// WithMaxBodyBytes overrides [DefaultMaxBodyBytes].
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// Server routes HTTP and websocket traffic to the session manager.
type Server struct {
	sessions       Sessions
	relay          Relay
	health         *health.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler
	staticDir      string
	maxBody        int64

	router *mux.Router
}

// New builds a Server for sessions.
func New(sessions Sessions, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		staticDir: "web/static",
		maxBody:   DefaultMaxBodyBytes,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(observe.Middleware(s.metrics))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/session", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/session/start", s.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/session/stop", s.handleStop).Methods(http.MethodPost)

	api.HandleFunc("/frames", s.handleFrame).Methods(http.MethodPost)
	api.HandleFunc("/utterances", s.handleUtterance).Methods(http.MethodPost)
	api.HandleFunc("/audio/level", s.handleLevel).Methods(http.MethodPost)
	api.HandleFunc("/audio/pcm", s.handlePCM).Methods(http.MethodPost)
	api.HandleFunc("/audio/stream-ended", s.handleStreamEnded).Methods(http.MethodPost)

	api.HandleFunc("/captures/{index:[0-9]+}", s.handleCapture).Methods(http.MethodGet)
	api.HandleFunc("/texts", s.handleTexts).Methods(http.MethodGet)
	api.HandleFunc("/transcript", s.handleTranscript).Methods(http.MethodGet)

	api.HandleFunc("/notes", s.handleNotes).Methods(http.MethodPost)
	api.HandleFunc("/notes/export", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/quiz", s.handleQuiz).Methods(http.MethodPost)
	api.HandleFunc("/verify", s.handleVerify).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	r.Handle("/metrics", s.metricsHandler).Methods(http.MethodGet)
	if s.health != nil {
		s.health.Register(r)
	}

	r.PathPrefix("/").Handler(NewStatic(s.staticDir)).Methods(http.MethodGet, http.MethodHead)
	return r
}
