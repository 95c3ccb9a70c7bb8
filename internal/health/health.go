// Package health provides HTTP health and readiness check handlers.
//
// The package exposes two endpoints:
//
//   - /healthz is the liveness probe and always returns 200 OK.
//   - /readyz is the readiness probe; it returns 200 only when all registered
//     [Checker] functions pass. For studylens that means the OCR service and
//     the LLM backend answer their health endpoints.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map containing the result of each named checker.
//
// The same checkers back the startup probe in cmd/studylens: [Probe] runs them
// once and the caller warns about each failure without blocking startup.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout is the maximum time a single readiness check may take before
// its context is cancelled.
const DefaultTimeout = 5 * time.Second

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short label for this check (e.g. "ocr", "llm"). It appears
	// as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// Pinger is implemented by every provider that exposes a health probe.
type Pinger interface {
	Health(ctx context.Context) error
}

// Provider returns a [Checker] that calls p.Health.
func Provider(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Health}
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Option configures a [Handler].
type Option func(*Handler)

// WithTimeout overrides [DefaultTimeout]. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// Handler serves /healthz and /readyz endpoints. It is safe for concurrent
// use; the checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{
		checkers: append([]Checker(nil), checkers...),
		timeout:  DefaultTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Checker] passes. Checks run concurrently, each with its own timeout derived
// from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	errs := Probe(r.Context(), h.timeout, h.checkers...)

	checks := make(map[string]string, len(h.checkers))
	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	for _, c := range h.checkers {
		if err := errs[c.Name]; err != nil {
			checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/healthz", h.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.Readyz).Methods(http.MethodGet)
}

// Probe runs every checker concurrently and returns the failures keyed by
// checker name. A nil map means everything passed.
func Probe(ctx context.Context, timeout time.Duration, checkers ...Checker) map[string]error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var (
		mu   sync.Mutex
		errs map[string]error
		g    errgroup.Group
	)
	for _, c := range checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := c.Check(cctx); err != nil {
				mu.Lock()
				if errs == nil {
					errs = make(map[string]error)
				}
				errs[c.Name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
