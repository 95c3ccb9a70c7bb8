// Package study turns the text collected during a recording into study
// artefacts: notes, a quiz, and a claim verification report.
//
// Every artefact is produced by prompting an [llm.Provider]. The orchestrator
// holds no session state; callers pass in the collected texts or the notes
// and decide where to keep the result.
package study

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/studylens/internal/observe"
	"github.com/MrWong99/studylens/pkg/provider/embeddings"
	"github.com/MrWong99/studylens/pkg/provider/llm"
	"github.com/MrWong99/studylens/pkg/types"
)

var (
	// ErrNoContent is returned by GenerateNotes when nothing was captured.
	ErrNoContent = errors.New("study: no content captured")

	// ErrNoNotes is returned by GenerateQuiz and Verify before notes exist.
	ErrNoNotes = errors.New("study: no notes generated")
)

const (
	// DefaultQuestionCount is the quiz length when the caller gives none.
	DefaultQuestionCount = 10

	// DefaultDifficulty is the quiz difficulty when the caller gives none.
	DefaultDifficulty = "medium"

	// DefaultMaxClaims caps how many extracted claims are verified.
	DefaultMaxClaims = 5
)

// GenerationError reports a failed notes request. Raw carries the combined
// source text so the caller can still show the user what was collected.
type GenerationError struct {
	Op  string
	Raw string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("study: generate %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Orchestrator issues the notes, quiz and verification requests.
// It is safe for concurrent use.
type Orchestrator struct {
	llm         llm.Provider
	embedder    embeddings.Provider
	metrics     *observe.Metrics
	maxClaims   int
	temperature float64

	mu         sync.RWMutex
	quizCount  int
	difficulty string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEmbeddings enables embedding-based claim attribution.
func WithEmbeddings(p embeddings.Provider) Option {
	return func(o *Orchestrator) { o.embedder = p }
}

// WithMaxClaims caps the number of claims verified. Values <= 0 are ignored.
func WithMaxClaims(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxClaims = n
		}
	}
}

// WithQuizDefaults sets the quiz length and difficulty used when a request
// leaves them empty.
func WithQuizDefaults(count int, difficulty string) Option {
	return func(o *Orchestrator) { o.setQuizDefaults(count, difficulty) }
}

// WithTemperature sets the sampling temperature for every request.
func WithTemperature(t float64) Option {
	return func(o *Orchestrator) { o.temperature = t }
}

// WithMetrics records request latency into m instead of the default metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New returns an Orchestrator that prompts p.
func New(p llm.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		llm:        p,
		maxClaims:  DefaultMaxClaims,
		quizCount:  DefaultQuestionCount,
		difficulty: DefaultDifficulty,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// SetQuizDefaults replaces the quiz defaults. Used on config reload.
func (o *Orchestrator) SetQuizDefaults(count int, difficulty string) {
	o.setQuizDefaults(count, difficulty)
}

func (o *Orchestrator) setQuizDefaults(count int, difficulty string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if count > 0 {
		o.quizCount = count
	}
	if d := strings.TrimSpace(difficulty); d != "" {
		o.difficulty = d
	}
}

func (o *Orchestrator) quizDefaults() (int, string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.quizCount, o.difficulty
}

// complete sends prompt as a single user message and returns the reply. An
// empty reply is ErrMissingResponse.
func (o *Orchestrator) complete(ctx context.Context, kind, prompt string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "study."+kind)
	defer span.End()

	start := time.Now()
	resp, err := o.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: prompt}},
		Temperature: o.temperature,
	})
	o.metrics.RecordLLM(ctx, kind, time.Since(start).Seconds())
	if err == nil && (resp == nil || strings.TrimSpace(resp.Content) == "") {
		err = llm.ErrMissingResponse
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observe.Logger(ctx).Warn("llm request failed", "kind", kind, "err", err)
		return "", err
	}
	return resp.Content, nil
}
