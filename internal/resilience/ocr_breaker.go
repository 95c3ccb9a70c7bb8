package resilience

import (
	"context"

	"github.com/MrWong99/studylens/pkg/provider/ocr"
)

// OCRBreaker implements [ocr.Provider] with a circuit breaker in front of a
// single backend. While the breaker is open Recognize returns
// [ErrCircuitOpen] at once; the capture loop logs it like any other OCR
// failure. Health bypasses the breaker so readiness reflects the backend.
type OCRBreaker struct {
	group *FallbackGroup[ocr.Provider]
}

var _ ocr.Provider = (*OCRBreaker)(nil)

// NewOCRBreaker wraps p. name labels logs and metrics.
func NewOCRBreaker(p ocr.Provider, name string, cfg FallbackConfig) *OCRBreaker {
	if cfg.Kind == "" {
		cfg.Kind = "ocr"
	}
	return &OCRBreaker{group: NewFallbackGroup(p, name, cfg)}
}

// Recognize implements [ocr.Provider].
func (b *OCRBreaker) Recognize(ctx context.Context, img ocr.Image) (ocr.Result, error) {
	return ExecuteWithResult(ctx, b.group, func(p ocr.Provider) (ocr.Result, error) {
		return p.Recognize(ctx, img)
	})
}

// Health implements [ocr.Provider].
func (b *OCRBreaker) Health(ctx context.Context) error {
	return b.group.Primary().Health(ctx)
}

// State returns the breaker's current state.
func (b *OCRBreaker) State() State {
	return b.group.entries[0].breaker.State()
}
