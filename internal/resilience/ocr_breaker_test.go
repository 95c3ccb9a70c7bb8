package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/studylens/pkg/provider/ocr"
	ocrmock "github.com/MrWong99/studylens/pkg/provider/ocr/mock"
)

func TestOCRBreaker_PassesThrough(t *testing.T) {
	backend := &ocrmock.Provider{Text: "Photosynthesis converts light"}
	b := NewOCRBreaker(backend, "easyocr", FallbackConfig{Metrics: noopMetrics(t)})

	res, err := b.Recognize(context.Background(), ocr.Image{Data: []byte{1}, MIME: "image/jpeg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "Photosynthesis converts light" {
		t.Errorf("Text = %q", res.Text)
	}
	if backend.Calls() != 1 {
		t.Errorf("backend calls = %d, want 1", backend.Calls())
	}
}

func TestOCRBreaker_OpensAndFailsFast(t *testing.T) {
	down := errors.New("connection refused")
	backend := &ocrmock.Provider{Err: down}
	b := NewOCRBreaker(backend, "easyocr", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
		Metrics:        noopMetrics(t),
	})

	for range 2 {
		if _, err := b.Recognize(context.Background(), ocr.Image{}); !errors.Is(err, down) {
			t.Fatalf("err = %v, want backend error unwrapped", err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	_, err := b.Recognize(context.Background(), ocr.Image{})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if backend.Calls() != 2 {
		t.Errorf("backend calls = %d, want 2 (open breaker must not call)", backend.Calls())
	}
}

func TestOCRBreaker_HealthBypassesBreaker(t *testing.T) {
	backend := &ocrmock.Provider{Err: errors.New("boom")}
	b := NewOCRBreaker(backend, "easyocr", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
		Metrics:        noopMetrics(t),
	})
	_, _ = b.Recognize(context.Background(), ocr.Image{})
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	if err := b.Health(context.Background()); err != nil {
		t.Errorf("Health = %v, want nil from healthy backend", err)
	}
	backend.HealthErr = errors.New("unreachable")
	if err := b.Health(context.Background()); err == nil {
		t.Error("Health = nil, want backend error")
	}
}
