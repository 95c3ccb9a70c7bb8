package relay_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/studylens/pkg/provider/stt"
	"github.com/MrWong99/studylens/pkg/provider/stt/relay"
	"github.com/MrWong99/studylens/pkg/types"
)

func TestPublishWithoutStream(t *testing.T) {
	p := relay.New()
	if err := p.Publish(types.Transcript{Text: "hello", IsFinal: true}); !errors.Is(err, relay.ErrNoStream) {
		t.Fatalf("Publish error = %v, want ErrNoStream", err)
	}
}

func TestPublishRoutesFinalsAndPartials(t *testing.T) {
	p := relay.New()
	h, err := p.StartStream(context.Background(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer h.Close()

	if err := p.Publish(types.Transcript{Text: "partial", IsFinal: false}); err != nil {
		t.Fatalf("Publish partial: %v", err)
	}
	if err := p.Publish(types.Transcript{Text: "final words", IsFinal: true}); err != nil {
		t.Fatalf("Publish final: %v", err)
	}
	if err := p.Publish(types.Transcript{Text: "   ", IsFinal: true}); err != nil {
		t.Fatalf("Publish blank: %v", err)
	}

	if got := <-h.Partials(); got.Text != "partial" {
		t.Errorf("partial = %q", got.Text)
	}
	if got := <-h.Finals(); got.Text != "final words" {
		t.Errorf("final = %q", got.Text)
	}
	select {
	case got := <-h.Finals():
		t.Errorf("blank text should not be published, got %q", got.Text)
	default:
	}
}

func TestEndClosesStream(t *testing.T) {
	p := relay.New()
	h, _ := p.StartStream(context.Background(), stt.StreamConfig{})

	p.End()
	if p.Active() {
		t.Error("Active() = true after End")
	}
	if _, open := <-h.Finals(); open {
		t.Error("Finals should be closed after End")
	}
	if err := h.SendAudio([]byte{0, 0}); !errors.Is(err, stt.ErrSessionClosed) {
		t.Errorf("SendAudio after End = %v, want ErrSessionClosed", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("Close after End = %v", err)
	}
}

func TestConsumerCloseDetachesStream(t *testing.T) {
	p := relay.New()
	h, _ := p.StartStream(context.Background(), stt.StreamConfig{})

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if p.Active() {
		t.Error("Active() = true after the consumer closed the stream")
	}
	if err := p.Publish(types.Transcript{Text: "late words", IsFinal: true}); !errors.Is(err, relay.ErrNoStream) {
		t.Errorf("Publish after Close = %v, want ErrNoStream", err)
	}
}

func TestStartStreamReplacesPrevious(t *testing.T) {
	p := relay.New()
	first, _ := p.StartStream(context.Background(), stt.StreamConfig{})
	second, _ := p.StartStream(context.Background(), stt.StreamConfig{})
	defer second.Close()

	if _, open := <-first.Finals(); open {
		t.Error("previous stream should be closed")
	}
	if err := p.Publish(types.Transcript{Text: "to second", IsFinal: true}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := <-second.Finals(); got.Text != "to second" {
		t.Errorf("final = %q", got.Text)
	}
}

func TestStartStreamCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := relay.New().StartStream(ctx, stt.StreamConfig{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
