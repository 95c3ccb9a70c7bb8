package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/studylens/internal/mode"
	"github.com/MrWong99/studylens/internal/observe"
)

// EventType names a session event.
type EventType string

const (
	EventRecordingStarted  EventType = "recording_started"
	EventRecordingStopped  EventType = "recording_stopped"
	EventCaptureStored     EventType = "capture_stored"
	EventTextAccepted      EventType = "text_accepted"
	EventTranscript        EventType = "transcript"
	EventPartial           EventType = "partial"
	EventScreenshots       EventType = "screenshots"
	EventTranscription     EventType = "transcription"
	EventModeSwitched      EventType = "mode_switched"
	EventDuration          EventType = "duration"
	EventLevel             EventType = "level"
	EventNotesReady        EventType = "notes_ready"
	EventQuizReady         EventType = "quiz_ready"
	EventVerificationReady EventType = "verification_ready"
)

// Event is pushed to subscribers. Data holds one of the payload types below,
// or a Summary for the recording and artefact events.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Time      time.Time `json:"time"`
	Data      any       `json:"data,omitempty"`
}

// CaptureStored announces a new capture.
type CaptureStored struct {
	Index   int    `json:"index"`
	Elapsed string `json:"elapsed"`
}

// TextAccepted announces an extracted text.
type TextAccepted struct {
	CaptureIndex int    `json:"capture_index"`
	Text         string `json:"text"`
	Words        int    `json:"words"`
	TotalWords   int    `json:"total_words"`
}

// TranscriptAdded carries a final or interim utterance.
type TranscriptAdded struct {
	Text       string `json:"text"`
	Words      int    `json:"words,omitempty"`
	TotalWords int    `json:"total_words,omitempty"`
}

// PipelineState reports a pipeline starting or stopping. Restarted marks a
// transcription stream reopened after it ended on its own; the page restarts
// its recogniser when it sees it.
type PipelineState struct {
	Active    bool `json:"active"`
	Restarted bool `json:"restarted,omitempty"`
}

// ModeSwitched reports an auto-mode switch.
type ModeSwitched struct {
	Mode   mode.Mode `json:"mode"`
	Active mode.Mode `json:"active"`
}

// Duration is the recording clock.
type Duration struct {
	Seconds int    `json:"seconds"`
	Display string `json:"display"`
}

// Level is the current volume level in [0,1].
type Level struct {
	Level float64 `json:"level"`
}

// Broker fans events out to subscribers. Each subscriber has a buffered
// channel; when it is full the event is dropped for that subscriber only.
type Broker struct {
	mu      sync.Mutex
	subs    map[uint64]chan Event
	next    uint64
	buffer  int
	closed  bool
	metrics *observe.Metrics
}

// NewBroker returns a Broker whose subscriber channels hold buffer events.
func NewBroker(buffer int, m *observe.Metrics) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Broker{subs: make(map[uint64]chan Event), buffer: buffer, metrics: m}
}

// Subscribe registers a subscriber. The returned function unsubscribes and
// closes the channel; it is safe to call more than once. After Close the
// channel is returned already closed.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	b.metrics.EventSubscribers.Add(context.Background(), 1)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
				b.metrics.EventSubscribers.Add(context.Background(), -1)
			}
		})
	}
}

// Publish delivers e to every subscriber without blocking.
func (b *Broker) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.metrics.EventsDropped.Add(context.Background(), 1)
			slog.Warn("dropping session event for slow subscriber", "type", e.Type, "subscriber", id)
		}
	}
}

// Len returns the number of subscribers.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
		b.metrics.EventSubscribers.Add(context.Background(), -1)
	}
}
