package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/MrWong99/studylens/pkg/provider/stt"
	"github.com/MrWong99/studylens/pkg/types"
)

// audioQueue is how many PCM chunks may wait for a slow STT backend before
// new chunks are dropped.
const audioQueue = 32

// pipeline is one open transcription stream. It forwards transcripts from the
// stream to the manager's inbox and feeds queued audio to the stream. gen
// tells a stream that ended on its own apart from one the manager replaced.
type pipeline struct {
	gen    uint64
	token  uint64
	handle stt.SessionHandle
	audio  chan []byte
	stop   chan struct{}
	once   sync.Once
}

func newPipeline(gen, token uint64, handle stt.SessionHandle) *pipeline {
	return &pipeline{
		gen:    gen,
		token:  token,
		handle: handle,
		audio:  make(chan []byte, audioQueue),
		stop:   make(chan struct{}),
	}
}

// run starts the forwarding goroutines. onPartial and onFinal are called for
// every transcript, onEnded once after both stream channels closed.
func (p *pipeline) run(onPartial, onFinal func(types.Transcript), onEnded func()) {
	go p.feed()
	go func() {
		partials, finals := p.handle.Partials(), p.handle.Finals()
		for partials != nil || finals != nil {
			select {
			case t, ok := <-partials:
				if !ok {
					partials = nil
					continue
				}
				onPartial(t)
			case t, ok := <-finals:
				if !ok {
					finals = nil
					continue
				}
				onFinal(t)
			}
		}
		onEnded()
	}()
}

func (p *pipeline) feed() {
	for {
		select {
		case <-p.stop:
			return
		case chunk := <-p.audio:
			if err := p.handle.SendAudio(chunk); err != nil {
				if errors.Is(err, stt.ErrSessionClosed) {
					return
				}
				slog.Debug("stt send audio failed", "err", err)
			}
		}
	}
}

// enqueue queues chunk for the stream and reports whether it fit.
func (p *pipeline) enqueue(chunk []byte) bool {
	select {
	case p.audio <- chunk:
		return true
	default:
		return false
	}
}

// close stops feeding audio and closes the stream in the background, since
// some backends flush pending speech on Close. Safe to call repeatedly.
func (p *pipeline) close() {
	p.once.Do(func() {
		close(p.stop)
		go func() {
			if err := p.handle.Close(); err != nil {
				slog.Warn("closing transcription stream", "err", err)
			}
		}()
	})
}
