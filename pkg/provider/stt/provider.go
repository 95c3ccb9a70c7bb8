// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A session accepts raw PCM audio and emits two streams of transcripts:
// partials for live captions and finals for the session transcript. When a
// backend ends a stream on its own (the browser recogniser fires "onend", a
// server connection drops) it closes both channels; the consumer decides
// whether to open a new stream.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/studylens/pkg/types"
)

// ErrSessionClosed is returned by SendAudio after the session has ended.
var ErrSessionClosed = errors.New("stt: session is closed")

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz, typically 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag (e.g. "en-US"). Empty lets the
	// backend decide.
	Language string
}

// SessionHandle represents an open streaming session. Callers must call
// Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers a chunk of 16-bit little-endian PCM audio. Backends
	// that capture audio themselves may ignore it. Calling SendAudio after the
	// session ended returns ErrSessionClosed.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. Closed when the session ends.
	Partials() <-chan types.Transcript

	// Finals emits authoritative transcripts. Closed when the session ends.
	Finals() <-chan types.Transcript

	// Close terminates the session and closes both channels. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new transcription session.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
