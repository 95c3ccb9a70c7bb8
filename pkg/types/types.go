// Package types defines the shared types used across all studylens packages.
//
// These types are the common vocabulary between providers, the session
// coordinator and the study orchestrator. Each package keeps its own domain
// types; only the cross-cutting structures live here to avoid import cycles.
package types

import "time"

// AudioFrame is a chunk of 16-bit little-endian PCM audio pushed by the
// capture page, either for the volume meter or for server-side transcription.
type AudioFrame struct {
	// Data holds the raw PCM samples.
	Data []byte

	// SampleRate is the sample rate in Hz (e.g., 16000, 44100, 48000).
	SampleRate int

	// Channels is the number of interleaved channels. 1 = mono.
	Channels int

	// Timestamp is the offset of the first sample relative to recording start.
	Timestamp time.Duration
}

// Transcript is a speech-to-text result. Both interim and final results use
// this type; only finals are appended to a session transcript.
type Transcript struct {
	// Text is the recognised utterance.
	Text string

	// IsFinal marks an authoritative result.
	IsFinal bool

	// Confidence is the recogniser's confidence in [0,1]. Zero when unknown.
	Confidence float64

	// Timestamp marks when the utterance started, relative to stream start.
	Timestamp time.Duration
}

// Message is a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsVision indicates the model can process image inputs.
	SupportsVision bool

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool
}
