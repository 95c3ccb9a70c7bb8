// Package mock provides test doubles for the stt package interfaces.
//
// Provider hands out a fresh Session per StartStream call so tests can end a
// stream (close its Finals channel) and observe the consumer opening the next
// one.
//
// Example:
//
//	p := &mock.Provider{}
//	handle, _ := p.StartStream(ctx, cfg)
//	p.Last().Emit("hello")
//	p.Last().End()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/studylens/pkg/provider/stt"
	"github.com/MrWong99/studylens/pkg/types"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// StartStreamErr, if non-nil, is returned by StartStream.
	StartStreamErr error

	// Configs records the StreamConfig of every StartStream call.
	Configs []stt.StreamConfig

	// Sessions holds every session handed out, in order.
	Sessions []*Session
}

var _ stt.Provider = (*Provider)(nil)

// StartStream records the call and returns a new Session.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Configs = append(p.Configs, cfg)
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	s := NewSession()
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// SetStartStreamErr sets StartStreamErr while StartStream may be running
// concurrently.
func (p *Provider) SetStartStreamErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamErr = err
}

// Calls returns the number of StartStream calls, including failed ones.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Configs)
}

// Starts returns the number of sessions started so far.
func (p *Provider) Starts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Sessions)
}

// Last returns the most recently started session, or nil.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Sessions) == 0 {
		return nil
	}
	return p.Sessions[len(p.Sessions)-1]
}

// Session is a mock implementation of stt.SessionHandle.
type Session struct {
	mu       sync.Mutex
	partials chan types.Transcript
	finals   chan types.Transcript
	ended    bool

	// Audio records every chunk passed to SendAudio.
	Audio [][]byte

	// CloseCalls counts Close invocations.
	CloseCalls int
}

var _ stt.SessionHandle = (*Session)(nil)

// NewSession returns a Session with buffered channels.
func NewSession() *Session {
	return &Session{
		partials: make(chan types.Transcript, 16),
		finals:   make(chan types.Transcript, 16),
	}
}

// Emit publishes text as a final transcript. It is a no-op after End.
func (s *Session) Emit(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.finals <- types.Transcript{Text: text, IsFinal: true}
	}
}

// End closes both channels, simulating the backend ending the stream.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.end()
}

func (s *Session) end() {
	if s.ended {
		return
	}
	s.ended = true
	close(s.partials)
	close(s.finals)
}

// SendAudio records a copy of chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return stt.ErrSessionClosed
	}
	s.Audio = append(s.Audio, append([]byte(nil), chunk...))
	return nil
}

// AudioCalls returns the number of SendAudio calls recorded.
func (s *Session) AudioCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Audio)
}

func (s *Session) Partials() <-chan types.Transcript { return s.partials }
func (s *Session) Finals() <-chan types.Transcript   { return s.finals }

// Close records the call and ends the session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	s.end()
	return nil
}

// Closed reports whether Close was called at least once.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCalls > 0
}
