// Package relay provides the "browser" STT provider: recognition runs in the
// capture page (the Web Speech API) and the page posts each final utterance
// to the server, which publishes it into the active stream.
//
// Only one stream is live at a time. Starting a new stream ends the previous
// one. End closes the live stream the same way the page's recogniser ending
// does, so the consumer sees an ordinary stream termination.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MrWong99/studylens/pkg/provider/stt"
	"github.com/MrWong99/studylens/pkg/types"
)

// ErrNoStream is returned by Publish when no stream is open.
var ErrNoStream = errors.New("relay: no active stream")

var _ stt.Provider = (*Provider)(nil)

// Provider relays page-side recognition results into stt sessions.
type Provider struct {
	mu      sync.Mutex
	current *session
}

// New returns an idle Provider.
func New() *Provider {
	return &Provider{}
}

// StartStream implements stt.Provider.
func (p *Provider) StartStream(ctx context.Context, _ stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("relay: start stream: %w", err)
	}
	s := &session{
		owner:    p,
		partials: make(chan types.Transcript, 16),
		finals:   make(chan types.Transcript, 64),
	}

	p.mu.Lock()
	prev := p.current
	p.current = s
	p.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return s, nil
}

// Publish delivers one utterance recognised by the page. Interim results go
// to Partials, finals to Finals. Blank text is ignored.
func (p *Provider) Publish(t types.Transcript) error {
	if strings.TrimSpace(t.Text) == "" {
		return nil
	}
	p.mu.Lock()
	s := p.current
	p.mu.Unlock()
	if s == nil {
		return ErrNoStream
	}
	return s.publish(t)
}

// End terminates the live stream, if any.
func (p *Provider) End() {
	p.mu.Lock()
	s := p.current
	p.current = nil
	p.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

// release forgets s if it is still the live stream.
func (p *Provider) release(s *session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == s {
		p.current = nil
	}
}

// Active reports whether a stream is open.
func (p *Provider) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

type session struct {
	owner    *Provider
	mu       sync.Mutex
	closed   bool
	partials chan types.Transcript
	finals   chan types.Transcript
}

// SendAudio accepts and discards audio: the page recognises speech itself.
func (s *session) SendAudio([]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	return nil
}

func (s *session) Partials() <-chan types.Transcript { return s.partials }
func (s *session) Finals() <-chan types.Transcript   { return s.finals }

func (s *session) publish(t types.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	out := s.finals
	if !t.IsFinal {
		out = s.partials
	}
	select {
	case out <- t:
		return nil
	default:
		return fmt.Errorf("relay: transcript buffer full, dropping %q", t.Text)
	}
}

// Close closes both channels and detaches the session from its provider, so
// later utterances report ErrNoStream.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.partials)
	close(s.finals)
	s.mu.Unlock()

	s.owner.release(s)
	return nil
}
