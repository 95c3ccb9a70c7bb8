// Package whisper provides a server-side STT provider backed by a running
// whisper.cpp server (POST /inference).
//
// Use it when the capture page streams microphone or tab audio to studylens
// instead of recognising speech in the browser. whisper.cpp transcribes in
// batches, so the session buffers PCM, splits utterances with an energy-based
// silence detector, and submits each completed utterance as one request. Each
// result is emitted as a partial and a final with identical text.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8081", whisper.WithLanguage("en"))
//	handle, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
//	handle.SendAudio(pcmChunk)
//	transcript := <-handle.Finals()
//	handle.Close()
package whisper

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/studylens/pkg/audio"
	"github.com/MrWong99/studylens/pkg/provider/stt"
	"github.com/MrWong99/studylens/pkg/types"
)

const (
	// defaultRMSThreshold is the RMS level (16-bit PCM units) below which a
	// chunk counts as silence. 300 is close to room noise.
	defaultRMSThreshold = 300.0

	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model name forwarded to the server. Empty uses whatever
// model the server was started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSampleRate sets the default sample rate for streams that do not specify
// one. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithSilenceThresholdMs sets how much trailing silence ends an utterance.
// Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) {
		p.silenceThresholdMs = ms
	}
}

// WithMaxBufferDurationMs caps the length of one utterance; continuous speech
// is flushed once the buffer reaches it. Defaults to 10 s.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) {
		p.maxBufferDurationMs = ms
	}
}

// Provider implements stt.Provider against a whisper.cpp HTTP server.
type Provider struct {
	serverURL           string
	model               string
	language            string
	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
	httpClient          *http.Client
}

// New creates a Provider for the server at serverURL, which must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:           strings.TrimRight(serverURL, "/"),
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
		httpClient:          &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Health probes the server's GET /health endpoint. whisper.cpp answers 503
// while the model is still loading.
func (p *Provider) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("whisper: health: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whisper: health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whisper: health: server returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// StartStream opens a new session. No connection is made until the first
// utterance is flushed.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: start stream: %w", err)
	}

	s := &session{
		p:        p,
		language: cmp.Or(cfg.Language, p.language),
		rate:     p.sampleRate,
		channels: max(cfg.Channels, 1),
		audioCh:  make(chan []byte, 256),
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
		done:     make(chan struct{}),
		started:  time.Now(),
	}
	if cfg.SampleRate > 0 {
		s.rate = cfg.SampleRate
	}

	s.wg.Add(1)
	go s.processLoop(ctx)
	return s, nil
}

// ── session ──────────────────────────────────────────────────────────────────

// session buffers audio for one stream. Buffer state is confined to the
// processLoop goroutine.
type session struct {
	p        *Provider
	language string
	rate     int
	channels int
	started  time.Time

	audioCh  chan []byte
	partials chan types.Transcript
	finals   chan types.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

func (s *session) Partials() <-chan types.Transcript { return s.partials }
func (s *session) Finals() <-chan types.Transcript   { return s.finals }

// Close flushes pending speech, closes both channels and waits for the
// processing goroutine.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		buffer     []byte
		hadSpeech  bool
		silenceMs  int
		utterStart time.Duration
	)

	bytesPerMs := s.rate * s.channels * 2 / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}
	maxBufferBytes := s.p.maxBufferDurationMs * bytesPerMs

	flush := func(fctx context.Context) {
		pcm, start := buffer, utterStart
		speech := hadSpeech
		buffer, hadSpeech, silenceMs = nil, false, 0
		if len(pcm) == 0 || !speech {
			return
		}

		text, err := s.infer(fctx, pcm)
		if err != nil {
			slog.Warn("whisper: inference failed", "err", err)
			return
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		// Buffered channels; skip rather than block during shutdown.
		select {
		case s.partials <- types.Transcript{Text: text, Timestamp: start}:
		default:
		}
		select {
		case s.finals <- types.Transcript{Text: text, IsFinal: true, Timestamp: start}:
		default:
		}
	}

	// The final flush gets its own context: ctx may already be cancelled.
	finalFlush := func() {
		fc, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		flush(fc)
	}

	for {
		select {
		case <-ctx.Done():
			finalFlush()
			return
		case <-s.done:
			finalFlush()
			return
		case chunk := <-s.audioCh:
			mono := audio.DownmixMono(chunk, s.channels)
			chunkMs := len(chunk) / bytesPerMs

			if audio.RMS(mono) < defaultRMSThreshold {
				// Leading silence is dropped.
				if hadSpeech {
					silenceMs += chunkMs
					buffer = append(buffer, chunk...)
					if silenceMs >= s.p.silenceThresholdMs {
						flush(ctx)
					}
				}
				continue
			}

			if !hadSpeech {
				utterStart = time.Since(s.started)
			}
			hadSpeech = true
			silenceMs = 0
			buffer = append(buffer, chunk...)
			if maxBufferBytes > 0 && len(buffer) >= maxBufferBytes {
				flush(ctx)
			}
		}
	}
}

// infer uploads pcm as a WAV file to POST /inference.
func (s *session) infer(ctx context.Context, pcm []byte) (string, error) {
	wav, err := audio.EncodeWAV(pcm, s.rate, s.channels)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"language":        s.language,
		"model":           s.p.model,
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.Text, nil
}

