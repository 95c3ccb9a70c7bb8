package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/studylens/internal/mode"
	"github.com/MrWong99/studylens/internal/observe"
	"github.com/MrWong99/studylens/internal/study"
	"github.com/MrWong99/studylens/pkg/audio"
	"github.com/MrWong99/studylens/pkg/frame"
	"github.com/MrWong99/studylens/pkg/provider/ocr"
	"github.com/MrWong99/studylens/pkg/provider/stt"
	"github.com/MrWong99/studylens/pkg/types"
)

var (
	// ErrAlreadyRecording is returned by Start while a recording runs.
	ErrAlreadyRecording = errors.New("session: already recording")

	// ErrNotRecording is returned by Stop when nothing is recording.
	ErrNotRecording = errors.New("session: not recording")

	// ErrNoFrame means the page has not pushed a recent frame yet.
	ErrNoFrame = errors.New("session: no frame available")

	// ErrBadFrame wraps a pushed frame that could not be decoded.
	ErrBadFrame = errors.New("session: bad frame")

	// ErrCaptureNotFound is returned for a capture index out of range.
	ErrCaptureNotFound = errors.New("session: capture not found")

	// ErrNoTranscriber is returned when audio is needed but no STT provider
	// is configured.
	ErrNoTranscriber = errors.New("session: no transcription provider configured")

	// ErrSessionChanged is returned when a new recording started while a
	// notes, quiz or verification request was running. The result is
	// discarded.
	ErrSessionChanged = errors.New("session: recording restarted during request")

	// ErrClosed is returned once the manager stopped running.
	ErrClosed = errors.New("session: manager closed")
)

const (
	// DefaultCaptureInterval is the time between screenshots.
	DefaultCaptureInterval = 20 * time.Second

	// DefaultFrameMaxAge is how old the latest pushed frame may be and still
	// be captured.
	DefaultFrameMaxAge = 10 * time.Second

	inboxSize = 64
)

// Generator produces study artefacts. *study.Orchestrator implements it.
type Generator interface {
	GenerateNotes(ctx context.Context, texts, segments []string) (string, error)
	GenerateQuiz(ctx context.Context, notes string, count int, difficulty string) (string, error)
	Verify(ctx context.Context, notes string, evidence []study.Evidence, captureCount int) (study.Report, error)
}

var _ Generator = (*study.Orchestrator)(nil)

// Config holds the manager's tunables. Zero fields take defaults.
type Config struct {
	// CaptureInterval is the default time between screenshots.
	CaptureInterval time.Duration

	// FrameMaxAge bounds how stale the latest frame may be. Negative
	// disables the check.
	FrameMaxAge time.Duration

	// JPEGQuality is used when normalising pushed frames.
	JPEGQuality int

	MinTextLength       int
	SimilarityThreshold float64

	// MeterInterval is how often the volume level is sampled and published.
	MeterInterval time.Duration

	// PollInterval is how often auto mode re-evaluates the volume level.
	PollInterval time.Duration

	// ModeThreshold is the auto-mode volume threshold.
	ModeThreshold float64

	// Stream is passed to the STT provider for every new stream.
	Stream stt.StreamConfig

	// EventBuffer is the per-subscriber event channel size.
	EventBuffer int
}

func (c Config) withDefaults() Config {
	if c.CaptureInterval <= 0 {
		c.CaptureInterval = DefaultCaptureInterval
	}
	if c.FrameMaxAge == 0 {
		c.FrameMaxAge = DefaultFrameMaxAge
	}
	if c.JPEGQuality <= 0 {
		c.JPEGQuality = frame.DefaultQuality
	}
	if c.MinTextLength <= 0 {
		c.MinTextLength = DefaultMinTextLength
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if c.MeterInterval <= 0 {
		c.MeterInterval = audio.DefaultMeterInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = mode.DefaultPollInterval
	}
	if c.ModeThreshold <= 0 {
		c.ModeThreshold = mode.DefaultThreshold
	}
	if c.Stream.SampleRate <= 0 {
		c.Stream.SampleRate = audio.SpeechFormat.SampleRate
	}
	if c.Stream.Channels <= 0 {
		c.Stream.Channels = audio.SpeechFormat.Channels
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
	return c
}

// StartOptions configures one recording.
type StartOptions struct {
	// Mode selects the pipelines. Empty means visual.
	Mode mode.Mode

	// Interval overrides the capture interval. Values <= 0 use the
	// configured default.
	Interval time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records into m instead of the default metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(mg *Manager) { mg.metrics = m }
}

// WithMeter replaces the volume meter.
func WithMeter(meter *audio.Meter) Option {
	return func(mg *Manager) { mg.meter = meter }
}

type latestFrame struct {
	img frame.Image
	at  time.Time
}

// Manager coordinates the live session. Call Run exactly once; every other
// method may be called from any goroutine.
type Manager struct {
	ocr       ocr.Provider
	stt       stt.Provider
	gen       Generator
	metrics   *observe.Metrics
	meter     *audio.Meter
	broker    *Broker
	converter *audio.FormatConverter
	quality   int

	inbox   chan func()
	done    chan struct{}
	running atomic.Bool

	// Everything below is owned by the Run goroutine.
	ctx      context.Context
	cfg      Config
	sess     Session
	ctrl     mode.Controller
	gate     Gate
	latest   *latestFrame
	level    float64
	interval time.Duration
	pipe     *pipeline
	pipeGen  uint64
	capture  *time.Ticker
	poll     *time.Ticker
	clock    *time.Ticker
}

// NewManager returns a Manager. sttp may be nil when only visual mode is
// used.
func NewManager(cfg Config, ocrp ocr.Provider, sttp stt.Provider, gen Generator, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	target := audio.Format{SampleRate: cfg.Stream.SampleRate, Channels: cfg.Stream.Channels}
	m := &Manager{
		ocr:       ocrp,
		stt:       sttp,
		gen:       gen,
		converter: &audio.FormatConverter{Target: target},
		quality:   cfg.JPEGQuality,
		inbox:     make(chan func(), inboxSize),
		done:      make(chan struct{}),
		ctx:       context.Background(),
		cfg:       cfg,
		ctrl:      mode.New(cfg.ModeThreshold),
		gate:      NewGate(cfg.MinTextLength, cfg.SimilarityThreshold),
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	if m.meter == nil {
		m.meter = audio.NewMeter()
	}
	m.broker = NewBroker(cfg.EventBuffer, m.metrics)
	return m
}

// Run processes the inbox until ctx is cancelled. In-flight OCR and
// transcription work uses ctx, so cancelling it also abandons those.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("session: manager already running")
	}
	m.ctx = ctx
	defer m.shutdown()

	go m.meter.Run(ctx, m.cfg.MeterInterval, func(level float64) {
		m.post(func() { m.onLevel(level) })
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-m.inbox:
			fn()
		case <-tickC(m.capture):
			m.onCaptureTick()
		case <-tickC(m.poll):
			m.onPoll()
		case <-tickC(m.clock):
			m.onClock()
		}
	}
}

func (m *Manager) shutdown() {
	m.stopPipeline()
	m.capture = stopTicker(m.capture)
	m.poll = stopTicker(m.poll)
	m.clock = stopTicker(m.clock)
	if m.sess.Recording {
		m.metrics.ActiveRecordings.Add(context.Background(), -1)
	}
	m.broker.Close()
	close(m.done)
}

// Done is closed after Run returned.
func (m *Manager) Done() <-chan struct{} { return m.done }

// ── inbox ───────────────────────────────────────────────────────────────────

// post queues fn for the Run goroutine without waiting for it.
func (m *Manager) post(fn func()) {
	select {
	case m.inbox <- fn:
	case <-m.done:
	}
}

// do runs fn on the Run goroutine and waits for it. Once fn is queued the
// wait no longer honours ctx, so fn never runs after do returned.
func (m *Manager) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case m.inbox <- func() { defer close(finished); fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-m.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

// ── recording lifecycle ─────────────────────────────────────────────────────

// Start begins a new recording, discarding everything from the previous one.
func (m *Manager) Start(ctx context.Context, opts StartOptions) (Summary, error) {
	var (
		sum Summary
		err error
	)
	if e := m.do(ctx, func() { sum, err = m.start(opts) }); e != nil {
		return Summary{}, e
	}
	return sum, err
}

func (m *Manager) start(opts StartOptions) (Summary, error) {
	if m.sess.Recording {
		return m.summary(), ErrAlreadyRecording
	}
	md, err := mode.Parse(string(opts.Mode))
	if err != nil {
		return Summary{}, err
	}
	// Auto may switch to audio at any poll, so it needs a transcriber too.
	if md != mode.Visual && m.stt == nil {
		return Summary{}, ErrNoTranscriber
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = m.cfg.CaptureInterval
	}

	now := time.Now()
	prev := m.sess
	m.sess = Session{
		ID:        uuid.NewString(),
		Token:     m.sess.Token + 1,
		Recording: true,
		Mode:      md,
		StartedAt: now,
	}
	m.interval = interval
	m.level = 0
	m.meter.Reset()

	if err := m.apply(m.ctrl.Start(md)); err != nil {
		_ = m.apply(m.ctrl.Stop())
		slog.Warn("recording failed to start", "session_id", m.sess.ID, "mode", md, "err", err)
		m.sess = prev
		return Summary{}, err
	}
	m.clock = resetTicker(m.clock, time.Second)
	m.metrics.ActiveRecordings.Add(m.ctx, 1)

	slog.Info("recording started",
		"session_id", m.sess.ID,
		"mode", md,
		"interval", interval,
	)
	sum := m.summary()
	m.publish(EventRecordingStarted, sum)
	return sum, nil
}

// Stop ends the recording. Requests already in flight are not cancelled;
// their results still land in the stopped session.
func (m *Manager) Stop(ctx context.Context) (Summary, error) {
	var (
		sum Summary
		err error
	)
	if e := m.do(ctx, func() { sum, err = m.stop() }); e != nil {
		return Summary{}, e
	}
	return sum, err
}

func (m *Manager) stop() (Summary, error) {
	if !m.sess.Recording {
		return m.summary(), ErrNotRecording
	}
	_ = m.apply(m.ctrl.Stop())
	m.capture = stopTicker(m.capture)
	m.poll = stopTicker(m.poll)
	m.clock = stopTicker(m.clock)
	m.stopPipeline()

	m.sess.Recording = false
	m.sess.StoppedAt = time.Now()
	m.metrics.ActiveRecordings.Add(m.ctx, -1)

	sum := m.summary()
	slog.Info("recording stopped",
		"session_id", m.sess.ID,
		"duration", sum.Duration,
		"captures", sum.Captures,
		"texts", sum.Texts,
		"segments", sum.Segments,
	)
	m.publish(EventRecordingStopped, sum)
	return sum, nil
}

// apply carries out controller actions. Only starting transcription can fail;
// the first such error is returned after every action ran.
func (m *Manager) apply(acts []mode.Action) error {
	var err error
	for _, a := range acts {
		switch a {
		case mode.StartScreenshots:
			m.capture = resetTicker(m.capture, m.interval)
			m.publish(EventScreenshots, PipelineState{Active: true})
		case mode.StopScreenshots:
			m.capture = stopTicker(m.capture)
			m.publish(EventScreenshots, PipelineState{Active: false})
		case mode.StartTranscription:
			if e := m.startPipeline(false); e != nil && err == nil {
				err = e
			}
		case mode.StopTranscription:
			m.stopPipeline()
		case mode.StartPolling:
			m.poll = resetTicker(m.poll, m.cfg.PollInterval)
		case mode.StopPolling:
			m.poll = stopTicker(m.poll)
		}
	}
	return err
}

// ── screenshots and OCR ─────────────────────────────────────────────────────

// PushFrame stores raw (JPEG, PNG or GIF) as the latest screen frame. The
// next capture tick uses it.
func (m *Manager) PushFrame(ctx context.Context, raw []byte) error {
	img, err := frame.Normalize(raw, m.quality)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadFrame, err)
	}
	now := time.Now()
	return m.do(ctx, func() { m.latest = &latestFrame{img: img, at: now} })
}

func (m *Manager) onCaptureTick() {
	if !m.sess.Recording {
		return
	}
	c, err := m.takeCapture(time.Now())
	if err != nil {
		slog.Debug("capture tick skipped", "session_id", m.sess.ID, "err", err)
		return
	}
	go m.recognize(observe.WithSessionID(m.ctx, m.sess.ID), m.sess.Token, c)
}

func (m *Manager) takeCapture(now time.Time) (Capture, error) {
	f := m.latest
	if f == nil || (m.cfg.FrameMaxAge > 0 && now.Sub(f.at) > m.cfg.FrameMaxAge) {
		return Capture{}, ErrNoFrame
	}
	c := Capture{
		Index:   len(m.sess.Captures),
		Elapsed: m.sess.Elapsed(now),
		Image:   f.img.Data,
		MIME:    frame.MIMEType,
		TakenAt: now,
	}
	m.sess.Captures = append(m.sess.Captures, c)
	m.metrics.Captures.Add(m.ctx, 1)
	m.publish(EventCaptureStored, CaptureStored{Index: c.Index, Elapsed: FormatElapsed(c.Elapsed)})
	return c, nil
}

// recognize runs OCR for one capture off the Run goroutine and posts the
// result back tagged with the recording token.
func (m *Manager) recognize(ctx context.Context, token uint64, c Capture) {
	ctx, span := observe.StartSpan(ctx, "session.ocr")
	defer span.End()

	start := time.Now()
	res, err := m.ocr.Recognize(ctx, ocr.Image{Data: c.Image, MIME: c.MIME})
	m.metrics.OCRDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	m.post(func() { m.onOCRResult(token, c.Index, res.Text, err) })
}

func (m *Manager) onOCRResult(token uint64, index int, text string, err error) {
	if token != m.sess.Token {
		slog.Debug("discarding stale ocr result", "capture", index)
		return
	}
	if err != nil {
		slog.Warn("ocr failed", "session_id", m.sess.ID, "capture", index, "err", err)
		m.metrics.RecordTextOutcome(m.ctx, string(OutcomeOCRError))
		return
	}
	t, outcome := m.gate.Check(text, m.sess.TextValues())
	m.metrics.RecordTextOutcome(m.ctx, string(outcome))
	if outcome != OutcomeAccepted {
		slog.Debug("ocr text rejected", "session_id", m.sess.ID, "capture", index, "outcome", outcome)
		return
	}
	m.sess.Texts = append(m.sess.Texts, ExtractedText{Text: t, CaptureIndex: index})
	m.publish(EventTextAccepted, TextAccepted{
		CaptureIndex: index,
		Text:         t,
		Words:        WordCount(t),
		TotalWords:   WordCount(m.sess.TextValues()...),
	})
}

// ── audio ───────────────────────────────────────────────────────────────────

// PushLevel records a volume level measured by the page.
func (m *Manager) PushLevel(level float64) {
	m.meter.SetLevel(level)
}

// PushAudio meters a PCM frame and, while a transcription stream is open,
// forwards it converted to the stream's format. Chunks are dropped when the
// stream falls behind.
func (m *Manager) PushAudio(ctx context.Context, f types.AudioFrame) error {
	m.meter.Write(f)
	chunk := m.converter.Convert(f).Data
	if len(chunk) == 0 {
		return nil
	}
	return m.do(ctx, func() {
		if m.pipe != nil && !m.pipe.enqueue(chunk) {
			slog.Debug("stt audio queue full, dropping chunk", "bytes", len(chunk))
		}
	})
}

// Level returns the current volume level.
func (m *Manager) Level() float64 { return m.meter.Level() }

func (m *Manager) onLevel(level float64) {
	m.level = level
	if m.sess.Recording {
		m.publish(EventLevel, Level{Level: level})
	}
}

func (m *Manager) onPoll() {
	if !m.sess.Recording {
		return
	}
	acts := m.ctrl.Observe(m.level)
	if len(acts) == 0 {
		return
	}
	slog.Info("auto mode switched",
		"session_id", m.sess.ID,
		"active", m.ctrl.Active(),
		"level", m.level,
	)
	if err := m.apply(acts); err != nil {
		slog.Warn("auto mode switch incomplete", "session_id", m.sess.ID, "err", err)
	}
	m.publish(EventModeSwitched, ModeSwitched{Mode: m.ctrl.Mode(), Active: m.ctrl.Active()})
}

func (m *Manager) onClock() {
	if !m.sess.Recording {
		return
	}
	d := m.sess.Elapsed(time.Now())
	m.publish(EventDuration, Duration{Seconds: int(d / time.Second), Display: FormatElapsed(d)})
}

// startPipeline opens a transcription stream for the current recording.
func (m *Manager) startPipeline(restarted bool) error {
	if m.stt == nil {
		return ErrNoTranscriber
	}
	handle, err := m.stt.StartStream(m.ctx, m.cfg.Stream)
	if err != nil {
		return fmt.Errorf("session: start transcription: %w", err)
	}
	m.pipeGen++
	p := newPipeline(m.pipeGen, m.sess.Token, handle)
	m.pipe = p
	p.run(
		func(t types.Transcript) { m.post(func() { m.onPartial(p, t) }) },
		func(t types.Transcript) { m.post(func() { m.onFinal(p, t) }) },
		func() { m.post(func() { m.onStreamEnded(p) }) },
	)
	m.publish(EventTranscription, PipelineState{Active: true, Restarted: restarted})
	return nil
}

func (m *Manager) stopPipeline() {
	if m.pipe == nil {
		return
	}
	m.pipe.close()
	m.pipe = nil
	m.publish(EventTranscription, PipelineState{Active: false})
}

func (m *Manager) onPartial(p *pipeline, t types.Transcript) {
	text := strings.TrimSpace(t.Text)
	if p != m.pipe || text == "" {
		return
	}
	m.publish(EventPartial, TranscriptAdded{Text: text})
}

func (m *Manager) onFinal(p *pipeline, t types.Transcript) {
	if p.token != m.sess.Token {
		slog.Debug("discarding stale utterance", "stream", p.gen)
		return
	}
	text := strings.TrimSpace(t.Text)
	if text == "" {
		return
	}
	m.sess.Segments = append(m.sess.Segments, TranscriptSegment{
		Text:    text,
		Elapsed: m.sess.Elapsed(time.Now()),
	})
	m.metrics.TranscriptSegments.Add(m.ctx, 1)
	m.publish(EventTranscript, TranscriptAdded{
		Text:       text,
		Words:      WordCount(text),
		TotalWords: WordCount(m.sess.SegmentValues()...),
	})
}

// onStreamEnded handles a stream closing. A stream the manager already
// replaced or stopped is ignored. Otherwise, if audio is still wanted, the
// stream is reopened once; a failed reopen is only logged.
func (m *Manager) onStreamEnded(p *pipeline) {
	if p != m.pipe {
		slog.Debug("transcription stream closed", "stream", p.gen)
		return
	}
	p.close()
	m.pipe = nil

	if !m.sess.Recording || !m.ctrl.RequiresAudio() {
		m.publish(EventTranscription, PipelineState{Active: false})
		return
	}
	if err := m.startPipeline(true); err != nil {
		slog.Warn("transcription restart failed", "session_id", m.sess.ID, "err", err)
		m.metrics.RecordSTTRestart(m.ctx, "error")
		m.publish(EventTranscription, PipelineState{Active: false})
		return
	}
	slog.Debug("transcription stream restarted", "session_id", m.sess.ID, "stream", m.pipeGen)
	m.metrics.RecordSTTRestart(m.ctx, "ok")
}

// ── study artefacts ─────────────────────────────────────────────────────────

// GenerateNotes generates notes from everything collected so far and stores
// them, clearing any earlier quiz and verification.
func (m *Manager) GenerateNotes(ctx context.Context) (string, error) {
	var (
		token    uint64
		id       string
		texts    []string
		segments []string
	)
	if err := m.do(ctx, func() {
		token, id = m.sess.Token, m.sess.ID
		texts, segments = m.sess.TextValues(), m.sess.SegmentValues()
	}); err != nil {
		return "", err
	}
	ctx = observe.WithSessionID(ctx, id)

	notes, err := m.gen.GenerateNotes(ctx, texts, segments)
	if err != nil {
		return "", err
	}
	return notes, m.store(ctx, token, func() {
		m.sess.Notes = notes
		m.sess.Quiz = ""
		m.sess.Verification = nil
		m.publish(EventNotesReady, m.summary())
	})
}

// GenerateQuiz generates quiz questions from the stored notes.
func (m *Manager) GenerateQuiz(ctx context.Context, count int, difficulty string) (string, error) {
	var (
		token uint64
		id    string
		notes string
	)
	if err := m.do(ctx, func() { token, id, notes = m.sess.Token, m.sess.ID, m.sess.Notes }); err != nil {
		return "", err
	}
	ctx = observe.WithSessionID(ctx, id)

	quiz, err := m.gen.GenerateQuiz(ctx, notes, count, difficulty)
	if err != nil {
		return "", err
	}
	return quiz, m.store(ctx, token, func() {
		m.sess.Quiz = quiz
		m.publish(EventQuizReady, m.summary())
	})
}

// Verify runs claim verification over the stored notes.
func (m *Manager) Verify(ctx context.Context) (study.Report, error) {
	var (
		token    uint64
		id       string
		notes    string
		evidence []study.Evidence
		captures int
	)
	if err := m.do(ctx, func() {
		token, id, notes = m.sess.Token, m.sess.ID, m.sess.Notes
		evidence, captures = m.sess.Evidence(), len(m.sess.Captures)
	}); err != nil {
		return study.Report{}, err
	}
	ctx = observe.WithSessionID(ctx, id)

	report, err := m.gen.Verify(ctx, notes, evidence, captures)
	if err != nil {
		return study.Report{}, err
	}
	return report, m.store(ctx, token, func() {
		r := report
		m.sess.Verification = &r
		m.publish(EventVerificationReady, m.summary())
	})
}

// store runs fn when the recording that issued a request is still current.
// The caller's cancellation no longer matters once the result exists.
func (m *Manager) store(ctx context.Context, token uint64, fn func()) error {
	stale := false
	err := m.do(context.WithoutCancel(ctx), func() {
		if token != m.sess.Token {
			stale = true
			return
		}
		fn()
	})
	if err != nil {
		return err
	}
	if stale {
		slog.Debug("discarding study result for replaced recording")
		return ErrSessionChanged
	}
	return nil
}

// ── queries ─────────────────────────────────────────────────────────────────

// Summary returns the current session summary.
func (m *Manager) Summary(ctx context.Context) (Summary, error) {
	var sum Summary
	err := m.do(ctx, func() { sum = m.summary() })
	return sum, err
}

// Snapshot returns a deep copy of the session.
func (m *Manager) Snapshot(ctx context.Context) (Session, error) {
	var s Session
	err := m.do(ctx, func() { s = m.sess.Clone() })
	return s, err
}

// Capture returns a copy of capture i.
func (m *Manager) Capture(ctx context.Context, i int) (Capture, error) {
	var (
		c     Capture
		found bool
	)
	if err := m.do(ctx, func() {
		if i >= 0 && i < len(m.sess.Captures) {
			c, found = m.sess.Captures[i], true
			c.Image = append([]byte(nil), c.Image...)
		}
	}); err != nil {
		return Capture{}, err
	}
	if !found {
		return Capture{}, fmt.Errorf("%w: %d", ErrCaptureNotFound, i)
	}
	return c, nil
}

// Texts returns the accepted screenshot texts.
func (m *Manager) Texts(ctx context.Context) ([]ExtractedText, error) {
	var out []ExtractedText
	err := m.do(ctx, func() { out = append([]ExtractedText{}, m.sess.Texts...) })
	return out, err
}

// Segments returns the transcript.
func (m *Manager) Segments(ctx context.Context) ([]TranscriptSegment, error) {
	var out []TranscriptSegment
	err := m.do(ctx, func() { out = append([]TranscriptSegment{}, m.sess.Segments...) })
	return out, err
}

// Notes returns the stored notes and quiz.
func (m *Manager) Notes(ctx context.Context) (notes, quiz string, err error) {
	err = m.do(ctx, func() { notes, quiz = m.sess.Notes, m.sess.Quiz })
	return notes, quiz, err
}

// Subscribe registers for session events. Call the returned function to
// unsubscribe.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.broker.Subscribe()
}

// Reconfigure applies reloadable settings: capture defaults, the text gate
// and the auto-mode threshold. A running recording keeps its interval.
func (m *Manager) Reconfigure(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()
	return m.do(ctx, func() {
		m.cfg.CaptureInterval = cfg.CaptureInterval
		m.cfg.FrameMaxAge = cfg.FrameMaxAge
		m.cfg.PollInterval = cfg.PollInterval
		m.cfg.ModeThreshold = cfg.ModeThreshold
		m.gate = NewGate(cfg.MinTextLength, cfg.SimilarityThreshold)
		m.ctrl.SetThreshold(cfg.ModeThreshold)
		slog.Info("session settings reloaded",
			"capture_interval", cfg.CaptureInterval,
			"min_text_length", m.gate.MinLength,
			"similarity_threshold", m.gate.Threshold,
			"mode_threshold", cfg.ModeThreshold,
		)
	})
}

func (m *Manager) summary() Summary {
	return m.sess.Summarize(time.Now(), m.ctrl.Active())
}

func (m *Manager) publish(t EventType, data any) {
	m.broker.Publish(Event{Type: t, SessionID: m.sess.ID, Time: time.Now(), Data: data})
}

func tickC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func resetTicker(t *time.Ticker, d time.Duration) *time.Ticker {
	if t != nil {
		t.Reset(d)
		return t
	}
	return time.NewTicker(d)
}

func stopTicker(t *time.Ticker) *time.Ticker {
	if t != nil {
		t.Stop()
	}
	return nil
}
