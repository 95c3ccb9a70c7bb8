package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/studylens/internal/mode"
	"github.com/MrWong99/studylens/internal/study"
	"github.com/MrWong99/studylens/pkg/provider/llm"
	llmmock "github.com/MrWong99/studylens/pkg/provider/llm/mock"
	"github.com/MrWong99/studylens/pkg/provider/ocr"
	ocrmock "github.com/MrWong99/studylens/pkg/provider/ocr/mock"
	sttmock "github.com/MrWong99/studylens/pkg/provider/stt/mock"
	"github.com/MrWong99/studylens/pkg/types"
)

const lectureText = "Photosynthesis converts light energy into chemical energy in chloroplasts"

// ---- helpers ----

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := range 8 {
		img.Set(x, x, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func fastConfig() Config {
	return Config{
		CaptureInterval: 15 * time.Millisecond,
		FrameMaxAge:     -1,
		MeterInterval:   5 * time.Millisecond,
		PollInterval:    15 * time.Millisecond,
	}
}

func startManager(t *testing.T, cfg Config, o ocr.Provider, s *sttmock.Provider, g Generator) *Manager {
	t.Helper()
	var m *Manager
	if s == nil {
		m = NewManager(cfg, o, nil, g, WithMetrics(noopMetrics(t)))
	} else {
		m = NewManager(cfg, o, s, g, WithMetrics(noopMetrics(t)))
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-m.Done()
	})
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func summary(t *testing.T, m *Manager) Summary {
	t.Helper()
	s, err := m.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	return s
}

func segments(t *testing.T, m *Manager) []TranscriptSegment {
	t.Helper()
	s, err := m.Segments(context.Background())
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	return s
}

func texts(t *testing.T, m *Manager) []ExtractedText {
	t.Helper()
	s, err := m.Texts(context.Background())
	if err != nil {
		t.Fatalf("Texts: %v", err)
	}
	return s
}

// fakeGenerator lets tests control study requests.
type fakeGenerator struct {
	notes  func(ctx context.Context, texts, segments []string) (string, error)
	quiz   func(ctx context.Context, notes string, count int, difficulty string) (string, error)
	verify func(ctx context.Context, notes string, evidence []study.Evidence, captures int) (study.Report, error)
}

func (f *fakeGenerator) GenerateNotes(ctx context.Context, texts, segments []string) (string, error) {
	return f.notes(ctx, texts, segments)
}

func (f *fakeGenerator) GenerateQuiz(ctx context.Context, notes string, count int, difficulty string) (string, error) {
	return f.quiz(ctx, notes, count, difficulty)
}

func (f *fakeGenerator) Verify(ctx context.Context, notes string, evidence []study.Evidence, captures int) (study.Report, error) {
	return f.verify(ctx, notes, evidence, captures)
}

// ---- lifecycle ----

func TestManager_StartStop(t *testing.T) {
	m := startManager(t, fastConfig(), &ocrmock.Provider{}, nil, nil)
	ctx := context.Background()

	sum, err := m.Start(ctx, StartOptions{Mode: mode.Visual})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !sum.Recording || sum.ID == "" || sum.Mode != mode.Visual || sum.Active != mode.Visual {
		t.Errorf("start summary = %+v", sum)
	}

	if _, err := m.Start(ctx, StartOptions{}); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second Start err = %v, want ErrAlreadyRecording", err)
	}

	sum, err = m.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sum.Recording || sum.StoppedAt.IsZero() {
		t.Errorf("stop summary = %+v", sum)
	}
	if _, err := m.Stop(ctx); !errors.Is(err, ErrNotRecording) {
		t.Errorf("second Stop err = %v, want ErrNotRecording", err)
	}
}

func TestManager_StartInvalidMode(t *testing.T) {
	m := startManager(t, fastConfig(), &ocrmock.Provider{}, nil, nil)
	if _, err := m.Start(context.Background(), StartOptions{Mode: "hologram"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if summary(t, m).Recording {
		t.Error("recording after failed start")
	}
}

func TestManager_StartAudioWithoutTranscriber(t *testing.T) {
	for _, md := range []mode.Mode{mode.Audio, mode.Both, mode.Auto} {
		t.Run(string(md), func(t *testing.T) {
			m := startManager(t, fastConfig(), &ocrmock.Provider{}, nil, nil)
			if _, err := m.Start(context.Background(), StartOptions{Mode: md}); !errors.Is(err, ErrNoTranscriber) {
				t.Fatalf("err = %v, want ErrNoTranscriber", err)
			}
			if summary(t, m).Recording {
				t.Error("recording after failed start")
			}
		})
	}
}

func TestManager_FailedStartKeepsPreviousSession(t *testing.T) {
	tests := []struct {
		name  string
		stt   *sttmock.Provider
		setup func(*sttmock.Provider)
		mode  mode.Mode
	}{
		{name: "no transcriber", mode: mode.Audio},
		{
			name:  "stream refused",
			stt:   &sttmock.Provider{},
			setup: func(s *sttmock.Provider) { s.SetStartStreamErr(errors.New("microphone gone")) },
			mode:  mode.Both,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := startManager(t, fastConfig(), &ocrmock.Provider{Text: lectureText}, tt.stt, nil)
			ctx := context.Background()

			if err := m.PushFrame(ctx, testPNG(t)); err != nil {
				t.Fatalf("PushFrame: %v", err)
			}
			first, err := m.Start(ctx, StartOptions{Mode: mode.Visual})
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			waitFor(t, "accepted text", func() bool { return len(texts(t, m)) == 1 })
			stopped, _ := m.Stop(ctx)

			if tt.setup != nil {
				tt.setup(tt.stt)
			}
			if _, err := m.Start(ctx, StartOptions{Mode: tt.mode}); err == nil {
				t.Fatal("Start succeeded, want an error")
			}

			after := summary(t, m)
			if after.ID != first.ID {
				t.Errorf("session id = %q, want %q kept", after.ID, first.ID)
			}
			if after.Recording || after.Texts != stopped.Texts || after.Captures != stopped.Captures {
				t.Errorf("summary after failed start = %+v, want %+v", after, stopped)
			}
		})
	}
}

func TestManager_StartResetsSession(t *testing.T) {
	o := &ocrmock.Provider{Text: lectureText}
	m := startManager(t, fastConfig(), o, nil, nil)
	ctx := context.Background()

	if err := m.PushFrame(ctx, testPNG(t)); err != nil {
		t.Fatalf("PushFrame: %v", err)
	}
	first, _ := m.Start(ctx, StartOptions{})
	waitFor(t, "accepted text", func() bool { return len(texts(t, m)) == 1 })
	_, _ = m.Stop(ctx)

	second, err := m.Start(ctx, StartOptions{Mode: mode.Visual, Interval: time.Hour})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if second.ID == first.ID {
		t.Error("new recording kept the old id")
	}
	if second.Captures != 0 || second.Texts != 0 || second.Segments != 0 {
		t.Errorf("new recording not empty: %+v", second)
	}
}

// ---- capture loop ----

func TestManager_CaptureAcceptsOnceAndRejectsRepeats(t *testing.T) {
	o := &ocrmock.Provider{Text: lectureText}
	m := startManager(t, fastConfig(), o, nil, nil)
	ctx := context.Background()

	if err := m.PushFrame(ctx, testPNG(t)); err != nil {
		t.Fatalf("PushFrame: %v", err)
	}
	if _, err := m.Start(ctx, StartOptions{Mode: mode.Visual}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "three captures", func() bool { return summary(t, m).Captures >= 3 })
	waitFor(t, "ocr of three captures", func() bool { return o.Calls() >= 3 })
	waitFor(t, "accepted text", func() bool { return len(texts(t, m)) > 0 })
	time.Sleep(30 * time.Millisecond)

	got := texts(t, m)
	if len(got) != 1 {
		t.Fatalf("texts = %d, want 1 (repeats rejected)", len(got))
	}
	if got[0].Text != lectureText || got[0].CaptureIndex != 0 {
		t.Errorf("text = %+v", got[0])
	}

	c, err := m.Capture(ctx, 0)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if c.MIME != "image/jpeg" || len(c.Image) == 0 {
		t.Errorf("capture = %s, %d bytes", c.MIME, len(c.Image))
	}
	if _, err := m.Capture(ctx, 999); !errors.Is(err, ErrCaptureNotFound) {
		t.Errorf("Capture(999) err = %v, want ErrCaptureNotFound", err)
	}
}

func TestManager_NoFrameSkipsTick(t *testing.T) {
	o := &ocrmock.Provider{Text: lectureText}
	m := startManager(t, fastConfig(), o, nil, nil)

	if _, err := m.Start(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(80 * time.Millisecond)

	if n := summary(t, m).Captures; n != 0 {
		t.Errorf("captures = %d, want 0", n)
	}
	if o.Calls() != 0 {
		t.Errorf("ocr calls = %d, want 0", o.Calls())
	}
}

func TestManager_StaleFrameSkipsTick(t *testing.T) {
	cfg := fastConfig()
	cfg.FrameMaxAge = time.Millisecond
	o := &ocrmock.Provider{Text: lectureText}
	m := startManager(t, cfg, o, nil, nil)

	if err := m.PushFrame(context.Background(), testPNG(t)); err != nil {
		t.Fatalf("PushFrame: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := m.Start(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(60 * time.Millisecond)

	if n := summary(t, m).Captures; n != 0 {
		t.Errorf("captures = %d, want 0", n)
	}
}

func TestManager_OCRErrorsAreSwallowed(t *testing.T) {
	o := &ocrmock.Provider{Err: errors.New("ocr service down")}
	m := startManager(t, fastConfig(), o, nil, nil)
	ctx := context.Background()

	_ = m.PushFrame(ctx, testPNG(t))
	if _, err := m.Start(ctx, StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "ocr calls", func() bool { return o.Calls() >= 2 })

	sum := summary(t, m)
	if !sum.Recording || sum.Texts != 0 {
		t.Errorf("summary = %+v, want still recording with no texts", sum)
	}
}

func TestManager_PushFrameRejectsGarbage(t *testing.T) {
	m := startManager(t, fastConfig(), &ocrmock.Provider{}, nil, nil)
	err := m.PushFrame(context.Background(), []byte("not an image"))
	if !errors.Is(err, ErrBadFrame) {
		t.Fatalf("err = %v, want ErrBadFrame", err)
	}
}

// blockingOCR holds every Recognize call until release is closed.
func blockingOCR(text string) (*ocrmock.Provider, chan struct{}) {
	release := make(chan struct{})
	o := &ocrmock.Provider{}
	o.RecognizeFunc = func(context.Context, ocr.Image) (ocr.Result, error) {
		<-release
		return ocr.Result{Text: text}, nil
	}
	return o, release
}

func TestManager_LateOCRResultAfterStopLands(t *testing.T) {
	o, release := blockingOCR(lectureText)
	m := startManager(t, fastConfig(), o, nil, nil)
	ctx := context.Background()

	_ = m.PushFrame(ctx, testPNG(t))
	if _, err := m.Start(ctx, StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "ocr in flight", func() bool { return o.Calls() >= 1 })
	if _, err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	close(release)
	waitFor(t, "late text", func() bool { return len(texts(t, m)) == 1 })
}

func TestManager_StaleOCRResultDiscarded(t *testing.T) {
	o, release := blockingOCR(lectureText)
	s := &sttmock.Provider{}
	m := startManager(t, fastConfig(), o, s, nil)
	ctx := context.Background()

	_ = m.PushFrame(ctx, testPNG(t))
	if _, err := m.Start(ctx, StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "ocr in flight", func() bool { return o.Calls() >= 1 })
	_, _ = m.Stop(ctx)

	// A new recording without screenshots: only the old request can answer.
	if _, err := m.Start(ctx, StartOptions{Mode: mode.Audio}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	close(release)
	time.Sleep(50 * time.Millisecond)

	if got := texts(t, m); len(got) != 0 {
		t.Errorf("texts = %+v, want stale result discarded", got)
	}
}

// ---- audio pipeline ----

func TestManager_TranscriptAndRestart(t *testing.T) {
	s := &sttmock.Provider{}
	m := startManager(t, fastConfig(), &ocrmock.Provider{}, s, nil)
	ctx := context.Background()

	if _, err := m.Start(ctx, StartOptions{Mode: mode.Audio}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "stream start", func() bool { return s.Starts() == 1 })

	first := s.Last()
	first.Emit("hello there")
	first.Emit("   ")
	waitFor(t, "first segment", func() bool { return len(segments(t, m)) == 1 })

	// The backend ends the stream on its own: it is reopened once.
	first.End()
	waitFor(t, "restart", func() bool { return s.Starts() == 2 })
	waitFor(t, "old stream closed", first.Closed)

	s.Last().Emit("general kenobi")
	waitFor(t, "second segment", func() bool { return len(segments(t, m)) == 2 })

	got := segments(t, m)
	if got[0].Text != "hello there" || got[1].Text != "general kenobi" {
		t.Errorf("segments = %+v", got)
	}
	if sum := summary(t, m); sum.TranscriptWords != 4 {
		t.Errorf("transcript words = %d, want 4", sum.TranscriptWords)
	}

	if _, err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	second := s.Last()
	waitFor(t, "stream closed on stop", second.Closed)
	time.Sleep(30 * time.Millisecond)
	if s.Starts() != 2 {
		t.Errorf("starts = %d after stop, want no restart", s.Starts())
	}
}

func TestManager_RestartFailureKeepsRecording(t *testing.T) {
	s := &sttmock.Provider{}
	m := startManager(t, fastConfig(), &ocrmock.Provider{}, s, nil)
	ctx := context.Background()

	if _, err := m.Start(ctx, StartOptions{Mode: mode.Both}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "stream start", func() bool { return s.Starts() == 1 })

	s.SetStartStreamErr(errors.New("microphone gone"))
	s.Last().End()
	waitFor(t, "restart attempt", func() bool { return s.Calls() == 2 })
	time.Sleep(30 * time.Millisecond)

	if s.Calls() != 2 {
		t.Errorf("start attempts = %d, want exactly one retry", s.Calls())
	}
	if !summary(t, m).Recording {
		t.Error("recording stopped after restart failure")
	}
}

func TestManager_VisualModeIgnoresStreamEnd(t *testing.T) {
	s := &sttmock.Provider{}
	m := startManager(t, fastConfig(), &ocrmock.Provider{}, s, nil)

	if _, err := m.Start(context.Background(), StartOptions{Mode: mode.Visual}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if s.Starts() != 0 {
		t.Errorf("visual mode opened %d streams", s.Starts())
	}
}

func TestManager_PushAudioFeedsStream(t *testing.T) {
	s := &sttmock.Provider{}
	m := startManager(t, fastConfig(), &ocrmock.Provider{}, s, nil)
	ctx := context.Background()

	if _, err := m.Start(ctx, StartOptions{Mode: mode.Audio}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "stream start", func() bool { return s.Starts() == 1 })

	// 48 kHz stereo is converted to the 16 kHz mono the stream expects.
	pcm := make([]byte, 480*2*2)
	if err := m.PushAudio(ctx, types.AudioFrame{Data: pcm, SampleRate: 48000, Channels: 2}); err != nil {
		t.Fatalf("PushAudio: %v", err)
	}
	waitFor(t, "audio forwarded", func() bool { return s.Last().AudioCalls() == 1 })

	if got := len(s.Last().Audio[0]); got != 160*2 {
		t.Errorf("forwarded %d bytes, want %d", got, 160*2)
	}
}

func TestManager_AutoModeSwitches(t *testing.T) {
	s := &sttmock.Provider{}
	m := startManager(t, fastConfig(), &ocrmock.Provider{}, s, nil)
	ctx := context.Background()

	events, unsub := m.Subscribe()
	defer unsub()

	if _, err := m.Start(ctx, StartOptions{Mode: mode.Auto}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Starts() != 0 {
		t.Fatal("auto mode must begin visual")
	}

	m.PushLevel(0.6)
	waitFor(t, "switch to audio", func() bool { return s.Starts() == 1 })
	waitFor(t, "active audio", func() bool { return summary(t, m).Active == mode.Audio })

	m.PushLevel(0.05)
	waitFor(t, "switch back to visual", func() bool { return summary(t, m).Active == mode.Visual })
	waitFor(t, "stream closed", s.Last().Closed)

	switched := 0
	timeout := time.After(time.Second)
	for switched < 2 {
		select {
		case e := <-events:
			if e.Type == EventModeSwitched {
				switched++
			}
		case <-timeout:
			t.Fatalf("saw %d mode_switched events, want 2", switched)
		}
	}
}

// ---- study artefacts ----

func TestManager_GenerateNotesQuizVerify(t *testing.T) {
	s := &sttmock.Provider{}
	p := &llmmock.Provider{CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		prompt := req.Messages[0].Content
		switch {
		case strings.Contains(prompt, "Extract the most important"):
			return &llm.CompletionResponse{Content: "1. Cells divide."}, nil
		case strings.Contains(prompt, "Fact-check"):
			return &llm.CompletionResponse{Content: "VERIFIED"}, nil
		case strings.Contains(prompt, "quiz questions"):
			return &llm.CompletionResponse{Content: "Q1: Why?"}, nil
		default:
			return &llm.CompletionResponse{Content: "## Notes"}, nil
		}
	}}
	m := startManager(t, fastConfig(), &ocrmock.Provider{}, s, study.New(p))
	ctx := context.Background()

	if _, err := m.GenerateNotes(ctx); !errors.Is(err, study.ErrNoContent) {
		t.Fatalf("GenerateNotes on empty session err = %v, want ErrNoContent", err)
	}
	if _, err := m.GenerateQuiz(ctx, 0, ""); !errors.Is(err, study.ErrNoNotes) {
		t.Fatalf("GenerateQuiz without notes err = %v, want ErrNoNotes", err)
	}

	_, _ = m.Start(ctx, StartOptions{Mode: mode.Audio})
	waitFor(t, "stream", func() bool { return s.Starts() == 1 })
	s.Last().Emit("cells divide by mitosis")
	waitFor(t, "segment", func() bool { return len(segments(t, m)) == 1 })
	_, _ = m.Stop(ctx)

	notes, err := m.GenerateNotes(ctx)
	if err != nil || notes != "## Notes" {
		t.Fatalf("GenerateNotes = %q, %v", notes, err)
	}
	quiz, err := m.GenerateQuiz(ctx, 3, "easy")
	if err != nil || quiz != "Q1: Why?" {
		t.Fatalf("GenerateQuiz = %q, %v", quiz, err)
	}
	report, err := m.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Counts.Verified != 1 || report.Results[0].CaptureIndex != -1 {
		t.Errorf("report = %+v", report)
	}

	sum := summary(t, m)
	if !sum.HasNotes || !sum.HasQuiz || sum.Verification == nil {
		t.Errorf("summary after study = %+v", sum)
	}

	// Regenerating notes drops the quiz and verification made from the old ones.
	if _, err := m.GenerateNotes(ctx); err != nil {
		t.Fatalf("GenerateNotes: %v", err)
	}
	sum = summary(t, m)
	if sum.HasQuiz || sum.Verification != nil {
		t.Errorf("summary after regenerate = %+v", sum)
	}
	gotNotes, gotQuiz, _ := m.Notes(ctx)
	if gotNotes != "## Notes" || gotQuiz != "" {
		t.Errorf("Notes = %q, %q", gotNotes, gotQuiz)
	}
}

func TestManager_StudyResultForReplacedRecordingIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	g := &fakeGenerator{notes: func(context.Context, []string, []string) (string, error) {
		close(started)
		<-release
		return "old notes", nil
	}}
	s := &sttmock.Provider{}
	m := startManager(t, fastConfig(), &ocrmock.Provider{}, s, g)
	ctx := context.Background()

	_, _ = m.Start(ctx, StartOptions{Mode: mode.Audio})
	_, _ = m.Stop(ctx)

	errc := make(chan error, 1)
	go func() {
		_, err := m.GenerateNotes(ctx)
		errc <- err
	}()
	<-started
	_, _ = m.Start(ctx, StartOptions{Mode: mode.Audio})
	close(release)

	if err := <-errc; !errors.Is(err, ErrSessionChanged) {
		t.Fatalf("err = %v, want ErrSessionChanged", err)
	}
	if summary(t, m).HasNotes {
		t.Error("notes from the replaced recording were stored")
	}
}

func TestManager_GenerationErrorPassesThrough(t *testing.T) {
	g := &fakeGenerator{notes: func(context.Context, []string, []string) (string, error) {
		return "", &study.GenerationError{Op: "notes", Raw: "raw", Err: llm.ErrMissingResponse}
	}}
	m := startManager(t, fastConfig(), &ocrmock.Provider{}, nil, g)

	_, err := m.GenerateNotes(context.Background())
	var ge *study.GenerationError
	if !errors.As(err, &ge) || ge.Raw != "raw" {
		t.Fatalf("err = %v, want *GenerationError with raw text", err)
	}
}

// ---- events and config ----

func TestManager_EventsOnCapture(t *testing.T) {
	o := &ocrmock.Provider{Text: lectureText}
	m := startManager(t, fastConfig(), o, nil, nil)
	ctx := context.Background()

	events, unsub := m.Subscribe()
	defer unsub()

	_ = m.PushFrame(ctx, testPNG(t))
	if _, err := m.Start(ctx, StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	want := map[EventType]bool{
		EventScreenshots:      false,
		EventRecordingStarted: false,
		EventCaptureStored:    false,
		EventTextAccepted:     false,
	}
	timeout := time.After(2 * time.Second)
	for remaining := len(want); remaining > 0; {
		select {
		case e := <-events:
			if seen, ok := want[e.Type]; ok && !seen {
				want[e.Type] = true
				remaining--
			}
			if e.Type == EventTextAccepted {
				ta := e.Data.(TextAccepted)
				if ta.Words != 9 || ta.CaptureIndex != 0 {
					t.Errorf("text accepted payload = %+v", ta)
				}
			}
		case <-timeout:
			t.Fatalf("missing events: %v", want)
		}
	}
}

func TestManager_ReconfigureGate(t *testing.T) {
	o := &ocrmock.Provider{Text: "short but accepted now"}
	m := startManager(t, fastConfig(), o, nil, nil)
	ctx := context.Background()

	cfg := fastConfig()
	cfg.MinTextLength = 5
	if err := m.Reconfigure(ctx, cfg); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	_ = m.PushFrame(ctx, testPNG(t))
	_, _ = m.Start(ctx, StartOptions{})
	waitFor(t, "accepted text", func() bool { return len(texts(t, m)) == 1 })
}

func TestManager_ClosedAfterRun(t *testing.T) {
	m := NewManager(fastConfig(), &ocrmock.Provider{}, nil, nil, WithMetrics(noopMetrics(t)))
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = m.Run(ctx) }()
	cancel()
	<-m.Done()

	if _, err := m.Summary(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if err := m.Run(context.Background()); err == nil {
		t.Error("second Run should fail")
	}
}
