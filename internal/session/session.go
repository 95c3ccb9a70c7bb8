// Package session owns the state of the single live recording.
//
// A [Manager] runs one goroutine that holds the [Session]. The HTTP layer,
// the capture ticker, OCR requests, the transcription stream and the study
// orchestrator all talk to it through its inbox, so the session itself needs
// no locks. Every recording gets a fresh token; results of requests started
// under an older token are dropped when they arrive.
package session

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/studylens/internal/mode"
	"github.com/MrWong99/studylens/internal/study"
)

// Capture is one stored screen frame.
type Capture struct {
	Index   int           `json:"index"`
	Elapsed time.Duration `json:"elapsed"`
	Image   []byte        `json:"-"`
	MIME    string        `json:"mime"`
	TakenAt time.Time     `json:"taken_at"`
}

// ExtractedText is OCR text that passed the acceptance gate.
type ExtractedText struct {
	Text         string `json:"text"`
	CaptureIndex int    `json:"capture_index"`
}

// TranscriptSegment is one final utterance.
type TranscriptSegment struct {
	Text    string        `json:"text"`
	Elapsed time.Duration `json:"elapsed"`
}

// VerificationResult is the verdict on one claim from the notes.
type VerificationResult = study.VerificationResult

// Session is everything collected during one recording plus the artefacts
// generated from it. A new recording replaces it entirely.
type Session struct {
	ID        string
	Token     uint64
	Recording bool
	Mode      mode.Mode
	StartedAt time.Time
	StoppedAt time.Time

	Captures []Capture
	Texts    []ExtractedText
	Segments []TranscriptSegment

	Notes        string
	Quiz         string
	Verification *study.Report
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	c := s
	c.Captures = make([]Capture, len(s.Captures))
	for i, cp := range s.Captures {
		cp.Image = slices.Clone(cp.Image)
		c.Captures[i] = cp
	}
	c.Texts = slices.Clone(s.Texts)
	c.Segments = slices.Clone(s.Segments)
	if s.Verification != nil {
		r := *s.Verification
		r.Results = slices.Clone(s.Verification.Results)
		c.Verification = &r
	}
	return c
}

// Elapsed returns how long the recording has been (or was) running at now.
func (s Session) Elapsed(now time.Time) time.Duration {
	switch {
	case s.StartedAt.IsZero():
		return 0
	case s.Recording:
		return now.Sub(s.StartedAt)
	default:
		return s.StoppedAt.Sub(s.StartedAt)
	}
}

// TextValues returns the accepted screenshot texts in order.
func (s Session) TextValues() []string {
	out := make([]string, len(s.Texts))
	for i, t := range s.Texts {
		out[i] = t.Text
	}
	return out
}

// SegmentValues returns the transcript utterances in order.
func (s Session) SegmentValues() []string {
	out := make([]string, len(s.Segments))
	for i, seg := range s.Segments {
		out[i] = seg.Text
	}
	return out
}

// Evidence returns the accepted texts with their capture indexes.
func (s Session) Evidence() []study.Evidence {
	out := make([]study.Evidence, len(s.Texts))
	for i, t := range s.Texts {
		out[i] = study.Evidence{Text: t.Text, CaptureIndex: t.CaptureIndex}
	}
	return out
}

// Summary is the small view of a session shown by the page and the API.
type Summary struct {
	ID              string        `json:"id,omitempty"`
	Recording       bool          `json:"recording"`
	Mode            mode.Mode     `json:"mode,omitempty"`
	Active          mode.Mode     `json:"active,omitempty"`
	StartedAt       time.Time     `json:"started_at,omitzero"`
	StoppedAt       time.Time     `json:"stopped_at,omitzero"`
	DurationSeconds int           `json:"duration_seconds"`
	Duration        string        `json:"duration"`
	Captures        int           `json:"captures"`
	Texts           int           `json:"texts"`
	Segments        int           `json:"segments"`
	TextWords       int           `json:"text_words"`
	TranscriptWords int           `json:"transcript_words"`
	HasNotes        bool          `json:"has_notes"`
	HasQuiz         bool          `json:"has_quiz"`
	Verification    *study.Counts `json:"verification,omitempty"`
}

// Summarize builds the Summary of s at now. active is the running sub-mode.
func (s Session) Summarize(now time.Time, active mode.Mode) Summary {
	elapsed := s.Elapsed(now)
	sum := Summary{
		ID:              s.ID,
		Recording:       s.Recording,
		Mode:            s.Mode,
		StartedAt:       s.StartedAt,
		StoppedAt:       s.StoppedAt,
		DurationSeconds: int(elapsed / time.Second),
		Duration:        FormatElapsed(elapsed),
		Captures:        len(s.Captures),
		Texts:           len(s.Texts),
		Segments:        len(s.Segments),
		TextWords:       WordCount(s.TextValues()...),
		TranscriptWords: WordCount(s.SegmentValues()...),
		HasNotes:        s.Notes != "",
		HasQuiz:         s.Quiz != "",
	}
	if s.Recording {
		sum.Active = active
	}
	if s.Verification != nil {
		c := s.Verification.Counts
		sum.Verification = &c
	}
	return sum
}

// FormatElapsed renders d as mm:ss. Minutes keep counting past 59.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// WordCount returns the number of whitespace-separated words across texts.
func WordCount(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += len(strings.Fields(t))
	}
	return n
}
