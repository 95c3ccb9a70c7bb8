package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/MrWong99/studylens/internal/config"
	"github.com/MrWong99/studylens/internal/mode"
	"github.com/MrWong99/studylens/internal/observe"
	"github.com/MrWong99/studylens/internal/session"
	"github.com/MrWong99/studylens/internal/study"
	"github.com/MrWong99/studylens/pkg/audio"
	"github.com/MrWong99/studylens/pkg/frame"
	"github.com/MrWong99/studylens/pkg/provider/stt"
	"github.com/MrWong99/studylens/pkg/provider/stt/relay"
	"github.com/MrWong99/studylens/pkg/types"
)

type errorBody struct {
	Error string `json:"error"`
	Raw   string `json:"raw,omitempty"`
}

type startRequest struct {
	Mode            string  `json:"mode"`
	IntervalSeconds float64 `json:"interval_seconds"`
}

type frameRequest struct {
	Image string `json:"image"`
}

type utteranceRequest struct {
	Text string `json:"text"`

	// Final defaults to true; interim results set it to false.
	Final *bool `json:"final,omitempty"`
}

type levelRequest struct {
	Level float64 `json:"level"`
}

type quizRequest struct {
	Count      int    `json:"count"`
	Difficulty string `json:"difficulty"`
}

// ── recording lifecycle ─────────────────────────────────────────────────────

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.sessions.Summary(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !s.decode(w, r, &req) {
		return
	}
	md, err := mode.Parse(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := s.sessions.Start(r.Context(), session.StartOptions{
		Mode:     md,
		Interval: time.Duration(req.IntervalSeconds * float64(time.Second)),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	sum, err := s.sessions.Stop(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// ── page input ──────────────────────────────────────────────────────────────

// handleFrame accepts a raw image body or JSON {"image": "data:..."}.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	var raw []byte
	if isJSON(r) {
		var req frameRequest
		if !s.decode(w, r, &req) {
			return
		}
		_, data, err := frame.ParseDataURI(req.Image)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		raw = data
	} else {
		data, ok := s.readBody(w, r)
		if !ok {
			return
		}
		raw = data
	}
	if err := s.sessions.PushFrame(r.Context(), raw); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleUtterance(w http.ResponseWriter, r *http.Request) {
	var req utteranceRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.publishUtterance(req.Text, req.Final == nil || *req.Final); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

var errNoRelay = errors.New("web: browser speech recognition is not the configured transcriber")

func (s *Server) publishUtterance(text string, final bool) error {
	if s.relay == nil {
		return errNoRelay
	}
	return s.relay.Publish(types.Transcript{Text: text, IsFinal: final})
}

func (s *Server) handleStreamEnded(w http.ResponseWriter, _ *http.Request) {
	if s.relay != nil {
		s.relay.End()
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	var req levelRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.sessions.PushLevel(req.Level)
	w.WriteHeader(http.StatusAccepted)
}

// handlePCM accepts a WAV file or raw 16-bit little-endian PCM. Raw PCM needs
// X-Sample-Rate; X-Channels defaults to 1.
func (s *Server) handlePCM(w http.ResponseWriter, r *http.Request) {
	data, ok := s.readBody(w, r)
	if !ok {
		return
	}
	f, err := pcmFrame(r, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.sessions.PushAudio(r.Context(), f); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func pcmFrame(r *http.Request, data []byte) (types.AudioFrame, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return audio.DecodeWAV(data)
	}
	rate, err := strconv.Atoi(r.Header.Get("X-Sample-Rate"))
	if err != nil || rate <= 0 {
		return types.AudioFrame{}, errors.New("web: raw pcm needs a positive X-Sample-Rate header")
	}
	channels := 1
	if v := r.Header.Get("X-Channels"); v != "" {
		channels, err = strconv.Atoi(v)
		if err != nil || channels < 1 || channels > 2 {
			return types.AudioFrame{}, fmt.Errorf("web: X-Channels must be 1 or 2, got %q", v)
		}
	}
	if len(data)%(2*channels) != 0 {
		return types.AudioFrame{}, fmt.Errorf("web: pcm length %d is not a whole number of frames", len(data))
	}
	return types.AudioFrame{Data: data, SampleRate: rate, Channels: channels}, nil
}

// ── collected material ──────────────────────────────────────────────────────

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusNotFound, "capture not found")
		return
	}
	c, err := s.sessions.Capture(r.Context(), i)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", c.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(len(c.Image)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(c.Image)
}

func (s *Server) handleTexts(w http.ResponseWriter, r *http.Request) {
	texts, err := s.sessions.Texts(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, texts)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	segs, err := s.sessions.Segments(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, segs)
}

// ── study artefacts ─────────────────────────────────────────────────────────

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.sessions.GenerateNotes(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"notes": notes})
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Count < 0 {
		writeError(w, http.StatusBadRequest, "count must not be negative")
		return
	}
	diff := config.Difficulty(strings.ToLower(strings.TrimSpace(req.Difficulty)))
	if diff != "" && !diff.IsValid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("difficulty %q must be easy, medium or hard", req.Difficulty))
		return
	}
	quiz, err := s.sessions.GenerateQuiz(r.Context(), req.Count, string(diff))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"quiz": quiz})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	report, err := s.sessions.Verify(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleExport downloads the notes, and the quiz when there is one, as a
// text file.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	notes, quiz, err := s.sessions.Notes(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if notes == "" {
		writeError(w, http.StatusNotFound, "no notes generated")
		return
	}
	var b strings.Builder
	b.WriteString(notes)
	if quiz != "" {
		b.WriteString("\n\n=== QUIZ ===\n\n")
		b.WriteString(quiz)
	}
	b.WriteString("\n")

	name := "studylens-notes-" + time.Now().Format("2006-01-02-1504") + ".txt"
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, b.String())
}

// ── helpers ─────────────────────────────────────────────────────────────────

// statusFor maps an error from the session layer to an HTTP status.
func statusFor(err error) int {
	var genErr *study.GenerationError
	switch {
	case errors.Is(err, session.ErrAlreadyRecording),
		errors.Is(err, session.ErrNotRecording),
		errors.Is(err, session.ErrSessionChanged),
		errors.Is(err, study.ErrNoNotes),
		errors.Is(err, relay.ErrNoStream),
		errors.Is(err, stt.ErrSessionClosed),
		errors.Is(err, errNoRelay):
		return http.StatusConflict
	case errors.Is(err, study.ErrNoContent),
		errors.Is(err, session.ErrNoTranscriber),
		errors.Is(err, session.ErrBadFrame),
		errors.Is(err, audio.ErrUnsupportedWAV):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrCaptureNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &genErr):
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

// fail writes err as a JSON error. A notes failure carries the raw collected
// text so the page can still show it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	switch {
	case errors.Is(err, study.ErrNoContent):
		body.Error = "no content captured"
	case errors.Is(err, study.ErrNoNotes):
		body.Error = "no notes generated"
	}
	var genErr *study.GenerationError
	if errors.As(err, &genErr) {
		body.Raw = genErr.Raw
	}

	log := observe.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Warn("request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		log.Debug("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body into v. An empty body leaves v unchanged.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return nil, false
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty body")
		return nil, false
	}
	return data, true
}

func isJSON(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "application/json"
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write json response", "err", err)
	}
}
