package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/studylens/internal/session"
	"github.com/MrWong99/studylens/pkg/frame"
)

// EventState is sent once right after a websocket connects. Its data is the
// current session summary.
const EventState session.EventType = "state"

const wsWriteTimeout = 5 * time.Second

// clientMessage is what the page may send over the websocket instead of
// using the POST endpoints.
type clientMessage struct {
	Type  string  `json:"type"`
	Image string  `json:"image,omitempty"`
	Text  string  `json:"text,omitempty"`
	Final *bool   `json:"final,omitempty"`
	Level float64 `json:"level,omitempty"`
}

// handleWS streams session events to the page and accepts page input.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(s.maxBody)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := s.sessions.Subscribe()
	defer unsubscribe()

	if sum, err := s.sessions.Summary(ctx); err == nil {
		hello := session.Event{Type: EventState, SessionID: sum.ID, Time: time.Now(), Data: sum}
		if err := s.writeEvent(ctx, conn, hello); err != nil {
			return
		}
	}

	go func() {
		defer cancel()
		for {
			var msg clientMessage
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
					slog.Debug("websocket read failed", "err", err)
				}
				return
			}
			s.handleClientMessage(ctx, msg)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case e, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := s.writeEvent(ctx, conn, e); err != nil {
				slog.Debug("websocket write failed", "err", err)
				return
			}
		}
	}
}

func (s *Server) writeEvent(ctx context.Context, conn *websocket.Conn, e session.Event) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}

// handleClientMessage applies one page message. Failures are logged; the
// socket stays open.
func (s *Server) handleClientMessage(ctx context.Context, msg clientMessage) {
	var err error
	switch msg.Type {
	case "frame":
		var data []byte
		if _, data, err = frame.ParseDataURI(msg.Image); err == nil {
			err = s.sessions.PushFrame(ctx, data)
		}
	case "utterance":
		err = s.publishUtterance(msg.Text, msg.Final == nil || *msg.Final)
	case "level":
		s.sessions.PushLevel(msg.Level)
	case "stream_ended":
		if s.relay != nil {
			s.relay.End()
		}
	default:
		slog.Debug("ignoring unknown websocket message", "type", msg.Type)
	}
	if err != nil {
		slog.Debug("websocket message rejected", "type", msg.Type, "err", err)
	}
}
