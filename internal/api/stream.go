package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/MikeSquared-Agency/almcoach/internal/processor"
	"github.com/MikeSquared-Agency/almcoach/internal/session"
)

const (
	maxStreamFrameBytes = 4 << 20
	streamWriteTimeout  = 5 * time.Second
)

// streamFrame is a text frame from the client. Type defaults to "utterance".
type streamFrame struct {
	Type       string `json:"type"`
	TrackingID string `json:"tracking_id,omitempty"`
	processor.Input
}

type streamAck struct {
	Type       string `json:"type"`
	Status     string `json:"status"`
	TrackingID string `json:"tracking_id"`
}

// stream upgrades to a websocket for one call. Text frames carry utterances
// or used-suggestion acks; binary frames carry audio chunks transcribed with
// the speaker from the ?speaker= query. The call is started on connect if
// needed and ended when the socket closes.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	speaker := r.URL.Query().Get("speaker")

	upgrader := websocket.Upgrader{CheckOrigin: isWebSocketOriginAllowed}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("call stream upgrade failed", "call_id", callID, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxStreamFrameBytes)

	ctx := context.WithoutCancel(r.Context())
	opening, err := s.proc.StartCall(ctx, callID, session.Profile{})
	switch {
	case err == nil:
		s.send(conn, opening)
	case errors.Is(err, session.ErrExists):
		// rejoining a call started over REST
	default:
		s.send(conn, newErrorBody(err))
		return
	}
	defer func() {
		if _, err := s.proc.EndCall(ctx, callID); err != nil && !errors.Is(err, session.ErrNotFound) {
			s.logger.Warn("failed to end streamed call", "call_id", callID, "error", err)
		}
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("call stream closed", "call_id", callID, "error", err)
			}
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			res, err := s.proc.HandleAudio(ctx, callID, data, speaker)
			if err != nil {
				s.sendError(conn, err)
				continue
			}
			if res != nil {
				s.send(conn, res)
			}
		case websocket.TextMessage:
			var frame streamFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				s.send(conn, newErrorBody(fmt.Errorf("invalid frame: %w", err)))
				continue
			}
			if done := s.handleFrame(ctx, conn, callID, frame); done {
				return
			}
		}
	}
}

// handleFrame reports whether the stream should close.
func (s *Server) handleFrame(ctx context.Context, conn *websocket.Conn, callID string, frame streamFrame) bool {
	switch strings.ToLower(frame.Type) {
	case "", "utterance":
		res, err := s.proc.HandleUtterance(ctx, callID, frame.Input)
		if err != nil {
			s.sendError(conn, err)
			return errors.Is(err, session.ErrNotFound)
		}
		s.send(conn, res)
	case "used":
		if err := s.proc.MarkSuggestionUsed(ctx, callID, frame.TrackingID); err != nil {
			s.sendError(conn, err)
			return false
		}
		s.send(conn, streamAck{Type: "used", Status: "success", TrackingID: frame.TrackingID})
	case "end":
		sum, err := s.proc.EndCall(ctx, callID)
		if err != nil {
			s.sendError(conn, err)
			return true
		}
		s.send(conn, map[string]any{"type": "ended", "status": "success", "final_stage": sum.FinalStage, "appointment_set": sum.AppointmentSet})
		return true
	default:
		s.send(conn, newErrorBody(fmt.Errorf("unsupported frame type %q", frame.Type)))
	}
	return false
}

func (s *Server) sendError(conn *websocket.Conn, err error) {
	body := newErrorBody(err)
	body.RetryAfter = retryAfter(err)
	s.send(conn, body)
}

func (s *Server) send(conn *websocket.Conn, v any) {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		s.logger.Debug("call stream write failed", "error", err)
	}
}

// isWebSocketOriginAllowed accepts same-host origins and non-browser clients.
func isWebSocketOriginAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return false
	}
	return strings.EqualFold(parsed.Host, r.Host)
}
