package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Frame types on /ws.
const (
	FrameMessage   = "message"
	FrameClear     = "clear"
	FrameTextChunk = "text_chunk"
	FrameText      = "text"
	FrameCleared   = "cleared"
	FrameError     = "error"
)

// ClientFrame is sent by the client.
type ClientFrame struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
	UseMemory *bool  `json:"use_memory,omitempty"`
	UseSearch bool   `json:"use_search,omitempty"`
}

// ServerFrame is sent by the server.
type ServerFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

const wsWriteTimeout = 10 * time.Second

// websocket streams chat responses. Frames on one connection are handled in
// order; a turn finishes before the next frame is read.
func (s *Server) websocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.metrics.wsActive.Inc()
	defer s.metrics.wsActive.Dec()
	slog.Debug("websocket connected", "component", "server", "remote", c.RealIP())

	ctx := c.Request().Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket read failed", "component", "server", "error", err)
			}
			return nil
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			if err := writeFrame(conn, ServerFrame{Type: FrameError, Content: "invalid frame: " + err.Error()}); err != nil {
				return nil
			}
			continue
		}
		if err := s.handleFrame(ctx, conn, frame); err != nil {
			slog.Debug("websocket write failed", "component", "server", "error", err)
			return nil
		}
	}
}

// handleFrame returns an error only when the connection is unusable.
func (s *Server) handleFrame(ctx context.Context, conn *websocket.Conn, frame ClientFrame) error {
	if frame.UserID == "" {
		return writeFrame(conn, ServerFrame{Type: FrameError, Content: "user_id is required"})
	}

	switch frame.Type {
	case FrameClear:
		if err := s.engine.Clear(ctx, frame.UserID); err != nil {
			return writeFrame(conn, ServerFrame{Type: FrameError, Content: err.Error()})
		}
		return writeFrame(conn, ServerFrame{Type: FrameCleared})

	case FrameMessage:
		if strings.TrimSpace(frame.Content) == "" {
			return writeFrame(conn, ServerFrame{Type: FrameError, Content: "content is required"})
		}
		if !s.limiter.Allow(frame.UserID) {
			s.metrics.rateLimited.Inc()
			return writeFrame(conn, ServerFrame{Type: FrameError, Content: "rate limit exceeded"})
		}

		var writeErr error
		input := s.chatInput(ChatRequest{
			UserID:    frame.UserID,
			Message:   frame.Content,
			UseMemory: frame.UseMemory,
			UseSearch: frame.UseSearch,
		})
		input.StreamCallback = func(chunk string, done bool) {
			if done || chunk == "" || writeErr != nil {
				return
			}
			writeErr = writeFrame(conn, ServerFrame{Type: FrameTextChunk, Content: chunk})
		}

		start := time.Now()
		out, err := s.engine.Run(ctx, input)
		s.metrics.ObserveChat("ws", out, err, time.Since(start))
		if writeErr != nil {
			return writeErr
		}
		if err != nil {
			return writeFrame(conn, ServerFrame{Type: FrameError, Content: out.Text})
		}
		return writeFrame(conn, ServerFrame{Type: FrameText, Content: out.Text})

	default:
		return writeFrame(conn, ServerFrame{Type: FrameError, Content: "unknown frame type: " + frame.Type})
	}
}

func writeFrame(conn *websocket.Conn, frame ServerFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
