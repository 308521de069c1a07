package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/switchyard-ai/switchyard/internal/router"
)

// sessionResponse is one websocket reply. Exactly one of Tools or Error is
// set.
type sessionResponse struct {
	Tools []string      `json:"tools,omitempty"`
	Error *sessionError `json:"error,omitempty"`
}

type sessionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleSession upgrades the request to a websocket and serves selection
// queries until the client closes the connection. Each text message is a
// [selectRequest]; each reply is a [sessionResponse]. A malformed message or
// a selection error is reported in-band and the session continues.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session aborted")

	ctx := r.Context()
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ActiveSessions.Add(ctx, 1)
		defer s.cfg.Metrics.ActiveSessions.Add(ctx, -1)
	}
	slog.Info("routing session opened", "remote", r.RemoteAddr)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			// Normal closure and client disconnects both end the loop.
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			slog.Debug("routing session read failed", "error", err)
			return
		}
		if typ != websocket.MessageText {
			if werr := writeSession(ctx, conn, sessionResponse{
				Error: &sessionError{Code: "invalid_params", Message: "messages must be text frames containing JSON"},
			}); werr != nil {
				return
			}
			continue
		}

		var req selectRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if werr := writeSession(ctx, conn, sessionResponse{
				Error: &sessionError{Code: "invalid_params", Message: "message must be a JSON object"},
			}); werr != nil {
				return
			}
			continue
		}

		tools, err := s.cfg.Selector.SelectTools(ctx, router.Query{
			Text:      req.Query,
			K:         req.K,
			Extension: req.Extension,
		})
		if err != nil {
			if werr := writeSession(ctx, conn, sessionResponse{Error: toSessionError(err)}); werr != nil {
				return
			}
			continue
		}
		if err := writeSession(ctx, conn, sessionResponse{Tools: tools}); err != nil {
			return
		}
	}
}

// writeSession marshals res and sends it as one text frame.
func writeSession(ctx context.Context, conn *websocket.Conn, res sessionResponse) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// toSessionError converts a selector error to its in-band representation.
func toSessionError(err error) *sessionError {
	var rerr *router.Error
	if errors.As(err, &rerr) {
		return &sessionError{Code: string(rerr.Code), Message: rerr.Message}
	}
	return &sessionError{Code: "internal", Message: err.Error()}
}
