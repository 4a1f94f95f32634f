package server

import (
	"errors"
	"net/http"
	"time"

	"orcabridge/pkg/chat"
)

type browserRequest struct {
	Action         string `json:"action"`
	Message        string `json:"message"`
	TimeoutSeconds int    `json:"timeout"`
	NoWait         bool   `json:"no_wait"`
}

// handleBrowserAI bridges HTTP callers to the chat driver. The "chat"
// action is synchronous: the response is the stabilized reply, or the
// partial text when the wait timed out. Concurrent chats are rejected by
// the driver itself.
func (s *Server) handleBrowserAI(w http.ResponseWriter, r *http.Request) {
	if s.driver == nil {
		writeError(w, http.StatusServiceUnavailable, "browser control not configured")
		return
	}
	var req browserRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := r.Context()
	switch req.Action {
	case "chat":
		if req.Message == "" {
			writeError(w, http.StatusBadRequest, "message is required for chat")
			return
		}
		var timeout time.Duration
		if req.TimeoutSeconds > 0 {
			timeout = time.Duration(req.TimeoutSeconds) * time.Second
		}
		result := s.driver.Send(ctx, req.Message, chat.SendOptions{
			WaitForReply: !req.NoWait,
			Timeout:      timeout,
		})
		switch result.Outcome {
		case chat.OutcomeSuccess:
			writeJSON(w, http.StatusOK, map[string]any{
				"ok":       true,
				"response": result.Response,
				"images":   result.Images,
			})
		case chat.OutcomeTimeout:
			writeJSON(w, http.StatusOK, map[string]any{
				"ok":      false,
				"error":   result.Reason,
				"partial": result.Response,
				"images":  result.Images,
			})
		default:
			status := http.StatusBadGateway
			if result.Reason == chat.ErrBusy.Error() {
				status = http.StatusConflict
			}
			writeJSON(w, status, map[string]any{"ok": false, "error": result.Reason})
		}

	case "get_messages":
		msgs, err := s.driver.Messages(ctx)
		if err != nil {
			writeError(w, browserErrStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "messages": msgs})

	case "status":
		st, err := s.driver.Status(ctx)
		if err != nil {
			writeError(w, browserErrStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": st})

	case "page":
		text, err := s.driver.Page(ctx)
		if err != nil {
			writeError(w, browserErrStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "page": text})

	default:
		writeError(w, http.StatusBadRequest, "unknown action: "+req.Action)
	}
}

func browserErrStatus(err error) int {
	switch {
	case errors.Is(err, chat.ErrTargetNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
