package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/mcdev12/bidroom/go/internal/catalog"
	"github.com/mcdev12/bidroom/go/internal/directory"
	"github.com/mcdev12/bidroom/go/internal/room"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

var statusByError = []struct {
	err    error
	status int
}{
	{catalog.ErrUnknownMode, http.StatusBadRequest},
	{directory.ErrRoomNotFound, http.StatusNotFound},
	{room.ErrRoomNotFound, http.StatusNotFound},
	{directory.ErrParticipantNotFound, http.StatusNotFound},
	{directory.ErrNameTaken, http.StatusConflict},
	{directory.ErrTeamTaken, http.StatusConflict},
	{directory.ErrRoomExists, http.StatusServiceUnavailable},
	{room.ErrClosed, http.StatusGone},
	{context.DeadlineExceeded, http.StatusGatewayTimeout},
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// fail writes err as a JSON error. Server errors are logged, and their
// detail is hidden outside development.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg("request failed")
		if !h.isDev {
			msg = http.StatusText(status)
		}
	}
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
