package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidroom/go/internal/directory"
	"github.com/mcdev12/bidroom/go/internal/room"
)

const lookupTimeout = 3 * time.Second

// RoomLocator finds or starts the local replica of a room.
type RoomLocator interface {
	Attach(ctx context.Context, code string) (*room.Room, error)
}

// WebSocketHandler handles WebSocket upgrade requests for room connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	rooms             RoomLocator
	directory         directory.Directory
}

func NewWebSocketHandler(cm *ConnectionManager, rooms RoomLocator, dir directory.Directory) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		rooms:             rooms,
		directory:         dir,
	}
}

// HandleRoomConnection seats a joined participant's socket in a room.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(r.URL.Query().Get("room_code"))
	if code == "" {
		http.Error(w, "room_code is required", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
	defer cancel()

	// Only names that joined over HTTP may connect.
	if err := h.checkParticipant(ctx, code, name); err != nil {
		writeLookupError(w, err, code, name)
		return
	}

	rm, err := h.rooms.Attach(ctx, code)
	if err != nil {
		writeLookupError(w, err, code, name)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, rm, name); err != nil {
		// The upgrader has already written the HTTP error.
		log.Error().
			Err(err).
			Str("room_code", code).
			Str("name", name).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

func (h *WebSocketHandler) checkParticipant(ctx context.Context, code, name string) error {
	participants, err := h.directory.Participants(ctx, code)
	if err != nil {
		return err
	}
	for _, p := range participants {
		if p.Name == name {
			return nil
		}
	}
	return directory.ErrParticipantNotFound
}

func writeLookupError(w http.ResponseWriter, err error, code, name string) {
	switch {
	case errors.Is(err, directory.ErrRoomNotFound), errors.Is(err, room.ErrRoomNotFound):
		http.Error(w, "room not found", http.StatusNotFound)
	case errors.Is(err, directory.ErrParticipantNotFound):
		http.Error(w, "join the room before connecting", http.StatusForbidden)
	default:
		log.Error().Err(err).Str("room_code", code).Str("name", name).Msg("room lookup failed")
		http.Error(w, "room lookup failed", http.StatusServiceUnavailable)
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/room", h.HandleRoomConnection)
	r.Get("/ws/stats", h.HandleConnectionStats)
}
