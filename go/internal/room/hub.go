package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidroom/go/internal/auction/engine"
	"github.com/mcdev12/bidroom/go/internal/directory"
)

// Hub holds the room replicas running on this instance, addressed by room
// code.
type Hub struct {
	cfg Config

	mu    sync.Mutex
	rooms map[string]*Room

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	return &Hub{
		cfg:    cfg,
		rooms:  make(map[string]*Room),
		ctx:    ctx,
		cancel: cancel,
	}
}

// InstanceID identifies this instance to the directory and the relay.
func (h *Hub) InstanceID() string {
	return h.cfg.InstanceID
}

// Host starts the authoritative replica for a room the directory already
// knows about.
func (h *Hub) Host(ctx context.Context, code string, state engine.State) (*Room, error) {
	code = strings.ToUpper(code)
	rec, err := h.cfg.Directory.GetRoom(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("host room %s: %w", code, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[code]; ok {
		return nil, fmt.Errorf("host room %s: %w", code, directory.ErrRoomExists)
	}

	roster, err := h.loadRoster(ctx, rec)
	if err != nil {
		return nil, err
	}

	r := newRoom(h.ctx, code, true, h.cfg, h.remove)
	r.state = state
	r.synced = true
	r.roster = roster
	if err := r.start(); err != nil {
		return nil, err
	}
	h.rooms[code] = r
	h.cfg.Metrics.SetRoomsActive(len(h.rooms))

	log.Info().Str("room_code", code).Str("host_name", rec.HostName).Msg("hosting room")
	return r, nil
}

// Attach returns the local replica of a room, starting a follower when the
// room is hosted on another instance.
func (h *Hub) Attach(ctx context.Context, code string) (*Room, error) {
	code = strings.ToUpper(code)
	if r, ok := h.Get(code); ok {
		return r, nil
	}

	rec, err := h.cfg.Directory.GetRoom(ctx, code)
	if errors.Is(err, directory.ErrRoomNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("attach room %s: %w", code, err)
	}
	if rec.HostInstance == h.cfg.InstanceID {
		// The directory says we host it but the replica is gone.
		return nil, ErrRoomNotFound
	}

	roster, err := h.loadRoster(ctx, rec)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[code]; ok {
		return r, nil
	}

	r := newRoom(h.ctx, code, false, h.cfg, h.remove)
	r.roster = roster
	if err := r.start(); err != nil {
		return nil, err
	}
	h.rooms[code] = r
	h.cfg.Metrics.SetRoomsActive(len(h.rooms))

	log.Info().Str("room_code", code).Str("host_instance", rec.HostInstance).Msg("following room")
	return r, nil
}

func (h *Hub) loadRoster(ctx context.Context, rec directory.Room) (Roster, error) {
	ps, err := h.cfg.Directory.Participants(ctx, rec.Code)
	if err != nil {
		return Roster{}, fmt.Errorf("load participants: %w", err)
	}
	claims, err := h.cfg.Directory.Claims(ctx, rec.Code)
	if err != nil {
		return Roster{}, fmt.Errorf("load claims: %w", err)
	}
	return Roster{HostName: rec.HostName, Participants: ps, Claims: claims}, nil
}

func (h *Hub) Get(code string) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[strings.ToUpper(code)]
	return r, ok
}

func (h *Hub) remove(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, code)
	h.cfg.Metrics.SetRoomsActive(len(h.rooms))
}

// Shutdown stops every room and waits for them to exit.
func (h *Hub) Shutdown() {
	h.cancel()

	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	for _, r := range rooms {
		<-r.Done()
	}
	log.Info().Int("rooms", len(rooms)).Msg("room hub stopped")
}
