package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidroom/go/clients"
	"github.com/mcdev12/bidroom/go/internal/auction/engine"
	"github.com/mcdev12/bidroom/go/internal/catalog"
	"github.com/mcdev12/bidroom/go/internal/directory"
	"github.com/mcdev12/bidroom/go/internal/models"
	"github.com/mcdev12/bidroom/go/internal/room"
	"github.com/mcdev12/bidroom/go/internal/validate"
)

const codeAttempts = 5

// Rooms is the part of the room hub the API needs.
type Rooms interface {
	InstanceID() string
	Host(ctx context.Context, code string, state engine.State) (*room.Room, error)
	Attach(ctx context.Context, code string) (*room.Room, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Catalog   *catalog.Catalog
	Directory directory.Directory
	Rooms     Rooms
	Assets    *clients.AssetClient
	Clock     clockwork.Clock
	Checks    map[string]HealthCheck
	// Metrics serves /metrics when set.
	Metrics       http.Handler
	IsDevelopment bool
}

type Handler struct {
	catalog   *catalog.Catalog
	directory directory.Directory
	rooms     Rooms
	assets    *clients.AssetClient
	clock     clockwork.Clock
	checks    map[string]HealthCheck
	metrics   http.Handler
	isDev     bool
}

func NewHandler(d Deps) *Handler {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Assets == nil {
		d.Assets = clients.NewAssetClient(30 * time.Second)
	}
	return &Handler{
		catalog:   d.Catalog,
		directory: d.Directory,
		rooms:     d.Rooms,
		assets:    d.Assets,
		clock:     d.Clock,
		checks:    d.Checks,
		metrics:   d.Metrics,
		isDev:     d.IsDevelopment,
	}
}

type createRoomRequest struct {
	HostName string                `json:"host_name" validate:"required,max=24"`
	Mode     string                `json:"mode" validate:"required,max=16"`
	Rules    catalog.RuleOverrides `json:"rules"`
}

type roomResponse struct {
	RoomCode    string             `json:"room_code"`
	HostName    string             `json:"host_name"`
	Mode        string             `json:"mode"`
	Rules       models.Rules       `json:"rules"`
	Participant models.Participant `json:"participant"`
	Reconnected bool               `json:"reconnected"`
}

// CreateRoom builds a session from the catalog and hosts it on this
// instance.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.HostName = strings.TrimSpace(req.HostName)
	req.Mode = strings.ToUpper(req.Mode)

	session, err := h.catalog.Build(req.Mode, req.Rules)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	state, err := engine.New(session.Rules, session.Teams, session.Items)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	now := h.clock.Now()
	host := models.Participant{Name: req.HostName, Role: models.RoleHost, LastSeen: now}
	rec := directory.Room{
		HostName:     req.HostName,
		HostInstance: h.rooms.InstanceID(),
		Mode:         session.Mode,
		Rules:        session.Rules,
		Status:       models.RoomStatusWaiting,
		CreatedAt:    now,
	}
	if rec.Code, err = h.registerRoom(r.Context(), rec, host); err != nil {
		h.fail(w, r, err)
		return
	}

	if _, err := h.rooms.Host(r.Context(), rec.Code, state); err != nil {
		if delErr := h.directory.DeleteRoom(context.WithoutCancel(r.Context()), rec.Code); delErr != nil {
			log.Warn().Err(delErr).Str("room_code", rec.Code).Msg("failed to remove unhosted room")
		}
		h.fail(w, r, err)
		return
	}

	log.Info().
		Str("room_code", rec.Code).
		Str("host_name", rec.HostName).
		Str("mode", rec.Mode).
		Msg("room created")

	writeJSON(w, http.StatusCreated, roomResponse{
		RoomCode:    rec.Code,
		HostName:    rec.HostName,
		Mode:        rec.Mode,
		Rules:       rec.Rules,
		Participant: host,
	})
}

// registerRoom stores rec under a fresh room code, retrying on collisions.
func (h *Handler) registerRoom(ctx context.Context, rec directory.Room, host models.Participant) (string, error) {
	for range codeAttempts {
		code, err := directory.NewRoomCode()
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		rec.Code = code
		err = h.directory.CreateRoom(ctx, rec, host)
		if errors.Is(err, directory.ErrRoomExists) {
			continue
		}
		if err != nil {
			return "", err
		}
		return code, nil
	}
	return "", fmt.Errorf("no free room code after %d attempts: %w", codeAttempts, directory.ErrRoomExists)
}

type joinRoomRequest struct {
	Name string `json:"name" validate:"required,max=24"`
}

// JoinRoom seats a participant, or gives an offline participant their seat
// back. The participant stays offline until their socket connects. The
// local replica is started only after the seat is granted, so the socket
// that follows finds it synced.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))
	var req joinRoomRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	rec, err := h.directory.GetRoom(r.Context(), code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.directory.Join(r.Context(), code, req.Name, h.clock.Now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.rooms.Attach(r.Context(), code); err != nil {
		h.fail(w, r, err)
		return
	}

	log.Info().
		Str("room_code", code).
		Str("name", req.Name).
		Bool("reconnected", res.Reconnected).
		Msg("participant joined")

	writeJSON(w, http.StatusOK, roomResponse{
		RoomCode:    code,
		HostName:    rec.HostName,
		Mode:        rec.Mode,
		Rules:       rec.Rules,
		Participant: res.Participant,
		Reconnected: res.Reconnected,
	})
}

// RoomState returns the local replica's view of a room.
func (h *Handler) RoomState(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))
	rm, err := h.rooms.Attach(r.Context(), code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := rm.View(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) CatalogModes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"modes": h.catalog.Summaries(),
		"teams": h.catalog.Teams,
	})
}

// Proxy fetches a remote image for the browser and marks it cacheable.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	asset, err := h.assets.Fetch(r.Context(), target)
	if err != nil {
		if errors.Is(err, clients.ErrUnsupportedURL) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Warn().Err(err).Str("url", target).Msg("asset fetch failed")
		writeError(w, http.StatusBadGateway, "failed to fetch asset")
		return
	}
	defer asset.Body.Close()

	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(asset.StatusCode)
	if _, err := io.Copy(w, asset.Body); err != nil {
		log.Debug().Err(err).Str("url", target).Msg("asset copy interrupted")
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health probes every registered dependency and reports degraded status if
// any of them fail.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = "unreachable"
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// decode reads and validates a JSON body, answering the request itself on
// failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "validation failed",
			Fields: validate.Fields(err),
		})
		return false
	}
	return true
}
