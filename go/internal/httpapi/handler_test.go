package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/bidroom/go/internal/catalog"
	"github.com/mcdev12/bidroom/go/internal/directory"
	"github.com/mcdev12/bidroom/go/internal/models"
	"github.com/mcdev12/bidroom/go/internal/relay"
	"github.com/mcdev12/bidroom/go/internal/room"
)

type discard struct{}

func (discard) Broadcast(string, []byte)      {}
func (discard) SendTo(string, string, []byte) {}

type api struct {
	srv *httptest.Server
	dir *directory.Memory
	hub *room.Hub
}

func newAPI(t *testing.T, checks map[string]HealthCheck) *api {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	dir := directory.NewMemory()
	rly := relay.NewMemory()
	cfg := room.DefaultConfig()
	cfg.InstanceID = "api-1"
	cfg.Relay = rly
	cfg.Directory = dir
	cfg.Broadcaster = discard{}
	hub := room.NewHub(context.Background(), cfg)

	h := NewHandler(Deps{
		Catalog:       cat,
		Directory:     dir,
		Rooms:         hub,
		Checks:        checks,
		Metrics:       http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("# metrics\n")) }),
		IsDevelopment: true,
	})
	srv := httptest.NewServer(NewRouter(DefaultRouterConfig(), h))
	t.Cleanup(func() {
		srv.Close()
		hub.Shutdown()
		rly.Close()
	})
	return &api{srv: srv, dir: dir, hub: hub}
}

func (a *api) post(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(a.srv.URL+path, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (a *api) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(a.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (a *api) createRoom(t *testing.T) string {
	t.Helper()
	resp, body := a.post(t, "/api/rooms", `{"host_name":"ravi","mode":"mega"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	code, _ := body["room_code"].(string)
	require.Len(t, code, 6)
	return code
}

func TestCreateRoomHostsLocally(t *testing.T) {
	a := newAPI(t, nil)
	code := a.createRoom(t)

	rec, err := a.dir.GetRoom(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, "api-1", rec.HostInstance)
	assert.Equal(t, catalog.ModeMega, rec.Mode)
	assert.Equal(t, "ravi", rec.HostName)

	_, ok := a.hub.Get(code)
	assert.True(t, ok)

	resp, view := a.get(t, "/api/rooms/"+code+"/state")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, view["authoritative"])
	assert.Equal(t, true, view["synced"])
	assert.NotNil(t, view["snapshot"])
}

func TestCreateRoomRejectsBadRequests(t *testing.T) {
	a := newAPI(t, nil)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "not json", body: `{`, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"host_name":"ravi","mode":"MEGA","budget":1}`, status: http.StatusBadRequest},
		{name: "missing host", body: `{"mode":"MEGA"}`, status: http.StatusUnprocessableEntity},
		{name: "roster override out of range", body: `{"host_name":"ravi","mode":"MEGA","rules":{"max_roster_size":0}}`, status: http.StatusUnprocessableEntity},
		{name: "unknown mode", body: `{"host_name":"ravi","mode":"RETENTION"}`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := a.post(t, "/api/rooms", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, body)
			assert.NotEmpty(t, body["error"])
		})
	}

	resp, body := a.post(t, "/api/rooms", `{"mode":"MEGA"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	fields, _ := body["fields"].(map[string]any)
	assert.Contains(t, fields, "host_name")
}

func TestJoinRoom(t *testing.T) {
	a := newAPI(t, nil)
	code := a.createRoom(t)

	resp, body := a.post(t, "/api/rooms/"+code+"/join", `{"name":"asha"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, false, body["reconnected"])
	assert.Equal(t, "ravi", body["host_name"])

	// asha has not connected, so joining again reclaims the seat.
	resp, body = a.post(t, "/api/rooms/"+code+"/join", `{"name":"asha"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["reconnected"])

	// Once her socket is up the name is taken.
	_, err := a.dir.UpdateParticipant(context.Background(), code, "asha", func(p *models.Participant) {
		p.Online = true
	})
	require.NoError(t, err)
	resp, _ = a.post(t, "/api/rooms/"+code+"/join", `{"name":"asha"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The host has not connected yet; joining under that name reclaims the seat.
	resp, body = a.post(t, "/api/rooms/"+code+"/join", `{"name":"ravi"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["reconnected"])

	resp, _ = a.post(t, "/api/rooms/nope01/join", `{"name":"asha"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = a.post(t, "/api/rooms/"+code+"/join", `{"name":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestRejectedJoinStartsNoFollower(t *testing.T) {
	a := newAPI(t, nil)
	ctx := context.Background()
	require.NoError(t, a.dir.CreateRoom(ctx, directory.Room{
		Code:         "FAR001",
		HostName:     "meera",
		HostInstance: "api-2",
		Mode:         catalog.ModeMega,
		Status:       models.RoomStatusWaiting,
		CreatedAt:    time.Now(),
	}, models.Participant{Name: "meera", Role: models.RoleHost, Online: true, LastSeen: time.Now()}))

	resp, _ := a.post(t, "/api/rooms/FAR001/join", `{"name":"meera"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_, ok := a.hub.Get("FAR001")
	assert.False(t, ok)
}

func TestRoomStateUnknownRoom(t *testing.T) {
	a := newAPI(t, nil)
	resp, _ := a.get(t, "/api/rooms/NOPE01/state")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCatalogModes(t *testing.T) {
	a := newAPI(t, nil)
	resp, body := a.get(t, "/api/catalog/modes")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	modes, _ := body["modes"].([]any)
	assert.Len(t, modes, 2)
	teams, _ := body["teams"].([]any)
	assert.Len(t, teams, 10)
}

func TestProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/photo.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg"))
	}))
	defer upstream.Close()

	gone := httptest.NewServer(http.NotFoundHandler())
	goneURL := gone.URL
	gone.Close()

	a := newAPI(t, nil)
	proxy := func(target string) *http.Response {
		resp, err := http.Get(a.srv.URL + "/proxy?url=" + url.QueryEscape(target))
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := proxy(upstream.URL + "/photo.jpg")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, "public, max-age=86400", resp.Header.Get("Cache-Control"))

	assert.Equal(t, http.StatusNotFound, proxy(upstream.URL+"/missing.jpg").StatusCode)
	assert.Equal(t, http.StatusBadRequest, proxy("ftp://example.com/a.jpg").StatusCode)
	assert.Equal(t, http.StatusBadGateway, proxy(goneURL+"/photo.jpg").StatusCode)

	resp, err := http.Get(a.srv.URL + "/proxy")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	a := newAPI(t, map[string]HealthCheck{"relay": ok, "directory": ok})
	resp, body := a.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	a = newAPI(t, map[string]HealthCheck{"relay": ok, "directory": down})
	resp, body = a.get(t, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "degraded", body["status"])
	checks, _ := body["checks"].(map[string]any)
	assert.Equal(t, "unreachable", checks["directory"])
}

func TestSecurityHeadersAndMetrics(t *testing.T) {
	a := newAPI(t, nil)
	resp, err := http.Get(a.srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{catalog.ErrUnknownMode, http.StatusBadRequest},
		{room.ErrRoomNotFound, http.StatusNotFound},
		{directory.ErrNameTaken, http.StatusConflict},
		{room.ErrClosed, http.StatusGone},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
