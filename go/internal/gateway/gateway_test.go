package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/bidroom/go/internal/auction/engine"
	"github.com/mcdev12/bidroom/go/internal/directory"
	"github.com/mcdev12/bidroom/go/internal/metrics"
	"github.com/mcdev12/bidroom/go/internal/models"
	"github.com/mcdev12/bidroom/go/internal/relay"
	"github.com/mcdev12/bidroom/go/internal/room"
)

const (
	roomCode = "GATE01"
	hostName = "ravi"
)

func TestDecodeAction(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    room.Action
		wantErr error
	}{
		{name: "select team", raw: `{"type":"selectTeam","data":{"team_id":"csk"}}`, want: room.SelectTeam{TeamID: "csk"}},
		{name: "place bid", raw: `{"type":"placeBid","data":{"team_id":"mi"}}`, want: room.PlaceBid{TeamID: "mi"}},
		{name: "autopilot", raw: `{"type":"setAutopilot","data":{"enabled":true}}`, want: room.SetAutopilot{Enabled: true}},
		{name: "start", raw: `{"type":"startAuction"}`, want: room.StartAuction{}},
		{name: "skip", raw: `{"type":"skipItem"}`, want: room.SkipItem{}},
		{name: "sync", raw: `{"type":"requestSync"}`, want: room.RequestSync{}},
		{name: "unknown type", raw: `{"type":"buyEverything"}`, wantErr: ErrUnknownMessage},
		{name: "bid without team", raw: `{"type":"placeBid","data":{}}`, wantErr: ErrInvalidMessage},
		{name: "bid without data", raw: `{"type":"placeBid"}`, wantErr: ErrInvalidMessage},
		{name: "not json", raw: `bid!`, wantErr: ErrInvalidMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAction([]byte(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type testServer struct {
	srv *httptest.Server
	dir *directory.Memory
	svc *Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	dir := directory.NewMemory()
	rly := relay.NewMemory()
	svc := NewService(DefaultConfig(), metrics.NoOp{})

	cfg := room.DefaultConfig()
	cfg.InstanceID = "gw-1"
	cfg.Relay = rly
	cfg.Directory = dir
	cfg.Broadcaster = svc.Broadcaster()
	hub := room.NewHub(ctx, cfg)
	svc.Bind(hub, dir)

	rules := models.DefaultRules()
	require.NoError(t, dir.CreateRoom(ctx, directory.Room{
		Code:         roomCode,
		HostName:     hostName,
		HostInstance: cfg.InstanceID,
		Mode:         "MEGA",
		Rules:        rules,
		Status:       models.RoomStatusWaiting,
		CreatedAt:    time.Now(),
	}, models.Participant{Name: hostName, Role: models.RoleHost, Online: true, LastSeen: time.Now()}))

	state, err := engine.New(rules,
		[]models.Team{
			{ID: "csk", Name: "Chennai Super Kings", BudgetAtStart: 100_000_000},
			{ID: "mi", Name: "Mumbai Indians", BudgetAtStart: 100_000_000},
		},
		[]models.Item{
			{ID: "p1", Name: "Opener", Category: models.CategoryBatsman, BasePrice: 20_000_000, Set: models.SetMarquee},
		})
	require.NoError(t, err)
	_, err = hub.Host(ctx, roomCode, state)
	require.NoError(t, err)

	go svc.Start(ctx)

	router := chi.NewRouter()
	svc.RegisterRoutes(router)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		srv.Close()
		hub.Shutdown()
		cancel()
		rly.Close()
	})
	return &testServer{srv: srv, dir: dir, svc: svc}
}

func (ts *testServer) wsURL(code, name string) string {
	q := url.Values{"room_code": {code}, "name": {name}}
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/room?" + q.Encode()
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// readUntil reads messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", typ)
		var env envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Type == typ {
			return env
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func TestConnectReceivesSyncState(t *testing.T) {
	ts := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL("gate01", hostName), nil)
	require.NoError(t, err)
	defer conn.Close()

	env := readUntil(t, conn, string(room.NoticeSyncState))
	var st room.SyncState
	require.NoError(t, json.Unmarshal(env.Data, &st))
	require.NotNil(t, st.Snapshot)
	assert.Equal(t, hostName, st.Roster.HostName)

	require.Eventually(t, func() bool {
		return ts.svc.GetStats().RoomConnections[roomCode] == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientActionsReachTheRoom(t *testing.T) {
	ts := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL(roomCode, hostName), nil)
	require.NoError(t, err)
	defer conn.Close()
	readUntil(t, conn, string(room.NoticeSyncState))

	send(t, conn, `{"type":"selectTeam","data":{"team_id":"csk"}}`)
	env := readUntil(t, conn, string(room.NoticeTeamUpdated))
	var upd room.TeamUpdate
	require.NoError(t, json.Unmarshal(env.Data, &upd))
	assert.Equal(t, "csk", upd.TeamID)
	assert.Equal(t, hostName, upd.Name)

	send(t, conn, `{"type":"startAuction"}`)
	readUntil(t, conn, "auctionStarted")
	readUntil(t, conn, "itemOpened")
}

func TestInvalidMessageGetsErrorNotice(t *testing.T) {
	ts := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL(roomCode, hostName), nil)
	require.NoError(t, err)
	defer conn.Close()
	readUntil(t, conn, string(room.NoticeSyncState))

	send(t, conn, `{"type":"placeBid","data":{}}`)
	env := readUntil(t, conn, string(room.NoticeError))
	var notice room.ErrorNotice
	require.NoError(t, json.Unmarshal(env.Data, &notice))
	assert.Contains(t, notice.Message, "team_id")
}

func TestBroadcastReachesEveryConnection(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.dir.Join(context.Background(), roomCode, "asha", time.Now())
	require.NoError(t, err)

	host, _, err := websocket.DefaultDialer.Dial(ts.wsURL(roomCode, hostName), nil)
	require.NoError(t, err)
	defer host.Close()
	readUntil(t, host, string(room.NoticeSyncState))

	guest, _, err := websocket.DefaultDialer.Dial(ts.wsURL(roomCode, "asha"), nil)
	require.NoError(t, err)
	defer guest.Close()
	readUntil(t, guest, string(room.NoticeSyncState))

	send(t, guest, `{"type":"selectTeam","data":{"team_id":"mi"}}`)
	for _, conn := range []*websocket.Conn{host, guest} {
		env := readUntil(t, conn, string(room.NoticeTeamUpdated))
		var upd room.TeamUpdate
		require.NoError(t, json.Unmarshal(env.Data, &upd))
		assert.Equal(t, "mi", upd.TeamID)
		assert.Equal(t, "asha", upd.Name)
	}
}

func TestConnectionRefused(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		url    string
		status int
	}{
		{name: "unknown room", url: ts.wsURL("NOPE01", hostName), status: http.StatusNotFound},
		{name: "not joined", url: ts.wsURL(roomCode, "stranger"), status: http.StatusForbidden},
		{name: "missing name", url: ts.wsURL(roomCode, ""), status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(tt.url, nil)
			if conn != nil {
				conn.Close()
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestConnectionStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL(roomCode, hostName), nil)
	require.NoError(t, err)
	defer conn.Close()
	readUntil(t, conn, string(room.NoticeSyncState))

	resp, err := http.Get(ts.srv.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.ActiveRooms)
}
