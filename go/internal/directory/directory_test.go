package directory

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/bidroom/go/internal/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRoom(t *testing.T, d Directory) string {
	t.Helper()
	code, err := NewRoomCode()
	require.NoError(t, err)
	require.NoError(t, d.CreateRoom(context.Background(), Room{
		Code:      code,
		HostName:  "ravi",
		Mode:      "MEGA",
		Rules:     models.DefaultRules(),
		Status:    models.RoomStatusWaiting,
		CreatedAt: t0,
	}, models.Participant{Name: "ravi", Role: models.RoleHost, Online: true, LastSeen: t0}))
	t.Cleanup(func() { d.DeleteRoom(context.Background(), code) })
	return code
}

// runContract exercises behavior every Directory must share.
func runContract(t *testing.T, d Directory) {
	ctx := context.Background()

	t.Run("room lifecycle", func(t *testing.T) {
		code := newRoom(t, d)

		room, err := d.GetRoom(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, "ravi", room.HostName)
		assert.Equal(t, models.RoomStatusWaiting, room.Status)
		assert.Equal(t, models.DefaultSquadSize, room.Rules.MaxRosterSize)

		require.NoError(t, d.SetStatus(ctx, code, models.RoomStatusStarted))
		room, err = d.GetRoom(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, models.RoomStatusStarted, room.Status)

		err = d.CreateRoom(ctx, Room{Code: code}, models.Participant{Name: "x"})
		assert.ErrorIs(t, err, ErrRoomExists)

		require.NoError(t, d.DeleteRoom(ctx, code))
		_, err = d.GetRoom(ctx, code)
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("unknown room", func(t *testing.T) {
		_, err := d.Join(ctx, "NOPE00", "asha", t0)
		assert.ErrorIs(t, err, ErrRoomNotFound)
		_, err = d.Participants(ctx, "NOPE00")
		assert.ErrorIs(t, err, ErrRoomNotFound)
		_, err = d.ClaimTeam(ctx, "NOPE00", "asha", "csk")
		assert.ErrorIs(t, err, ErrRoomNotFound)
		assert.ErrorIs(t, d.SetStatus(ctx, "NOPE00", models.RoomStatusStarted), ErrRoomNotFound)
	})

	t.Run("join and reconnect", func(t *testing.T) {
		code := newRoom(t, d)

		res, err := d.Join(ctx, code, "asha", t0)
		require.NoError(t, err)
		assert.False(t, res.Reconnected)
		assert.Equal(t, models.RolePlayer, res.Participant.Role)
		assert.False(t, res.Participant.Online)

		// Nobody has connected yet, so the seat can still be reclaimed.
		res, err = d.Join(ctx, code, "asha", t0)
		require.NoError(t, err)
		assert.True(t, res.Reconnected)

		_, err = d.UpdateParticipant(ctx, code, "asha", func(p *models.Participant) {
			p.Online = true
		})
		require.NoError(t, err)
		_, err = d.Join(ctx, code, "asha", t0)
		assert.ErrorIs(t, err, ErrNameTaken)

		_, err = d.UpdateParticipant(ctx, code, "asha", func(p *models.Participant) {
			p.Online = false
			p.BotMode = true
		})
		require.NoError(t, err)

		res, err = d.Join(ctx, code, "asha", t0.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, res.Reconnected)
		assert.False(t, res.Participant.Online)
		assert.True(t, res.Participant.BotMode, "the bot keeps the seat until a session connects")
		assert.True(t, res.Participant.LastSeen.Equal(t0.Add(time.Minute)))

		ps, err := d.Participants(ctx, code)
		require.NoError(t, err)
		require.Len(t, ps, 2)
		assert.Equal(t, "ravi", ps[0].Name)
		assert.Equal(t, "asha", ps[1].Name)
	})

	t.Run("team claims", func(t *testing.T) {
		code := newRoom(t, d)
		_, err := d.Join(ctx, code, "asha", t0)
		require.NoError(t, err)

		prev, err := d.ClaimTeam(ctx, code, "ravi", "csk")
		require.NoError(t, err)
		assert.Empty(t, prev)

		_, err = d.ClaimTeam(ctx, code, "asha", "csk")
		assert.ErrorIs(t, err, ErrTeamTaken)

		prev, err = d.ClaimTeam(ctx, code, "ravi", "csk")
		require.NoError(t, err)
		assert.Empty(t, prev, "reclaiming the same team releases nothing")

		prev, err = d.ClaimTeam(ctx, code, "ravi", "mi")
		require.NoError(t, err)
		assert.Equal(t, "csk", prev)

		_, err = d.ClaimTeam(ctx, code, "asha", "csk")
		require.NoError(t, err)

		claims, err := d.Claims(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"mi": "ravi", "csk": "asha"}, claims)

		ps, err := d.Participants(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, "mi", ps[0].TeamID)
		assert.Equal(t, "csk", ps[1].TeamID)

		_, err = d.ClaimTeam(ctx, code, "ghost", "rcb")
		assert.ErrorIs(t, err, ErrParticipantNotFound)
	})

	t.Run("update keeps the seat", func(t *testing.T) {
		code := newRoom(t, d)
		_, err := d.ClaimTeam(ctx, code, "ravi", "csk")
		require.NoError(t, err)

		p, err := d.UpdateParticipant(ctx, code, "ravi", func(p *models.Participant) {
			p.Autopilot = true
			p.TeamID = "mi"
		})
		require.NoError(t, err)
		assert.True(t, p.Autopilot)
		assert.Equal(t, "csk", p.TeamID)

		_, err = d.UpdateParticipant(ctx, code, "ghost", func(*models.Participant) {})
		assert.ErrorIs(t, err, ErrParticipantNotFound)
	})
}

func TestMemoryDirectory(t *testing.T) {
	runContract(t, NewMemory())
}

func TestRedisDirectory(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set; skipping integration tests")
	}
	client, err := NewRedisClient(url)
	require.NoError(t, err)
	defer client.Close()

	runContract(t, NewRedis(client, time.Minute))
}

func TestNewRedisClientInvalidURL(t *testing.T) {
	_, err := NewRedisClient("not-a-valid-url")
	assert.Error(t, err)
}

func TestNewRoomCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := NewRoomCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		assert.Regexp(t, `^[A-Z0-9]{6}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestMemoryCodesAreCaseInsensitive(t *testing.T) {
	d := NewMemory()
	code := newRoom(t, d)
	_, err := d.Join(context.Background(), strings.ToLower(code), "asha", t0)
	require.NoError(t, err)
}
