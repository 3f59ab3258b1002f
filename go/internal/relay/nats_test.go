package relay

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These run against a live server: NATS_URL=nats://localhost:4222 go test ./...
func natsRelay(t *testing.T) *NATSRelay {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	cfg := DefaultNATSConfig()
	cfg.URL = url
	cfg.SubjectPrefix = fmt.Sprintf("test.%s", uuid.NewString()[:8])
	r, err := DialNATS(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestNATSPublishSubscribe(t *testing.T) {
	r := natsRelay(t)

	ch, sub := collect(t, r, "ROOM1")
	defer sub.Unsubscribe()
	require.NoError(t, r.Conn().Flush())

	require.NoError(t, r.Publish(context.Background(), Message{Kind: KindCommand, RoomCode: "ROOM1", Origin: "a"}))
	got := receive(t, ch)
	assert.Equal(t, KindCommand, got.Kind)
	assert.Equal(t, "a", got.Origin)
}

func TestNATSRequestServe(t *testing.T) {
	r := natsRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := r.Request(ctx, "ROOM1", []byte("sync"))
	assert.ErrorIs(t, err, ErrNoResponders)

	sub, err := r.Serve("ROOM1", func(ctx context.Context, req []byte) ([]byte, error) {
		return append([]byte("ok:"), req...), nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, r.Conn().Flush())

	resp, err := r.Request(ctx, "ROOM1", []byte("sync"))
	require.NoError(t, err)
	assert.Equal(t, "ok:sync", string(resp))
}
