package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/bidroom/go/internal/auction/events"
)

func collect(t *testing.T, r Relay, room string) (<-chan Message, Subscription) {
	t.Helper()
	ch := make(chan Message, 16)
	sub, err := r.Subscribe(room, func(m Message) { ch <- m })
	require.NoError(t, err)
	return ch, sub
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestMemoryFanOutPerRoom(t *testing.T) {
	r := NewMemory()
	defer r.Close()

	a, _ := collect(t, r, "ROOM1")
	b, _ := collect(t, r, "ROOM1")
	other, _ := collect(t, r, "ROOM2")

	msg := Message{Kind: KindCommand, RoomCode: "ROOM1", Origin: "i1", Data: json.RawMessage(`{"x":1}`)}
	require.NoError(t, r.Publish(context.Background(), msg))

	assert.Equal(t, msg.Data, receive(t, a).Data)
	assert.Equal(t, msg.Data, receive(t, b).Data)

	select {
	case m := <-other:
		t.Fatalf("unexpected message on other room: %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryUnsubscribeStopsDelivery(t *testing.T) {
	r := NewMemory()
	defer r.Close()

	ch, sub := collect(t, r, "ROOM1")
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())

	require.NoError(t, r.Publish(context.Background(), Message{Kind: KindRoster, RoomCode: "ROOM1"}))
	select {
	case m := <-ch:
		t.Fatalf("unexpected message after unsubscribe: %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryRequestReply(t *testing.T) {
	r := NewMemory()
	defer r.Close()

	_, err := r.Request(context.Background(), "ROOM1", []byte("sync"))
	assert.ErrorIs(t, err, ErrNoResponders)

	first, err := r.Serve("ROOM1", func(ctx context.Context, req []byte) ([]byte, error) {
		return []byte("first:" + string(req)), nil
	})
	require.NoError(t, err)

	resp, err := r.Request(context.Background(), "ROOM1", []byte("sync"))
	require.NoError(t, err)
	assert.Equal(t, "first:sync", string(resp))

	// A new host takes over; the old one leaving must not remove it.
	_, err = r.Serve("ROOM1", func(ctx context.Context, req []byte) ([]byte, error) {
		return []byte("second"), nil
	})
	require.NoError(t, err)
	require.NoError(t, first.Unsubscribe())

	resp, err = r.Request(context.Background(), "ROOM1", nil)
	require.NoError(t, err)
	assert.Equal(t, "second", string(resp))
}

func TestMemoryClosed(t *testing.T) {
	r := NewMemory()
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.ErrorIs(t, r.Publish(context.Background(), Message{RoomCode: "ROOM1"}), ErrClosed)
	_, err := r.Subscribe("ROOM1", func(Message) {})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = r.Request(context.Background(), "ROOM1", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

type countingCollector struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingCollector) RecordBid(string)        {}
func (c *countingCollector) RecordResolution(string) {}
func (c *countingCollector) SetRoomsActive(int)      {}
func (c *countingCollector) SetConnections(int)      {}
func (c *countingCollector) RecordRelayMessage(kind, direction string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[kind+"/"+direction]++
}

func (c *countingCollector) get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

func TestInstrumentedCountsBothDirections(t *testing.T) {
	c := &countingCollector{counts: map[string]int{}}
	r := NewInstrumented(NewMemory(), c)
	defer r.Close()

	ch, _ := collect(t, r, "ROOM1")
	require.NoError(t, r.Publish(context.Background(), Message{Kind: KindSnapshot, RoomCode: "ROOM1"}))
	receive(t, ch)

	assert.Equal(t, 1, c.get("snapshot/out"))
	assert.Equal(t, 1, c.get("snapshot/in"))
}

type flakyJournal struct {
	mu       sync.Mutex
	failures int
	got      []events.Envelope
	done     chan struct{}
}

func (f *flakyJournal) Append(_ context.Context, env events.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("unavailable")
	}
	f.got = append(f.got, env)
	close(f.done)
	return nil
}

func TestJournalWriterRetries(t *testing.T) {
	j := &flakyJournal{failures: 2, done: make(chan struct{})}
	w := NewJournalWriter(j, WriterConfig{QueueSize: 4, MaxRetries: 3, RetryDelay: time.Millisecond})
	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))

	require.NoError(t, w.Append(context.Background(), events.Envelope{ID: "e1", RoomCode: "ROOM1"}))

	select {
	case <-j.done:
	case <-time.After(time.Second):
		t.Fatal("event was not journaled")
	}
	require.NoError(t, w.Stop())
	assert.Error(t, w.Stop())

	j.mu.Lock()
	defer j.mu.Unlock()
	require.Len(t, j.got, 1)
	assert.Equal(t, "e1", j.got[0].ID)
}
