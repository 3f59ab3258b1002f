// Package relay is the room transport: an at-most-once broadcast channel per
// room plus a private request/reply path used for resync.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Kind of message on a room channel.
type Kind string

const (
	// KindCommand carries an engine command for every replica to apply.
	KindCommand Kind = "command"
	// KindRoster carries the participant roster and team claims.
	KindRoster Kind = "roster"
	// KindSnapshot carries a full state snapshot from the host replica.
	KindSnapshot Kind = "snapshot"
	// KindClosed tells replicas the room is gone.
	KindClosed Kind = "closed"
)

var (
	ErrNoResponders = errors.New("no replica is serving the room")
	ErrClosed       = errors.New("relay closed")
)

// Message is one broadcast on a room channel.
type Message struct {
	Kind     Kind            `json:"kind"`
	RoomCode string          `json:"room_code"`
	Origin   string          `json:"origin"`           // instance that published
	Sender   string          `json:"sender,omitempty"` // participant that authored it
	Data     json.RawMessage `json:"data,omitempty"`
	SentAt   time.Time       `json:"sent_at"`
}

// Subscription is an active subscription or responder.
type Subscription interface {
	Unsubscribe() error
}

// Handler receives broadcasts. It runs on a relay goroutine and must not
// block for long.
type Handler func(Message)

// Responder answers private sync requests for a room.
type Responder func(ctx context.Context, req []byte) ([]byte, error)

// Relay moves messages between the replicas of a room. Delivery is not
// guaranteed and ordering across publishers is not preserved.
type Relay interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(roomCode string, h Handler) (Subscription, error)
	Request(ctx context.Context, roomCode string, req []byte) ([]byte, error)
	Serve(roomCode string, r Responder) (Subscription, error)
	Close() error
}
