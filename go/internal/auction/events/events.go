// Package events defines what the auction engine emits and how it travels
// over the wire.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type represents the type of auction event
type Type string

const (
	TypeAuctionStarted   Type = "auctionStarted"
	TypeItemOpened       Type = "itemOpened"
	TypeBidPlaced        Type = "bidPlaced"
	TypeCountdownTick    Type = "countdownTick"
	TypeItemSold         Type = "itemSold"
	TypeItemUnsold       Type = "itemUnsold"
	TypeAuctionPaused    Type = "auctionPaused"
	TypeAuctionResumed   Type = "auctionResumed"
	TypeAuctionStopped   Type = "auctionStopped"
	TypeAuctionCompleted Type = "auctionCompleted"
)

// Event is a state change produced by applying one command.
type Event struct {
	Type Type
	Data any
}

// Envelope represents the base structure for all auction events on the wire
type Envelope struct {
	ID        string          `json:"id"`        // Event UUID
	RoomCode  string          `json:"room_code"` // Room the event belongs to
	Type      Type            `json:"type"`      // Event type
	Version   uint64          `json:"version"`   // State version after the event
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// Seal wraps an event for broadcast.
func Seal(roomCode string, version uint64, at time.Time, ev Event) (Envelope, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", ev.Type, err)
	}
	return Envelope{
		ID:        uuid.NewString(),
		RoomCode:  roomCode,
		Type:      ev.Type,
		Version:   version,
		Timestamp: at,
		Data:      data,
	}, nil
}

// ParsePayload parses envelope data into the matching payload struct.
func ParsePayload(env Envelope) (any, error) {
	var payload any
	switch env.Type {
	case TypeAuctionStarted:
		payload = &AuctionStartedPayload{}
	case TypeItemOpened:
		payload = &ItemOpenedPayload{}
	case TypeBidPlaced:
		payload = &BidPlacedPayload{}
	case TypeCountdownTick:
		payload = &CountdownTickPayload{}
	case TypeItemSold:
		payload = &ItemSoldPayload{}
	case TypeItemUnsold:
		payload = &ItemUnsoldPayload{}
	case TypeAuctionPaused:
		payload = &AuctionPausedPayload{}
	case TypeAuctionResumed:
		payload = &AuctionResumedPayload{}
	case TypeAuctionStopped:
		payload = &AuctionStoppedPayload{}
	case TypeAuctionCompleted:
		payload = &AuctionCompletedPayload{}
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
	}
	return payload, nil
}
