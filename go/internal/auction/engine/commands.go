package engine

import (
	"time"
)

// Kind names a command on the wire.
type Kind string

const (
	KindStart    Kind = "start"
	KindPlaceBid Kind = "placeBid"
	KindTick     Kind = "tick"
	KindAdvance  Kind = "advance"
	KindSkip     Kind = "skip"
	KindPause    Kind = "pause"
	KindResume   Kind = "resume"
	KindStop     Kind = "stop"
)

// Command is one of the concrete command types below. The set is closed.
type Command interface {
	Kind() Kind
	isCommand()
}

// Start moves the session out of the lobby and opens the first pending item.
type Start struct {
	At time.Time `json:"at" validate:"required"`
}

// PlaceBid offers Amount for ItemID on behalf of BidderID. Amount is what the
// author computed from its own view; replicas whose view disagrees drop it.
type PlaceBid struct {
	BidID    string    `json:"bid_id" validate:"required"`
	BidderID string    `json:"bidder_id" validate:"required"`
	ItemID   string    `json:"item_id" validate:"required"`
	Amount   int64     `json:"amount" validate:"gt=0"`
	At       time.Time `json:"at" validate:"required"`
}

// Tick decrements the countdown of ItemID by one second.
type Tick struct {
	ItemID string    `json:"item_id" validate:"required"`
	At     time.Time `json:"at" validate:"required"`
}

// Advance leaves FromItemID and opens the next pending item. An empty
// FromItemID advances from a session that has no current item.
type Advance struct {
	FromItemID string    `json:"from_item_id"`
	At         time.Time `json:"at" validate:"required"`
}

// Skip resolves ItemID as unsold without waiting for the countdown.
type Skip struct {
	ItemID string    `json:"item_id" validate:"required"`
	At     time.Time `json:"at" validate:"required"`
}

// Pause freezes the countdown and bidding.
type Pause struct {
	At time.Time `json:"at" validate:"required"`
}

// Resume lifts a pause.
type Resume struct {
	At time.Time `json:"at" validate:"required"`
}

// Stop returns the session to the lobby and clears any pause. The next
// Start resumes with the first pending item.
type Stop struct {
	At time.Time `json:"at" validate:"required"`
}

func (Start) Kind() Kind    { return KindStart }
func (PlaceBid) Kind() Kind { return KindPlaceBid }
func (Tick) Kind() Kind     { return KindTick }
func (Advance) Kind() Kind  { return KindAdvance }
func (Skip) Kind() Kind     { return KindSkip }
func (Pause) Kind() Kind    { return KindPause }
func (Resume) Kind() Kind   { return KindResume }
func (Stop) Kind() Kind     { return KindStop }

func (Start) isCommand()    {}
func (PlaceBid) isCommand() {}
func (Tick) isCommand()     {}
func (Advance) isCommand()  {}
func (Skip) isCommand()     {}
func (Pause) isCommand()    {}
func (Resume) isCommand()   {}
func (Stop) isCommand()     {}
