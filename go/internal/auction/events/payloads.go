package events

import (
	"time"
)

// Event payload types shared between the engine, the room actor and the
// gateway.

// AuctionStartedPayload is the payload for an AuctionStarted event
type AuctionStartedPayload struct {
	StartedAt  time.Time `json:"started_at"`
	TotalItems int       `json:"total_items"`
	Pending    int       `json:"pending"`
}

// ItemOpenedPayload is the payload for an ItemOpened event
type ItemOpenedPayload struct {
	ItemID    string    `json:"item_id"`
	ItemName  string    `json:"item_name"`
	Set       string    `json:"set"`
	BasePrice int64     `json:"base_price"`
	Countdown int       `json:"countdown"`
	OpenedAt  time.Time `json:"opened_at"`
}

// BidPlacedPayload is the payload for a BidPlaced event
type BidPlacedPayload struct {
	BidID     string    `json:"bid_id"`
	BidderID  string    `json:"bidder_id"`
	ItemID    string    `json:"item_id"`
	Amount    int64     `json:"amount"`
	NextBid   int64     `json:"next_bid"`
	Countdown int       `json:"countdown"`
	PlacedAt  time.Time `json:"placed_at"`
}

// CountdownTickPayload is the payload for a CountdownTick event
type CountdownTickPayload struct {
	ItemID    string    `json:"item_id"`
	Remaining int       `json:"remaining"`
	TickedAt  time.Time `json:"ticked_at"`
}

// Continuation tells the authoritative replica whether to open the next item
// on its own after a resolution.
type Continuation struct {
	AutoAdvance    bool  `json:"auto_advance"`
	AdvanceAfterMS int64 `json:"advance_after_ms"`
}

// AdvanceAfter returns the delay as a duration.
func (c Continuation) AdvanceAfter() time.Duration {
	return time.Duration(c.AdvanceAfterMS) * time.Millisecond
}

// ItemSoldPayload is the payload for an ItemSold event
type ItemSoldPayload struct {
	ItemID          string    `json:"item_id"`
	ItemName        string    `json:"item_name"`
	BidderID        string    `json:"bidder_id"`
	Price           int64     `json:"price"`
	BudgetRemaining int64     `json:"budget_remaining"`
	ResolvedAt      time.Time `json:"resolved_at"`
	Continuation
}

// ItemUnsoldPayload is the payload for an ItemUnsold event
type ItemUnsoldPayload struct {
	ItemID     string    `json:"item_id"`
	ItemName   string    `json:"item_name"`
	ListedSet  string    `json:"listed_set"`
	RequeuedTo string    `json:"requeued_to"`
	Skipped    bool      `json:"skipped"`
	ResolvedAt time.Time `json:"resolved_at"`
	Continuation
}

// AuctionPausedPayload is the payload for an AuctionPaused event
type AuctionPausedPayload struct {
	ItemID    string    `json:"item_id,omitempty"`
	Countdown int       `json:"countdown"`
	PausedAt  time.Time `json:"paused_at"`
}

// AuctionResumedPayload is the payload for an AuctionResumed event
type AuctionResumedPayload struct {
	ItemID    string    `json:"item_id,omitempty"`
	Countdown int       `json:"countdown"`
	ResumedAt time.Time `json:"resumed_at"`
}

// AuctionStoppedPayload is the payload for an AuctionStopped event
type AuctionStoppedPayload struct {
	StoppedAt time.Time `json:"stopped_at"`
	Pending   int       `json:"pending"`
}

// AuctionCompletedPayload is the payload for an AuctionCompleted event
type AuctionCompletedPayload struct {
	CompletedAt time.Time `json:"completed_at"`
	Sold        int       `json:"sold"`
	Unsold      int       `json:"unsold"`
	TotalSpent  int64     `json:"total_spent"`
}
