package models

import (
	"time"
)

// Bid is an accepted bid. Bids are immutable once recorded.
type Bid struct {
	ID       string    `json:"id"`
	BidderID string    `json:"bidder_id"`
	ItemID   string    `json:"item_id"`
	Amount   int64     `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}
