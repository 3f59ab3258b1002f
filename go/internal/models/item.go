package models

import (
	"time"
)

// ItemStatus is the auction status of a lot.
type ItemStatus string

const (
	ItemStatusPending ItemStatus = "PENDING"
	ItemStatusLive    ItemStatus = "LIVE"
	ItemStatusSold    ItemStatus = "SOLD"
	ItemStatusUnsold  ItemStatus = "UNSOLD"
)

// Terminal reports whether the status can no longer change.
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusSold || s == ItemStatusUnsold
}

// Category is the playing role of a player on auction.
type Category string

const (
	CategoryBatsman      Category = "Batsman"
	CategoryBowler       Category = "Bowler"
	CategoryAllRounder   Category = "All-Rounder"
	CategoryWicketKeeper Category = "Wicket Keeper"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryBatsman, CategoryBowler, CategoryAllRounder, CategoryWicketKeeper:
		return true
	}
	return false
}

// ItemStats holds the descriptive career statistics of a player.
type ItemStats struct {
	Matches    int     `json:"matches" yaml:"matches"`
	Runs       int     `json:"runs,omitempty" yaml:"runs"`
	Wickets    int     `json:"wickets,omitempty" yaml:"wickets"`
	StrikeRate float64 `json:"strike_rate,omitempty" yaml:"strike_rate"`
	Economy    float64 `json:"economy,omitempty" yaml:"economy"`
	Average    float64 `json:"average,omitempty" yaml:"average"`
}

// Item is a lot (a player) in the auction pool.
type Item struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Country   string    `json:"country" yaml:"country"`
	Category  Category  `json:"category" yaml:"category"`
	Overseas  bool      `json:"overseas" yaml:"overseas"`
	Uncapped  bool      `json:"uncapped" yaml:"uncapped"`
	BasePrice int64     `json:"base_price" yaml:"base_price"`
	Stats     ItemStats `json:"stats" yaml:"stats"`
	ImageURL  string    `json:"image_url,omitempty" yaml:"image_url"`

	// Set is the partition the item is currently queued in. ListedSet is the
	// set it was originally listed in and does not change when the item is
	// moved to the catch-all set.
	Set       string `json:"set" yaml:"set"`
	ListedSet string `json:"listed_set" yaml:"-"`

	Status     ItemStatus `json:"status" yaml:"-"`
	SoldTo     string     `json:"sold_to,omitempty" yaml:"-"`
	SoldPrice  int64      `json:"sold_price,omitempty" yaml:"-"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" yaml:"-"`
}

// Restricted reports whether the item counts against a team's restricted cap.
func (i *Item) Restricted() bool {
	return i.Overseas
}
