package models

import (
	"fmt"
	"time"
)

// Auction sets, in the order they are put under the hammer.
const (
	SetMarquee         = "Marquee Set"
	SetBatters1        = "Batters Set 1"
	SetAllRounders1    = "All-Rounders Set 1"
	SetWicketKeepers1  = "Wicket-Keepers Set 1"
	SetFastBowlers1    = "Fast Bowlers Set 1"
	SetSpinners1       = "Spinners Set 1"
	SetBatters2        = "Batters Set 2"
	SetAllRounders2    = "All-Rounders Set 2"
	SetWicketKeepers2  = "Wicket-Keepers Set 2"
	SetFastBowlers2    = "Fast Bowlers Set 2"
	SetSpinners2       = "Spinners Set 2"
	SetUncapped        = "Uncapped"
	SetUnsold          = "Unsold Players"
	DefaultSquadSize   = 25
	DefaultOverseasCap = 8
)

// DefaultSetOrder is the IPL set sequence, without the catch-all set.
var DefaultSetOrder = []string{
	SetMarquee,
	SetBatters1,
	SetAllRounders1,
	SetWicketKeepers1,
	SetFastBowlers1,
	SetSpinners1,
	SetBatters2,
	SetAllRounders2,
	SetWicketKeepers2,
	SetFastBowlers2,
	SetSpinners2,
	SetUncapped,
}

// Rules are the per-session constants. They are fixed when the session is
// created.
type Rules struct {
	MaxRosterSize    int           `json:"max_roster_size" yaml:"max_roster_size"`
	MaxRestricted    int           `json:"max_restricted" yaml:"max_restricted"`
	MinIncrement     int64         `json:"min_increment" yaml:"min_increment"`
	ItemSeconds      int           `json:"item_seconds" yaml:"item_seconds"`
	BidWindowSeconds int           `json:"bid_window_seconds" yaml:"bid_window_seconds"`
	TickInterval     time.Duration `json:"tick_interval" yaml:"tick_interval"`
	SoldAdvanceDelay time.Duration `json:"sold_advance_delay" yaml:"sold_advance_delay"`
	SkipAdvanceDelay time.Duration `json:"skip_advance_delay" yaml:"skip_advance_delay"`
	SetOrder         []string      `json:"set_order" yaml:"set_order"`
	CatchAllSet      string        `json:"catch_all_set" yaml:"catch_all_set"`
}

// DefaultRules returns the standard IPL auction rules.
func DefaultRules() Rules {
	return Rules{
		MaxRosterSize:    DefaultSquadSize,
		MaxRestricted:    DefaultOverseasCap,
		MinIncrement:     0,
		ItemSeconds:      20,
		BidWindowSeconds: 10,
		TickInterval:     time.Second,
		SoldAdvanceDelay: 3 * time.Second,
		SkipAdvanceDelay: time.Second,
		SetOrder:         append([]string(nil), DefaultSetOrder...),
		CatchAllSet:      SetUnsold,
	}
}

// Validate checks the rules for values the engine cannot run with.
func (r Rules) Validate() error {
	switch {
	case r.MaxRosterSize <= 0:
		return fmt.Errorf("max roster size must be positive, got %d", r.MaxRosterSize)
	case r.MaxRestricted < 0:
		return fmt.Errorf("max restricted must not be negative, got %d", r.MaxRestricted)
	case r.MinIncrement < 0:
		return fmt.Errorf("min increment must not be negative, got %d", r.MinIncrement)
	case r.ItemSeconds <= 0 || r.BidWindowSeconds <= 0:
		return fmt.Errorf("countdown durations must be positive")
	case r.TickInterval <= 0:
		return fmt.Errorf("tick interval must be positive")
	case r.CatchAllSet == "":
		return fmt.Errorf("catch-all set is required")
	}
	return nil
}

// SetRank orders sets for queueing. Known sets keep their configured order,
// unknown sets follow them and the catch-all set is always last.
func (r Rules) SetRank(set string) int {
	if set == r.CatchAllSet {
		return len(r.SetOrder) + 1
	}
	for i, s := range r.SetOrder {
		if s == set {
			return i
		}
	}
	return len(r.SetOrder)
}
