package engine

import (
	"fmt"

	"github.com/mcdev12/bidroom/go/internal/auction/events"
	"github.com/mcdev12/bidroom/go/internal/auction/ledger"
	"github.com/mcdev12/bidroom/go/internal/models"
)

// Snapshot is the full session state as sent to a resyncing replica.
type Snapshot struct {
	Phase         Phase               `json:"phase"`
	Rules         models.Rules        `json:"rules"`
	Teams         []models.Team       `json:"teams"`
	Items         []models.Item       `json:"items"`
	History       []models.Bid        `json:"history"`
	StandingBid   *models.Bid         `json:"standing_bid,omitempty"`
	CurrentItemID string              `json:"current_item_id,omitempty"`
	Countdown     int                 `json:"countdown"`
	Paused        bool                `json:"paused"`
	Continuation  events.Continuation `json:"continuation"`
	Version       uint64              `json:"version"`
}

// Snapshot captures s.
func (s State) Snapshot() Snapshot {
	return Snapshot{
		Phase:         s.Phase,
		Rules:         s.Rules(),
		Teams:         s.Ledger.Teams(),
		Items:         s.Ledger.Items(),
		History:       s.Ledger.History(),
		StandingBid:   s.Ledger.Standing(),
		CurrentItemID: s.CurrentItemID,
		Countdown:     s.Countdown,
		Paused:        s.Paused,
		Continuation:  s.Continuation,
		Version:       s.Version,
	}
}

// Restore rebuilds a state from a snapshot. The result replaces the local
// state entirely.
func Restore(snap Snapshot) (State, error) {
	l, err := ledger.Restore(snap.Rules, snap.Teams, snap.Items, snap.History, snap.StandingBid)
	if err != nil {
		return State{}, fmt.Errorf("restore ledger: %w", err)
	}
	switch snap.Phase {
	case PhaseLobby, PhaseLive, PhaseSummary:
	default:
		return State{}, fmt.Errorf("restore: unknown phase %q", snap.Phase)
	}
	if snap.CurrentItemID != "" {
		if _, ok := l.Item(snap.CurrentItemID); !ok {
			return State{}, fmt.Errorf("restore: current item %s not in snapshot", snap.CurrentItemID)
		}
	}
	return State{
		Phase:         snap.Phase,
		Ledger:        l,
		CurrentItemID: snap.CurrentItemID,
		Countdown:     snap.Countdown,
		Paused:        snap.Paused,
		Continuation:  snap.Continuation,
		Version:       snap.Version,
	}, nil
}
