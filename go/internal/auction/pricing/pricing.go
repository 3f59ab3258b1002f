// Package pricing holds the bid increment schedule and the eligibility checks
// every bid goes through. All functions are pure.
package pricing

import (
	"errors"

	"github.com/mcdev12/bidroom/go/internal/models"
)

// Increment tiers, in rupees.
const (
	TierOneCeiling   int64 = 10_000_000 // 1 Cr
	TierTwoCeiling   int64 = 20_000_000 // 2 Cr
	TierThreeCeiling int64 = 50_000_000 // 5 Cr

	TierOneIncrement   int64 = 500_000   // 5 L
	TierTwoIncrement   int64 = 1_000_000 // 10 L
	TierThreeIncrement int64 = 2_000_000 // 20 L
	TopIncrement       int64 = 2_500_000 // 25 L
)

var (
	ErrRosterFull         = errors.New("roster is full")
	ErrRestrictedCap      = errors.New("restricted player cap reached")
	ErrInsufficientBudget = errors.New("insufficient budget")
)

// NextIncrement returns the standard increment over currentAmount. The first
// tier is open at its ceiling; the second and third include theirs, so a
// standing bid of exactly 2 Cr still moves in 10 L steps.
func NextIncrement(currentAmount int64) int64 {
	switch {
	case currentAmount < TierOneCeiling:
		return TierOneIncrement
	case currentAmount <= TierTwoCeiling:
		return TierTwoIncrement
	case currentAmount <= TierThreeCeiling:
		return TierThreeIncrement
	default:
		return TopIncrement
	}
}

// EffectiveIncrement applies the session's configured increment floor.
func EffectiveIncrement(currentAmount, floor int64) int64 {
	return max(NextIncrement(currentAmount), floor)
}

// NextBid is the amount that must be offered to beat currentAmount.
func NextBid(currentAmount, floor int64) int64 {
	return currentAmount + EffectiveIncrement(currentAmount, floor)
}

// RequiredBid is the only amount a bid on the item can be accepted at: the
// base price when nobody has bid yet, otherwise one increment over the
// standing bid.
func RequiredBid(standing *models.Bid, basePrice, floor int64) int64 {
	if standing == nil {
		return basePrice
	}
	return NextBid(standing.Amount, floor)
}

// CheckEligibility reports whether team may bid amount on item under rules.
func CheckEligibility(team *models.Team, item *models.Item, rules models.Rules, amount int64) error {
	if team.RosterCount >= rules.MaxRosterSize {
		return ErrRosterFull
	}
	if item.Restricted() && team.RestrictedCount >= rules.MaxRestricted {
		return ErrRestrictedCap
	}
	if !CanAfford(team, amount) {
		return ErrInsufficientBudget
	}
	return nil
}

// CanAfford reports whether the team's remaining budget covers amount.
func CanAfford(team *models.Team, amount int64) bool {
	return team.BudgetRemaining >= amount
}

// SlotsRemaining is the number of roster places the team still has to fill.
func SlotsRemaining(team *models.Team, rules models.Rules) int {
	return max(rules.MaxRosterSize-team.RosterCount, 0)
}
