// Package bot decides when an autonomous bidder raises the standing bid.
package bot

import (
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcdev12/bidroom/go/internal/auction/engine"
	"github.com/mcdev12/bidroom/go/internal/auction/pricing"
	"github.com/mcdev12/bidroom/go/internal/models"
)

const (
	// HardCap is the most a bot will ever bid on one item.
	HardCap int64 = 55_000_000
	// ReservePerSlot is kept back for every roster place still empty.
	ReservePerSlot int64 = 2_000_000

	formMatchesCap = 100
	purseScale     = 200_000_000
)

// Need boosts apply while a team holds fewer than Min players of a category.
var needs = map[models.Category]struct {
	Min   int
	Boost float64
}{
	models.CategoryBatsman:      {Min: 4, Boost: 0.5},
	models.CategoryBowler:       {Min: 4, Boost: 0.5},
	models.CategoryWicketKeeper: {Min: 2, Boost: 1.0},
	models.CategoryAllRounder:   {Min: 2, Boost: 0.8},
}

var (
	half          = decimal.NewFromFloat(0.5)
	fifty         = decimal.NewFromInt(50)
	purseWeight   = decimal.NewFromFloat(0.1)
	purseScaleDec = decimal.NewFromInt(purseScale)
)

// Decision is a bid the bot engine wants to submit.
type Decision struct {
	BidderID string
	ItemID   string
	Amount   int64
}

// Strategy evaluates bot bidders. It keeps no state between calls apart from
// its random source.
type Strategy struct {
	rng *rand.Rand
}

// NewStrategy returns a strategy drawing from rng.
func NewStrategy(rng *rand.Rand) *Strategy {
	return &Strategy{rng: rng}
}

// Eligible applies the hard rules: caps, affordability, the absolute price
// ceiling and the per-slot reserve.
func Eligible(team models.Team, item models.Item, rules models.Rules, nextBid int64) bool {
	if pricing.CheckEligibility(&team, &item, rules, nextBid) != nil {
		return false
	}
	if nextBid > HardCap {
		return false
	}
	reserve := int64(pricing.SlotsRemaining(&team, rules)) * ReservePerSlot
	return team.BudgetRemaining-nextBid >= reserve
}

// Ceiling is the most the team is prepared to pay before sentiment:
// valuation scaled by need and purse strength.
func Ceiling(team models.Team, item models.Item) decimal.Decimal {
	base := decimal.NewFromInt(item.BasePrice)
	matches := decimal.NewFromInt(int64(min(item.Stats.Matches, formMatchesCap)))
	valuation := base.Add(base.Mul(matches.Div(fifty)).Mul(half))

	need := decimal.NewFromInt(1)
	if n, ok := needs[item.Category]; ok && team.CategoryCounts[item.Category] < n.Min {
		need = need.Add(decimal.NewFromFloat(n.Boost))
	}

	purse := decimal.NewFromInt(1).Add(
		decimal.NewFromInt(team.BudgetRemaining).Div(purseScaleDec).Mul(purseWeight))

	return valuation.Mul(need).Mul(purse)
}

// Sentiment draws a multiplier in [0.9, 1.1).
func (s *Strategy) Sentiment() decimal.Decimal {
	return decimal.NewFromFloat(0.9 + s.rng.Float64()*0.2)
}

// Willing reports whether team would raise to nextBid on item.
func (s *Strategy) Willing(team models.Team, item models.Item, rules models.Rules, nextBid int64) bool {
	if !Eligible(team, item, rules, nextBid) {
		return false
	}
	return decimal.NewFromInt(nextBid).LessThan(Ceiling(team, item).Mul(s.Sentiment()))
}

// Decide picks one bot-controlled team willing to raise the standing bid on
// the current item. controlled reports whether the bot engine plays a team.
func (s *Strategy) Decide(state engine.State, controlled func(teamID string) bool) (Decision, bool) {
	if !state.AcceptingBids() {
		return Decision{}, false
	}
	item, _ := state.CurrentItem()
	nextBid, _ := state.RequiredBid()
	leader := ""
	if standing := state.Standing(); standing != nil {
		leader = standing.BidderID
	}

	var willing []string
	for _, team := range state.Ledger.Teams() {
		if team.ID == leader || !controlled(team.ID) {
			continue
		}
		if s.Willing(team, item, state.Rules(), nextBid) {
			willing = append(willing, team.ID)
		}
	}
	if len(willing) == 0 {
		return Decision{}, false
	}
	return Decision{
		BidderID: willing[s.rng.IntN(len(willing))],
		ItemID:   item.ID,
		Amount:   nextBid,
	}, true
}

// ReactionDelay is how long a bot waits before bidding. Bots react faster
// when the countdown is nearly out.
func (s *Strategy) ReactionDelay(countdown int) time.Duration {
	if countdown < 5 {
		return 500*time.Millisecond + time.Duration(s.rng.Int64N(int64(time.Second)))
	}
	return time.Second + time.Duration(s.rng.Int64N(int64(2*time.Second)))
}
