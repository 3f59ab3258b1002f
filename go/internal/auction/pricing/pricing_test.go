package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/bidroom/go/internal/models"
)

func TestNextIncrementTiers(t *testing.T) {
	tests := []struct {
		name    string
		current int64
		want    int64
	}{
		{"zero", 0, 500_000},
		{"below one crore", 9_999_999, 500_000},
		{"exactly one crore", 10_000_000, 1_000_000},
		{"below two crore", 19_500_000, 1_000_000},
		{"exactly two crore", 20_000_000, 1_000_000},
		{"above two crore", 20_000_001, 2_000_000},
		{"exactly five crore", 50_000_000, 2_000_000},
		{"above five crore", 50_500_000, 2_500_000},
		{"far above", 250_000_000, 2_500_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextIncrement(tt.current))
		})
	}
}

func TestEffectiveIncrementUsesFloor(t *testing.T) {
	assert.Equal(t, int64(500_000), EffectiveIncrement(2_000_000, 0))
	assert.Equal(t, int64(1_500_000), EffectiveIncrement(2_000_000, 1_500_000))
	assert.Equal(t, int64(2_500_000), EffectiveIncrement(60_000_000, 1_000_000))
	assert.Equal(t, int64(21_000_000), NextBid(20_000_000, 0))
}

func TestRequiredBid(t *testing.T) {
	// First bid on a 2 Cr base is the base itself.
	assert.Equal(t, int64(20_000_000), RequiredBid(nil, 20_000_000, 0))

	// 1.9 Cr standing is still inside the 1-2 Cr tier.
	standing := &models.Bid{Amount: 19_000_000}
	assert.Equal(t, int64(20_000_000), RequiredBid(standing, 20_000_000, 0))

	standing = &models.Bid{Amount: 21_000_000}
	assert.Equal(t, int64(23_000_000), RequiredBid(standing, 20_000_000, 0))
}

func TestRequiredBidTwoCroreBase(t *testing.T) {
	first := RequiredBid(nil, 20_000_000, 0)
	require.Equal(t, int64(20_000_000), first)

	second := RequiredBid(&models.Bid{Amount: first}, 20_000_000, 0)
	assert.Equal(t, int64(21_000_000), second)
}

func TestCheckEligibility(t *testing.T) {
	rules := models.DefaultRules()
	item := &models.Item{ID: "p1", BasePrice: 2_000_000}
	overseas := &models.Item{ID: "p2", BasePrice: 2_000_000, Overseas: true}

	tests := []struct {
		name   string
		team   models.Team
		item   *models.Item
		amount int64
		want   error
	}{
		{"eligible", models.Team{BudgetRemaining: 10_000_000}, item, 2_000_000, nil},
		{"roster full regardless of funds", models.Team{BudgetRemaining: 900_000_000, RosterCount: 25}, item, 2_000_000, ErrRosterFull},
		{"overseas cap", models.Team{BudgetRemaining: 10_000_000, RestrictedCount: 8}, overseas, 2_000_000, ErrRestrictedCap},
		{"overseas cap ignored for domestic", models.Team{BudgetRemaining: 10_000_000, RestrictedCount: 8}, item, 2_000_000, nil},
		{"budget exact", models.Team{BudgetRemaining: 2_000_000}, item, 2_000_000, nil},
		{"budget short", models.Team{BudgetRemaining: 1_999_999}, item, 2_000_000, ErrInsufficientBudget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckEligibility(&tt.team, tt.item, rules, tt.amount)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
