package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/bidroom/go/internal/auction/engine"
	"github.com/mcdev12/bidroom/go/internal/models"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Len(t, c.Teams, 10)
	assert.NotEmpty(t, c.Items)
	_, ok := c.Mode(ModeMega)
	assert.True(t, ok)
	_, ok = c.Mode(ModeMini)
	assert.True(t, ok)

	for _, it := range c.Items {
		assert.True(t, it.Category.Valid(), it.ID)
		assert.Less(t, models.DefaultRules().SetRank(it.Set), len(models.DefaultSetOrder), it.ID)
	}
}

func TestBuildPurses(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	mega, err := c.Build(ModeMega, RuleOverrides{})
	require.NoError(t, err)
	for _, team := range mega.Teams {
		assert.Equal(t, int64(900_000_000), team.BudgetAtStart, team.ID)
	}

	mini, err := c.Build(ModeMini, RuleOverrides{})
	require.NoError(t, err)
	purses := map[string]int64{}
	for _, team := range mini.Teams {
		purses[team.ID] = team.BudgetAtStart
	}
	assert.Equal(t, int64(434_000_000), purses["csk"])
	assert.Equal(t, int64(28_000_000), purses["mi"])
	assert.Equal(t, int64(643_000_000), purses["kkr"])
}

func TestBuildStartsAnEngine(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	s, err := c.Build(ModeMega, RuleOverrides{})
	require.NoError(t, err)
	state, err := engine.New(s.Rules, s.Teams, s.Items)
	require.NoError(t, err)

	state, _, err = engine.Apply(state, engine.Start{})
	require.NoError(t, err)
	it, ok := state.CurrentItem()
	require.True(t, ok)
	assert.Equal(t, models.SetMarquee, it.Set)
}

func TestBuildDoesNotShareState(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	a, err := c.Build(ModeMega, RuleOverrides{})
	require.NoError(t, err)
	a.Teams[0].BudgetAtStart = 1
	a.Items[0].Status = models.ItemStatusSold

	b, err := c.Build(ModeMega, RuleOverrides{})
	require.NoError(t, err)
	assert.Equal(t, int64(900_000_000), b.Teams[0].BudgetAtStart)
	assert.Empty(t, b.Items[0].Status)
}

func TestBuildOverrides(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	roster, restricted, floor := 18, 6, int64(1_000_000)
	s, err := c.Build(ModeMega, RuleOverrides{MaxRosterSize: &roster, MaxRestricted: &restricted, MinIncrement: &floor})
	require.NoError(t, err)
	assert.Equal(t, 18, s.Rules.MaxRosterSize)
	assert.Equal(t, 6, s.Rules.MaxRestricted)
	assert.Equal(t, int64(1_000_000), s.Rules.MinIncrement)
	assert.Equal(t, 20, s.Rules.ItemSeconds)

	zero := 0
	_, err = c.Build(ModeMega, RuleOverrides{MaxRosterSize: &zero})
	assert.Error(t, err)

	_, err = c.Build("AUCTION9", RuleOverrides{})
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown field",
			yaml: `
teams: [{id: csk, name: CSK}]
modes: [{name: MEGA, purse: 100}]
items: [{id: p1, name: A, category: Batsman, base_price: 10, set: Marquee Set, colour: red}]`,
		},
		{
			name: "unknown category",
			yaml: `
teams: [{id: csk, name: CSK}]
modes: [{name: MEGA, purse: 100}]
items: [{id: p1, name: A, category: Keeper, base_price: 10, set: Marquee Set}]`,
		},
		{
			name: "duplicate item",
			yaml: `
teams: [{id: csk, name: CSK}]
modes: [{name: MEGA, purse: 100}]
items:
  - {id: p1, name: A, category: Batsman, base_price: 10, set: Marquee Set}
  - {id: p1, name: B, category: Bowler, base_price: 10, set: Marquee Set}`,
		},
		{
			name: "purse for unknown team",
			yaml: `
teams: [{id: csk, name: CSK}]
modes: [{name: MINI, purse: 100, purses: {mi: 50}}]
items: []`,
		},
		{
			name: "no modes",
			yaml: `
teams: [{id: csk, name: CSK}]
items: []`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
teams:
  - {id: csk, name: Chennai Super Kings, short_name: CSK}
  - {id: mi, name: Mumbai Indians, short_name: MI}
modes:
  - {name: MEGA, purse: 1000}
items:
  - {id: p1, name: A, category: Batsman, base_price: 10, set: Marquee Set, stats: {matches: 12}}
`), 0o600))

	c, err := NewFileSource(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 12, c.Items[0].Stats.Matches)

	_, err = NewFileSource(filepath.Join(t.TempDir(), "missing.yaml")).Load(context.Background())
	assert.Error(t, err)

	builtIn, err := NewFileSource("").Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, builtIn.Teams, 10)
}

func TestSummaries(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	sums := c.Summaries()
	require.Len(t, sums, 2)
	assert.Equal(t, ModeMega, sums[0].Name)
	assert.Equal(t, int64(900_000_000), sums[0].Purses["mi"])
	assert.Equal(t, int64(28_000_000), sums[1].Purses["mi"])
	assert.Equal(t, len(c.Items), sums[1].Items)
}

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	require.NoError(t, Migrate(dsn))

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	want, err := Default()
	require.NoError(t, err)

	src := NewPostgresSource(pool)
	res, err := src.Save(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, len(want.Items), res.Items)

	got, err := src.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Teams, got.Teams)
	assert.Equal(t, want.Items, got.Items)
	assert.Equal(t, want.Modes, got.Modes)
}
