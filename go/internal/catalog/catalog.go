// Package catalog holds the static reference data a room is built from:
// franchises, the player pool and the purse modes.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mcdev12/bidroom/go/internal/models"
)

var (
	ErrUnknownMode    = errors.New("unknown auction mode")
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// Well-known modes.
const (
	ModeMega = "MEGA"
	ModeMini = "MINI"
)

// Mode is a purse configuration. Purses overrides Purse per team id.
type Mode struct {
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description"`
	Purse       int64            `json:"purse" yaml:"purse"`
	Purses      map[string]int64 `json:"purses,omitempty" yaml:"purses"`
}

// PurseFor returns the starting purse of teamID under the mode.
func (m Mode) PurseFor(teamID string) int64 {
	if p, ok := m.Purses[teamID]; ok {
		return p
	}
	return m.Purse
}

type Catalog struct {
	Teams []models.Team `json:"teams" yaml:"teams"`
	Items []models.Item `json:"items" yaml:"items"`
	Modes []Mode        `json:"modes" yaml:"modes"`
}

// Source loads a catalog.
type Source interface {
	Load(ctx context.Context) (*Catalog, error)
}

// RuleOverrides are the rule values a host may change when creating a room.
type RuleOverrides struct {
	MaxRosterSize *int   `json:"max_roster_size,omitempty" validate:"omitempty,min=1,max=50"`
	MaxRestricted *int   `json:"max_restricted,omitempty" validate:"omitempty,min=0,max=25"`
	MinIncrement  *int64 `json:"min_increment,omitempty" validate:"omitempty,min=0"`
}

// Session is everything needed to start an auction in one mode.
type Session struct {
	Mode  string
	Rules models.Rules
	Teams []models.Team
	Items []models.Item
}

// Mode looks up a mode by name.
func (c *Catalog) Mode(name string) (Mode, bool) {
	i := slices.IndexFunc(c.Modes, func(m Mode) bool { return m.Name == name })
	if i < 0 {
		return Mode{}, false
	}
	return c.Modes[i], true
}

// Build returns fresh teams, items and rules for a room in mode.
func (c *Catalog) Build(mode string, o RuleOverrides) (Session, error) {
	m, ok := c.Mode(mode)
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}

	rules := models.DefaultRules()
	if o.MaxRosterSize != nil {
		rules.MaxRosterSize = *o.MaxRosterSize
	}
	if o.MaxRestricted != nil {
		rules.MaxRestricted = *o.MaxRestricted
	}
	if o.MinIncrement != nil {
		rules.MinIncrement = *o.MinIncrement
	}
	if err := rules.Validate(); err != nil {
		return Session{}, err
	}

	teams := make([]models.Team, len(c.Teams))
	for i, t := range c.Teams {
		teams[i] = models.Team{
			ID:            t.ID,
			Name:          t.Name,
			ShortName:     t.ShortName,
			Color:         t.Color,
			LogoURL:       t.LogoURL,
			BudgetAtStart: m.PurseFor(t.ID),
		}
	}
	items := make([]models.Item, len(c.Items))
	for i, it := range c.Items {
		it.Status = ""
		it.SoldTo = ""
		it.SoldPrice = 0
		it.ResolvedAt = nil
		it.ListedSet = ""
		items[i] = it
	}

	return Session{Mode: m.Name, Rules: rules, Teams: teams, Items: items}, nil
}

// Validate checks the catalog for data a room cannot be built from.
func (c *Catalog) Validate() error {
	if len(c.Teams) == 0 {
		return fmt.Errorf("%w: no teams", ErrInvalidCatalog)
	}
	if len(c.Modes) == 0 {
		return fmt.Errorf("%w: no modes", ErrInvalidCatalog)
	}

	teams := make(map[string]bool, len(c.Teams))
	for _, t := range c.Teams {
		if t.ID == "" || t.Name == "" {
			return fmt.Errorf("%w: team needs an id and a name", ErrInvalidCatalog)
		}
		if teams[t.ID] {
			return fmt.Errorf("%w: duplicate team %s", ErrInvalidCatalog, t.ID)
		}
		teams[t.ID] = true
	}

	seen := make(map[string]bool, len(c.Items))
	for _, it := range c.Items {
		switch {
		case it.ID == "":
			return fmt.Errorf("%w: item %q has no id", ErrInvalidCatalog, it.Name)
		case seen[it.ID]:
			return fmt.Errorf("%w: duplicate item %s", ErrInvalidCatalog, it.ID)
		case !it.Category.Valid():
			return fmt.Errorf("%w: item %s has unknown category %q", ErrInvalidCatalog, it.ID, it.Category)
		case it.BasePrice <= 0:
			return fmt.Errorf("%w: item %s has no base price", ErrInvalidCatalog, it.ID)
		case it.Set == "":
			return fmt.Errorf("%w: item %s has no set", ErrInvalidCatalog, it.ID)
		}
		seen[it.ID] = true
	}

	for _, m := range c.Modes {
		if m.Name == "" || m.Purse <= 0 {
			return fmt.Errorf("%w: mode %q needs a name and a purse", ErrInvalidCatalog, m.Name)
		}
		for id, p := range m.Purses {
			if !teams[id] {
				return fmt.Errorf("%w: mode %s sets a purse for unknown team %s", ErrInvalidCatalog, m.Name, id)
			}
			if p <= 0 {
				return fmt.Errorf("%w: mode %s purse for %s must be positive", ErrInvalidCatalog, m.Name, id)
			}
		}
	}
	return nil
}

// ModeSummary describes a mode for clients choosing one.
type ModeSummary struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Purses      map[string]int64 `json:"purses"`
	Items       int              `json:"items"`
}

func (c *Catalog) Summaries() []ModeSummary {
	out := make([]ModeSummary, 0, len(c.Modes))
	for _, m := range c.Modes {
		purses := make(map[string]int64, len(c.Teams))
		for _, t := range c.Teams {
			purses[t.ID] = m.PurseFor(t.ID)
		}
		out = append(out, ModeSummary{Name: m.Name, Description: m.Description, Purses: purses, Items: len(c.Items)})
	}
	return out
}
