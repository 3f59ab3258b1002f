package models

// Team is a bidder competing for items. BudgetRemaining and the counts are
// derived from the acquisitions and are maintained by the ledger.
type Team struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	ShortName string `json:"short_name" yaml:"short_name"`
	Color     string `json:"color,omitempty" yaml:"color"`
	LogoURL   string `json:"logo_url,omitempty" yaml:"logo_url"`

	BudgetAtStart   int64            `json:"budget_at_start" yaml:"-"`
	BudgetRemaining int64            `json:"budget_remaining" yaml:"-"`
	RosterCount     int              `json:"roster_count" yaml:"-"`
	RestrictedCount int              `json:"restricted_count" yaml:"-"`
	CategoryCounts  map[Category]int `json:"category_counts" yaml:"-"`
	Acquired        []string         `json:"acquired" yaml:"-"`
}

// Clone returns a deep copy of the team.
func (t *Team) Clone() *Team {
	c := *t
	c.Acquired = append([]string(nil), t.Acquired...)
	c.CategoryCounts = make(map[Category]int, len(t.CategoryCounts))
	for k, v := range t.CategoryCounts {
		c.CategoryCounts[k] = v
	}
	return &c
}
