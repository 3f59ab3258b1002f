// Package ledger keeps the validated record of teams, items and bids for one
// auction session.
package ledger

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/mcdev12/bidroom/go/internal/auction/pricing"
	"github.com/mcdev12/bidroom/go/internal/models"
)

var (
	ErrItemNotFound      = errors.New("item not found")
	ErrTeamNotFound      = errors.New("team not found")
	ErrItemNotLive       = errors.New("item is not live")
	ErrAnotherItemLive   = errors.New("another item is already live")
	ErrInvalidTransition = errors.New("invalid item status transition")
	ErrBidTooLow         = errors.New("bid does not beat the standing bid")
	ErrNotBasePrice      = errors.New("opening bid must equal the base price")
	ErrNoStandingBid     = errors.New("item has no standing bid")
	ErrDuplicateID       = errors.New("duplicate id")

	// ErrInvariant means the ledger's arithmetic no longer adds up. It is a
	// programming error, never a rejected command.
	ErrInvariant = errors.New("ledger invariant violated")
)

// Ledger owns every Team and Item of a session and the append-only bid
// history. It is not safe for concurrent use; the room actor serializes
// access.
type Ledger struct {
	rules    models.Rules
	items    []*models.Item
	itemIdx  map[string]*models.Item
	teams    []*models.Team
	teamIdx  map[string]*models.Team
	history  []models.Bid
	standing *models.Bid
}

// New builds a fresh ledger: every team starts with its full budget and no
// acquisitions, every item is PENDING and the queue is ordered by set.
func New(rules models.Rules, teams []models.Team, items []models.Item) (*Ledger, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}

	freshTeams := make([]models.Team, len(teams))
	for i, t := range teams {
		if t.BudgetAtStart <= 0 {
			return nil, fmt.Errorf("team %s: budget must be positive", t.ID)
		}
		freshTeams[i] = models.Team{
			ID:              t.ID,
			Name:            t.Name,
			ShortName:       t.ShortName,
			Color:           t.Color,
			LogoURL:         t.LogoURL,
			BudgetAtStart:   t.BudgetAtStart,
			BudgetRemaining: t.BudgetAtStart,
			CategoryCounts:  map[models.Category]int{},
		}
	}

	freshItems := make([]models.Item, len(items))
	for i, it := range items {
		if it.BasePrice <= 0 {
			return nil, fmt.Errorf("item %s: base price must be positive", it.ID)
		}
		it.Status = models.ItemStatusPending
		it.SoldTo, it.SoldPrice, it.ResolvedAt = "", 0, nil
		it.ListedSet = it.Set
		freshItems[i] = it
	}
	slices.SortStableFunc(freshItems, func(a, b models.Item) int {
		return rules.SetRank(a.Set) - rules.SetRank(b.Set)
	})

	return build(rules, freshTeams, freshItems, nil, nil)
}

// Restore rebuilds a ledger from a snapshot taken by another replica. The
// queue order, statuses and derived team state are taken as given and then
// verified.
func Restore(rules models.Rules, teams []models.Team, items []models.Item, history []models.Bid, standing *models.Bid) (*Ledger, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	l, err := build(rules, teams, items, history, standing)
	if err != nil {
		return nil, err
	}
	if l.standing != nil {
		it, ok := l.itemIdx[l.standing.ItemID]
		if !ok || it.Status != models.ItemStatusLive {
			return nil, fmt.Errorf("%w: standing bid on item %s which is not live", ErrInvariant, l.standing.ItemID)
		}
	}
	if err := l.CheckInvariants(); err != nil {
		return nil, err
	}
	return l, nil
}

func build(rules models.Rules, teams []models.Team, items []models.Item, history []models.Bid, standing *models.Bid) (*Ledger, error) {
	l := &Ledger{
		rules:   rules,
		itemIdx: make(map[string]*models.Item, len(items)),
		teamIdx: make(map[string]*models.Team, len(teams)),
		history: append([]models.Bid(nil), history...),
	}
	for i := range teams {
		t := teams[i].Clone()
		if t.CategoryCounts == nil {
			t.CategoryCounts = map[models.Category]int{}
		}
		if _, dup := l.teamIdx[t.ID]; dup || t.ID == "" {
			return nil, fmt.Errorf("%w: team %q", ErrDuplicateID, t.ID)
		}
		l.teams = append(l.teams, t)
		l.teamIdx[t.ID] = t
	}
	for i := range items {
		it := items[i]
		if _, dup := l.itemIdx[it.ID]; dup || it.ID == "" {
			return nil, fmt.Errorf("%w: item %q", ErrDuplicateID, it.ID)
		}
		l.items = append(l.items, &it)
		l.itemIdx[it.ID] = &it
	}
	if standing != nil {
		b := *standing
		l.standing = &b
	}
	return l, nil
}

// Rules returns the session rules.
func (l *Ledger) Rules() models.Rules {
	return l.rules
}

// Open moves a PENDING item to LIVE. Only one item can be live at a time.
func (l *Ledger) Open(itemID string) error {
	it, ok := l.itemIdx[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if it.Status != models.ItemStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, it.Status, models.ItemStatusLive)
	}
	if live := l.liveItem(); live != nil {
		return fmt.Errorf("%w: %s", ErrAnotherItemLive, live.ID)
	}
	it.Status = models.ItemStatusLive
	l.standing = nil
	return nil
}

// RecordBid appends bid to the history and makes it the standing bid. The
// budget is not touched until the item resolves.
func (l *Ledger) RecordBid(bid models.Bid) error {
	it, ok := l.itemIdx[bid.ItemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, bid.ItemID)
	}
	if it.Status != models.ItemStatusLive {
		return ErrItemNotLive
	}
	team, ok := l.teamIdx[bid.BidderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTeamNotFound, bid.BidderID)
	}

	if l.standing == nil {
		if bid.Amount != it.BasePrice {
			return ErrNotBasePrice
		}
	} else if bid.Amount <= l.standing.Amount {
		return ErrBidTooLow
	}

	if err := pricing.CheckEligibility(team, it, l.rules, bid.Amount); err != nil {
		return err
	}

	l.history = append(l.history, bid)
	b := bid
	l.standing = &b
	return nil
}

// ResolveSold closes the live item in favour of the standing bid and debits
// the winning team.
func (l *Ledger) ResolveSold(itemID string, at time.Time) (models.Bid, error) {
	it, ok := l.itemIdx[itemID]
	if !ok {
		return models.Bid{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if it.Status != models.ItemStatusLive {
		return models.Bid{}, ErrItemNotLive
	}
	if l.standing == nil || l.standing.ItemID != itemID {
		return models.Bid{}, ErrNoStandingBid
	}
	win := *l.standing
	team, ok := l.teamIdx[win.BidderID]
	if !ok {
		return models.Bid{}, fmt.Errorf("%w: %s", ErrTeamNotFound, win.BidderID)
	}

	resolved := at
	it.Status = models.ItemStatusSold
	it.SoldTo = team.ID
	it.SoldPrice = win.Amount
	it.ResolvedAt = &resolved

	team.BudgetRemaining -= win.Amount
	team.RosterCount++
	if it.Restricted() {
		team.RestrictedCount++
	}
	team.CategoryCounts[it.Category]++
	team.Acquired = append(team.Acquired, it.ID)
	l.standing = nil

	if err := l.CheckInvariants(); err != nil {
		return win, err
	}
	return win, nil
}

// ResolveUnsold closes the live item without a sale and re-queues it at the
// back of the catch-all set. No team is touched.
func (l *Ledger) ResolveUnsold(itemID string, at time.Time) error {
	it, ok := l.itemIdx[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if it.Status != models.ItemStatusLive {
		return ErrItemNotLive
	}

	resolved := at
	it.Status = models.ItemStatusUnsold
	it.ResolvedAt = &resolved
	it.Set = l.rules.CatchAllSet
	l.standing = nil

	idx := slices.Index(l.items, it)
	l.items = append(slices.Delete(l.items, idx, idx+1), it)
	return nil
}

// CheckInvariants verifies that every team's derived state matches its
// acquisitions and that at most one item is live.
func (l *Ledger) CheckInvariants() error {
	live := 0
	for _, it := range l.items {
		if it.Status == models.ItemStatusLive {
			live++
		}
	}
	if live > 1 {
		return fmt.Errorf("%w: %d items live", ErrInvariant, live)
	}

	for _, t := range l.teams {
		var spent int64
		restricted := 0
		categories := map[models.Category]int{}
		for _, id := range t.Acquired {
			it, ok := l.itemIdx[id]
			if !ok || it.Status != models.ItemStatusSold || it.SoldTo != t.ID {
				return fmt.Errorf("%w: team %s lists %s which it did not buy", ErrInvariant, t.ID, id)
			}
			spent += it.SoldPrice
			if it.Restricted() {
				restricted++
			}
			categories[it.Category]++
		}
		if t.BudgetRemaining+spent != t.BudgetAtStart {
			return fmt.Errorf("%w: team %s budget %d + spent %d != start %d",
				ErrInvariant, t.ID, t.BudgetRemaining, spent, t.BudgetAtStart)
		}
		if t.BudgetRemaining < 0 {
			return fmt.Errorf("%w: team %s budget negative", ErrInvariant, t.ID)
		}
		if t.RosterCount != len(t.Acquired) || t.RestrictedCount != restricted {
			return fmt.Errorf("%w: team %s counts out of step", ErrInvariant, t.ID)
		}
		for c, n := range categories {
			if t.CategoryCounts[c] != n {
				return fmt.Errorf("%w: team %s %s count %d != %d", ErrInvariant, t.ID, c, t.CategoryCounts[c], n)
			}
		}
	}
	return nil
}

// NextPending returns the first PENDING item in queue order.
func (l *Ledger) NextPending() (models.Item, bool) {
	for _, it := range l.items {
		if it.Status == models.ItemStatusPending {
			return *it, true
		}
	}
	return models.Item{}, false
}

// LiveItem returns the item currently under the hammer.
func (l *Ledger) LiveItem() (models.Item, bool) {
	if it := l.liveItem(); it != nil {
		return *it, true
	}
	return models.Item{}, false
}

func (l *Ledger) liveItem() *models.Item {
	for _, it := range l.items {
		if it.Status == models.ItemStatusLive {
			return it
		}
	}
	return nil
}

// Standing returns the standing bid on the live item, if any.
func (l *Ledger) Standing() *models.Bid {
	if l.standing == nil {
		return nil
	}
	b := *l.standing
	return &b
}

// Item returns a copy of the item.
func (l *Ledger) Item(id string) (models.Item, bool) {
	it, ok := l.itemIdx[id]
	if !ok {
		return models.Item{}, false
	}
	return *it, true
}

// Team returns a copy of the team.
func (l *Ledger) Team(id string) (models.Team, bool) {
	t, ok := l.teamIdx[id]
	if !ok {
		return models.Team{}, false
	}
	return *t.Clone(), true
}

// Items returns copies of all items in queue order.
func (l *Ledger) Items() []models.Item {
	out := make([]models.Item, len(l.items))
	for i, it := range l.items {
		out[i] = *it
	}
	return out
}

// Teams returns copies of all teams.
func (l *Ledger) Teams() []models.Team {
	out := make([]models.Team, len(l.teams))
	for i, t := range l.teams {
		out[i] = *t.Clone()
	}
	return out
}

// History returns the bid history in the order bids were accepted.
func (l *Ledger) History() []models.Bid {
	return append([]models.Bid(nil), l.history...)
}

// Clone returns an independent deep copy.
func (l *Ledger) Clone() *Ledger {
	c, err := build(l.rules, l.Teams(), l.Items(), l.history, l.standing)
	if err != nil {
		// build only fails on duplicate ids, which l already rejected.
		panic(fmt.Sprintf("ledger clone: %v", err))
	}
	return c
}
