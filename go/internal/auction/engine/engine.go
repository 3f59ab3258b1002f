// Package engine is the auction state machine. Apply is a pure function of
// (state, command): every replica that applies the same commands in the same
// order ends up with the same state.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/bidroom/go/internal/auction/events"
	"github.com/mcdev12/bidroom/go/internal/auction/ledger"
	"github.com/mcdev12/bidroom/go/internal/auction/pricing"
	"github.com/mcdev12/bidroom/go/internal/models"
)

// Phase of the session.
type Phase string

const (
	PhaseLobby   Phase = "LOBBY"
	PhaseLive    Phase = "LIVE"
	PhaseSummary Phase = "SUMMARY"
)

// State is the auction session aggregate. Treat it as a value: Apply never
// mutates the state it is given.
type State struct {
	Phase         Phase
	Ledger        *ledger.Ledger
	CurrentItemID string
	Countdown     int
	Paused        bool

	// Continuation is set when the current item resolves and says whether
	// the next item follows on its own.
	Continuation events.Continuation

	// Version counts applied state changes.
	Version uint64
}

// New creates a session in the lobby.
func New(rules models.Rules, teams []models.Team, items []models.Item) (State, error) {
	l, err := ledger.New(rules, teams, items)
	if err != nil {
		return State{}, err
	}
	return State{Phase: PhaseLobby, Ledger: l}, nil
}

// Rules returns the session rules.
func (s State) Rules() models.Rules {
	return s.Ledger.Rules()
}

// CurrentItem returns the item the session points at, live or just resolved.
func (s State) CurrentItem() (models.Item, bool) {
	if s.CurrentItemID == "" {
		return models.Item{}, false
	}
	return s.Ledger.Item(s.CurrentItemID)
}

// Standing returns the standing bid on the current item.
func (s State) Standing() *models.Bid {
	return s.Ledger.Standing()
}

// AcceptingBids reports whether a bid could be accepted right now.
func (s State) AcceptingBids() bool {
	if s.Phase != PhaseLive || s.Paused {
		return false
	}
	it, ok := s.CurrentItem()
	return ok && it.Status == models.ItemStatusLive
}

// RequiredBid is the amount the next bid on the current item must carry.
func (s State) RequiredBid() (int64, bool) {
	it, ok := s.CurrentItem()
	if !ok || it.Status != models.ItemStatusLive {
		return 0, false
	}
	return pricing.RequiredBid(s.Standing(), it.BasePrice, s.Rules().MinIncrement), true
}

// Apply runs cmd against s. It returns the new state and the events the
// transition produced. A command whose effect is already in place, or that
// refers to an item the session has moved past, yields no events and no
// error. A command that fails a precondition yields an error and the
// original state.
//
// Apply panics if the ledger reports an invariant violation.
func Apply(s State, cmd Command) (State, []events.Event, error) {
	next := s
	next.Ledger = s.Ledger.Clone()

	var (
		evs []events.Event
		err error
	)
	switch c := cmd.(type) {
	case Start:
		evs, err = next.start(c)
	case PlaceBid:
		evs, err = next.placeBid(c)
	case Tick:
		evs, err = next.tick(c)
	case Advance:
		evs, err = next.advance(c)
	case Skip:
		evs, err = next.skip(c)
	case Pause:
		evs = next.pause(c)
	case Resume:
		evs = next.resume(c)
	case Stop:
		evs, err = next.stop(c)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownKind, cmd)
	}

	if err != nil {
		if errors.Is(err, ledger.ErrInvariant) {
			panic(err)
		}
		return s, nil, err
	}
	if len(evs) == 0 {
		return s, nil, nil
	}
	next.Version++
	return next, evs, nil
}

func (s *State) start(c Start) ([]events.Event, error) {
	if s.Phase != PhaseLobby {
		return nil, nil
	}
	s.Phase = PhaseLive
	s.Paused = false

	evs := []events.Event{{
		Type: events.TypeAuctionStarted,
		Data: events.AuctionStartedPayload{
			StartedAt:  c.At,
			TotalItems: len(s.Ledger.Items()),
			Pending:    s.pendingCount(),
		},
	}}
	opened, err := s.openNext(c.At)
	if err != nil {
		return nil, err
	}
	return append(evs, opened...), nil
}

func (s *State) placeBid(c PlaceBid) ([]events.Event, error) {
	if s.Phase != PhaseLive {
		return nil, ErrNotLive
	}
	standing := s.Ledger.Standing()
	if standing != nil && standing.ID == c.BidID {
		return nil, nil
	}
	if s.Paused {
		return nil, ErrPaused
	}
	it, ok := s.CurrentItem()
	if !ok || c.ItemID != it.ID || it.Status != models.ItemStatusLive {
		return nil, ErrStaleItem
	}
	if _, ok := s.Ledger.Team(c.BidderID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBidder, c.BidderID)
	}
	if standing != nil && standing.BidderID == c.BidderID {
		return nil, ErrSelfRaise
	}
	floor := s.Rules().MinIncrement
	if required := pricing.RequiredBid(standing, it.BasePrice, floor); c.Amount != required {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrStaleAmount, c.Amount, required)
	}

	bid := models.Bid{ID: c.BidID, BidderID: c.BidderID, ItemID: c.ItemID, Amount: c.Amount, PlacedAt: c.At}
	if err := s.Ledger.RecordBid(bid); err != nil {
		return nil, err
	}
	s.Countdown = s.Rules().BidWindowSeconds

	return []events.Event{{
		Type: events.TypeBidPlaced,
		Data: events.BidPlacedPayload{
			BidID:     bid.ID,
			BidderID:  bid.BidderID,
			ItemID:    bid.ItemID,
			Amount:    bid.Amount,
			NextBid:   pricing.NextBid(bid.Amount, floor),
			Countdown: s.Countdown,
			PlacedAt:  bid.PlacedAt,
		},
	}}, nil
}

func (s *State) tick(c Tick) ([]events.Event, error) {
	if s.Phase != PhaseLive || s.Paused || c.ItemID != s.CurrentItemID {
		return nil, nil
	}
	it, ok := s.CurrentItem()
	if !ok || it.Status != models.ItemStatusLive || s.Countdown <= 0 {
		return nil, nil
	}

	s.Countdown--
	evs := []events.Event{{
		Type: events.TypeCountdownTick,
		Data: events.CountdownTickPayload{ItemID: it.ID, Remaining: s.Countdown, TickedAt: c.At},
	}}
	if s.Countdown > 0 {
		return evs, nil
	}
	resolved, err := s.resolve(c.At, false)
	if err != nil {
		return nil, err
	}
	return append(evs, resolved), nil
}

func (s *State) advance(c Advance) ([]events.Event, error) {
	if s.Phase != PhaseLive || c.FromItemID != s.CurrentItemID {
		return nil, nil
	}

	var evs []events.Event
	if it, ok := s.CurrentItem(); ok && it.Status == models.ItemStatusLive {
		ev, err := s.resolve(c.At, true)
		if err != nil {
			return nil, err
		}
		evs = append(evs, ev)
	}
	s.Paused = false
	opened, err := s.openNext(c.At)
	if err != nil {
		return nil, err
	}
	return append(evs, opened...), nil
}

func (s *State) skip(c Skip) ([]events.Event, error) {
	if s.Phase != PhaseLive || c.ItemID != s.CurrentItemID {
		return nil, nil
	}
	if it, ok := s.CurrentItem(); !ok || it.Status != models.ItemStatusLive {
		return nil, nil
	}
	ev, err := s.resolve(c.At, true)
	if err != nil {
		return nil, err
	}
	return []events.Event{ev}, nil
}

func (s *State) pause(c Pause) []events.Event {
	if s.Phase != PhaseLive || s.Paused {
		return nil
	}
	s.Paused = true
	return []events.Event{{
		Type: events.TypeAuctionPaused,
		Data: events.AuctionPausedPayload{ItemID: s.CurrentItemID, Countdown: s.Countdown, PausedAt: c.At},
	}}
}

func (s *State) resume(c Resume) []events.Event {
	if s.Phase != PhaseLive || !s.Paused {
		return nil
	}
	s.Paused = false
	return []events.Event{{
		Type: events.TypeAuctionResumed,
		Data: events.AuctionResumedPayload{ItemID: s.CurrentItemID, Countdown: s.Countdown, ResumedAt: c.At},
	}}
}

func (s *State) stop(c Stop) ([]events.Event, error) {
	if s.Phase != PhaseLive {
		return nil, nil
	}

	var evs []events.Event
	if it, ok := s.CurrentItem(); ok && it.Status == models.ItemStatusLive {
		ev, err := s.resolve(c.At, true)
		if err != nil {
			return nil, err
		}
		evs = append(evs, ev)
	}
	s.Phase = PhaseLobby
	s.CurrentItemID = ""
	s.Countdown = 0
	s.Paused = false
	s.Continuation = events.Continuation{}

	return append(evs, events.Event{
		Type: events.TypeAuctionStopped,
		Data: events.AuctionStoppedPayload{StoppedAt: c.At, Pending: s.pendingCount()},
	}), nil
}

// openNext opens the first pending item, or ends the session when none is
// left.
func (s *State) openNext(at time.Time) ([]events.Event, error) {
	s.Continuation = events.Continuation{}
	next, ok := s.Ledger.NextPending()
	if !ok {
		s.Phase = PhaseSummary
		s.CurrentItemID = ""
		s.Countdown = 0
		s.Paused = false
		return []events.Event{{Type: events.TypeAuctionCompleted, Data: s.summary(at)}}, nil
	}

	if err := s.Ledger.Open(next.ID); err != nil {
		return nil, err
	}
	s.CurrentItemID = next.ID
	s.Countdown = s.Rules().ItemSeconds

	return []events.Event{{
		Type: events.TypeItemOpened,
		Data: events.ItemOpenedPayload{
			ItemID:    next.ID,
			ItemName:  next.Name,
			Set:       next.Set,
			BasePrice: next.BasePrice,
			Countdown: s.Countdown,
			OpenedAt:  at,
		},
	}}, nil
}

// resolve closes the current item: sold to the standing bid unless forced,
// unsold otherwise.
func (s *State) resolve(at time.Time, forced bool) (events.Event, error) {
	it, _ := s.CurrentItem()
	rules := s.Rules()
	s.Countdown = 0

	delay := rules.SoldAdvanceDelay
	if forced {
		delay = rules.SkipAdvanceDelay
	}
	cont := events.Continuation{AdvanceAfterMS: delay.Milliseconds()}

	if s.Ledger.Standing() != nil && !forced {
		win, err := s.Ledger.ResolveSold(it.ID, at)
		if err != nil {
			return events.Event{}, err
		}
		cont.AutoAdvance = s.followsInSet(it.Set)
		s.Continuation = cont
		team, _ := s.Ledger.Team(win.BidderID)
		return events.Event{
			Type: events.TypeItemSold,
			Data: events.ItemSoldPayload{
				ItemID:          it.ID,
				ItemName:        it.Name,
				BidderID:        win.BidderID,
				Price:           win.Amount,
				BudgetRemaining: team.BudgetRemaining,
				ResolvedAt:      at,
				Continuation:    cont,
			},
		}, nil
	}

	if err := s.Ledger.ResolveUnsold(it.ID, at); err != nil {
		return events.Event{}, err
	}
	cont.AutoAdvance = s.followsInSet(it.Set)
	s.Continuation = cont
	return events.Event{
		Type: events.TypeItemUnsold,
		Data: events.ItemUnsoldPayload{
			ItemID:       it.ID,
			ItemName:     it.Name,
			ListedSet:    it.ListedSet,
			RequeuedTo:   rules.CatchAllSet,
			Skipped:      forced,
			ResolvedAt:   at,
			Continuation: cont,
		},
	}, nil
}

// followsInSet reports whether the next pending item is in set.
func (s *State) followsInSet(set string) bool {
	next, ok := s.Ledger.NextPending()
	return ok && next.Set == set
}

func (s *State) pendingCount() int {
	n := 0
	for _, it := range s.Ledger.Items() {
		if it.Status == models.ItemStatusPending {
			n++
		}
	}
	return n
}

func (s *State) summary(at time.Time) events.AuctionCompletedPayload {
	out := events.AuctionCompletedPayload{CompletedAt: at}
	for _, it := range s.Ledger.Items() {
		switch it.Status {
		case models.ItemStatusSold:
			out.Sold++
			out.TotalSpent += it.SoldPrice
		case models.ItemStatusUnsold:
			out.Unsold++
		}
	}
	return out
}
