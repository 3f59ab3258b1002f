package room

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/mcdev12/bidroom/go/internal/auction/bot"
	"github.com/mcdev12/bidroom/go/internal/auction/engine"
	"github.com/mcdev12/bidroom/go/internal/models"
	"github.com/mcdev12/bidroom/go/internal/relay"
)

func defaultStrategy() *bot.Strategy {
	return bot.NewStrategy(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
}

// afterChange brings the host's timers in line with the current state. Any
// timer whose premise no longer holds is cancelled.
func (r *Room) afterChange() {
	r.reconcileCountdown()
	r.reconcileAdvance()
	r.reconcileBot()
}

// reconcileCountdown keeps one tick pending for the live item. The label
// carries the standing bid, so every accepted bid restarts a full interval.
func (r *Room) reconcileCountdown() {
	s := r.state
	it, ok := s.CurrentItem()
	if s.Phase != engine.PhaseLive || s.Paused || !ok || it.Status != models.ItemStatusLive || s.Countdown <= 0 {
		r.cancelTimer(timerCountdown)
		return
	}
	standing := ""
	if b := s.Standing(); b != nil {
		standing = b.ID
	}
	label := fmt.Sprintf("%s/%s/%d", it.ID, standing, s.Countdown)
	if cur, armed := r.timerLabel(timerCountdown); armed && cur == label {
		return
	}
	r.armTimer(timerCountdown, label, s.Rules().TickInterval)
}

func (r *Room) reconcileAdvance() {
	s := r.state
	it, ok := s.CurrentItem()
	if s.Phase != engine.PhaseLive || s.Paused || !ok || !it.Status.Terminal() || !s.Continuation.AutoAdvance {
		r.cancelTimer(timerAdvance)
		return
	}
	if cur, armed := r.timerLabel(timerAdvance); armed && cur == it.ID {
		return
	}
	r.armTimer(timerAdvance, it.ID, s.Continuation.AdvanceAfter())
}

// reconcileBot keeps at most one pending bot bid, tied to the item and the
// standing bid it reacted to. When either changes the pending bid is
// dropped and the bot engine decides again.
func (r *Room) reconcileBot() {
	s := r.state
	if !r.synced || !s.AcceptingBids() {
		r.cancelTimer(timerBot)
		r.pending = nil
		return
	}
	label := r.botLabel()
	if cur, armed := r.timerLabel(timerBot); armed && cur == label {
		return
	}
	r.cancelTimer(timerBot)
	r.pending = nil

	dec, ok := r.strategy.Decide(s, r.controlled)
	if !ok {
		return
	}
	r.pending = &dec
	r.armTimer(timerBot, label, r.strategy.ReactionDelay(s.Countdown))
}

func (r *Room) botLabel() string {
	standing := ""
	if b := r.state.Standing(); b != nil {
		standing = b.ID
	}
	return r.state.CurrentItemID + "/" + standing
}

// reconcileIdle closes the room once nobody has been online for the
// presence timeout.
func (r *Room) reconcileIdle() {
	for _, p := range r.roster.Participants {
		if p.Online {
			r.cancelTimer(timerIdle)
			return
		}
	}
	if len(r.roster.Participants) == 0 {
		return
	}
	if _, armed := r.timerLabel(timerIdle); armed {
		return
	}
	r.armTimer(timerIdle, r.code, r.cfg.PresenceTimeout)
}

func (r *Room) armSnapshot() {
	if r.cfg.SnapshotInterval > 0 {
		r.armTimer(timerSnapshot, r.code, r.cfg.SnapshotInterval)
	}
}

// publishSnapshot sends the full state to every follower.
func (r *Room) publishSnapshot() {
	data, err := json.Marshal(r.syncState())
	if err != nil {
		r.log.Error().Err(err).Msg("failed to encode snapshot")
		return
	}
	r.publish(relay.KindSnapshot, "", data)
}

func (r *Room) handleTimer(fired timerFired) {
	t, ok := r.takeTimer(fired)
	if !ok {
		return
	}
	now := r.clock.Now()

	switch {
	case fired.key == timerCountdown:
		r.systemCommand(engine.Tick{ItemID: r.state.CurrentItemID, At: now})

	case fired.key == timerAdvance:
		r.systemCommand(engine.Advance{FromItemID: t.label, At: now})

	case fired.key == timerBot:
		r.fireBot(t.label)

	case fired.key == timerSnapshot:
		r.publishSnapshot()
		r.armSnapshot()

	case fired.key == timerIdle:
		r.closeIdle()

	case strings.HasPrefix(fired.key, presencePrefix):
		r.presenceExpired(t.label)
	}
}

// systemCommand submits a command the host authors on its own.
func (r *Room) systemCommand(cmd engine.Command) {
	if err := r.submit("", cmd); err != nil {
		r.log.Debug().Err(err).Str("kind", string(cmd.Kind())).Msg("system command rejected")
	}
	r.afterChange()
}

func (r *Room) fireBot(label string) {
	dec := r.pending
	r.pending = nil
	if dec == nil || label != r.botLabel() || !r.controlled(dec.BidderID) {
		r.afterChange()
		return
	}
	amount, ok := r.state.RequiredBid()
	if !ok || amount != dec.Amount {
		r.afterChange()
		return
	}
	r.log.Debug().Str("bidder_id", dec.BidderID).Str("item_id", dec.ItemID).Int64("amount", amount).Msg("bot bidding")
	r.systemCommand(engine.PlaceBid{
		BidID:    uuid.NewString(),
		BidderID: dec.BidderID,
		ItemID:   dec.ItemID,
		Amount:   amount,
		At:       r.clock.Now(),
	})
}

func (r *Room) closeIdle() {
	for _, p := range r.roster.Participants {
		if p.Online {
			return
		}
	}
	r.log.Info().Msg("closing idle room")
	r.publish(relay.KindClosed, "", nil)

	ctx, cancel := context.WithTimeout(context.Background(), directoryTimeout)
	defer cancel()
	if err := r.cfg.Directory.DeleteRoom(ctx, r.code); err != nil {
		r.log.Warn().Err(err).Msg("failed to delete room")
	}
	r.cancel()
}
