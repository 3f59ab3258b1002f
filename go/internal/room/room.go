// Package room runs one replica of an auction room per instance. Exactly one
// replica of a room is authoritative (the host replica); it owns the clock
// and the bot engine. Followers apply the commands relayed to them and are
// overwritten by the host's snapshots whenever they drift.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidroom/go/internal/auction/bot"
	"github.com/mcdev12/bidroom/go/internal/auction/engine"
	"github.com/mcdev12/bidroom/go/internal/auction/events"
	"github.com/mcdev12/bidroom/go/internal/directory"
	"github.com/mcdev12/bidroom/go/internal/metrics"
	"github.com/mcdev12/bidroom/go/internal/models"
	"github.com/mcdev12/bidroom/go/internal/relay"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrClosed        = errors.New("room closed")
	ErrNotHost       = errors.New("only the host can do that")
	ErrNotSeatHolder = errors.New("team is not held by this participant")
	ErrUnknownTeam   = errors.New("unknown team")
	ErrNotSynced     = errors.New("room state is not available yet")
)

const (
	inboxSize        = 256
	directoryTimeout = 3 * time.Second
	minForcedResync  = time.Second
)

// Config is shared by every room on an instance.
type Config struct {
	InstanceID       string
	Clock            clockwork.Clock
	Relay            relay.Relay
	Directory        directory.Directory
	Broadcaster      Broadcaster
	Journal          relay.Journal
	Metrics          metrics.Collector
	NewStrategy      func() *bot.Strategy
	SnapshotInterval time.Duration
	PresenceTimeout  time.Duration
	SyncTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		InstanceID:       uuid.NewString(),
		Clock:            clockwork.NewRealClock(),
		Journal:          relay.NopJournal{},
		Metrics:          metrics.NoOp{},
		NewStrategy:      defaultStrategy,
		SnapshotInterval: 15 * time.Second,
		PresenceTimeout:  3 * time.Minute,
		SyncTimeout:      5 * time.Second,
	}
}

// View is a read-only copy of a replica's state.
type View struct {
	Code          string           `json:"code"`
	Authoritative bool             `json:"authoritative"`
	Synced        bool             `json:"synced"`
	Snapshot      *engine.Snapshot `json:"snapshot,omitempty"`
	Roster        Roster           `json:"roster"`
}

type roomMsg interface{ isRoomMsg() }

type actionMsg struct {
	sender string
	action Action
}

type relayedMsg struct{ msg relay.Message }

type connectedMsg struct{ name string }

type disconnectedMsg struct{ name string }

type viewMsg struct{ reply chan View }

type syncServeMsg struct{ reply chan SyncState }

type syncResult struct {
	state SyncState
	err   error
}

func (actionMsg) isRoomMsg()       {}
func (relayedMsg) isRoomMsg()      {}
func (connectedMsg) isRoomMsg()    {}
func (disconnectedMsg) isRoomMsg() {}
func (viewMsg) isRoomMsg()         {}
func (syncServeMsg) isRoomMsg()    {}
func (syncResult) isRoomMsg()      {}

// Room is one replica of an auction room. All of its state is owned by the
// goroutine started in start; everything else talks to it through the inbox.
type Room struct {
	code     string
	host     bool
	cfg      Config
	clock    clockwork.Clock
	out      Broadcaster
	strategy *bot.Strategy
	log      zerolog.Logger

	inbox   chan roomMsg
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	onClose func(code string)
	subs    []relay.Subscription

	state   engine.State
	synced  bool
	roster  Roster
	local   map[string]int // open connections per participant on this instance
	pending *bot.Decision

	syncing     bool
	syncWaiting []string
	lastForced  time.Time

	timerGen uint64
	timers   map[string]*activeTimer
}

func newRoom(parent context.Context, code string, host bool, cfg Config, onClose func(string)) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		code:     code,
		host:     host,
		cfg:      cfg,
		clock:    cfg.Clock,
		out:      cfg.Broadcaster,
		strategy: cfg.NewStrategy(),
		log: log.With().
			Str("room_code", code).
			Str("instance", cfg.InstanceID).
			Bool("authoritative", host).
			Logger(),
		inbox:   make(chan roomMsg, inboxSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		onClose: onClose,
		roster:  Roster{Claims: map[string]string{}},
		local:   make(map[string]int),
		timers:  make(map[string]*activeTimer),
	}
	return r
}

// start subscribes to the room channel and runs the actor loop.
func (r *Room) start() error {
	sub, err := r.cfg.Relay.Subscribe(r.code, func(m relay.Message) {
		if m.Origin == r.cfg.InstanceID {
			return
		}
		select {
		case r.inbox <- relayedMsg{msg: m}:
		default:
			r.log.Warn().Str("kind", string(m.Kind)).Msg("room inbox full, dropping relayed message")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe room %s: %w", r.code, err)
	}
	r.subs = append(r.subs, sub)

	if r.host {
		serve, err := r.cfg.Relay.Serve(r.code, r.serveSync)
		if err != nil {
			sub.Unsubscribe()
			return fmt.Errorf("serve room %s: %w", r.code, err)
		}
		r.subs = append(r.subs, serve)
	}

	go r.run()
	return nil
}

func (r *Room) Code() string { return r.code }

// Authoritative reports whether this is the host replica.
func (r *Room) Authoritative() bool { return r.host }

// Done is closed once the room has stopped.
func (r *Room) Done() <-chan struct{} { return r.done }

// Submit hands an action from participant sender to the room. Outcomes reach
// the sender as notices.
func (r *Room) Submit(sender string, a Action) {
	r.post(actionMsg{sender: sender, action: a})
}

// Connected records a new connection from name on this instance.
func (r *Room) Connected(name string) {
	r.post(connectedMsg{name: name})
}

// Disconnected records a closed connection from name on this instance.
func (r *Room) Disconnected(name string) {
	r.post(disconnectedMsg{name: name})
}

// View returns a copy of the replica's current state.
func (r *Room) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case r.inbox <- viewMsg{reply: reply}:
	case <-r.ctx.Done():
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Close stops the replica and waits for its loop to exit.
func (r *Room) Close() {
	r.cancel()
	<-r.done
}

func (r *Room) post(m roomMsg) bool {
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Room) run() {
	defer close(r.done)
	defer r.recoverPanic()

	if r.host {
		r.armSnapshot()
		r.afterChange()
		r.reconcileIdle()
	} else {
		r.startSync("")
	}

	for {
		select {
		case <-r.ctx.Done():
			r.teardown()
			return
		case m := <-r.inbox:
			r.handle(m)
		}
	}
}

// recoverPanic reports a crashed room to Sentry before letting the panic
// continue. A crash here means the ledger invariants broke.
func (r *Room) recoverPanic() {
	v := recover()
	if v == nil {
		return
	}
	r.log.Error().Interface("panic", v).Msg("room actor panicked")
	if hub := sentry.CurrentHub(); hub.Client() != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("room_code", r.code)
			scope.SetTag("instance", r.cfg.InstanceID)
			hub.Recover(v)
		})
		sentry.Flush(2 * time.Second)
	}
	panic(v)
}

func (r *Room) teardown() {
	r.cancelAllTimers()
	for _, sub := range r.subs {
		if err := sub.Unsubscribe(); err != nil {
			r.log.Warn().Err(err).Msg("failed to unsubscribe")
		}
	}
	if r.onClose != nil {
		r.onClose(r.code)
	}
	r.log.Info().Msg("room stopped")
}

func (r *Room) handle(m roomMsg) {
	switch msg := m.(type) {
	case actionMsg:
		r.handleAction(msg.sender, msg.action)
	case relayedMsg:
		r.handleRelayed(msg.msg)
	case timerFired:
		r.handleTimer(msg)
	case connectedMsg:
		r.connected(msg.name)
	case disconnectedMsg:
		r.disconnected(msg.name)
	case viewMsg:
		msg.reply <- r.view()
	case syncServeMsg:
		msg.reply <- r.syncState()
	case syncResult:
		r.finishSync(msg)
	}
}

func (r *Room) handleAction(sender string, a Action) {
	switch a := a.(type) {
	case SelectTeam:
		r.selectTeam(sender, a.TeamID)
		return
	case SetAutopilot:
		r.setAutopilot(sender, a.Enabled)
		return
	case RequestSync:
		r.requestSync(sender)
		return
	}

	if !r.synced {
		r.reject(sender, a, ErrNotSynced)
		return
	}
	if hostOnly(a) && sender != r.roster.HostName {
		r.reject(sender, a, ErrNotHost)
		return
	}
	cmd, err := r.author(sender, a)
	if err != nil {
		r.reject(sender, a, err)
		return
	}
	if err := r.submit(sender, cmd); err != nil {
		r.reject(sender, a, err)
	}
}

// author turns a participant action into an engine command stamped with
// this replica's clock.
func (r *Room) author(sender string, a Action) (engine.Command, error) {
	now := r.clock.Now()
	switch a := a.(type) {
	case StartAuction:
		return engine.Start{At: now}, nil
	case PauseAuction:
		return engine.Pause{At: now}, nil
	case ResumeAuction:
		return engine.Resume{At: now}, nil
	case StopAuction:
		return engine.Stop{At: now}, nil
	case NextItem:
		return engine.Advance{FromItemID: r.state.CurrentItemID, At: now}, nil
	case SkipItem:
		return engine.Skip{ItemID: r.state.CurrentItemID, At: now}, nil
	case PlaceBid:
		if _, ok := r.state.Ledger.Team(a.TeamID); !ok {
			return nil, ErrUnknownTeam
		}
		if r.roster.Claims[a.TeamID] != sender {
			return nil, ErrNotSeatHolder
		}
		amount, ok := r.state.RequiredBid()
		if !ok {
			return nil, engine.ErrNotLive
		}
		return engine.PlaceBid{
			BidID:    uuid.NewString(),
			BidderID: a.TeamID,
			ItemID:   r.state.CurrentItemID,
			Amount:   amount,
			At:       now,
		}, nil
	}
	return nil, fmt.Errorf("%w: %T", engine.ErrUnknownKind, a)
}

// submit applies a locally authored command and relays it to the other
// replicas when it changed something.
func (r *Room) submit(sender string, cmd engine.Command) error {
	if err := engine.Validate(cmd); err != nil {
		return err
	}
	next, evs, err := engine.Apply(r.state, cmd)
	if _, ok := cmd.(engine.PlaceBid); ok {
		if err != nil {
			r.cfg.Metrics.RecordBid(metrics.OutcomeRejected)
		} else if len(evs) > 0 {
			r.cfg.Metrics.RecordBid(metrics.OutcomeAccepted)
		}
	}
	if err != nil {
		return err
	}
	if len(evs) == 0 {
		return nil
	}
	r.commit(next, evs)

	data, err := engine.Encode(cmd)
	if err != nil {
		r.log.Error().Err(err).Str("kind", string(cmd.Kind())).Msg("failed to encode command")
		return nil
	}
	r.publish(relay.KindCommand, sender, data)
	return nil
}

// commit installs a new state and fans its events out to local clients.
func (r *Room) commit(next engine.State, evs []events.Event) {
	r.state = next
	now := r.clock.Now()

	for _, ev := range evs {
		env, err := events.Seal(r.code, next.Version, now, ev)
		if err != nil {
			r.log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to seal event")
			continue
		}
		b, err := json.Marshal(env)
		if err != nil {
			r.log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to encode event")
			continue
		}
		r.out.Broadcast(r.code, b)

		if r.host {
			if err := r.cfg.Journal.Append(r.ctx, env); err != nil {
				r.log.Warn().Err(err).Str("event_id", env.ID).Msg("failed to journal event")
			}
			r.observe(ev)
		}
	}

	if r.host {
		r.afterChange()
	}
}

// observe updates metrics and the directory for events the host owns.
func (r *Room) observe(ev events.Event) {
	switch ev.Type {
	case events.TypeItemSold:
		r.cfg.Metrics.RecordResolution(metrics.OutcomeSold)
	case events.TypeItemUnsold:
		r.cfg.Metrics.RecordResolution(metrics.OutcomeUnsold)
	case events.TypeAuctionStarted:
		r.setStatus(models.RoomStatusStarted)
	case events.TypeAuctionStopped:
		r.setStatus(models.RoomStatusWaiting)
	case events.TypeAuctionCompleted:
		r.setStatus(models.RoomStatusFinished)
	}
}

func (r *Room) setStatus(status models.RoomStatus) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), directoryTimeout)
		defer cancel()
		if err := r.cfg.Directory.SetStatus(ctx, r.code, status); err != nil {
			r.log.Warn().Err(err).Str("status", string(status)).Msg("failed to update room status")
		}
	}()
}

func (r *Room) handleRelayed(m relay.Message) {
	switch m.Kind {
	case relay.KindCommand:
		r.applyRelayed(m)

	case relay.KindRoster:
		var update rosterUpdate
		if err := json.Unmarshal(m.Data, &update); err != nil {
			r.log.Warn().Err(err).Msg("dropping undecodable roster")
			return
		}
		r.installRoster(update.Roster, update.Team)

	case relay.KindSnapshot:
		if r.host {
			r.log.Warn().Str("origin", m.Origin).Msg("ignoring snapshot from another authoritative replica")
			return
		}
		var st SyncState
		if err := json.Unmarshal(m.Data, &st); err != nil {
			r.log.Warn().Err(err).Msg("dropping undecodable snapshot")
			return
		}
		if r.restore(st) {
			r.broadcastNotice(NoticeSyncState, r.syncState())
		}

	case relay.KindClosed:
		r.broadcastNotice(NoticeError, ErrorNotice{Message: ErrClosed.Error()})
		r.cancel()
	}
}

func (r *Room) applyRelayed(m relay.Message) {
	if !r.synced {
		return
	}
	cmd, err := engine.Decode(m.Data)
	if err != nil {
		r.log.Warn().Err(err).Str("origin", m.Origin).Msg("dropping malformed command")
		return
	}

	next, evs, err := engine.Apply(r.state, cmd)
	if err != nil {
		r.log.Debug().Err(err).Str("kind", string(cmd.Kind())).Str("sender", m.Sender).Msg("relayed command rejected")
		r.repair()
		return
	}
	if len(evs) == 0 {
		if r.refersElsewhere(cmd) {
			r.repair()
		}
		return
	}
	r.commit(next, evs)
}

// refersElsewhere reports whether a no-op command names an item other than
// the current one, which means this replica missed something.
func (r *Room) refersElsewhere(cmd engine.Command) bool {
	switch c := cmd.(type) {
	case engine.Tick:
		return c.ItemID != r.state.CurrentItemID
	case engine.Skip:
		return c.ItemID != r.state.CurrentItemID
	case engine.Advance:
		return c.FromItemID != r.state.CurrentItemID
	}
	return false
}

// repair brings replicas back in line after a disagreement: the host pushes
// its state to everyone, a follower asks the host for it.
func (r *Room) repair() {
	now := r.clock.Now()
	if now.Sub(r.lastForced) < minForcedResync {
		return
	}
	r.lastForced = now
	if r.host {
		r.publishSnapshot()
		return
	}
	r.startSync("")
}

func (r *Room) publish(kind relay.Kind, sender string, data []byte) {
	ctx, cancel := context.WithTimeout(r.ctx, time.Second)
	defer cancel()
	err := r.cfg.Relay.Publish(ctx, relay.Message{
		Kind:     kind,
		RoomCode: r.code,
		Origin:   r.cfg.InstanceID,
		Sender:   sender,
		Data:     data,
		SentAt:   r.clock.Now(),
	})
	if err != nil {
		r.log.Warn().Err(err).Str("kind", string(kind)).Msg("failed to relay message")
	}
}

func (r *Room) reject(sender string, a Action, err error) {
	r.log.Debug().Err(err).Str("sender", sender).Str("action", ActionName(a)).Msg("action rejected")
	if sender == "" {
		return
	}
	r.sendNotice(sender, NoticeCommandRejected, Rejection{Action: ActionName(a), Reason: err.Error()})
}

func (r *Room) view() View {
	st := r.syncState()
	return View{
		Code:          r.code,
		Authoritative: r.host,
		Synced:        r.synced,
		Snapshot:      st.Snapshot,
		Roster:        st.Roster,
	}
}

func (r *Room) syncState() SyncState {
	st := SyncState{Roster: r.roster.clone()}
	if r.synced {
		snap := r.state.Snapshot()
		st.Snapshot = &snap
	}
	return st
}

func (r *Room) restore(st SyncState) bool {
	if st.Roster.HostName != "" {
		r.installRoster(st.Roster, nil)
	}
	if st.Snapshot == nil {
		return false
	}
	state, err := engine.Restore(*st.Snapshot)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to restore snapshot")
		return false
	}
	r.state = state
	r.synced = true
	return true
}
