package room

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer keys. Presence timers are keyed per participant.
const (
	timerCountdown = "countdown"
	timerAdvance   = "advance"
	timerBot       = "bot"
	timerSnapshot  = "snapshot"
	timerIdle      = "idle"
	presencePrefix = "presence:"
)

type activeTimer struct {
	timer clockwork.Timer
	stop  chan struct{}
	gen   uint64
	label string
}

// timerFired is posted to the inbox when a timer goes off. A fire whose
// generation no longer matches the armed timer is stale and ignored.
type timerFired struct {
	key string
	gen uint64
}

func (timerFired) isRoomMsg() {}

// armTimer replaces any timer under key with a fresh one. Only the actor
// goroutine calls it.
func (r *Room) armTimer(key, label string, d time.Duration) {
	r.cancelTimer(key)

	r.timerGen++
	gen := r.timerGen
	t := r.clock.NewTimer(d)
	stop := make(chan struct{})
	r.timers[key] = &activeTimer{timer: t, stop: stop, gen: gen, label: label}

	go func() {
		select {
		case <-t.Chan():
			r.post(timerFired{key: key, gen: gen})
		case <-stop:
		case <-r.ctx.Done():
			stopAndDrainTimer(t)
		}
	}()

	r.log.Debug().Str("timer", key).Str("label", label).Dur("duration", d).Msg("armed timer")
}

// takeTimer removes the timer under key if fired is the one currently armed.
func (r *Room) takeTimer(fired timerFired) (*activeTimer, bool) {
	t, ok := r.timers[fired.key]
	if !ok || t.gen != fired.gen {
		return nil, false
	}
	delete(r.timers, fired.key)
	return t, true
}

func (r *Room) cancelTimer(key string) {
	if t, ok := r.timers[key]; ok {
		stopAndDrainTimer(t.timer)
		close(t.stop)
		delete(r.timers, key)
	}
}

func (r *Room) timerLabel(key string) (string, bool) {
	t, ok := r.timers[key]
	if !ok {
		return "", false
	}
	return t.label, true
}

func (r *Room) cancelAllTimers() {
	for key := range r.timers {
		r.cancelTimer(key)
	}
}

// stopAndDrainTimer stops a timer and drains its channel so a fire racing
// the stop is not delivered later.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
