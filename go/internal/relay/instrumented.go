package relay

import (
	"context"

	"github.com/mcdev12/bidroom/go/internal/metrics"
)

// Instrumented counts messages crossing the relay in each direction.
type Instrumented struct {
	Relay
	metrics metrics.Collector
}

func NewInstrumented(r Relay, m metrics.Collector) *Instrumented {
	return &Instrumented{Relay: r, metrics: m}
}

func (i *Instrumented) Publish(ctx context.Context, msg Message) error {
	err := i.Relay.Publish(ctx, msg)
	if err == nil {
		i.metrics.RecordRelayMessage(string(msg.Kind), "out")
	}
	return err
}

func (i *Instrumented) Subscribe(roomCode string, h Handler) (Subscription, error) {
	return i.Relay.Subscribe(roomCode, func(msg Message) {
		i.metrics.RecordRelayMessage(string(msg.Kind), "in")
		h(msg)
	})
}
