package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "bidroom.room",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Connect opens a NATS connection with the logging handlers used across the
// service.
func Connect(cfg NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("bidroom"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// NATSRelay carries room traffic over core NATS: plain pub/sub for
// broadcasts (at-most-once) and request/reply for sync.
type NATSRelay struct {
	nc     *nats.Conn
	config NATSConfig
	owned  bool
}

// NewNATSRelay wraps an existing connection. The caller keeps ownership.
func NewNATSRelay(nc *nats.Conn, cfg NATSConfig) *NATSRelay {
	return &NATSRelay{nc: nc, config: cfg}
}

// DialNATS connects and returns a relay that closes the connection on Close.
func DialNATS(cfg NATSConfig) (*NATSRelay, error) {
	nc, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	return &NATSRelay{nc: nc, config: cfg, owned: true}, nil
}

// Conn exposes the connection so the journal can share it.
func (r *NATSRelay) Conn() *nats.Conn {
	return r.nc
}

func (r *NATSRelay) roomSubject(roomCode string) string {
	return fmt.Sprintf("%s.%s.msgs", r.config.SubjectPrefix, roomCode)
}

func (r *NATSRelay) syncSubject(roomCode string) string {
	return fmt.Sprintf("%s.%s.sync", r.config.SubjectPrefix, roomCode)
}

func (r *NATSRelay) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal relay message: %w", err)
	}
	if err := r.nc.Publish(r.roomSubject(msg.RoomCode), data); err != nil {
		return fmt.Errorf("publish to NATS: %w", err)
	}
	return nil
}

func (r *NATSRelay) Subscribe(roomCode string, h Handler) (Subscription, error) {
	sub, err := r.nc.Subscribe(r.roomSubject(roomCode), func(m *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			log.Warn().Err(err).Str("subject", m.Subject).Msg("dropping undecodable relay message")
			return
		}
		h(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", roomCode, err)
	}
	return sub, nil
}

func (r *NATSRelay) Request(ctx context.Context, roomCode string, req []byte) ([]byte, error) {
	resp, err := r.nc.RequestWithContext(ctx, r.syncSubject(roomCode), req)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, ErrNoResponders
		}
		return nil, fmt.Errorf("sync request %s: %w", roomCode, err)
	}
	return resp.Data, nil
}

func (r *NATSRelay) Serve(roomCode string, responder Responder) (Subscription, error) {
	sub, err := r.nc.Subscribe(r.syncSubject(roomCode), func(m *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		resp, err := responder(ctx, m.Data)
		if err != nil {
			log.Warn().Err(err).Str("room_code", roomCode).Msg("sync responder failed")
			return
		}
		if err := m.Respond(resp); err != nil {
			log.Warn().Err(err).Str("room_code", roomCode).Msg("failed to send sync reply")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("serve %s: %w", roomCode, err)
	}
	return sub, nil
}

func (r *NATSRelay) Close() error {
	if r.owned && r.nc != nil {
		return r.nc.Drain()
	}
	return nil
}
