package relay

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

const defaultMemoryBuffer = 256

// Memory is an in-process relay for a single instance and for tests. A
// subscriber whose buffer is full misses messages, as it would on the wire.
type Memory struct {
	mu         sync.RWMutex
	subs       map[string]map[*memorySub]struct{}
	responders map[string]*memoryResponder
	buffer     int
	closed     bool
}

type memorySub struct {
	relay *Memory
	room  string
	ch    chan Message
	done  chan struct{}
	once  sync.Once
}

// NewMemory creates an in-process relay.
func NewMemory() *Memory {
	return &Memory{
		subs:       make(map[string]map[*memorySub]struct{}),
		responders: make(map[string]*memoryResponder),
		buffer:     defaultMemoryBuffer,
	}
}

func (m *Memory) Publish(ctx context.Context, msg Message) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	for sub := range m.subs[msg.RoomCode] {
		cp := msg
		cp.Data = append([]byte(nil), msg.Data...)
		select {
		case sub.ch <- cp:
		default:
			log.Warn().
				Str("room_code", msg.RoomCode).
				Str("kind", string(msg.Kind)).
				Msg("memory relay subscriber full, dropping message")
		}
	}
	return nil
}

func (m *Memory) Subscribe(roomCode string, h Handler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	sub := &memorySub{
		relay: m,
		room:  roomCode,
		ch:    make(chan Message, m.buffer),
		done:  make(chan struct{}),
	}
	if m.subs[roomCode] == nil {
		m.subs[roomCode] = make(map[*memorySub]struct{})
	}
	m.subs[roomCode][sub] = struct{}{}

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case msg := <-sub.ch:
				h(msg)
			}
		}
	}()
	return sub, nil
}

func (s *memorySub) Unsubscribe() error {
	s.once.Do(func() {
		s.relay.mu.Lock()
		if subs, ok := s.relay.subs[s.room]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.relay.subs, s.room)
			}
		}
		s.relay.mu.Unlock()
		close(s.done)
	})
	return nil
}

func (m *Memory) Request(ctx context.Context, roomCode string, req []byte) ([]byte, error) {
	m.mu.RLock()
	r, ok := m.responders[roomCode]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if !ok {
		return nil, ErrNoResponders
	}
	return r.fn(ctx, append([]byte(nil), req...))
}

func (m *Memory) Serve(roomCode string, r Responder) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	resp := &memoryResponder{relay: m, room: roomCode, fn: r}
	m.responders[roomCode] = resp
	return resp, nil
}

type memoryResponder struct {
	relay *Memory
	room  string
	fn    Responder
}

func (r *memoryResponder) Unsubscribe() error {
	r.relay.mu.Lock()
	defer r.relay.mu.Unlock()
	if r.relay.responders[r.room] == r {
		delete(r.relay.responders, r.room)
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var subs []*memorySub
	for _, set := range m.subs {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	return nil
}
