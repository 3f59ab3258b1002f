package directory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mcdev12/bidroom/go/internal/models"
)

type memoryRoom struct {
	room         Room
	participants map[string]*models.Participant
	order        []string
	claims       map[string]string
}

// Memory is a single-instance directory.
type Memory struct {
	mu    sync.Mutex
	rooms map[string]*memoryRoom
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]*memoryRoom)}
}

func (m *Memory) room(code string) (*memoryRoom, error) {
	r, ok := m.rooms[strings.ToUpper(code)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

func (m *Memory) CreateRoom(_ context.Context, room Room, host models.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room.Code = strings.ToUpper(room.Code)
	if _, ok := m.rooms[room.Code]; ok {
		return ErrRoomExists
	}
	host.TeamID = ""
	m.rooms[room.Code] = &memoryRoom{
		room:         room,
		participants: map[string]*models.Participant{host.Name: &host},
		order:        []string{host.Name},
		claims:       make(map[string]string),
	}
	return nil
}

func (m *Memory) GetRoom(_ context.Context, code string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(code)
	if err != nil {
		return Room{}, err
	}
	return r.room, nil
}

func (m *Memory) SetStatus(_ context.Context, code string, status models.RoomStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(code)
	if err != nil {
		return err
	}
	r.room.Status = status
	return nil
}

func (m *Memory) DeleteRoom(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, strings.ToUpper(code))
	return nil
}

func (m *Memory) Join(_ context.Context, code, name string, at time.Time) (JoinResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(code)
	if err != nil {
		return JoinResult{}, err
	}

	if p, ok := r.participants[name]; ok {
		if p.Online {
			return JoinResult{}, ErrNameTaken
		}
		p.LastSeen = at
		return JoinResult{Participant: *p, Reconnected: true}, nil
	}

	p := &models.Participant{Name: name, Role: models.RolePlayer, LastSeen: at}
	r.participants[name] = p
	r.order = append(r.order, name)
	return JoinResult{Participant: *p}, nil
}

func (m *Memory) Participants(_ context.Context, code string) ([]models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(code)
	if err != nil {
		return nil, err
	}
	out := make([]models.Participant, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.participants[name])
	}
	return out, nil
}

func (m *Memory) UpdateParticipant(_ context.Context, code, name string, fn func(*models.Participant)) (models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(code)
	if err != nil {
		return models.Participant{}, err
	}
	p, ok := r.participants[name]
	if !ok {
		return models.Participant{}, ErrParticipantNotFound
	}
	team := p.TeamID
	fn(p)
	// Seats change through ClaimTeam only.
	p.TeamID = team
	p.Name = name
	return *p, nil
}

func (m *Memory) ClaimTeam(_ context.Context, code, name, teamID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(code)
	if err != nil {
		return "", err
	}
	p, ok := r.participants[name]
	if !ok {
		return "", ErrParticipantNotFound
	}
	if holder, held := r.claims[teamID]; held && holder != name {
		return "", ErrTeamTaken
	}

	prev := p.TeamID
	if prev != "" && prev != teamID {
		delete(r.claims, prev)
	}
	r.claims[teamID] = name
	p.TeamID = teamID
	if prev == teamID {
		return "", nil
	}
	return prev, nil
}

func (m *Memory) Claims(_ context.Context, code string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(code)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(r.claims))
	for team, name := range r.claims {
		out[team] = name
	}
	return out, nil
}
