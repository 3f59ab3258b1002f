package room

import (
	"encoding/json"

	"github.com/mcdev12/bidroom/go/internal/auction/engine"
	"github.com/mcdev12/bidroom/go/internal/models"
)

// Broadcaster delivers messages to the clients connected to this instance.
type Broadcaster interface {
	Broadcast(roomCode string, msg []byte)
	SendTo(roomCode, name string, msg []byte)
}

// NoticeType names a room-level message to clients. Engine events travel
// as their own envelopes.
type NoticeType string

const (
	NoticeRoomUsersUpdated NoticeType = "roomUsersUpdated"
	NoticeTeamUpdated      NoticeType = "teamUpdated"
	NoticeSyncState        NoticeType = "syncState"
	NoticeCommandRejected  NoticeType = "commandRejected"
	NoticeError            NoticeType = "error"
)

type Notice struct {
	Type     NoticeType `json:"type"`
	RoomCode string     `json:"room_code"`
	Data     any        `json:"data"`
}

// Roster is the lobby view of a room.
type Roster struct {
	HostName     string               `json:"host_name"`
	Participants []models.Participant `json:"participants"`
	Claims       map[string]string    `json:"claims"` // team id -> participant name
}

type TeamUpdate struct {
	TeamID   string `json:"team_id"`
	Name     string `json:"name"`
	Released string `json:"released,omitempty"`
}

// SyncState is the full picture sent to a single client.
type SyncState struct {
	Snapshot *engine.Snapshot `json:"snapshot,omitempty"`
	Roster   Roster           `json:"roster"`
}

type Rejection struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

type ErrorNotice struct {
	Message string `json:"message"`
}

func (r *Room) encodeNotice(t NoticeType, data any) []byte {
	b, err := json.Marshal(Notice{Type: t, RoomCode: r.code, Data: data})
	if err != nil {
		r.log.Error().Err(err).Str("notice", string(t)).Msg("failed to encode notice")
		return nil
	}
	return b
}

func (r *Room) broadcastNotice(t NoticeType, data any) {
	if b := r.encodeNotice(t, data); b != nil {
		r.out.Broadcast(r.code, b)
	}
}

func (r *Room) sendNotice(name string, t NoticeType, data any) {
	if b := r.encodeNotice(t, data); b != nil {
		r.out.SendTo(r.code, name, b)
	}
}
