// Package directory keeps the lobby-level view of rooms: who is seated,
// who is online and which team each participant holds. The auction core
// reads it only to decide which seats the bot engine may play.
package directory

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/mcdev12/bidroom/go/internal/models"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomExists          = errors.New("room already exists")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNameTaken           = errors.New("display name is in use by an online participant")
	ErrTeamTaken           = errors.New("team is held by another participant")
)

// Room is the directory record of a room.
type Room struct {
	Code         string            `json:"code"`
	HostName     string            `json:"host_name"`
	HostInstance string            `json:"host_instance"`
	Mode         string            `json:"mode"`
	Rules        models.Rules      `json:"rules"`
	Status       models.RoomStatus `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
}

// JoinResult reports how a join landed.
type JoinResult struct {
	Participant models.Participant
	Reconnected bool
}

// Directory is implemented by Memory and Redis.
type Directory interface {
	CreateRoom(ctx context.Context, room Room, host models.Participant) error
	GetRoom(ctx context.Context, code string) (Room, error)
	SetStatus(ctx context.Context, code string, status models.RoomStatus) error
	DeleteRoom(ctx context.Context, code string) error

	// Join seats name in the room, or reclaims the seat when a participant
	// of that name exists and is offline. The participant stays offline
	// until a session connects.
	Join(ctx context.Context, code, name string, at time.Time) (JoinResult, error)
	Participants(ctx context.Context, code string) ([]models.Participant, error)
	UpdateParticipant(ctx context.Context, code, name string, fn func(*models.Participant)) (models.Participant, error)

	// ClaimTeam gives teamID to name and releases name's previous team,
	// which is returned (empty when there was none).
	ClaimTeam(ctx context.Context, code, name, teamID string) (string, error)
	Claims(ctx context.Context, code string) (map[string]string, error)
}

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewRoomCode returns a random six character room code.
func NewRoomCode() (string, error) {
	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[num.Int64()]
	}
	return string(code), nil
}
