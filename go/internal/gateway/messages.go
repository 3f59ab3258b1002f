package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidroom/go/internal/room"
	"github.com/mcdev12/bidroom/go/internal/validate"
)

var (
	ErrUnknownMessage = errors.New("unknown message type")
	ErrInvalidMessage = errors.New("invalid message")
)

// ClientMessage is the envelope clients send over the socket.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DecodeAction turns a client message into a room action.
func DecodeAction(raw []byte) (room.Action, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	switch msg.Type {
	case room.ActSelectTeam:
		return decodeData[room.SelectTeam](msg)
	case room.ActPlaceBid:
		return decodeData[room.PlaceBid](msg)
	case room.ActSetAutopilot:
		return decodeData[room.SetAutopilot](msg)
	case room.ActStartAuction:
		return room.StartAuction{}, nil
	case room.ActPauseAuction:
		return room.PauseAuction{}, nil
	case room.ActResumeAuction:
		return room.ResumeAuction{}, nil
	case room.ActStopAuction:
		return room.StopAuction{}, nil
	case room.ActNextItem:
		return room.NextItem{}, nil
	case room.ActSkipItem:
		return room.SkipItem{}, nil
	case room.ActRequestSync:
		return room.RequestSync{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
}

func decodeData[T room.Action](msg ClientMessage) (room.Action, error) {
	var a T
	if len(msg.Data) == 0 {
		return nil, fmt.Errorf("%w: %s requires data", ErrInvalidMessage, msg.Type)
	}
	if err := json.Unmarshal(msg.Data, &a); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, msg.Type, err)
	}
	if err := validate.Struct(a); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, msg.Type, validate.Fields(err))
	}
	return a, nil
}

func errorMessage(roomCode string, err error) []byte {
	b, mErr := json.Marshal(room.Notice{
		Type:     room.NoticeError,
		RoomCode: roomCode,
		Data:     room.ErrorNotice{Message: err.Error()},
	})
	if mErr != nil {
		log.Error().Err(mErr).Msg("failed to encode error notice")
		return nil
	}
	return b
}
