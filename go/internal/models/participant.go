package models

import (
	"time"
)

// Role of a participant inside a room.
type Role string

const (
	RoleHost   Role = "HOST"
	RolePlayer Role = "PLAYER"
)

// RoomStatus is the lobby-level status kept by the room directory.
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "waiting"
	RoomStatusStarted  RoomStatus = "started"
	RoomStatusFinished RoomStatus = "finished"
)

// Participant is a person (or their bot stand-in) seated in a room. The
// display name is the declared identity used to reclaim a seat.
type Participant struct {
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Online    bool      `json:"online"`
	BotMode   bool      `json:"is_bot"`
	Autopilot bool      `json:"autopilot"`
	TeamID    string    `json:"team_id,omitempty"`
	LastSeen  time.Time `json:"last_seen"`
}

// Delegated reports whether the participant's team is played by the bot
// engine.
func (p Participant) Delegated() bool {
	return p.BotMode || p.Autopilot
}
