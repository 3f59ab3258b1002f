package room

// Client message names for actions.
const (
	ActSelectTeam    = "selectTeam"
	ActStartAuction  = "startAuction"
	ActPauseAuction  = "pauseAuction"
	ActResumeAuction = "resumeAuction"
	ActStopAuction   = "stopAuction"
	ActPlaceBid      = "placeBid"
	ActNextItem      = "nextItem"
	ActSkipItem      = "skipItem"
	ActRequestSync   = "requestSync"
	ActSetAutopilot  = "setAutopilot"
)

// Action is something a participant asks the room to do. The gateway decodes
// client messages into actions.
type Action interface {
	isAction()
}

type SelectTeam struct {
	TeamID string `json:"team_id" validate:"required"`
}

type StartAuction struct{}

type PauseAuction struct{}

type ResumeAuction struct{}

type StopAuction struct{}

// PlaceBid bids the next required amount on the current item for TeamID.
type PlaceBid struct {
	TeamID string `json:"team_id" validate:"required"`
}

type NextItem struct{}

type SkipItem struct{}

type RequestSync struct{}

// SetAutopilot hands the participant's team to the bot engine, or takes it
// back.
type SetAutopilot struct {
	Enabled bool `json:"enabled"`
}

func (SelectTeam) isAction()    {}
func (StartAuction) isAction()  {}
func (PauseAuction) isAction()  {}
func (ResumeAuction) isAction() {}
func (StopAuction) isAction()   {}
func (PlaceBid) isAction()      {}
func (NextItem) isAction()      {}
func (SkipItem) isAction()      {}
func (RequestSync) isAction()   {}
func (SetAutopilot) isAction()  {}

// hostOnly reports whether only the room host may perform a.
func hostOnly(a Action) bool {
	switch a.(type) {
	case StartAuction, PauseAuction, ResumeAuction, StopAuction, NextItem, SkipItem:
		return true
	}
	return false
}

// ActionName returns the client message name of a.
func ActionName(a Action) string {
	switch a.(type) {
	case SelectTeam:
		return ActSelectTeam
	case StartAuction:
		return ActStartAuction
	case PauseAuction:
		return ActPauseAuction
	case ResumeAuction:
		return ActResumeAuction
	case StopAuction:
		return ActStopAuction
	case PlaceBid:
		return ActPlaceBid
	case NextItem:
		return ActNextItem
	case SkipItem:
		return ActSkipItem
	case RequestSync:
		return ActRequestSync
	case SetAutopilot:
		return ActSetAutopilot
	}
	return "unknown"
}
