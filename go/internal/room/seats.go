package room

import (
	"context"
	"encoding/json"
	"errors"
	"maps"

	"github.com/mcdev12/bidroom/go/internal/directory"
	"github.com/mcdev12/bidroom/go/internal/models"
	"github.com/mcdev12/bidroom/go/internal/relay"
)

type rosterUpdate struct {
	Roster Roster      `json:"roster"`
	Team   *TeamUpdate `json:"team,omitempty"`
}

func (ro Roster) clone() Roster {
	return Roster{
		HostName:     ro.HostName,
		Participants: append([]models.Participant(nil), ro.Participants...),
		Claims:       maps.Clone(ro.Claims),
	}
}

func (ro Roster) participant(name string) (models.Participant, bool) {
	for _, p := range ro.Participants {
		if p.Name == name {
			return p, true
		}
	}
	return models.Participant{}, false
}

// controlled reports whether the bot engine plays teamID: nobody holds it,
// or its holder timed out or switched on autopilot.
func (r *Room) controlled(teamID string) bool {
	holder, ok := r.roster.Claims[teamID]
	if !ok {
		return true
	}
	p, ok := r.roster.participant(holder)
	if !ok {
		return true
	}
	return p.Delegated()
}

func (r *Room) connected(name string) {
	r.local[name]++
	r.cancelTimer(presencePrefix + name)

	ctx, cancel := context.WithTimeout(r.ctx, directoryTimeout)
	defer cancel()
	_, err := r.cfg.Directory.UpdateParticipant(ctx, r.code, name, func(p *models.Participant) {
		p.Online = true
		p.BotMode = false
		p.LastSeen = r.clock.Now()
	})
	if err != nil {
		if errors.Is(err, directory.ErrParticipantNotFound) || errors.Is(err, directory.ErrRoomNotFound) {
			r.sendNotice(name, NoticeError, ErrorNotice{Message: err.Error()})
			return
		}
		r.log.Warn().Err(err).Str("name", name).Msg("failed to mark participant online")
	}
	r.refreshRoster(nil)

	if r.synced {
		r.sendNotice(name, NoticeSyncState, r.syncState())
	} else {
		r.startSync(name)
	}
}

func (r *Room) disconnected(name string) {
	if r.local[name] > 1 {
		r.local[name]--
		return
	}
	delete(r.local, name)

	ctx, cancel := context.WithTimeout(r.ctx, directoryTimeout)
	defer cancel()
	_, err := r.cfg.Directory.UpdateParticipant(ctx, r.code, name, func(p *models.Participant) {
		p.Online = false
		p.LastSeen = r.clock.Now()
	})
	if err != nil {
		r.log.Warn().Err(err).Str("name", name).Msg("failed to mark participant offline")
		return
	}
	r.armTimer(presencePrefix+name, name, r.cfg.PresenceTimeout)
	r.refreshRoster(nil)

	r.log.Info().Str("name", name).Dur("timeout", r.cfg.PresenceTimeout).Msg("participant disconnected")
}

// presenceExpired hands an absent participant's seat to the bot engine.
func (r *Room) presenceExpired(name string) {
	if r.local[name] > 0 {
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, directoryTimeout)
	defer cancel()
	p, err := r.cfg.Directory.UpdateParticipant(ctx, r.code, name, func(p *models.Participant) {
		if !p.Online {
			p.BotMode = true
		}
	})
	if err != nil {
		r.log.Warn().Err(err).Str("name", name).Msg("failed to switch seat to bot mode")
		return
	}
	if !p.BotMode {
		return
	}
	r.log.Info().Str("name", name).Str("team_id", p.TeamID).Msg("seat switched to bot mode")
	r.refreshRoster(nil)
}

func (r *Room) selectTeam(sender, teamID string) {
	a := SelectTeam{TeamID: teamID}
	if r.synced {
		if _, ok := r.state.Ledger.Team(teamID); !ok {
			r.reject(sender, a, ErrUnknownTeam)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.ctx, directoryTimeout)
	defer cancel()
	released, err := r.cfg.Directory.ClaimTeam(ctx, r.code, sender, teamID)
	if err != nil {
		r.reject(sender, a, err)
		return
	}
	r.log.Info().Str("name", sender).Str("team_id", teamID).Str("released", released).Msg("team claimed")
	r.refreshRoster(&TeamUpdate{TeamID: teamID, Name: sender, Released: released})
}

func (r *Room) setAutopilot(sender string, enabled bool) {
	ctx, cancel := context.WithTimeout(r.ctx, directoryTimeout)
	defer cancel()
	_, err := r.cfg.Directory.UpdateParticipant(ctx, r.code, sender, func(p *models.Participant) {
		p.Autopilot = enabled
	})
	if err != nil {
		r.reject(sender, SetAutopilot{Enabled: enabled}, err)
		return
	}
	r.refreshRoster(nil)
}

// refreshRoster reloads the roster from the directory, shows it to local
// clients and relays it to the other replicas.
func (r *Room) refreshRoster(team *TeamUpdate) {
	ctx, cancel := context.WithTimeout(r.ctx, directoryTimeout)
	defer cancel()

	ps, err := r.cfg.Directory.Participants(ctx, r.code)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to load participants")
		return
	}
	claims, err := r.cfg.Directory.Claims(ctx, r.code)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to load team claims")
		return
	}

	roster := Roster{HostName: r.roster.HostName, Participants: ps, Claims: claims}
	r.installRoster(roster, team)

	data, err := json.Marshal(rosterUpdate{Roster: roster, Team: team})
	if err != nil {
		r.log.Error().Err(err).Msg("failed to encode roster")
		return
	}
	r.publish(relay.KindRoster, "", data)
}

func (r *Room) installRoster(roster Roster, team *TeamUpdate) {
	if roster.Claims == nil {
		roster.Claims = map[string]string{}
	}
	if roster.HostName == "" {
		roster.HostName = r.roster.HostName
	}
	r.roster = roster
	r.broadcastNotice(NoticeRoomUsersUpdated, r.roster)
	if team != nil {
		r.broadcastNotice(NoticeTeamUpdated, *team)
	}
	if r.host {
		r.reconcileBot()
		r.reconcileIdle()
	}
}

// requestSync answers a client's resync request privately. A follower
// refreshes from the host first.
func (r *Room) requestSync(sender string) {
	if r.host {
		r.sendNotice(sender, NoticeSyncState, r.syncState())
		return
	}
	r.startSync(sender)
}

// startSync asks the host replica for its state. requester, when set, gets
// the result privately.
func (r *Room) startSync(requester string) {
	if requester != "" {
		r.syncWaiting = append(r.syncWaiting, requester)
	}
	if r.syncing {
		return
	}
	r.syncing = true

	timeout := r.cfg.SyncTimeout
	go func() {
		ctx, cancel := context.WithTimeout(r.ctx, timeout)
		defer cancel()

		var st SyncState
		resp, err := r.cfg.Relay.Request(ctx, r.code, []byte(r.cfg.InstanceID))
		if err == nil {
			err = json.Unmarshal(resp, &st)
		}
		r.post(syncResult{state: st, err: err})
	}()
}

func (r *Room) finishSync(res syncResult) {
	r.syncing = false
	waiting := r.syncWaiting
	r.syncWaiting = nil

	if res.err != nil {
		r.log.Warn().Err(res.err).Msg("sync with host failed")
		if errors.Is(res.err, relay.ErrNoResponders) {
			for _, name := range waiting {
				r.sendNotice(name, NoticeError, ErrorNotice{Message: ErrRoomNotFound.Error()})
			}
			return
		}
	} else if r.restore(res.state) {
		r.log.Debug().Uint64("version", r.state.Version).Msg("synced from host")
	}

	for _, name := range waiting {
		r.sendNotice(name, NoticeSyncState, r.syncState())
	}
}

// serveSync runs on a relay goroutine and asks the actor for its state.
func (r *Room) serveSync(ctx context.Context, _ []byte) ([]byte, error) {
	reply := make(chan SyncState, 1)
	select {
	case r.inbox <- syncServeMsg{reply: reply}:
	case <-r.ctx.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case st := <-reply:
		return json.Marshal(st)
	case <-r.ctx.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
