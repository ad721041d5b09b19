package engine

import "fmt"

// guard describes when a command is legal. Phases lists the allowed
// phases (nil means any); Except subtracts from that set. A violated
// guard rejects the command toward the caller only and never mutates or
// broadcasts, so a stale client cannot desynchronize the room.
type guard struct {
	Phases       []GamePhase
	Except       []GamePhase
	HostOnly     bool
	NoSpectators bool
	NotDowned    bool
}

var guards = map[CommandType]guard{
	CmdStartBattle:   {Phases: []GamePhase{PhaseLobby}, HostOnly: true},
	CmdSelectAvatar:  {Phases: []GamePhase{PhaseLobby, PhaseAvatarSelection}},
	CmdChangeOwnTeam: {Phases: []GamePhase{PhaseLobby}},

	CmdSubmitScore:          {Phases: []GamePhase{PhaseBattle}, NoSpectators: true, NotDowned: true},
	CmdForceReveal:          {Phases: []GamePhase{PhaseBattle}, HostOnly: true},
	CmdUpdateDiscussionVote: {Phases: []GamePhase{PhaseDiscussion}, NoSpectators: true, NotDowned: true},
	CmdProceedNextLevel:     {Phases: []GamePhase{PhaseNextLevel}, HostOnly: true},
	CmdAbandonQuest:         {Except: []GamePhase{PhaseLobby, PhaseVictory}, HostOnly: true},

	CmdAddTickets:   {Except: []GamePhase{PhaseVictory}, HostOnly: true},
	CmdRemoveTicket: {Except: []GamePhase{PhaseVictory}, HostOnly: true},

	CmdAttackBoss:   {Phases: []GamePhase{PhaseBattle, PhaseDiscussion}, NoSpectators: true, NotDowned: true},
	CmdAttackPlayer: {Phases: []GamePhase{PhaseBattle, PhaseDiscussion}},
	CmdReviveStart:  {Phases: []GamePhase{PhaseBattle, PhaseDiscussion}, NoSpectators: true, NotDowned: true},
	CmdReviveCancel: {Phases: []GamePhase{PhaseBattle, PhaseDiscussion}},
	CmdReviveTick:   {Phases: []GamePhase{PhaseBattle, PhaseDiscussion}},

	CmdPlayerPos:  {},
	CmdPlayerJump: {},
	CmdSendEmote:  {},

	CmdUpdateTimerSettings:      {HostOnly: true},
	CmdUpdateJiraSettings:       {HostOnly: true},
	CmdUpdateEstimationSettings: {Phases: []GamePhase{PhaseLobby}, HostOnly: true},
}

func (s *State) checkGuard(cmd Command) error {
	p := s.Players[cmd.PlayerID]
	if p == nil {
		return ErrUnknownPlayer
	}

	g, ok := guards[cmd.Type]
	if !ok {
		return ErrUnsupportedCommand
	}

	if len(g.Phases) > 0 && !phaseIn(s.Phase, g.Phases) {
		return fmt.Errorf("%w: %s in %s", ErrInvalidPhase, cmd.Type, s.Phase)
	}
	if phaseIn(s.Phase, g.Except) {
		return fmt.Errorf("%w: %s in %s", ErrInvalidPhase, cmd.Type, s.Phase)
	}
	if g.HostOnly && !s.isHost(cmd.PlayerID) {
		return fmt.Errorf("%w: %s", ErrNotAuthorized, cmd.Type)
	}
	if g.NoSpectators && p.Team == TeamSpectators {
		return fmt.Errorf("%w: spectators cannot %s", ErrNotAuthorized, cmd.Type)
	}
	if g.NotDowned {
		if cs := s.Combat[cmd.PlayerID]; cs != nil && cs.Downed {
			return fmt.Errorf("%w: %s while downed", ErrInvalidPhase, cmd.Type)
		}
	}
	return nil
}

func phaseIn(p GamePhase, set []GamePhase) bool {
	for _, v := range set {
		if v == p {
			return true
		}
	}
	return false
}
