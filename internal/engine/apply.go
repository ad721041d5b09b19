package engine

import (
	"fmt"
	"time"
)

const maxEmoteLen = 120

// AvatarClasses are the selectable hero classes.
var AvatarClasses = []string{"knight", "mage", "archer", "rogue", "healer", "paladin"}

var bossNames = []string{
	"Scope Creep",
	"The Blocker",
	"Merge Conflict",
	"Legacy Golem",
	"Flaky Test Wraith",
	"Deadline Dragon",
}

// Apply runs one client command against the room state. It validates the
// phase/role guard first, mutates on success and returns the broadcast
// plan as a list of events. A non-nil error means nothing changed and the
// rejection goes back to the caller only.
func Apply(s *State, cmd Command, now time.Time) ([]Event, error) {
	if err := s.checkGuard(cmd); err != nil {
		return nil, err
	}

	switch cmd.Type {
	case CmdSelectAvatar:
		return s.applySelectAvatar(cmd, now)
	case CmdChangeOwnTeam:
		return s.applyChangeOwnTeam(cmd)
	case CmdAddTickets:
		return s.applyAddTickets(cmd)
	case CmdRemoveTicket:
		return s.applyRemoveTicket(cmd)
	case CmdStartBattle:
		return s.applyStartBattle(now)
	case CmdSubmitScore:
		return s.applySubmitScore(cmd)
	case CmdUpdateDiscussionVote:
		return s.applyDiscussionVote(cmd)
	case CmdForceReveal:
		return s.runReveal(), nil
	case CmdProceedNextLevel:
		return s.enterBattle(now), nil
	case CmdAbandonQuest:
		return s.applyAbandonQuest()
	case CmdAttackBoss:
		return s.applyAttackBoss(cmd)
	case CmdAttackPlayer:
		return s.applyAttackPlayer(cmd)
	case CmdReviveStart:
		return s.applyReviveStart(cmd, now)
	case CmdReviveCancel:
		return s.applyReviveCancel(cmd)
	case CmdReviveTick:
		return s.applyReviveTick(cmd, now)
	case CmdPlayerPos:
		return s.applyPlayerPos(cmd)
	case CmdPlayerJump:
		return []Event{{Type: EvtPlayerJump, PlayerID: cmd.PlayerID, Amount: boolToInt(cmd.Jumping)}}, nil
	case CmdSendEmote:
		return s.applySendEmote(cmd)
	case CmdUpdateTimerSettings:
		return s.applyTimerSettings(cmd)
	case CmdUpdateJiraSettings:
		return s.applyJiraSettings(cmd)
	case CmdUpdateEstimationSettings:
		return s.applyEstimationSettings(cmd)
	default:
		return nil, ErrUnsupportedCommand
	}
}

func (s *State) applySelectAvatar(cmd Command, now time.Time) ([]Event, error) {
	valid := false
	for _, c := range AvatarClasses {
		if cmd.Avatar == c {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("%w: avatar %q", ErrInvalidPayload, cmd.Avatar)
	}
	s.Players[cmd.PlayerID].Avatar = cmd.Avatar
	events := []Event{{Type: EvtAvatarSelected, PlayerID: cmd.PlayerID, Value: cmd.Avatar}}

	// Avatar selection is the gate between lobby and battle: once every
	// non-spectator picked a class, the battle begins on its own.
	if s.Phase == PhaseAvatarSelection && s.allAvatarsSelected() {
		events = append(events, s.enterBattle(now)...)
	}
	return events, nil
}

func (s *State) allAvatarsSelected() bool {
	for _, p := range s.nonSpectators() {
		if p.Avatar == "" {
			return false
		}
	}
	return true
}

func (s *State) applyChangeOwnTeam(cmd Command) ([]Event, error) {
	switch cmd.Team {
	case TeamDevelopers, TeamQA, TeamSpectators:
	default:
		return nil, fmt.Errorf("%w: team %q", ErrInvalidPayload, cmd.Team)
	}
	p := s.Players[cmd.PlayerID]
	if p.Team == cmd.Team {
		return nil, nil
	}
	p.Team = cmd.Team
	return []Event{{Type: EvtTeamChanged, PlayerID: cmd.PlayerID, Team: cmd.Team}}, nil
}

func (s *State) applyAddTickets(cmd Command) ([]Event, error) {
	if len(cmd.Tickets) == 0 {
		return nil, fmt.Errorf("%w: no tickets", ErrInvalidPayload)
	}
	for _, t := range cmd.Tickets {
		if t.Title == "" || len(t.Title) > 200 {
			return nil, fmt.Errorf("%w: ticket title", ErrInvalidPayload)
		}
	}
	for _, t := range cmd.Tickets {
		if t.ID == "" {
			t.ID = newID()
		}
		s.Tickets = append(s.Tickets, t)
	}
	return []Event{}, nil
}

func (s *State) applyRemoveTicket(cmd Command) ([]Event, error) {
	idx := -1
	for i, t := range s.Tickets {
		if t.ID == cmd.TicketID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: unknown ticket %q", ErrInvalidPayload, cmd.TicketID)
	}
	if idx < len(s.CompletedTickets) {
		return nil, fmt.Errorf("%w: ticket already completed", ErrInvalidPayload)
	}
	if idx == len(s.CompletedTickets) && s.Phase != PhaseLobby {
		return nil, fmt.Errorf("%w: ticket is in play", ErrInvalidPayload)
	}
	s.Tickets = append(s.Tickets[:idx], s.Tickets[idx+1:]...)
	return []Event{}, nil
}

func (s *State) applyStartBattle(now time.Time) ([]Event, error) {
	if _, ok := s.CurrentTicket(); !ok {
		return nil, fmt.Errorf("%w: no tickets to estimate", ErrInvalidPayload)
	}
	if len(s.nonSpectators()) == 0 {
		return nil, fmt.Errorf("%w: no estimating players", ErrInvalidPayload)
	}
	if s.allAvatarsSelected() {
		return s.enterBattle(now), nil
	}
	s.Phase = PhaseAvatarSelection
	return []Event{{Type: EvtPhaseChanged, Phase: PhaseAvatarSelection}}, nil
}

// enterBattle moves the room into the battle phase for the current
// ticket: fresh round votes, full-HP combat states, a boss if this ticket
// does not have one yet.
func (s *State) enterBattle(now time.Time) []Event {
	s.Phase = PhaseBattle
	s.clearRoundVotes()
	s.Revivals = map[string]*RevivalSession{}
	s.Combat = map[string]*CombatState{}
	for _, p := range s.nonSpectators() {
		s.Combat[p.ID] = &CombatState{HP: PlayerMaxHP, MaxHP: PlayerMaxHP}
	}
	s.NextRingAt = now.Add(s.Tuning.RingInterval)

	events := []Event{{Type: EvtPhaseChanged, Phase: PhaseBattle}}
	if s.Boss == nil || s.Boss.Defeated {
		events = append(events, s.spawnBoss())
	}
	return events
}

func (s *State) spawnBoss() Event {
	instance := 1
	if s.Boss != nil {
		instance = s.Boss.Instance + 1
	}
	s.Boss = &Boss{
		Instance:      instance,
		Name:          bossNames[(instance-1)%len(bossNames)],
		MaxHealth:     BossBaseHealth,
		CurrentHealth: BossBaseHealth,
	}
	return Event{Type: EvtBossSpawned, Value: s.Boss.Name, Amount: s.Boss.MaxHealth}
}

func (s *State) applySubmitScore(cmd Command) ([]Event, error) {
	if _, err := NormalizeScore(s.Estimation, cmd.Score); err != nil {
		return nil, err
	}
	p := s.Players[cmd.PlayerID]
	// Last submission wins; consensus is recomputed from the full set.
	p.CurrentScore = cmd.Score
	p.HasSubmittedScore = true

	events := []Event{{Type: EvtScoreSubmitted, PlayerID: cmd.PlayerID}}
	if s.allVotesIn() {
		events = append(events, s.runReveal()...)
	}
	return events, nil
}

func (s *State) applyDiscussionVote(cmd Command) ([]Event, error) {
	if _, err := NormalizeScore(s.Estimation, cmd.Score); err != nil {
		return nil, err
	}
	p := s.Players[cmd.PlayerID]
	p.CurrentScore = cmd.Score
	p.HasSubmittedScore = true

	events := []Event{{Type: EvtScoreSubmitted, PlayerID: cmd.PlayerID}}
	events = append(events, s.evaluateAgreement()...)
	return events, nil
}

func (s *State) applyAbandonQuest() ([]Event, error) {
	s.Phase = PhaseLobby
	s.Boss = nil
	s.clearRoundVotes()
	s.Combat = map[string]*CombatState{}
	s.Revivals = map[string]*RevivalSession{}
	s.Competition = map[Team]*TeamStats{TeamDevelopers: {}, TeamQA: {}}
	s.NextRingAt = time.Time{}
	return []Event{{Type: EvtPhaseChanged, Phase: PhaseLobby}}, nil
}

func (s *State) applyPlayerPos(cmd Command) ([]Event, error) {
	x, y := clampPercent(cmd.X), clampPercent(cmd.Y)
	s.Positions[cmd.PlayerID] = Position{X: x, Y: y}
	return []Event{{Type: EvtPlayerMoved, PlayerID: cmd.PlayerID, X: x, Y: y}}, nil
}

func (s *State) applySendEmote(cmd Command) ([]Event, error) {
	if cmd.Emote == "" || len(cmd.Emote) > maxEmoteLen {
		return nil, fmt.Errorf("%w: emote length", ErrInvalidPayload)
	}
	return []Event{{Type: EvtEmote, PlayerID: cmd.PlayerID, Value: cmd.Emote}}, nil
}

func (s *State) applyTimerSettings(cmd Command) ([]Event, error) {
	if cmd.Timer == nil || cmd.Timer.DurationSec < 0 || cmd.Timer.DurationSec > 3600 {
		return nil, fmt.Errorf("%w: timer settings", ErrInvalidPayload)
	}
	s.Timer = *cmd.Timer
	return []Event{}, nil
}

func (s *State) applyJiraSettings(cmd Command) ([]Event, error) {
	if cmd.Jira == nil || len(cmd.Jira.BaseURL) > 500 || len(cmd.Jira.IssueQuery) > 1000 {
		return nil, fmt.Errorf("%w: jira settings", ErrInvalidPayload)
	}
	s.Jira = *cmd.Jira
	return []Event{}, nil
}

func (s *State) applyEstimationSettings(cmd Command) ([]Event, error) {
	if cmd.Estimation == nil {
		return nil, fmt.Errorf("%w: estimation settings", ErrInvalidPayload)
	}
	if err := validEstimationSettings(*cmd.Estimation); err != nil {
		return nil, err
	}
	s.Estimation = *cmd.Estimation
	return []Event{}, nil
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
