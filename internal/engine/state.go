package engine

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

type Team string

const (
	TeamDevelopers Team = "developers"
	TeamQA         Team = "qa"
	TeamSpectators Team = "spectators"
)

type GamePhase string

const (
	PhaseLobby           GamePhase = "lobby"
	PhaseAvatarSelection GamePhase = "avatar_selection"
	PhaseBattle          GamePhase = "battle"
	PhaseReveal          GamePhase = "reveal"
	PhaseDiscussion      GamePhase = "discussion"
	PhaseNextLevel       GamePhase = "next_level"
	PhaseVictory         GamePhase = "victory"
)

const MaxPlayers = 32

const (
	PlayerMaxHP     = 100
	BossBaseHealth  = 300
	ReviveHPPercent = 50
)

type Player struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Avatar            string `json:"avatar,omitempty"`
	Team              Team   `json:"team"`
	IsHost            bool   `json:"is_host"`
	CurrentScore      string `json:"current_score,omitempty"`
	HasSubmittedScore bool   `json:"has_submitted_score"`
	Connected         bool   `json:"connected"`
}

type Ticket struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// CompletedTicket is frozen at reveal time and never mutated afterwards.
type CompletedTicket struct {
	TicketID string          `json:"ticket_id"`
	Title    string          `json:"title"`
	Scores   map[Team]string `json:"scores"`
	Points   float64         `json:"points"`
}

type Boss struct {
	Instance      int    `json:"instance"`
	Name          string `json:"name"`
	MaxHealth     int    `json:"max_health"`
	CurrentHealth int    `json:"current_health"`
	Defeated      bool   `json:"defeated"`
}

type CombatState struct {
	HP        int    `json:"hp"`
	MaxHP     int    `json:"max_hp"`
	Downed    bool   `json:"downed"`
	ReviverID string `json:"reviver_id,omitempty"`
}

type RevivalSession struct {
	ReviverID  string    `json:"reviver_id"`
	TargetID   string    `json:"target_id"`
	StartedAt  time.Time `json:"started_at"`
	LastTickAt time.Time `json:"last_tick_at"`
}

// Progress reports completion in [0,1] for the configured duration.
func (rs *RevivalSession) Progress(now time.Time, duration time.Duration) float64 {
	if duration <= 0 {
		return 1
	}
	p := float64(now.Sub(rs.StartedAt)) / float64(duration)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Position is a normalized percentage coordinate, advisory only.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type TimerSettings struct {
	Enabled     bool `json:"enabled"`
	DurationSec int  `json:"duration_sec"`
}

type JiraSettings struct {
	BaseURL    string `json:"base_url,omitempty"`
	ProjectKey string `json:"project_key,omitempty"`
	IssueQuery string `json:"issue_query,omitempty"`
}

type TeamStats struct {
	StoryPoints float64 `json:"story_points"`
	TicketsWon  int     `json:"tickets_won"`
	Streak      int     `json:"streak"`
	BestStreak  int     `json:"best_streak"`
}

// Tuning holds the time and distance knobs the watchdog and revival
// machinery run on. It is carried on the state so Apply and Tick stay
// pure functions of (state, command, now).
type Tuning struct {
	ReviveDuration  time.Duration `json:"-"`
	ReviveKeepAlive time.Duration `json:"-"`
	ReviveProximity float64       `json:"-"`
	GracePeriod     time.Duration `json:"-"`
	RingInterval    time.Duration `json:"-"`
	RingRadius      float64       `json:"-"`
	RingDamage      int           `json:"-"`
}

func DefaultTuning() Tuning {
	return Tuning{
		ReviveDuration:  3 * time.Second,
		ReviveKeepAlive: time.Second,
		ReviveProximity: 15,
		GracePeriod:     15 * time.Second,
		RingInterval:    8 * time.Second,
		RingRadius:      20,
		RingDamage:      25,
	}
}

// State is the full aggregate for one room. It is only ever mutated from
// the room actor goroutine, so no locking happens at this level.
type State struct {
	RoomID   string `json:"room_id"`
	RoomName string `json:"room_name"`
	HostID   string `json:"host_id"`

	Players   map[string]*Player `json:"players"`
	JoinOrder []string           `json:"join_order"`

	Tickets          []Ticket          `json:"tickets"`
	CompletedTickets []CompletedTicket `json:"completed_tickets"`

	Boss  *Boss     `json:"boss,omitempty"`
	Phase GamePhase `json:"phase"`

	Combat    map[string]*CombatState    `json:"combat"`
	Revivals  map[string]*RevivalSession `json:"revivals"`
	Positions map[string]Position        `json:"positions"`

	Timer      TimerSettings      `json:"timer_settings"`
	Jira       JiraSettings       `json:"jira_settings"`
	Estimation EstimationSettings `json:"estimation_settings"`

	Competition map[Team]*TeamStats `json:"team_competition"`

	// Disconnected maps a player id to its eviction deadline while the
	// reconnect grace period runs.
	Disconnected map[string]time.Time `json:"-"`

	NextRingAt time.Time `json:"-"`

	Tuning Tuning `json:"-"`
}

func NewState(roomID, roomName string, tuning Tuning) *State {
	return &State{
		RoomID:       roomID,
		RoomName:     roomName,
		Phase:        PhaseLobby,
		Players:      map[string]*Player{},
		Combat:       map[string]*CombatState{},
		Revivals:     map[string]*RevivalSession{},
		Positions:    map[string]Position{},
		Competition:  map[Team]*TeamStats{TeamDevelopers: {}, TeamQA: {}},
		Disconnected: map[string]time.Time{},
		Estimation:   DefaultEstimationSettings(),
		Timer:        TimerSettings{Enabled: false, DurationSec: 60},
		Tuning:       tuning,
	}
}

// Clone returns a deep copy safe to read outside the owning goroutine.
func (s *State) Clone() *State {
	c := *s
	c.Players = make(map[string]*Player, len(s.Players))
	for id, p := range s.Players {
		cp := *p
		c.Players[id] = &cp
	}
	c.Combat = make(map[string]*CombatState, len(s.Combat))
	for id, cs := range s.Combat {
		ccs := *cs
		c.Combat[id] = &ccs
	}
	c.Revivals = make(map[string]*RevivalSession, len(s.Revivals))
	for id, rs := range s.Revivals {
		crs := *rs
		c.Revivals[id] = &crs
	}
	c.Competition = make(map[Team]*TeamStats, len(s.Competition))
	for team, st := range s.Competition {
		cst := *st
		c.Competition[team] = &cst
	}
	c.Positions = maps.Clone(s.Positions)
	c.Disconnected = maps.Clone(s.Disconnected)
	c.JoinOrder = append([]string(nil), s.JoinOrder...)
	c.Tickets = append([]Ticket(nil), s.Tickets...)
	c.CompletedTickets = make([]CompletedTicket, len(s.CompletedTickets))
	for i, ct := range s.CompletedTickets {
		ct.Scores = maps.Clone(ct.Scores)
		c.CompletedTickets[i] = ct
	}
	if s.Boss != nil {
		b := *s.Boss
		c.Boss = &b
	}
	if s.Estimation.CustomValues != nil {
		c.Estimation.CustomValues = maps.Clone(s.Estimation.CustomValues)
	}
	return &c
}

// CurrentTicket is tickets[completedCount], absent once the queue is done.
func (s *State) CurrentTicket() (Ticket, bool) {
	idx := len(s.CompletedTickets)
	if idx >= len(s.Tickets) {
		return Ticket{}, false
	}
	return s.Tickets[idx], true
}

func (s *State) TeamMembers(team Team) []*Player {
	var out []*Player
	for _, id := range s.JoinOrder {
		if p := s.Players[id]; p != nil && p.Team == team {
			out = append(out, p)
		}
	}
	return out
}

func (s *State) nonSpectators() []*Player {
	var out []*Player
	for _, id := range s.JoinOrder {
		if p := s.Players[id]; p != nil && p.Team != TeamSpectators {
			out = append(out, p)
		}
	}
	return out
}

// AddPlayer creates a player and assigns a team. The first player becomes
// host. Lobby joiners balance across the estimating teams; anyone joining
// mid-game starts as a spectator.
func (s *State) AddPlayer(name string) (*Player, []Event, error) {
	if name == "" || len(name) > 40 {
		return nil, nil, fmt.Errorf("%w: player name", ErrInvalidPayload)
	}
	if len(s.Players) >= MaxPlayers {
		return nil, nil, ErrRoomFull
	}

	team := TeamSpectators
	if s.Phase == PhaseLobby {
		if len(s.TeamMembers(TeamDevelopers)) <= len(s.TeamMembers(TeamQA)) {
			team = TeamDevelopers
		} else {
			team = TeamQA
		}
	}

	p := &Player{
		ID:        uuid.NewString(),
		Name:      name,
		Team:      team,
		IsHost:    len(s.Players) == 0,
		Connected: true,
	}
	if p.IsHost {
		s.HostID = p.ID
	}
	s.Players[p.ID] = p
	s.JoinOrder = append(s.JoinOrder, p.ID)

	return p, []Event{{Type: EvtPlayerJoined, PlayerID: p.ID, Value: p.Name}}, nil
}

// RemovePlayer evicts a player and migrates the host role to the next
// member in join order when needed. The caller decides what to do when the
// room ends up empty.
func (s *State) RemovePlayer(playerID string) []Event {
	p := s.Players[playerID]
	if p == nil {
		return nil
	}

	events := s.cancelRevivalsInvolving(playerID)

	delete(s.Players, playerID)
	delete(s.Combat, playerID)
	delete(s.Positions, playerID)
	delete(s.Disconnected, playerID)
	for i, id := range s.JoinOrder {
		if id == playerID {
			s.JoinOrder = append(s.JoinOrder[:i], s.JoinOrder[i+1:]...)
			break
		}
	}

	events = append(events, Event{Type: EvtPlayerLeft, PlayerID: playerID, Value: p.Name})

	if p.IsHost && len(s.JoinOrder) > 0 {
		next := s.Players[s.JoinOrder[0]]
		next.IsHost = true
		s.HostID = next.ID
		events = append(events, Event{Type: EvtHostChanged, PlayerID: next.ID})
	}
	if len(s.Players) == 0 {
		s.HostID = ""
	}

	// The departed player may have been the last missing vote. The reveal
	// trigger is a condition on the submission set, so it fires here too,
	// not only on submit.
	if s.Phase == PhaseBattle && s.allVotesIn() {
		events = append(events, s.runReveal()...)
	}
	return events
}

// MarkDisconnected starts the grace period for a player whose connection
// dropped. The player stays in the room until the deadline passes.
func (s *State) MarkDisconnected(playerID string, now time.Time) []Event {
	p := s.Players[playerID]
	if p == nil || !p.Connected {
		return nil
	}
	p.Connected = false
	s.Disconnected[playerID] = now.Add(s.Tuning.GracePeriod)
	return []Event{{Type: EvtPlayerDisconnected, PlayerID: playerID}}
}

// MarkReconnected clears the grace period. Deliberately emits no
// join/leave event so a resume inside the grace window is invisible to
// the other players.
func (s *State) MarkReconnected(playerID string) {
	if p := s.Players[playerID]; p != nil {
		p.Connected = true
	}
	delete(s.Disconnected, playerID)
}

func newID() string { return uuid.NewString() }

func (s *State) isHost(playerID string) bool {
	return playerID != "" && playerID == s.HostID
}

func (s *State) clearRoundVotes() {
	for _, p := range s.Players {
		p.CurrentScore = ""
		p.HasSubmittedScore = false
	}
}
