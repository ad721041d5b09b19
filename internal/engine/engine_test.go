package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState() *State {
	return NewState("ROOM01", "test room", DefaultTuning())
}

func addPlayer(t *testing.T, s *State, name string, team Team) *Player {
	t.Helper()
	p, _, err := s.AddPlayer(name)
	require.NoError(t, err)
	p.Team = team
	return p
}

// startBattle drives the room from lobby into battle with one ticket and
// everyone's avatar selected.
func startBattle(t *testing.T, s *State) {
	t.Helper()
	if len(s.Tickets) == 0 {
		s.Tickets = append(s.Tickets, Ticket{ID: "t1", Title: "First ticket"})
	}
	for _, p := range s.Players {
		p.Avatar = "knight"
	}
	_, err := Apply(s, Command{Type: CmdStartBattle, PlayerID: s.HostID}, time.Now())
	require.NoError(t, err)
	require.Equal(t, PhaseBattle, s.Phase)
}

func TestFirstPlayerBecomesHost(t *testing.T) {
	s := testState()
	host := addPlayer(t, s, "ana", TeamDevelopers)
	other := addPlayer(t, s, "bo", TeamQA)

	assert.True(t, host.IsHost)
	assert.False(t, other.IsHost)
	assert.Equal(t, host.ID, s.HostID)
}

func TestTeamPartitionInvariant(t *testing.T) {
	s := testState()
	addPlayer(t, s, "ana", TeamDevelopers)
	addPlayer(t, s, "bo", TeamQA)
	p := addPlayer(t, s, "cy", TeamSpectators)

	_, err := Apply(s, Command{Type: CmdChangeOwnTeam, PlayerID: p.ID, Team: TeamDevelopers}, time.Now())
	require.NoError(t, err)

	total := 0
	seen := map[string]bool{}
	for _, team := range []Team{TeamDevelopers, TeamQA, TeamSpectators} {
		for _, m := range s.TeamMembers(team) {
			require.False(t, seen[m.ID], "player %s in two teams", m.ID)
			seen[m.ID] = true
			total++
		}
	}
	assert.Equal(t, len(s.Players), total)
}

func TestStartBattleRequiresHost(t *testing.T) {
	s := testState()
	addPlayer(t, s, "ana", TeamDevelopers)
	guest := addPlayer(t, s, "bo", TeamQA)
	s.Tickets = append(s.Tickets, Ticket{ID: "t1", Title: "x"})

	_, err := Apply(s, Command{Type: CmdStartBattle, PlayerID: guest.ID}, time.Now())
	require.ErrorIs(t, err, ErrNotAuthorized)
	assert.Equal(t, PhaseLobby, s.Phase)
}

func TestStartBattleNeedsTickets(t *testing.T) {
	s := testState()
	addPlayer(t, s, "ana", TeamDevelopers)

	_, err := Apply(s, Command{Type: CmdStartBattle, PlayerID: s.HostID}, time.Now())
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestAvatarSelectionGatesBattle(t *testing.T) {
	s := testState()
	ana := addPlayer(t, s, "ana", TeamDevelopers)
	bo := addPlayer(t, s, "bo", TeamQA)
	s.Tickets = append(s.Tickets, Ticket{ID: "t1", Title: "x"})

	_, err := Apply(s, Command{Type: CmdStartBattle, PlayerID: s.HostID}, time.Now())
	require.NoError(t, err)
	require.Equal(t, PhaseAvatarSelection, s.Phase)

	_, err = Apply(s, Command{Type: CmdSelectAvatar, PlayerID: ana.ID, Avatar: "mage"}, time.Now())
	require.NoError(t, err)
	require.Equal(t, PhaseAvatarSelection, s.Phase)

	events, err := Apply(s, Command{Type: CmdSelectAvatar, PlayerID: bo.ID, Avatar: "knight"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, PhaseBattle, s.Phase)
	assert.True(t, ContainsEvent(events, EvtBossSpawned))
	require.NotNil(t, s.Boss)
	assert.False(t, s.Boss.Defeated)
}

func TestInvalidAvatarRejected(t *testing.T) {
	s := testState()
	ana := addPlayer(t, s, "ana", TeamDevelopers)

	_, err := Apply(s, Command{Type: CmdSelectAvatar, PlayerID: ana.ID, Avatar: "balrog"}, time.Now())
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestGuardTableRejections(t *testing.T) {
	cases := []struct {
		name  string
		setup func(s *State) Command
		want  error
	}{
		{
			name: "submit_score outside battle",
			setup: func(s *State) Command {
				p := addPlayer(t, s, "ana", TeamDevelopers)
				return Command{Type: CmdSubmitScore, PlayerID: p.ID, Score: "5"}
			},
			want: ErrInvalidPhase,
		},
		{
			name: "spectator submit_score",
			setup: func(s *State) Command {
				addPlayer(t, s, "ana", TeamDevelopers)
				spec := addPlayer(t, s, "sp", TeamSpectators)
				startBattle(t, s)
				return Command{Type: CmdSubmitScore, PlayerID: spec.ID, Score: "5"}
			},
			want: ErrNotAuthorized,
		},
		{
			name: "force_reveal by non-host",
			setup: func(s *State) Command {
				addPlayer(t, s, "ana", TeamDevelopers)
				bo := addPlayer(t, s, "bo", TeamQA)
				startBattle(t, s)
				return Command{Type: CmdForceReveal, PlayerID: bo.ID}
			},
			want: ErrNotAuthorized,
		},
		{
			name: "proceed_next_level from lobby",
			setup: func(s *State) Command {
				addPlayer(t, s, "ana", TeamDevelopers)
				return Command{Type: CmdProceedNextLevel, PlayerID: s.HostID}
			},
			want: ErrInvalidPhase,
		},
		{
			name: "abandon_quest from lobby",
			setup: func(s *State) Command {
				addPlayer(t, s, "ana", TeamDevelopers)
				return Command{Type: CmdAbandonQuest, PlayerID: s.HostID}
			},
			want: ErrInvalidPhase,
		},
		{
			name: "unknown player",
			setup: func(s *State) Command {
				addPlayer(t, s, "ana", TeamDevelopers)
				return Command{Type: CmdSubmitScore, PlayerID: "ghost", Score: "5"}
			},
			want: ErrUnknownPlayer,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := testState()
			cmd := tc.setup(s)
			before := s.Phase
			_, err := Apply(s, cmd, time.Now())
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, before, s.Phase, "rejected command must not mutate phase")
		})
	}
}

func TestUnmappedScoreRejectedAtSubmission(t *testing.T) {
	s := testState()
	ana := addPlayer(t, s, "ana", TeamDevelopers)
	startBattle(t, s)

	_, err := Apply(s, Command{Type: CmdSubmitScore, PlayerID: ana.ID, Score: "4"}, time.Now())
	require.ErrorIs(t, err, ErrInvalidPayload)
	assert.False(t, ana.HasSubmittedScore)
}

func TestTShirtScaleNormalization(t *testing.T) {
	es := EstimationSettings{Scale: ScaleTShirt}

	pts, err := NormalizeScore(es, "L")
	require.NoError(t, err)
	assert.Equal(t, 5.0, pts)

	pts, err = NormalizeScore(es, ScoreUnknown)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pts)

	_, err = NormalizeScore(es, "XXXL")
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestHostMigrationOnRemoval(t *testing.T) {
	s := testState()
	host := addPlayer(t, s, "ana", TeamDevelopers)
	next := addPlayer(t, s, "bo", TeamQA)

	events := s.RemovePlayer(host.ID)
	assert.True(t, ContainsEvent(events, EvtHostChanged))
	assert.Equal(t, next.ID, s.HostID)
	assert.True(t, s.Players[next.ID].IsHost)

	events = s.RemovePlayer(next.ID)
	assert.True(t, ContainsEvent(events, EvtPlayerLeft))
	assert.Empty(t, s.Players)
	assert.Empty(t, s.HostID)
}

func TestRoomCapacity(t *testing.T) {
	s := testState()
	for i := 0; i < MaxPlayers; i++ {
		_, _, err := s.AddPlayer("player")
		require.NoError(t, err)
	}
	_, _, err := s.AddPlayer("straggler")
	require.ErrorIs(t, err, ErrRoomFull)
}

func TestMidGameJoinersAreSpectators(t *testing.T) {
	s := testState()
	addPlayer(t, s, "ana", TeamDevelopers)
	startBattle(t, s)

	late, _, err := s.AddPlayer("late")
	require.NoError(t, err)
	assert.Equal(t, TeamSpectators, late.Team)
}

func TestRemoveTicketGuards(t *testing.T) {
	s := testState()
	addPlayer(t, s, "ana", TeamDevelopers)
	s.Tickets = []Ticket{{ID: "t1", Title: "a"}, {ID: "t2", Title: "b"}}
	startBattle(t, s)

	// The in-play ticket cannot be removed mid-battle.
	_, err := Apply(s, Command{Type: CmdRemoveTicket, PlayerID: s.HostID, TicketID: "t1"}, time.Now())
	require.ErrorIs(t, err, ErrInvalidPayload)

	// A pending ticket can.
	_, err = Apply(s, Command{Type: CmdRemoveTicket, PlayerID: s.HostID, TicketID: "t2"}, time.Now())
	require.NoError(t, err)
	assert.Len(t, s.Tickets, 1)
}

func TestAbandonQuestResetsToLobby(t *testing.T) {
	s := testState()
	ana := addPlayer(t, s, "ana", TeamDevelopers)
	s.Tickets = []Ticket{{ID: "t1", Title: "a"}, {ID: "t2", Title: "b"}}
	startBattle(t, s)
	_, err := Apply(s, Command{Type: CmdSubmitScore, PlayerID: ana.ID, Score: "5"}, time.Now())
	require.NoError(t, err)
	require.Equal(t, PhaseNextLevel, s.Phase)

	_, err = Apply(s, Command{Type: CmdAbandonQuest, PlayerID: s.HostID}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, PhaseLobby, s.Phase)
	assert.Nil(t, s.Boss)
	assert.Empty(t, s.Revivals)
	assert.Zero(t, s.Competition[TeamDevelopers].StoryPoints)
	assert.False(t, ana.HasSubmittedScore)
}

func TestEmoteLengthValidated(t *testing.T) {
	s := testState()
	ana := addPlayer(t, s, "ana", TeamDevelopers)

	long := make([]byte, maxEmoteLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := Apply(s, Command{Type: CmdSendEmote, PlayerID: ana.ID, Emote: string(long)}, time.Now())
	require.ErrorIs(t, err, ErrInvalidPayload)

	events, err := Apply(s, Command{Type: CmdSendEmote, PlayerID: ana.ID, Emote: "gg"}, time.Now())
	require.NoError(t, err)
	assert.True(t, ContainsEvent(events, EvtEmote))
}

func TestSettingsHostOnly(t *testing.T) {
	s := testState()
	addPlayer(t, s, "ana", TeamDevelopers)
	bo := addPlayer(t, s, "bo", TeamQA)

	timer := &TimerSettings{Enabled: true, DurationSec: 90}
	_, err := Apply(s, Command{Type: CmdUpdateTimerSettings, PlayerID: bo.ID, Timer: timer}, time.Now())
	require.ErrorIs(t, err, ErrNotAuthorized)

	_, err = Apply(s, Command{Type: CmdUpdateTimerSettings, PlayerID: s.HostID, Timer: timer}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 90, s.Timer.DurationSec)
}

func TestEstimationSettingsLockedOutsideLobby(t *testing.T) {
	s := testState()
	addPlayer(t, s, "ana", TeamDevelopers)
	startBattle(t, s)

	es := &EstimationSettings{Scale: ScaleTShirt}
	_, err := Apply(s, Command{Type: CmdUpdateEstimationSettings, PlayerID: s.HostID, Estimation: es}, time.Now())
	require.ErrorIs(t, err, ErrInvalidPhase)
}

func TestCloneIsIndependent(t *testing.T) {
	s := testState()
	ana := addPlayer(t, s, "ana", TeamDevelopers)
	startBattle(t, s)

	c := s.Clone()

	s.Players[ana.ID].Name = "renamed"
	s.Combat[ana.ID].HP = 1
	s.Positions[ana.ID] = Position{X: 9, Y: 9}
	s.Boss.CurrentHealth = 7
	s.Competition[TeamDevelopers].StoryPoints = 99

	assert.Equal(t, "ana", c.Players[ana.ID].Name)
	assert.Equal(t, PlayerMaxHP, c.Combat[ana.ID].HP)
	assert.NotEqual(t, s.Positions[ana.ID], c.Positions[ana.ID])
	assert.Equal(t, BossBaseHealth, c.Boss.CurrentHealth)
	assert.Zero(t, c.Competition[TeamDevelopers].StoryPoints)
}

func TestPositionsClampedAndAdvisory(t *testing.T) {
	s := testState()
	ana := addPlayer(t, s, "ana", TeamDevelopers)

	_, err := Apply(s, Command{Type: CmdPlayerPos, PlayerID: ana.ID, X: 150, Y: -10}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, Position{X: 100, Y: 0}, s.Positions[ana.ID])
}
