package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// battleState builds a room in battle phase with one dev, one QA and one
// spectator.
func battleState(t *testing.T) (s *State, dev, qa, spec *Player) {
	t.Helper()
	s = testState()
	dev = addPlayer(t, s, "dev", TeamDevelopers)
	qa = addPlayer(t, s, "qa", TeamQA)
	spec = addPlayer(t, s, "spec", TeamSpectators)
	startBattle(t, s)
	return s, dev, qa, spec
}

func downPlayer(t *testing.T, s *State, attacker, target *Player) {
	t.Helper()
	for !s.Combat[target.ID].Downed {
		_, err := Apply(s, Command{
			Type: CmdAttackPlayer, PlayerID: attacker.ID, TargetID: target.ID, Damage: maxAttackDamage,
		}, time.Now())
		require.NoError(t, err)
	}
}

func TestAttackBossFloorsAtOneHP(t *testing.T) {
	s, dev, _, _ := battleState(t)

	for i := 0; i < 20; i++ {
		_, err := Apply(s, Command{Type: CmdAttackBoss, PlayerID: dev.ID, Damage: maxAttackDamage}, time.Now())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, s.Boss.CurrentHealth)
	assert.False(t, s.Boss.Defeated, "clicks alone never defeat the boss")
}

func TestSpectatorProjectileRules(t *testing.T) {
	s, dev, qa, spec := battleState(t)

	// Spectator -> developer is allowed.
	events, err := Apply(s, Command{Type: CmdAttackPlayer, PlayerID: spec.ID, TargetID: dev.ID, Damage: 30}, time.Now())
	require.NoError(t, err)
	assert.True(t, ContainsEvent(events, EvtPlayerDamaged))
	assert.Equal(t, PlayerMaxHP-30, s.Combat[dev.ID].HP)

	// Developer -> anyone is not.
	_, err = Apply(s, Command{Type: CmdAttackPlayer, PlayerID: dev.ID, TargetID: qa.ID, Damage: 30}, time.Now())
	require.ErrorIs(t, err, ErrNotAuthorized)

	// Spectator -> spectator is not a valid target.
	other, _, err := s.AddPlayer("spec2")
	require.NoError(t, err)
	_, err = Apply(s, Command{Type: CmdAttackPlayer, PlayerID: spec.ID, TargetID: other.ID, Damage: 30}, time.Now())
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDownedPlayerCannotActOrVote(t *testing.T) {
	s, dev, _, spec := battleState(t)
	downPlayer(t, s, spec, dev)

	_, err := Apply(s, Command{Type: CmdSubmitScore, PlayerID: dev.ID, Score: "5"}, time.Now())
	require.ErrorIs(t, err, ErrInvalidPhase)

	_, err = Apply(s, Command{Type: CmdAttackBoss, PlayerID: dev.ID, Damage: 10}, time.Now())
	require.ErrorIs(t, err, ErrInvalidPhase)
}

func TestReviveStartEligibility(t *testing.T) {
	s, dev, qa, spec := battleState(t)
	downPlayer(t, s, spec, dev)

	// Target must be downed.
	_, err := Apply(s, Command{Type: CmdReviveStart, PlayerID: dev.ID, TargetID: qa.ID}, time.Now())
	require.ErrorIs(t, err, ErrInvalidPhase) // downed reviver is blocked by the guard

	// Self-revive is not a thing.
	_, err = Apply(s, Command{Type: CmdReviveStart, PlayerID: qa.ID, TargetID: qa.ID}, time.Now())
	require.ErrorIs(t, err, ErrInvalidPayload)

	// Valid start.
	events, err := Apply(s, Command{Type: CmdReviveStart, PlayerID: qa.ID, TargetID: dev.ID}, time.Now())
	require.NoError(t, err)
	assert.True(t, ContainsEvent(events, EvtReviveStarted))
	require.NotNil(t, s.Revivals[dev.ID])
	assert.Equal(t, qa.ID, s.Combat[dev.ID].ReviverID)

	// Only one reviver per target.
	third := addPlayer(t, s, "d2", TeamDevelopers)
	s.Combat[third.ID] = &CombatState{HP: PlayerMaxHP, MaxHP: PlayerMaxHP}
	_, err = Apply(s, Command{Type: CmdReviveStart, PlayerID: third.ID, TargetID: dev.ID}, time.Now())
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestReviveTickProximityCancels(t *testing.T) {
	s, dev, qa, spec := battleState(t)
	downPlayer(t, s, spec, dev)

	now := time.Now()
	s.Positions[dev.ID] = Position{X: 50, Y: 50}
	s.Positions[qa.ID] = Position{X: 52, Y: 50}

	_, err := Apply(s, Command{Type: CmdReviveStart, PlayerID: qa.ID, TargetID: dev.ID}, now)
	require.NoError(t, err)

	// In range: the keep-alive refreshes.
	_, err = Apply(s, Command{Type: CmdReviveTick, PlayerID: qa.ID, TargetID: dev.ID}, now.Add(500*time.Millisecond))
	require.NoError(t, err)
	require.NotNil(t, s.Revivals[dev.ID])

	// Reviver wanders off: the session cancels, target stays downed.
	s.Positions[qa.ID] = Position{X: 90, Y: 90}
	events, err := Apply(s, Command{Type: CmdReviveTick, PlayerID: qa.ID, TargetID: dev.ID}, now.Add(900*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, ContainsEvent(events, EvtReviveCancelled))
	assert.Nil(t, s.Revivals[dev.ID])
	assert.True(t, s.Combat[dev.ID].Downed)
}

func TestWatchdogCompletesHealthyRevival(t *testing.T) {
	s, dev, qa, spec := battleState(t)
	downPlayer(t, s, spec, dev)

	now := time.Now()
	_, err := Apply(s, Command{Type: CmdReviveStart, PlayerID: qa.ID, TargetID: dev.ID}, now)
	require.NoError(t, err)

	// Ticks arrive faster than the keep-alive window.
	for elapsed := 500 * time.Millisecond; elapsed < s.Tuning.ReviveDuration; elapsed += 500 * time.Millisecond {
		_, err = Apply(s, Command{Type: CmdReviveTick, PlayerID: qa.ID, TargetID: dev.ID}, now.Add(elapsed))
		require.NoError(t, err)
		require.Empty(t, Tick(s, now.Add(elapsed)), "no watchdog action before the duration elapses")
	}

	events := Tick(s, now.Add(s.Tuning.ReviveDuration))
	assert.True(t, ContainsEvent(events, EvtReviveCompleted))
	assert.False(t, s.Combat[dev.ID].Downed)
	assert.Equal(t, PlayerMaxHP*ReviveHPPercent/100, s.Combat[dev.ID].HP)
	assert.Nil(t, s.Revivals[dev.ID])
}

func TestWatchdogCancelsStaleRevival(t *testing.T) {
	s, dev, qa, spec := battleState(t)
	downPlayer(t, s, spec, dev)

	now := time.Now()
	_, err := Apply(s, Command{Type: CmdReviveStart, PlayerID: qa.ID, TargetID: dev.ID}, now)
	require.NoError(t, err)

	// One missed keep-alive past the window cancels the session.
	events := Tick(s, now.Add(s.Tuning.ReviveKeepAlive+50*time.Millisecond))
	assert.True(t, ContainsEvent(events, EvtReviveCancelled))
	assert.Nil(t, s.Revivals[dev.ID])
	assert.True(t, s.Combat[dev.ID].Downed)
	assert.Equal(t, "", s.Combat[dev.ID].ReviverID)
}

func TestLateReviveTickCancels(t *testing.T) {
	s, dev, qa, spec := battleState(t)
	downPlayer(t, s, spec, dev)

	now := time.Now()
	_, err := Apply(s, Command{Type: CmdReviveStart, PlayerID: qa.ID, TargetID: dev.ID}, now)
	require.NoError(t, err)

	// A keep-alive landing after its window already lapsed cancels the
	// session, even when no watchdog pass ran in between.
	late := now.Add(s.Tuning.ReviveKeepAlive + 100*time.Millisecond)
	events, err := Apply(s, Command{Type: CmdReviveTick, PlayerID: qa.ID, TargetID: dev.ID}, late)
	require.NoError(t, err)
	assert.True(t, ContainsEvent(events, EvtReviveCancelled))
	assert.Nil(t, s.Revivals[dev.ID])
	assert.True(t, s.Combat[dev.ID].Downed)
}

func TestDownedReviverLosesSession(t *testing.T) {
	s, dev, qa, spec := battleState(t)
	downPlayer(t, s, spec, dev)

	_, err := Apply(s, Command{Type: CmdReviveStart, PlayerID: qa.ID, TargetID: dev.ID}, time.Now())
	require.NoError(t, err)

	downPlayer(t, s, spec, qa)
	assert.Nil(t, s.Revivals[dev.ID], "downing the reviver cancels their session")
	assert.True(t, s.Combat[dev.ID].Downed)
}

func TestGracePeriodEviction(t *testing.T) {
	s := testState()
	host := addPlayer(t, s, "host", TeamDevelopers)
	other := addPlayer(t, s, "other", TeamQA)

	now := time.Now()
	events := s.MarkDisconnected(other.ID, now)
	assert.True(t, ContainsEvent(events, EvtPlayerDisconnected))

	// Inside the grace window nothing happens.
	assert.Empty(t, Tick(s, now.Add(s.Tuning.GracePeriod/2)))
	require.NotNil(t, s.Players[other.ID])

	// Reconnect clears the deadline without any join/leave event.
	s.MarkReconnected(other.ID)
	assert.Empty(t, Tick(s, now.Add(s.Tuning.GracePeriod*2)))
	require.NotNil(t, s.Players[other.ID])

	// A second disconnect that runs out evicts the player.
	s.MarkDisconnected(other.ID, now)
	events = Tick(s, now.Add(s.Tuning.GracePeriod))
	assert.True(t, ContainsEvent(events, EvtPlayerLeft))
	assert.Nil(t, s.Players[other.ID])
	assert.Equal(t, host.ID, s.HostID)
}

func TestRevivalProgressIsClamped(t *testing.T) {
	now := time.Now()
	sess := &RevivalSession{StartedAt: now}
	d := 3 * time.Second

	assert.Zero(t, sess.Progress(now.Add(-time.Second), d))
	assert.InDelta(t, 0.5, sess.Progress(now.Add(1500*time.Millisecond), d), 1e-9)
	assert.Equal(t, 1.0, sess.Progress(now.Add(5*time.Second), d))
	assert.Equal(t, 1.0, sess.Progress(now, 0))
}

func TestRingAttackDamagesPlayersInRadius(t *testing.T) {
	s, dev, qa, _ := battleState(t)

	now := time.Now()
	s.NextRingAt = now.Add(-time.Millisecond)

	// Park both players somewhere; one ring cannot be dodged by either
	// if they share a spot, so split them far apart and check that at
	// most the co-located one is hit.
	s.Positions[dev.ID] = Position{X: 0, Y: 0}
	s.Positions[qa.ID] = Position{X: 100, Y: 100}

	events := Tick(s, now)
	require.True(t, ContainsEvent(events, EvtBossRingSpawn))

	var ring Event
	for _, ev := range events {
		if ev.Type == EvtBossRingSpawn {
			ring = ev
		}
	}
	assert.NotZero(t, ring.Seed, "ring must carry its seed so clients render identical projectiles")

	for _, p := range []*Player{dev, qa} {
		pos := s.Positions[p.ID]
		dx, dy := pos.X-ring.X, pos.Y-ring.Y
		inRange := dx*dx+dy*dy <= s.Tuning.RingRadius*s.Tuning.RingRadius
		damaged := s.Combat[p.ID].HP < PlayerMaxHP
		assert.Equal(t, inRange, damaged, "player %s", p.Name)
	}

	// The next ring is rescheduled, not retriggered.
	assert.Empty(t, Tick(s, now.Add(time.Millisecond)))
}
