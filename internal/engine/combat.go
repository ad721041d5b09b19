package engine

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

const maxAttackDamage = 50

func (s *State) ensureCombat(playerID string) *CombatState {
	cs := s.Combat[playerID]
	if cs == nil {
		cs = &CombatState{HP: PlayerMaxHP, MaxHP: PlayerMaxHP}
		s.Combat[playerID] = cs
	}
	return cs
}

// applyAttackBoss handles the cosmetic boss clicks. The health bar moves
// but never reaches zero here: only reveal agreement defeats a boss.
func (s *State) applyAttackBoss(cmd Command) ([]Event, error) {
	if cmd.Damage <= 0 || cmd.Damage > maxAttackDamage {
		return nil, fmt.Errorf("%w: damage %d", ErrInvalidPayload, cmd.Damage)
	}
	if s.Boss == nil || s.Boss.Defeated {
		return nil, fmt.Errorf("%w: no boss to attack", ErrInvalidPayload)
	}
	s.Boss.CurrentHealth -= cmd.Damage
	if s.Boss.CurrentHealth < 1 {
		s.Boss.CurrentHealth = 1
	}
	return []Event{{Type: EvtBossDamaged, PlayerID: cmd.PlayerID, Amount: cmd.Damage}}, nil
}

// applyAttackPlayer handles spectator projectiles. Only spectators may
// damage estimating players, never the other way around.
func (s *State) applyAttackPlayer(cmd Command) ([]Event, error) {
	attacker := s.Players[cmd.PlayerID]
	if attacker.Team != TeamSpectators {
		return nil, fmt.Errorf("%w: only spectators attack players", ErrNotAuthorized)
	}
	target := s.Players[cmd.TargetID]
	if target == nil || target.Team == TeamSpectators {
		return nil, fmt.Errorf("%w: invalid target", ErrInvalidPayload)
	}
	if cmd.Damage <= 0 || cmd.Damage > maxAttackDamage {
		return nil, fmt.Errorf("%w: damage %d", ErrInvalidPayload, cmd.Damage)
	}
	return s.damagePlayer(cmd.TargetID, cmd.Damage, cmd.PlayerID), nil
}

// damagePlayer applies damage and flips the target to downed at 0 HP.
// A downed reviver loses any session they were running.
func (s *State) damagePlayer(targetID string, amount int, sourceID string) []Event {
	cs := s.ensureCombat(targetID)
	if cs.Downed {
		return nil
	}
	cs.HP -= amount
	events := []Event{{Type: EvtPlayerDamaged, PlayerID: sourceID, TargetID: targetID, Amount: amount}}
	if cs.HP <= 0 {
		cs.HP = 0
		cs.Downed = true
		events = append(events, Event{Type: EvtPlayerDowned, PlayerID: targetID})
		events = append(events, s.cancelRevivalsByReviver(targetID)...)
	}
	return events
}

func (s *State) applyReviveStart(cmd Command, now time.Time) ([]Event, error) {
	if cmd.TargetID == cmd.PlayerID {
		return nil, fmt.Errorf("%w: cannot revive yourself", ErrInvalidPayload)
	}
	target := s.Players[cmd.TargetID]
	if target == nil || target.Team == TeamSpectators {
		return nil, fmt.Errorf("%w: invalid revive target", ErrInvalidPayload)
	}
	tcs := s.Combat[cmd.TargetID]
	if tcs == nil || !tcs.Downed {
		return nil, fmt.Errorf("%w: target is not downed", ErrInvalidPayload)
	}
	if tcs.ReviverID != "" {
		return nil, fmt.Errorf("%w: target already has a reviver", ErrInvalidPayload)
	}
	for _, sess := range s.Revivals {
		if sess.ReviverID == cmd.PlayerID {
			return nil, fmt.Errorf("%w: already reviving someone", ErrInvalidPayload)
		}
	}

	s.Revivals[cmd.TargetID] = &RevivalSession{
		ReviverID:  cmd.PlayerID,
		TargetID:   cmd.TargetID,
		StartedAt:  now,
		LastTickAt: now,
	}
	tcs.ReviverID = cmd.PlayerID
	return []Event{{Type: EvtReviveStarted, PlayerID: cmd.PlayerID, TargetID: cmd.TargetID}}, nil
}

func (s *State) applyReviveCancel(cmd Command) ([]Event, error) {
	sess := s.Revivals[cmd.TargetID]
	if sess == nil {
		return nil, fmt.Errorf("%w: no revival in progress", ErrInvalidPayload)
	}
	if cmd.PlayerID != sess.ReviverID && cmd.PlayerID != sess.TargetID {
		return nil, fmt.Errorf("%w: not part of this revival", ErrNotAuthorized)
	}
	return s.cancelRevival(cmd.TargetID), nil
}

// applyReviveTick is the keep-alive. A tick landing after its window
// already lapsed cancels the session under the same rule the watchdog
// applies; the reviver must also still be within the proximity radius of
// the target's last known position. Both cancellations are normal
// outcomes, not errors.
func (s *State) applyReviveTick(cmd Command, now time.Time) ([]Event, error) {
	sess := s.Revivals[cmd.TargetID]
	if sess == nil || sess.ReviverID != cmd.PlayerID {
		return nil, fmt.Errorf("%w: no revival in progress", ErrInvalidPayload)
	}
	if now.Sub(sess.LastTickAt) > s.Tuning.ReviveKeepAlive {
		return s.cancelRevival(cmd.TargetID), nil
	}
	if s.positionDistance(sess.ReviverID, sess.TargetID) > s.Tuning.ReviveProximity {
		return s.cancelRevival(cmd.TargetID), nil
	}
	sess.LastTickAt = now
	return []Event{}, nil
}

func (s *State) positionDistance(a, b string) float64 {
	pa, pb := s.Positions[a], s.Positions[b]
	return math.Hypot(pa.X-pb.X, pa.Y-pb.Y)
}

func (s *State) cancelRevival(targetID string) []Event {
	sess := s.Revivals[targetID]
	if sess == nil {
		return nil
	}
	delete(s.Revivals, targetID)
	if cs := s.Combat[targetID]; cs != nil {
		cs.ReviverID = ""
	}
	return []Event{{Type: EvtReviveCancelled, PlayerID: sess.ReviverID, TargetID: targetID}}
}

func (s *State) cancelRevivalsByReviver(reviverID string) []Event {
	var events []Event
	for targetID, sess := range s.Revivals {
		if sess.ReviverID == reviverID {
			events = append(events, s.cancelRevival(targetID)...)
		}
	}
	return events
}

func (s *State) cancelRevivalsInvolving(playerID string) []Event {
	events := s.cancelRevivalsByReviver(playerID)
	if s.Revivals[playerID] != nil {
		events = append(events, s.cancelRevival(playerID)...)
	}
	return events
}

func (s *State) completeRevival(targetID string) []Event {
	sess := s.Revivals[targetID]
	if sess == nil {
		return nil
	}
	delete(s.Revivals, targetID)
	cs := s.ensureCombat(targetID)
	cs.Downed = false
	cs.ReviverID = ""
	cs.HP = cs.MaxHP * ReviveHPPercent / 100
	return []Event{{Type: EvtReviveCompleted, PlayerID: sess.ReviverID, TargetID: targetID}}
}

// Tick is the watchdog pass. It runs inside the room actor's select loop
// so it serializes with command handling: a tick-driven completion can
// never race a revive_cancel for the same target.
func Tick(s *State, now time.Time) []Event {
	var events []Event

	var targets []string
	for targetID := range s.Revivals {
		targets = append(targets, targetID)
	}
	for _, targetID := range targets {
		sess := s.Revivals[targetID]
		switch {
		case now.Sub(sess.StartedAt) >= s.Tuning.ReviveDuration:
			events = append(events, s.completeRevival(targetID)...)
		case now.Sub(sess.LastTickAt) > s.Tuning.ReviveKeepAlive:
			events = append(events, s.cancelRevival(targetID)...)
		}
	}

	var evicted []string
	for playerID, deadline := range s.Disconnected {
		if !now.Before(deadline) {
			evicted = append(evicted, playerID)
		}
	}
	for _, playerID := range evicted {
		events = append(events, s.RemovePlayer(playerID)...)
	}

	if s.Phase == PhaseBattle && s.Boss != nil && !s.Boss.Defeated &&
		!s.NextRingAt.IsZero() && !now.Before(s.NextRingAt) {
		events = append(events, s.spawnRingAttack(now)...)
		s.NextRingAt = now.Add(s.Tuning.RingInterval)
	}

	return events
}

// spawnRingAttack emits one seeded ring so every client renders the same
// projectile set, then applies damage server-side to alive players whose
// last advisory position falls inside the ring.
func (s *State) spawnRingAttack(now time.Time) []Event {
	seed := now.UnixNano()
	rng := rand.New(rand.NewSource(seed))
	center := Position{X: 10 + rng.Float64()*80, Y: 10 + rng.Float64()*80}

	events := []Event{{Type: EvtBossRingSpawn, Seed: seed, X: center.X, Y: center.Y}}
	for _, p := range s.nonSpectators() {
		pos, ok := s.Positions[p.ID]
		if !ok {
			continue
		}
		if math.Hypot(pos.X-center.X, pos.Y-center.Y) <= s.Tuning.RingRadius {
			events = append(events, s.damagePlayer(p.ID, s.Tuning.RingDamage, "")...)
		}
	}
	return events
}
