package engine

type EventType string

const (
	EvtPlayerJoined       EventType = "player_joined"
	EvtPlayerLeft         EventType = "player_left"
	EvtPlayerDisconnected EventType = "player_disconnected"
	EvtHostChanged        EventType = "host_changed"

	EvtAvatarSelected EventType = "avatar_selected"
	EvtTeamChanged    EventType = "team_changed"
	EvtPhaseChanged   EventType = "phase_changed"

	EvtScoreSubmitted EventType = "score_submitted"
	EvtTicketClosed   EventType = "ticket_closed"

	EvtBossSpawned   EventType = "boss_spawned"
	EvtBossDamaged   EventType = "boss_damaged"
	EvtBossDefeated  EventType = "boss_defeated"
	EvtBossRingSpawn EventType = "boss_ring_spawn"

	EvtPlayerDamaged EventType = "player_damaged"
	EvtPlayerDowned  EventType = "player_downed"

	EvtReviveStarted   EventType = "revive_started"
	EvtReviveCancelled EventType = "revive_cancelled"
	EvtReviveCompleted EventType = "revive_completed"

	EvtPlayerMoved EventType = "player_moved"
	EvtPlayerJump  EventType = "player_jump"
	EvtEmote       EventType = "emote"
)

// Event is a broadcast hint layered on top of the room_updated snapshot.
// One flat shape keeps fan-out mechanical; unused fields stay zero.
type Event struct {
	Type     EventType `json:"type"`
	PlayerID string    `json:"player_id,omitempty"`
	TargetID string    `json:"target_id,omitempty"`
	Team     Team      `json:"team,omitempty"`
	Phase    GamePhase `json:"phase,omitempty"`
	Value    string    `json:"value,omitempty"`
	Amount   int       `json:"amount,omitempty"`
	Seed     int64     `json:"seed,omitempty"`
	X        float64   `json:"x,omitempty"`
	Y        float64   `json:"y,omitempty"`
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
