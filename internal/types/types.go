package types

import "github.com/pointquest/pointquest-server/internal/engine"

// ClientMessage is the single client->server envelope. Type selects the
// operation; the other fields are read per-type and ignored otherwise.
type ClientMessage struct {
	Type string `json:"type"`

	// create_room / join_room / reconnect_with_token
	RoomName string `json:"room_name,omitempty"`
	RoomID   string `json:"room_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Token    string `json:"token,omitempty"`

	Avatar   string       `json:"avatar,omitempty"`
	Team     string       `json:"team,omitempty"`
	Tickets  []TicketItem `json:"tickets,omitempty"`
	TicketID string       `json:"ticket_id,omitempty"`
	Score    string       `json:"score,omitempty"`
	TargetID string       `json:"target_id,omitempty"`
	Damage   int          `json:"damage,omitempty"`
	X        float64      `json:"x,omitempty"`
	Y        float64      `json:"y,omitempty"`
	Jumping  bool         `json:"is_jumping,omitempty"`
	Emote    string       `json:"emote,omitempty"`

	Timer      *engine.TimerSettings      `json:"timer_settings,omitempty"`
	Jira       *engine.JiraSettings       `json:"jira_settings,omitempty"`
	Estimation *engine.EstimationSettings `json:"estimation_settings,omitempty"`
}

type TicketItem struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
}

// Server -> client message types.
const (
	MsgRoomJoined      = "room_joined"
	MsgRoomUpdated     = "room_updated"
	MsgGameError       = "game_error"
	MsgReconnected     = "reconnected"
	MsgReconnectFailed = "reconnect_failed"
)

// ServerMessage is the server->client envelope. room_updated carries the
// full authoritative snapshot; delta events ride in Event for animation
// hints; game_error goes to the offending connection only.
type ServerMessage struct {
	Type     string        `json:"type"`
	Version  int           `json:"version,omitempty"`
	Room     *engine.State `json:"room,omitempty"`
	Event    *engine.Event `json:"event,omitempty"`
	Error    string        `json:"error,omitempty"`
	PlayerID string        `json:"player_id,omitempty"`
	RoomID   string        `json:"room_id,omitempty"`
	Token    string        `json:"token,omitempty"`
}
