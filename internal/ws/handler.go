package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/pointquest/pointquest-server/internal/engine"
	"github.com/pointquest/pointquest-server/internal/reconnect"
	"github.com/pointquest/pointquest-server/internal/registry"
	"github.com/pointquest/pointquest-server/internal/room"
	"github.com/pointquest/pointquest-server/internal/types"
)

const (
	helloTimeout = 10 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 3 * time.Second
	outboxSize   = 32
)

// Handler is the transport adapter: it resolves a connection to a player
// and room, then mechanically shuttles commands in and broadcasts out.
// No game rules live here.
func Handler(reg *registry.Registry, tokens *reconnect.Manager, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// The first message must establish identity.
		hello, err := readMessage(r.Context(), conn, helloTimeout)
		if err != nil {
			return
		}

		out := make(chan []byte, outboxSize)
		var rm *room.Room
		var playerID string

		switch hello.Type {
		case "create_room":
			rm, playerID = createAndJoin(r.Context(), conn, reg, tokens, hello, out)
		case "join_room":
			rm, playerID = joinExisting(r.Context(), conn, reg, tokens, hello, out)
		case "reconnect_with_token":
			rm, playerID = resumeSession(r.Context(), conn, reg, tokens, hello, out)
		default:
			writeDirect(r.Context(), conn, types.ServerMessage{
				Type: types.MsgGameError, Error: "expected create_room, join_room or reconnect_with_token",
			})
			return
		}
		if rm == nil {
			return
		}

		log.Info("connection bound",
			zap.String("room", rm.Code()), zap.String("player", playerID))

		// Writer goroutine: drains the outbox until the room closes it.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for payload := range out {
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// Reader loop. A read error starts the grace period rather than
		// evicting the player.
		for {
			cm, err := readMessage(r.Context(), conn, readTimeout)
			if err != nil {
				send(rm, room.Detach{PlayerID: playerID, Outbox: out})
				return
			}

			if cm.Type == "leave_room" {
				send(rm, room.Leave{PlayerID: playerID})
				tokens.Revoke(playerID)
				return
			}

			cmd, ok := toEngineCommand(cm)
			if !ok {
				writeDirect(r.Context(), conn, types.ServerMessage{
					Type: types.MsgGameError, Error: "unknown message type",
				})
				continue
			}
			cmd.PlayerID = playerID
			if !send(rm, room.FromClient{PlayerID: playerID, Cmd: cmd}) {
				return
			}
		}
	}
}

func createAndJoin(ctx context.Context, conn *websocket.Conn, reg *registry.Registry,
	tokens *reconnect.Manager, hello types.ClientMessage, out chan []byte) (*room.Room, string) {

	reply := make(chan *room.Room, 1)
	reg.Inbox() <- registry.CreateRoom{RoomName: hello.RoomName, Reply: reply}
	rm := <-reply
	if rm == nil {
		writeDirect(ctx, conn, types.ServerMessage{Type: types.MsgGameError, Error: "failed to create room"})
		return nil, ""
	}
	return completeJoin(ctx, conn, reg, tokens, rm, hello.Name, out)
}

func joinExisting(ctx context.Context, conn *websocket.Conn, reg *registry.Registry,
	tokens *reconnect.Manager, hello types.ClientMessage, out chan []byte) (*room.Room, string) {

	reply := make(chan *room.Room, 1)
	reg.Inbox() <- registry.GetRoom{Code: hello.RoomID, Reply: reply}
	rm := <-reply
	if rm == nil {
		writeDirect(ctx, conn, types.ServerMessage{Type: types.MsgGameError, Error: "room not found"})
		return nil, ""
	}
	return completeJoin(ctx, conn, reg, tokens, rm, hello.Name, out)
}

func completeJoin(ctx context.Context, conn *websocket.Conn, reg *registry.Registry,
	tokens *reconnect.Manager, rm *room.Room, name string, out chan []byte) (*room.Room, string) {

	reply := make(chan room.JoinResult, 1)
	if !send(rm, room.Join{Name: name, Outbox: out, Reply: reply}) {
		writeDirect(ctx, conn, types.ServerMessage{Type: types.MsgGameError, Error: "room is closed"})
		return nil, ""
	}
	res, ok := await(rm, reply)
	if !ok {
		writeDirect(ctx, conn, types.ServerMessage{Type: types.MsgGameError, Error: "room is closed"})
		return nil, ""
	}
	if res.Err != nil {
		writeDirect(ctx, conn, types.ServerMessage{Type: types.MsgGameError, Error: res.Err.Error()})
		return nil, ""
	}

	token := tokens.Issue(rm.Code(), res.Player.ID)
	reg.Inbox() <- registry.BindPlayer{PlayerID: res.Player.ID, Code: rm.Code()}

	enqueue(out, types.ServerMessage{
		Type:     types.MsgRoomJoined,
		RoomID:   rm.Code(),
		PlayerID: res.Player.ID,
		Token:    token,
	})
	return rm, res.Player.ID
}

func resumeSession(ctx context.Context, conn *websocket.Conn, reg *registry.Registry,
	tokens *reconnect.Manager, hello types.ClientMessage, out chan []byte) (*room.Room, string) {

	fail := func(reason string) (*room.Room, string) {
		writeDirect(ctx, conn, types.ServerMessage{Type: types.MsgReconnectFailed, Error: reason})
		return nil, ""
	}

	binding, err := tokens.Redeem(hello.Token)
	if err != nil {
		return fail("stale token")
	}

	reply := make(chan *room.Room, 1)
	reg.Inbox() <- registry.GetRoom{Code: binding.RoomID, Reply: reply}
	rm := <-reply
	if rm == nil {
		return fail("room no longer exists")
	}

	res := make(chan room.ReattachResult, 1)
	if !send(rm, room.Reattach{PlayerID: binding.PlayerID, Outbox: out, Reply: res}) {
		return fail("room no longer exists")
	}
	att, ok := await(rm, res)
	if !ok {
		return fail("room no longer exists")
	}
	if att.Err != nil {
		return fail("player no longer in room")
	}

	// Rotate the token on every successful sync.
	token := tokens.Issue(binding.RoomID, binding.PlayerID)
	enqueue(out, types.ServerMessage{
		Type:     types.MsgReconnected,
		RoomID:   binding.RoomID,
		PlayerID: binding.PlayerID,
		Token:    token,
	})
	return rm, binding.PlayerID
}

// send delivers into a room inbox unless the actor already stopped.
func send(rm *room.Room, m room.Msg) bool {
	select {
	case rm.Inbox() <- m:
		return true
	case <-rm.Done():
		return false
	}
}

// await reads a reply, tolerating the actor answering right before it
// stops: the buffered reply is drained even when Done fires first.
func await[T any](rm *room.Room, reply chan T) (T, bool) {
	select {
	case v := <-reply:
		return v, true
	case <-rm.Done():
		select {
		case v := <-reply:
			return v, true
		default:
			var zero T
			return zero, false
		}
	}
}

func readMessage(parent context.Context, conn *websocket.Conn, timeout time.Duration) (types.ClientMessage, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	var cm types.ClientMessage
	_, data, err := conn.Read(ctx)
	if err != nil {
		return cm, err
	}
	if err := json.Unmarshal(data, &cm); err != nil {
		return cm, err
	}
	return cm, nil
}

func writeDirect(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}

func enqueue(out chan []byte, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case out <- payload:
	default:
	}
}

// toEngineCommand is the mechanical wire->command table. Validation of
// values happens in the engine, not here.
func toEngineCommand(m types.ClientMessage) (engine.Command, bool) {
	switch m.Type {
	case "select_avatar":
		return engine.Command{Type: engine.CmdSelectAvatar, Avatar: m.Avatar}, true
	case "change_own_team":
		return engine.Command{Type: engine.CmdChangeOwnTeam, Team: engine.Team(m.Team)}, true
	case "add_tickets":
		tickets := make([]engine.Ticket, 0, len(m.Tickets))
		for _, t := range m.Tickets {
			tickets = append(tickets, engine.Ticket{ID: t.ID, Title: t.Title})
		}
		return engine.Command{Type: engine.CmdAddTickets, Tickets: tickets}, true
	case "remove_ticket":
		return engine.Command{Type: engine.CmdRemoveTicket, TicketID: m.TicketID}, true
	case "start_battle":
		return engine.Command{Type: engine.CmdStartBattle}, true
	case "submit_score":
		return engine.Command{Type: engine.CmdSubmitScore, Score: m.Score}, true
	case "update_discussion_vote":
		return engine.Command{Type: engine.CmdUpdateDiscussionVote, Score: m.Score}, true
	case "force_reveal":
		return engine.Command{Type: engine.CmdForceReveal}, true
	case "proceed_next_level":
		return engine.Command{Type: engine.CmdProceedNextLevel}, true
	case "abandon_quest":
		return engine.Command{Type: engine.CmdAbandonQuest}, true
	case "attack_boss":
		return engine.Command{Type: engine.CmdAttackBoss, Damage: m.Damage}, true
	case "attack_player":
		return engine.Command{Type: engine.CmdAttackPlayer, TargetID: m.TargetID, Damage: m.Damage}, true
	case "revive_start":
		return engine.Command{Type: engine.CmdReviveStart, TargetID: m.TargetID}, true
	case "revive_cancel":
		return engine.Command{Type: engine.CmdReviveCancel, TargetID: m.TargetID}, true
	case "revive_tick":
		return engine.Command{Type: engine.CmdReviveTick, TargetID: m.TargetID}, true
	case "player_pos":
		return engine.Command{Type: engine.CmdPlayerPos, X: m.X, Y: m.Y}, true
	case "player_jump":
		return engine.Command{Type: engine.CmdPlayerJump, Jumping: m.Jumping}, true
	case "send_emote":
		return engine.Command{Type: engine.CmdSendEmote, Emote: m.Emote}, true
	case "update_timer_settings":
		return engine.Command{Type: engine.CmdUpdateTimerSettings, Timer: m.Timer}, true
	case "update_jira_settings":
		return engine.Command{Type: engine.CmdUpdateJiraSettings, Jira: m.Jira}, true
	case "update_estimation_settings":
		return engine.Command{Type: engine.CmdUpdateEstimationSettings, Estimation: m.Estimation}, true
	default:
		return engine.Command{}, false
	}
}
