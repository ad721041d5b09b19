package room

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/pointquest/pointquest-server/internal/engine"
	"github.com/pointquest/pointquest-server/internal/types"
)

// Msg is the room actor's inbound message set. Everything that mutates a
// room, client commands and watchdog ticks alike, flows through the same
// inbox so all mutation is serialized on one goroutine.
type Msg interface{ isRoomMsg() }

// Join adds a new player. The outbox receives every broadcast addressed
// to this connection, already marshaled.
type Join struct {
	Name   string
	Outbox chan []byte
	Reply  chan JoinResult
}

type JoinResult struct {
	Player engine.Player
	Err    error
}

// Reattach rebinds a reconnecting connection to its existing player. Any
// previous live connection for the player is closed, so a token redeemed
// twice concurrently never yields two live connections.
type Reattach struct {
	PlayerID string
	Outbox   chan []byte
	Reply    chan ReattachResult
}

type ReattachResult struct {
	Player engine.Player
	Err    error
}

// Detach reports a dropped connection. Outbox identifies which
// connection dropped: a stale reader detaching after its player already
// reattached must not touch the resumed connection. The player stays in
// the room for the reconnect grace period; eviction is the watchdog's
// job.
type Detach struct {
	PlayerID string
	Outbox   chan []byte
}

// Leave removes a player immediately (explicit exit).
type Leave struct{ PlayerID string }

type FromClient struct {
	PlayerID string
	Cmd      engine.Command
}

// GetState replies with a deep copy of the room state, safe to read
// while the actor keeps running.
type GetState struct{ Reply chan View }

type Shutdown struct{}

func (Join) isRoomMsg()       {}
func (Reattach) isRoomMsg()   {}
func (Detach) isRoomMsg()     {}
func (Leave) isRoomMsg()      {}
func (FromClient) isRoomMsg() {}
func (GetState) isRoomMsg()   {}
func (Shutdown) isRoomMsg()   {}

type View struct {
	Version    int
	NumClients int
	State      engine.State
}

type Config struct {
	Code         string
	Name         string
	Tuning       engine.Tuning
	TickInterval time.Duration
	Logger       *zap.Logger
	// OnEmpty fires after the last player is gone, right before the
	// actor stops.
	OnEmpty func(code string)
	// OnPlayerGone fires for every player eviction or leave so the
	// registry index and reconnect tokens can be cleaned up.
	OnPlayerGone func(playerID string)
}

// emptyRoomTTL bounds how long a pre-created room waits for its first
// player before the watchdog reclaims it.
const emptyRoomTTL = 2 * time.Minute

type Room struct {
	inbox   chan Msg
	state   *engine.State
	version int
	clients map[string]chan []byte
	cfg     Config
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	// emptySince is set while the room has never been joined.
	emptySince time.Time
}

func NewRoom(parent context.Context, cfg Config) *Room {
	ctx, cancel := context.WithCancel(parent)
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := &Room{
		inbox:      make(chan Msg, 64),
		state:      engine.NewState(cfg.Code, cfg.Name, cfg.Tuning),
		clients:    make(map[string]chan []byte),
		cfg:        cfg,
		log:        cfg.Logger.With(zap.String("room", cfg.Code)),
		ctx:        ctx,
		cancel:     cancel,
		emptySince: time.Now(),
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the actor has stopped. Senders must select on it
// alongside every inbox send and reply receive: a message to a room that
// was reclaimed in the meantime would otherwise block forever.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

func (r *Room) Code() string { return r.cfg.Code }

func (r *Room) loop() {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case now := <-ticker.C:
			if !r.emptySince.IsZero() && now.Sub(r.emptySince) > emptyRoomTTL {
				r.log.Info("reclaiming never-joined room")
				if r.cfg.OnEmpty != nil {
					r.cfg.OnEmpty(r.cfg.Code)
				}
				r.shutdown()
				return
			}
			events := engine.Tick(r.state, now)
			if len(events) == 0 {
				break
			}
			r.handleDepartures(events)
			r.broadcastUpdate(events)
			if r.maybeDestroy() {
				return
			}

		case m := <-r.inbox:
			if r.handle(m) {
				return
			}
		}
	}
}

// handle processes one message; true means the actor is done.
func (r *Room) handle(m Msg) bool {
	now := time.Now()

	switch msg := m.(type) {
	case Join:
		player, events, err := r.state.AddPlayer(msg.Name)
		if err != nil {
			msg.Reply <- JoinResult{Err: err}
			break
		}
		r.clients[player.ID] = msg.Outbox
		r.emptySince = time.Time{}
		msg.Reply <- JoinResult{Player: *player}
		r.log.Info("player joined", zap.String("player", player.ID))
		r.broadcastUpdate(events)

	case Reattach:
		player := r.state.Players[msg.PlayerID]
		if player == nil {
			msg.Reply <- ReattachResult{Err: engine.ErrUnknownPlayer}
			break
		}
		if old, ok := r.clients[msg.PlayerID]; ok {
			close(old)
		}
		r.clients[msg.PlayerID] = msg.Outbox
		r.state.MarkReconnected(msg.PlayerID)
		msg.Reply <- ReattachResult{Player: *player}
		// Snapshot to the resumed connection only: inside the grace
		// window a reconnect is invisible to everyone else.
		r.sendTo(msg.PlayerID, types.ServerMessage{
			Type: types.MsgRoomUpdated, Version: r.version, Room: r.state,
		})
		r.log.Info("player reattached", zap.String("player", msg.PlayerID))

	case Detach:
		cur, ok := r.clients[msg.PlayerID]
		if !ok || cur != msg.Outbox {
			// A reader for an already replaced connection.
			break
		}
		close(cur)
		delete(r.clients, msg.PlayerID)
		events := r.state.MarkDisconnected(msg.PlayerID, now)
		if len(events) > 0 {
			r.broadcastUpdate(events)
		}

	case Leave:
		if ch, ok := r.clients[msg.PlayerID]; ok {
			close(ch)
			delete(r.clients, msg.PlayerID)
		}
		events := r.state.RemovePlayer(msg.PlayerID)
		if r.cfg.OnPlayerGone != nil {
			r.cfg.OnPlayerGone(msg.PlayerID)
		}
		r.broadcastUpdate(events)
		if r.maybeDestroy() {
			return true
		}

	case FromClient:
		events, err := engine.Apply(r.state, msg.Cmd, now)
		if err != nil {
			// Rejections go to the caller only, never broadcast.
			r.sendTo(msg.PlayerID, types.ServerMessage{Type: types.MsgGameError, Error: err.Error()})
			break
		}
		r.broadcastUpdate(events)

	case GetState:
		msg.Reply <- View{Version: r.version, NumClients: len(r.clients), State: *r.state.Clone()}

	case Shutdown:
		r.shutdown()
		return true
	}
	return false
}

// handleDepartures runs registry/token cleanup for watchdog evictions.
func (r *Room) handleDepartures(events []engine.Event) {
	for _, ev := range events {
		if ev.Type != engine.EvtPlayerLeft {
			continue
		}
		if ch, ok := r.clients[ev.PlayerID]; ok {
			close(ch)
			delete(r.clients, ev.PlayerID)
		}
		if r.cfg.OnPlayerGone != nil {
			r.cfg.OnPlayerGone(ev.PlayerID)
		}
		r.log.Info("player evicted after grace period", zap.String("player", ev.PlayerID))
	}
}

func (r *Room) maybeDestroy() bool {
	if len(r.state.Players) > 0 {
		return false
	}
	r.log.Info("room empty, destroying")
	if r.cfg.OnEmpty != nil {
		r.cfg.OnEmpty(r.cfg.Code)
	}
	r.shutdown()
	return true
}

// broadcastUpdate pushes the authoritative snapshot to every connection,
// then the delta events as animation hints.
func (r *Room) broadcastUpdate(events []engine.Event) {
	r.version++
	r.sendAll(types.ServerMessage{Type: types.MsgRoomUpdated, Version: r.version, Room: r.state})
	for i := range events {
		ev := events[i]
		r.sendAll(types.ServerMessage{Type: string(ev.Type), Event: &ev})
	}
}

func (r *Room) sendAll(msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal broadcast", zap.Error(err))
		return
	}
	var slow []string
	for id, ch := range r.clients {
		select {
		case ch <- payload:
		default:
			// Client is slow/full: drop the connection, keep the
			// player for the grace period.
			slow = append(slow, id)
		}
	}
	for _, id := range slow {
		close(r.clients[id])
		delete(r.clients, id)
		r.state.MarkDisconnected(id, time.Now())
		r.log.Warn("dropped slow client", zap.String("player", id))
	}
}

func (r *Room) sendTo(playerID string, msg types.ServerMessage) {
	ch, ok := r.clients[playerID]
	if !ok {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case ch <- payload:
	default:
	}
}

func (r *Room) shutdown() {
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
}
