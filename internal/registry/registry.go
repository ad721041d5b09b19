package registry

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/pointquest/pointquest-server/internal/engine"
	"github.com/pointquest/pointquest-server/internal/room"
)

type Msg interface{ isRegistryMsg() }

type CreateRoom struct {
	RoomName string
	Reply    chan *room.Room
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

// BindPlayer records the player -> room index entry after a successful
// join. The index is the registry's, not the room's, so lookups stay O(1)
// without asking every actor.
type BindPlayer struct {
	PlayerID string
	Code     string
}

type UnbindPlayer struct{ PlayerID string }

type GetRoomByPlayer struct {
	PlayerID string
	Reply    chan *room.Room
}

type RemoveRoom struct{ Code string }

type ShutdownRegistry struct{}

func (CreateRoom) isRegistryMsg()       {}
func (GetRoom) isRegistryMsg()          {}
func (BindPlayer) isRegistryMsg()       {}
func (UnbindPlayer) isRegistryMsg()     {}
func (GetRoomByPlayer) isRegistryMsg()  {}
func (RemoveRoom) isRegistryMsg()       {}
func (ShutdownRegistry) isRegistryMsg() {}

type Config struct {
	Tuning       engine.Tuning
	TickInterval time.Duration
	Logger       *zap.Logger
	// OnPlayerGone runs for every eviction/leave, after the index entry
	// is dropped (token revocation hooks in here).
	OnPlayerGone func(playerID string)
}

// Registry owns the set of active rooms and the player->room index. Like
// the rooms it manages, it is a single actor consuming from an inbox.
type Registry struct {
	inbox   chan Msg
	rooms   map[string]*room.Room
	players map[string]string
	cfg     Config
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRegistry(parent context.Context, cfg Config) *Registry {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	g := &Registry{
		inbox:   make(chan Msg, 64),
		rooms:   make(map[string]*room.Room),
		players: make(map[string]string),
		cfg:     cfg,
		log:     cfg.Logger.Named("registry"),
		ctx:     ctx,
		cancel:  cancel,
	}
	go g.loop()
	return g
}

func (g *Registry) Inbox() chan<- Msg { return g.inbox }

func (g *Registry) loop() {
	for {
		select {
		case <-g.ctx.Done():
			return

		case m := <-g.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				msg.Reply <- g.createRoom(msg.RoomName)

			case GetRoom:
				msg.Reply <- g.rooms[msg.Code] // may be nil

			case BindPlayer:
				g.players[msg.PlayerID] = msg.Code

			case UnbindPlayer:
				delete(g.players, msg.PlayerID)
				if g.cfg.OnPlayerGone != nil {
					g.cfg.OnPlayerGone(msg.PlayerID)
				}

			case GetRoomByPlayer:
				msg.Reply <- g.rooms[g.players[msg.PlayerID]]

			case RemoveRoom:
				delete(g.rooms, msg.Code)
				g.log.Info("room removed", zap.String("room", msg.Code))

			case ShutdownRegistry:
				for _, rm := range g.rooms {
					select {
					case rm.Inbox() <- room.Shutdown{}:
					case <-rm.Done():
					}
				}
				clear(g.rooms)
				clear(g.players)
				g.cancel()
			}
		}
	}
}

func (g *Registry) createRoom(name string) *room.Room {
	code := ""
	for {
		c, err := generateCode()
		if err != nil {
			g.log.Error("generate room code", zap.Error(err))
			return nil
		}
		if g.rooms[c] == nil {
			code = c
			break
		}
		g.log.Warn("room code collision, regenerating")
	}

	rm := room.NewRoom(g.ctx, room.Config{
		Code:         code,
		Name:         name,
		Tuning:       g.cfg.Tuning,
		TickInterval: g.cfg.TickInterval,
		Logger:       g.cfg.Logger,
		OnEmpty: func(c string) {
			select {
			case g.inbox <- RemoveRoom{Code: c}:
			case <-g.ctx.Done():
			}
		},
		OnPlayerGone: func(playerID string) {
			select {
			case g.inbox <- UnbindPlayer{PlayerID: playerID}:
			case <-g.ctx.Done():
			}
		},
	})
	g.rooms[code] = rm
	g.log.Info("room created", zap.String("room", code))
	return rm
}

func generateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}
