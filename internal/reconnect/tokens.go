package reconnect

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrStaleToken = errors.New("stale or unknown reconnect token")

// Binding ties a token to exactly one (room, player) pair.
type Binding struct {
	RoomID   string
	PlayerID string
}

// Manager issues and redeems reconnect tokens. Tokens rotate: issuing a
// new one for a player invalidates the previous, so a token captured
// before a legitimate resume cannot be replayed afterwards.
type Manager struct {
	mu       sync.Mutex
	tokens   map[string]Binding
	byPlayer map[string]string
}

func NewManager() *Manager {
	return &Manager{
		tokens:   make(map[string]Binding),
		byPlayer: make(map[string]string),
	}
}

func (m *Manager) Issue(roomID, playerID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.byPlayer[playerID]; ok {
		delete(m.tokens, old)
	}
	token := uuid.NewString()
	m.tokens[token] = Binding{RoomID: roomID, PlayerID: playerID}
	m.byPlayer[playerID] = token
	return token
}

func (m *Manager) Redeem(token string) (Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.tokens[token]
	if !ok {
		return Binding{}, ErrStaleToken
	}
	return b, nil
}

// Revoke drops a player's token, used when the grace period expires or
// the player leaves for good.
func (m *Manager) Revoke(playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token, ok := m.byPlayer[playerID]; ok {
		delete(m.tokens, token)
		delete(m.byPlayer, playerID)
	}
}
