package cache

import (
	"context"
	"sync"
	"time"

	clone "github.com/huandu/go-clone/generic"
	"github.com/leighmacdonald/watchdog/internal/clock"
	"github.com/leighmacdonald/watchdog/internal/store"
)

type entry struct {
	player  store.PlayerIdentity
	expires time.Time
}

// Memory is a process local player cache. Values are cloned on the way in and out so callers
// can never mutate cached identities.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	clock   clock.Clock
	players map[string]entry
}

func NewMemory(ttl time.Duration, clk clock.Clock) *Memory {
	return &Memory{ttl: ttl, clock: clk, players: map[string]entry{}}
}

func (m *Memory) Get(_ context.Context, id string) (store.PlayerIdentity, bool) {
	m.mu.RLock()
	cached, found := m.players[id]
	m.mu.RUnlock()

	if !found {
		return store.PlayerIdentity{}, false
	}

	if m.ttl > 0 && m.clock.Now().After(cached.expires) {
		m.mu.Lock()
		delete(m.players, id)
		m.mu.Unlock()

		return store.PlayerIdentity{}, false
	}

	return clone.Clone[store.PlayerIdentity](cached.player), true
}

func (m *Memory) Set(_ context.Context, player store.PlayerIdentity) {
	if player.ID == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.players[player.ID] = entry{
		player:  clone.Clone[store.PlayerIdentity](player),
		expires: m.clock.Now().Add(m.ttl),
	}
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.players)
}
