package store

import (
	"context"
	"sync"

	"github.com/mintkit/gameroom/internal/game"
	"github.com/mintkit/gameroom/internal/room"
)

// Memory keeps suspended bundles and completed results in process memory.
// It backs single-node deployments and every test that needs a Store.
type Memory struct {
	mu        sync.Mutex
	suspended map[string]room.SuspendedBundle
	completed map[string]game.Result
}

func NewMemory() *Memory {
	return &Memory{
		suspended: make(map[string]room.SuspendedBundle),
		completed: make(map[string]game.Result),
	}
}

func (m *Memory) SaveSuspended(ctx context.Context, bundle room.SuspendedBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended[bundle.MatchID] = bundle
	return nil
}

func (m *Memory) LoadSuspended(ctx context.Context, matchID string) (*room.SuspendedBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bundle, ok := m.suspended[matchID]
	if !ok {
		return nil, nil
	}
	return &bundle, nil
}

func (m *Memory) FinalizeCompleted(ctx context.Context, matchID string, result game.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, done := m.completed[matchID]; done {
		return nil
	}
	m.completed[matchID] = result
	delete(m.suspended, matchID)
	return nil
}

// Completed reports the recorded result for a match, if any.
func (m *Memory) Completed(matchID string) (game.Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result, ok := m.completed[matchID]
	return result, ok
}
