package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tavernkeep/gamemaster/pkg/state"
	"github.com/tavernkeep/gamemaster/pkg/turn"
)

// Mock is an in-memory Storage for tests and offline play.
type Mock struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]*state.GameState
	turns     map[uuid.UUID][]turn.TurnRecord

	// FailWith, when set, makes every operation return this error.
	FailWith error
}

var _ Storage = (*Mock)(nil)

func NewMock() *Mock {
	return &Mock{
		snapshots: make(map[uuid.UUID]*state.GameState),
		turns:     make(map[uuid.UUID][]turn.TurnRecord),
	}
}

func (m *Mock) Ping(ctx context.Context) error { return m.FailWith }

func (m *Mock) Close() error { return nil }

func (m *Mock) SaveSnapshot(ctx context.Context, gs *state.GameState) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[gs.ID] = gs.Clone()
	return nil
}

func (m *Mock) LoadSnapshot(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	gs, ok := m.snapshots[id]
	if !ok {
		return nil, nil
	}
	return gs.Clone(), nil
}

func (m *Mock) AppendTurn(ctx context.Context, sessionID uuid.UUID, rec turn.TurnRecord) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.turns[sessionID]
	if len(existing) > 0 && existing[len(existing)-1].Turn >= rec.Turn {
		return fmt.Errorf("turn %d is not after last logged turn %d", rec.Turn, existing[len(existing)-1].Turn)
	}
	m.turns[sessionID] = append(existing, rec)
	return nil
}

func (m *Mock) LoadTurns(ctx context.Context, sessionID uuid.UUID) ([]turn.TurnRecord, error) {
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]turn.TurnRecord(nil), m.turns[sessionID]...), nil
}

func (m *Mock) ListSessions(ctx context.Context) ([]uuid.UUID, error) {
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(m.snapshots))
	for id := range m.snapshots {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *Mock) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, id)
	delete(m.turns, id)
	return nil
}
