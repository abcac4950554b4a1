// Package storage defines session persistence: a point-in-time
// GameState snapshot plus an append-only turn log, keyed by session
// id.
package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/tavernkeep/gamemaster/pkg/state"
	"github.com/tavernkeep/gamemaster/pkg/turn"
)

// Storage persists sessions. Implementations must be safe for
// concurrent use. The snapshot/append pair satisfies turn.Recorder.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Snapshot operations
	SaveSnapshot(ctx context.Context, gs *state.GameState) error
	LoadSnapshot(ctx context.Context, id uuid.UUID) (*state.GameState, error)

	// Turn log operations. The log is append-only; records are never
	// rewritten.
	AppendTurn(ctx context.Context, sessionID uuid.UUID, rec turn.TurnRecord) error
	LoadTurns(ctx context.Context, sessionID uuid.UUID) ([]turn.TurnRecord, error)

	// Session management
	ListSessions(ctx context.Context) ([]uuid.UUID, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
}
