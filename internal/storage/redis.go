// Package storage provides the Redis implementation of session
// persistence: a point-in-time snapshot per session plus an
// append-only turn log, per the pkg/storage contract.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tavernkeep/gamemaster/pkg/state"
	"github.com/tavernkeep/gamemaster/pkg/storage"
	"github.com/tavernkeep/gamemaster/pkg/turn"
)

const (
	snapshotKeyPrefix = "session:snapshot:"
	turnsKeyPrefix    = "session:turns:"
)

// RedisStorage implements storage.Storage on Redis.
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
}

var _ storage.Storage = (*RedisStorage)(nil)

func NewRedisStorage(addr string, logger *slog.Logger) *RedisStorage {
	return &RedisStorage{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		logger: logger,
	}
}

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("failed to close redis connection", "error", err)
		return err
	}
	return nil
}

func (r *RedisStorage) SaveSnapshot(ctx context.Context, gs *state.GameState) error {
	data, err := json.Marshal(gs)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	key := snapshotKeyPrefix + gs.ID.String()
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		r.logger.Error("failed to save snapshot", "session_id", gs.ID.String(), "error", err)
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadSnapshot(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	data, err := r.client.Get(ctx, snapshotKeyPrefix+id.String()).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // not found
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var gs state.GameState
	if err := json.Unmarshal([]byte(data), &gs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &gs, nil
}

func (r *RedisStorage) AppendTurn(ctx context.Context, sessionID uuid.UUID, rec turn.TurnRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal turn record: %w", err)
	}
	key := turnsKeyPrefix + sessionID.String()
	if err := r.client.RPush(ctx, key, data).Err(); err != nil {
		r.logger.Error("failed to append turn record", "session_id", sessionID.String(), "turn", rec.Turn, "error", err)
		return fmt.Errorf("failed to append turn record: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadTurns(ctx context.Context, sessionID uuid.UUID) ([]turn.TurnRecord, error) {
	entries, err := r.client.LRange(ctx, turnsKeyPrefix+sessionID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load turn log: %w", err)
	}

	records := make([]turn.TurnRecord, 0, len(entries))
	for i, entry := range entries {
		var rec turn.TurnRecord
		if err := json.Unmarshal([]byte(entry), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn record %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *RedisStorage) ListSessions(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	iter := r.client.Scan(ctx, 0, snapshotKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw := strings.TrimPrefix(iter.Val(), snapshotKeyPrefix)
		id, err := uuid.Parse(raw)
		if err != nil {
			r.logger.Warn("skipping malformed session key", "key", iter.Val())
			continue
		}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return ids, nil
}

func (r *RedisStorage) DeleteSession(ctx context.Context, id uuid.UUID) error {
	keys := []string{snapshotKeyPrefix + id.String(), turnsKeyPrefix + id.String()}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
