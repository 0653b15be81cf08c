package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStorage persists thread states as JSONB rows in the
// thread_states table. The upsert replaces the whole record, keeping
// each save all-or-nothing.
type PostgresStorage struct {
	db pgQuerier
}

// NewPostgresStorage builds a Postgres-backed storage over the pool.
func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	if pool == nil {
		panic("state: pgx pool cannot be nil")
	}
	return &PostgresStorage{db: pool}
}

func newPostgresStorageWithQuerier(db pgQuerier) *PostgresStorage {
	if db == nil {
		panic("state: querier cannot be nil")
	}
	return &PostgresStorage{db: db}
}

func (s *PostgresStorage) Load(ctx context.Context, key ThreadKey) (*ThreadState, error) {
	var record []byte
	err := s.db.QueryRow(ctx, `
		SELECT record FROM thread_states
		WHERE channel_id = $1 AND thread_ts = $2
	`, key.ChannelID, key.ThreadTS).Scan(&record)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrThreadNotFound
		}
		return nil, fmt.Errorf("state: load thread row: %w", err)
	}

	var ts ThreadState
	if err := json.Unmarshal(record, &ts); err != nil {
		return nil, fmt.Errorf("state: decode thread row: %w", err)
	}
	return &ts, nil
}

func (s *PostgresStorage) Save(ctx context.Context, ts *ThreadState) error {
	if ts == nil {
		return errors.New("state: thread state cannot be nil")
	}
	record, err := json.Marshal(ts)
	if err != nil {
		return fmt.Errorf("state: encode thread row: %w", err)
	}

	if _, err := s.db.Exec(ctx, `
		INSERT INTO thread_states (channel_id, thread_ts, state, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (channel_id, thread_ts)
		DO UPDATE SET state = EXCLUDED.state,
		              record = EXCLUDED.record,
		              updated_at = EXCLUDED.updated_at
	`, ts.ChannelID, ts.ThreadTS, string(ts.Current), record, ts.CreatedAt, ts.UpdatedAt); err != nil {
		return fmt.Errorf("state: upsert thread row: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Delete(ctx context.Context, key ThreadKey) error {
	if _, err := s.db.Exec(ctx, `
		DELETE FROM thread_states WHERE channel_id = $1 AND thread_ts = $2
	`, key.ChannelID, key.ThreadTS); err != nil {
		return fmt.Errorf("state: delete thread row: %w", err)
	}
	return nil
}
