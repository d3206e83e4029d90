package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS calls (
	id                TEXT PRIMARY KEY,
	agent_name        TEXT NOT NULL DEFAULT '',
	lead_name         TEXT NOT NULL DEFAULT '',
	property_address  TEXT NOT NULL DEFAULT '',
	zip               TEXT NOT NULL DEFAULT '',
	started_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	ended_at          TIMESTAMPTZ,
	final_stage       TEXT,
	appointment_set   BOOLEAN NOT NULL DEFAULT false,
	completion        DOUBLE PRECISION NOT NULL DEFAULT 0,
	objections        TEXT[] NOT NULL DEFAULT '{}',
	turns             INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS call_events (
	id           UUID PRIMARY KEY,
	call_id      TEXT NOT NULL,
	kind         TEXT NOT NULL,
	tracking_id  TEXT NOT NULL DEFAULT '',
	stage        TEXT NOT NULL DEFAULT '',
	objection    TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT '',
	value        TEXT NOT NULL DEFAULT '',
	text         TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS call_events_call_id_idx ON call_events (call_id, kind);
`

// EnsureSchema creates the tables the coach writes to.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
