package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore keeps entries in the kv_entries table (migration 001_kv.sql).
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Get(ctx context.Context, key string) (string, int64, error) {
	var value string
	var rev int64
	err := s.pool.QueryRow(ctx,
		`SELECT value, revision FROM kv_entries WHERE key = $1`, key,
	).Scan(&value, &rev)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, ErrNotFound
	}
	if err != nil {
		return "", 0, fmt.Errorf("select kv %s: %w", key, err)
	}
	return value, rev, nil
}

func (s *PGStore) Set(ctx context.Context, key, value string) (int64, error) {
	var rev int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO kv_entries (key, value, revision) VALUES ($1, $2, 1)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, revision = kv_entries.revision + 1, updated_at = NOW()
		RETURNING revision`, key, value,
	).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("upsert kv %s: %w", key, err)
	}
	return rev, nil
}

func (s *PGStore) CompareAndSwap(ctx context.Context, key, value string, revision int64) (int64, error) {
	var row pgx.Row
	if revision == 0 {
		row = s.pool.QueryRow(ctx, `
			INSERT INTO kv_entries (key, value, revision) VALUES ($1, $2, 1)
			ON CONFLICT (key) DO NOTHING
			RETURNING revision`, key, value)
	} else {
		row = s.pool.QueryRow(ctx, `
			UPDATE kv_entries SET value = $2, revision = revision + 1, updated_at = NOW()
			WHERE key = $1 AND revision = $3
			RETURNING revision`, key, value, revision)
	}

	var rev int64
	err := row.Scan(&rev)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrRevisionMismatch
	}
	if err != nil {
		return 0, fmt.Errorf("cas kv %s: %w", key, err)
	}
	return rev, nil
}

func (s *PGStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete kv %s: %w", key, err)
	}
	return nil
}
