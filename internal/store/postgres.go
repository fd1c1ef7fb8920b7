package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"staffing-board/internal/kvstore"
	"staffing-board/internal/models"
)

// Store wraps pgxpool for Postgres persistence. It implements
// kvstore.Backend over the collections table and serves the roster table.
type Store struct {
	pool *pgxpool.Pool
}

var _ kvstore.Backend = (*Store)(nil)

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Load fetches a collection document.
func (s *Store) Load(ctx context.Context, key string) (kvstore.Entry, bool, error) {
	var e kvstore.Entry
	err := s.pool.QueryRow(ctx, `SELECT data, version FROM collections WHERE key = $1`, key).Scan(&e.Data, &e.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return kvstore.Entry{}, false, nil
	}
	if err != nil {
		return kvstore.Entry{}, false, fmt.Errorf("query collection %s: %w", key, err)
	}
	return e, true, nil
}

// Save writes a collection document, checking the expected version under a
// row lock. Expecting version 0 means the row must not exist yet; a racing
// first insert loses with ErrConcurrentModification.
func (s *Store) Save(ctx context.Context, key string, data []byte, expected int64) (int64, error) {
	if expected == 0 {
		return s.insertFirst(ctx, key, data)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	var current int64
	err = tx.QueryRow(ctx, `SELECT version FROM collections WHERE key = $1 FOR UPDATE`, key).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("lock collection %s: %w", key, err)
	}
	if expected != kvstore.AnyVersion && current != expected {
		return 0, kvstore.ErrConcurrentModification
	}

	next := current + 1
	_, err = tx.Exec(ctx, `
		INSERT INTO collections (key, data, version, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, version = EXCLUDED.version, updated_at = NOW()
	`, key, data, next)
	if err != nil {
		return 0, fmt.Errorf("upsert collection %s: %w", key, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

func (s *Store) insertFirst(ctx context.Context, key string, data []byte) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO collections (key, data, version, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (key) DO NOTHING
	`, key, data)
	if err != nil {
		return 0, fmt.Errorf("insert collection %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, kvstore.ErrConcurrentModification
	}
	return 1, nil
}

// Delete removes a collection document.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM collections WHERE key = $1`, key)
	return err
}

// ListWorkers returns the candidate roster documents.
func (s *Store) ListWorkers(ctx context.Context) ([]models.Candidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, trade, pref, city, status, source, last_active_at
		FROM workers ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query workers: %w", err)
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		var c models.Candidate
		var name, trade, pref, city, status, source pgtype.Text
		var lastActive pgtype.Timestamptz
		if err := rows.Scan(&c.ID, &name, &trade, &pref, &city, &status, &source, &lastActive); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		c.Name = name.String
		c.Trade = trade.String
		c.Pref = pref.String
		c.City = city.String
		c.Status = models.CandidateStatus(status.String)
		c.Source = source.String
		if lastActive.Valid {
			c.LastSeenAt = lastActive.Time.UTC().Format(time.RFC3339)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workers: %w", err)
	}
	return out, nil
}

// WaitForWorkersChange blocks until a NOTIFY on channel arrives or ctx ends.
func (s *Store) WaitForWorkersChange(ctx context.Context, channel string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}
	_, err = conn.Conn().WaitForNotification(ctx)
	if err != nil {
		return fmt.Errorf("wait notification: %w", err)
	}
	return nil
}
