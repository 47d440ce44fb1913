package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the result table. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS analysis_results (
  fingerprint VARCHAR(255) PRIMARY KEY,
  envelope    JSONB NOT NULL,
  expires_at  TIMESTAMPTZ NOT NULL,
  created_at  TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_analysis_results_expires ON analysis_results(expires_at);
`

// PostgresStore relies on the primary key plus ON CONFLICT DO NOTHING for
// first-write-wins.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a pool and pings the database.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connCtx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies Schema.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `
		SELECT envelope
		FROM analysis_results
		WHERE fingerprint = $1 AND expires_at > NOW()
	`
	var data []byte
	err := p.pool.QueryRow(ctx, query, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres query failed: %w", err)
	}
	return data, nil
}

func (p *PostgresStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	const query = `
		INSERT INTO analysis_results (fingerprint, envelope, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (fingerprint) DO NOTHING
	`
	if _, err := p.pool.Exec(ctx, query, key, data, time.Now().Add(ttl)); err != nil {
		return fmt.Errorf("postgres insert failed: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

// CleanupExpired deletes expired rows and returns how many were removed.
func (p *PostgresStore) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM analysis_results WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("cleanup failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of live rows.
func (p *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM analysis_results WHERE expires_at > NOW()`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return n, nil
}
