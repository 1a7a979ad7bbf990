// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

// Package store implements durable persistence for processing jobs, the
// embedding queue, and content embeddings on Postgres via pgx/v5.
//
// Job state transitions are expressed as conditional UPDATEs guarded by the
// current step and status, so they behave as compare-and-set operations:
// a stale or duplicate step delivery simply matches zero rows.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baifan1366/Studify-sub011/internal/config"
)

// Sentinel errors returned by store operations.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrStaleTransition indicates a guarded transition matched no rows:
	// the job has already advanced past the targeted step or reached a
	// terminal state. Callers treat this as a no-op, not a failure.
	ErrStaleTransition = errors.New("store: stale transition")
)

// Postgres is the pgx-backed store. It is safe for concurrent use.
type Postgres struct {
	pool *pgxpool.Pool
}

// New connects a pgx pool using the given database configuration.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// NewWithPool wraps an existing pool; used by tests.
func NewWithPool(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Ping checks database connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

// schema is applied in order on startup. Statements are idempotent so a
// restart against an existing database is safe.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS processing_jobs (
		id              UUID PRIMARY KEY,
		content_ref     TEXT NOT NULL,
		owner_id        UUID NOT NULL,
		current_step    TEXT NOT NULL,
		status          TEXT NOT NULL,
		progress        INT  NOT NULL DEFAULT 0,
		retry_count     INT  NOT NULL DEFAULT 0,
		max_retries     INT  NOT NULL,
		error_message   TEXT NOT NULL DEFAULT '',
		dispatch_msg_id TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at      TIMESTAMPTZ,
		completed_at    TIMESTAMPTZ,
		cancelled_at    TIMESTAMPTZ,
		next_attempt_at TIMESTAMPTZ
	)`,
	// One active job per content ref enforces idempotent create under
	// concurrent requests.
	`CREATE UNIQUE INDEX IF NOT EXISTS processing_jobs_active_content_ref
		ON processing_jobs (content_ref)
		WHERE status IN ('pending', 'processing', 'retrying')`,
	`CREATE INDEX IF NOT EXISTS processing_jobs_owner
		ON processing_jobs (owner_id, created_at DESC)`,
	// Lets the retry reclaimer find overdue scheduled retries cheaply.
	`CREATE INDEX IF NOT EXISTS processing_jobs_due_retries
		ON processing_jobs (next_attempt_at)
		WHERE status = 'retrying'`,
	`CREATE TABLE IF NOT EXISTS job_step_records (
		id               BIGSERIAL PRIMARY KEY,
		job_id           UUID NOT NULL REFERENCES processing_jobs(id) ON DELETE CASCADE,
		step_name        TEXT NOT NULL,
		status           TEXT NOT NULL,
		started_at       TIMESTAMPTZ NOT NULL,
		completed_at     TIMESTAMPTZ,
		duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		retry_count      INT NOT NULL DEFAULT 0,
		error_message    TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS job_step_records_job
		ON job_step_records (job_id, id)`,
	`CREATE TABLE IF NOT EXISTS embedding_queue (
		id             UUID NOT NULL,
		content_type   TEXT NOT NULL,
		content_id     UUID NOT NULL,
		extracted_text TEXT NOT NULL,
		content_hash   TEXT NOT NULL,
		priority       INT  NOT NULL DEFAULT 100,
		status         TEXT NOT NULL DEFAULT 'queued',
		retry_count    INT  NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at   TIMESTAMPTZ,
		PRIMARY KEY (content_type, content_id)
	)`,
	`CREATE INDEX IF NOT EXISTS embedding_queue_claim
		ON embedding_queue (priority, created_at)
		WHERE status = 'queued'`,
	`CREATE TABLE IF NOT EXISTS content_embeddings (
		content_type TEXT NOT NULL,
		content_id   UUID NOT NULL,
		vector_a     DOUBLE PRECISION[],
		vector_b     DOUBLE PRECISION[],
		content_hash TEXT NOT NULL DEFAULT '',
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (content_type, content_id)
	)`,
}

// EnsureSchema creates tables and indexes if they do not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
