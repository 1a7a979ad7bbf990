// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/baifan1366/Studify-sub011/internal/models"
)

const jobColumns = `id, content_ref, owner_id, current_step, status, progress,
	retry_count, max_retries, error_message, dispatch_msg_id,
	created_at, started_at, completed_at, cancelled_at`

func scanJob(row pgx.Row) (*models.ProcessingJob, error) {
	var j models.ProcessingJob
	err := row.Scan(&j.ID, &j.ContentRef, &j.OwnerID, &j.CurrentStep, &j.Status,
		&j.ProgressPercentage, &j.RetryCount, &j.MaxRetries, &j.ErrorMessage,
		&j.DispatchMsgID, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.CancelledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}

// CreateJob inserts a new job, or returns the existing non-terminal job for
// the same content ref (idempotent create). The second return value reports
// whether a new row was inserted.
func (s *Postgres) CreateJob(ctx context.Context, job *models.ProcessingJob) (*models.ProcessingJob, bool, error) {
	existing, err := s.activeJobByContentRef(ctx, job.ContentRef)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO processing_jobs
			(id, content_ref, owner_id, current_step, status, progress, retry_count, max_retries, created_at)
		 VALUES ($1, $2, $3, $4, $5, 0, 0, $6, $7)`,
		job.ID, job.ContentRef, job.OwnerID, job.CurrentStep, job.Status, job.MaxRetries, job.CreatedAt)
	if err != nil {
		// Unique-index race: another request created the active job first.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			existing, selErr := s.activeJobByContentRef(ctx, job.ContentRef)
			if selErr != nil {
				return nil, false, selErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("insert job: %w", err)
	}
	return job, true, nil
}

func (s *Postgres) activeJobByContentRef(ctx context.Context, contentRef string) (*models.ProcessingJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs
		 WHERE content_ref = $1 AND status IN ('pending', 'processing', 'retrying')
		 LIMIT 1`, contentRef)
	return scanJob(row)
}

// GetJob returns the job with its ordered step history.
func (s *Postgres) GetJob(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error) {
	job, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT step_name, status, started_at, completed_at, duration_seconds, retry_count, error_message
		 FROM job_step_records WHERE job_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query step records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.StepRecord
		if err := rows.Scan(&r.StepName, &r.Status, &r.StartedAt, &r.CompletedAt,
			&r.DurationSeconds, &r.RetryCount, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan step record: %w", err)
		}
		job.StepHistory = append(job.StepHistory, r)
	}
	return job, rows.Err()
}

// ListJobsForOwner returns the owner's jobs newest first, optionally
// filtered by status.
func (s *Postgres) ListJobsForOwner(ctx context.Context, ownerID uuid.UUID, status models.JobStatus, limit, offset int) ([]*models.ProcessingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM processing_jobs WHERE owner_id = $1`
	args := []any{ownerID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ProcessingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SetDispatchInfo records the transport message id of the latest dispatch.
func (s *Postgres) SetDispatchInfo(ctx context.Context, jobID uuid.UUID, msgID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE processing_jobs SET dispatch_msg_id = $2 WHERE id = $1`, jobID, msgID)
	if err != nil {
		return fmt.Errorf("set dispatch info: %w", err)
	}
	return nil
}

// ScheduleRetry persists when the next attempt for a retrying job is
// due, so a process restart during the in-memory backoff wait does not
// lose the scheduled re-dispatch. A job no longer retrying matches zero
// rows, which is fine: the schedule is recovery metadata only.
func (s *Postgres) ScheduleRetry(ctx context.Context, jobID uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE processing_jobs SET next_attempt_at = $2
		 WHERE id = $1 AND status = 'retrying'`, jobID, at)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

// ListDueRetries returns retrying jobs whose scheduled attempt is at or
// before the cutoff, oldest first. The retry reclaimer uses this to
// recover retries whose in-memory backoff wait died with the process.
func (s *Postgres) ListDueRetries(ctx context.Context, cutoff time.Time, limit int) ([]*models.ProcessingJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs
		 WHERE status = 'retrying' AND next_attempt_at IS NOT NULL AND next_attempt_at <= $1
		 ORDER BY next_attempt_at ASC
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list due retries: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ProcessingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimStep marks the job processing for the given step. The guard on
// current_step and non-terminal status makes this the tombstone check:
// a message for a cancelled or already-advanced job matches zero rows and
// the caller receives ErrStaleTransition.
func (s *Postgres) ClaimStep(ctx context.Context, jobID uuid.UUID, step models.PipelineStep) (*models.ProcessingJob, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE processing_jobs
		 SET status = 'processing', started_at = COALESCE(started_at, NOW())
		 WHERE id = $1 AND current_step = $2 AND status IN ('pending', 'processing', 'retrying')
		 RETURNING `+jobColumns, jobID, step)
	job, err := scanJob(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrStaleTransition
	}
	return job, err
}

// AdvanceStep moves the job from one step to the next, resetting the retry
// counter and raising progress. Progress never decreases: GREATEST keeps it
// monotonic even under redundant applies.
func (s *Postgres) AdvanceStep(ctx context.Context, jobID uuid.UUID, from, to models.PipelineStep, progress int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE processing_jobs
		 SET current_step = $3, retry_count = 0, error_message = '',
		     progress = GREATEST(progress, $4), status = 'processing'
		 WHERE id = $1 AND current_step = $2 AND status IN ('processing', 'retrying')`,
		jobID, from, to, progress)
	if err != nil {
		return fmt.Errorf("advance step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleTransition
	}
	return nil
}

// CompleteJob marks the job completed from its final step.
func (s *Postgres) CompleteJob(ctx context.Context, jobID uuid.UUID, from models.PipelineStep) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE processing_jobs
		 SET status = 'completed', retry_count = 0, error_message = '',
		     progress = 100, completed_at = NOW()
		 WHERE id = $1 AND current_step = $2 AND status IN ('processing', 'retrying')`,
		jobID, from)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleTransition
	}
	return nil
}

// MarkRetrying increments the retry counter after a transient failure and
// returns the new count so the dispatcher can decide between re-dispatch
// and exhaustion.
func (s *Postgres) MarkRetrying(ctx context.Context, jobID uuid.UUID, step models.PipelineStep, errMsg string) (int, error) {
	var retryCount int
	err := s.pool.QueryRow(ctx,
		`UPDATE processing_jobs
		 SET status = 'retrying', retry_count = retry_count + 1, error_message = $3
		 WHERE id = $1 AND current_step = $2 AND status IN ('processing', 'retrying')
		 RETURNING retry_count`,
		jobID, step, errMsg).Scan(&retryCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrStaleTransition
	}
	if err != nil {
		return 0, fmt.Errorf("mark retrying: %w", err)
	}
	return retryCount, nil
}

// MarkFailed transitions the job to its failed terminal state, capturing
// the step error verbatim for operator visibility.
func (s *Postgres) MarkFailed(ctx context.Context, jobID uuid.UUID, step models.PipelineStep, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE processing_jobs
		 SET status = 'failed', error_message = $3, completed_at = NOW()
		 WHERE id = $1 AND current_step = $2 AND status IN ('pending', 'processing', 'retrying')`,
		jobID, step, errMsg)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleTransition
	}
	return nil
}

// CancelJob cancels a job in any non-terminal state. Returns
// ErrStaleTransition if the job already reached a terminal state.
func (s *Postgres) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE processing_jobs
		 SET status = 'cancelled', cancelled_at = NOW()
		 WHERE id = $1 AND status IN ('pending', 'processing', 'retrying')`,
		jobID)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleTransition
	}
	return nil
}

// IsCancelled reports whether the job has been cancelled. Long-running
// executors poll this at chunk boundaries to bound wasted work.
func (s *Postgres) IsCancelled(ctx context.Context, jobID uuid.UUID) (bool, error) {
	var status models.JobStatus
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM processing_jobs WHERE id = $1`, jobID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check cancelled: %w", err)
	}
	return status == models.JobStatusCancelled, nil
}

// AppendStepRecord appends one attempt to the job's ordered step history.
func (s *Postgres) AppendStepRecord(ctx context.Context, jobID uuid.UUID, rec models.StepRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_step_records
			(job_id, step_name, status, started_at, completed_at, duration_seconds, retry_count, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		jobID, rec.StepName, rec.Status, rec.StartedAt, rec.CompletedAt,
		rec.DurationSeconds, rec.RetryCount, rec.ErrorMessage)
	if err != nil {
		return fmt.Errorf("append step record: %w", err)
	}
	return nil
}
