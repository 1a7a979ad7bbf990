// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package pipeline

import (
	"context"
	"time"

	"github.com/baifan1366/Studify-sub011/internal/logging"
	"github.com/baifan1366/Studify-sub011/internal/models"
)

// reclaimBatchSize caps how many overdue retries one sweep re-dispatches.
const reclaimBatchSize = 100

// ReclaimStore is the persistence surface the retry reclaimer needs.
type ReclaimStore interface {
	ListDueRetries(ctx context.Context, cutoff time.Time, limit int) ([]*models.ProcessingJob, error)
}

// RetryReclaimer recovers scheduled retries whose in-memory backoff wait
// died with the process. It periodically re-dispatches retrying jobs
// whose persisted due time passed more than one sweep interval ago; the
// grace keeps it off the heels of a live backoff goroutine, and the
// deterministic message id deduplicates the publish if both survive.
//
// It runs as a service under the supervisor tree.
type RetryReclaimer struct {
	store      ReclaimStore
	dispatcher StepDispatcher
	interval   time.Duration
}

// NewRetryReclaimer creates a reclaimer sweeping at the given interval.
func NewRetryReclaimer(store ReclaimStore, dispatcher StepDispatcher, interval time.Duration) *RetryReclaimer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &RetryReclaimer{
		store:      store,
		dispatcher: dispatcher,
		interval:   interval,
	}
}

// Serve implements suture.Service.
func (r *RetryReclaimer) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logging.Ctx(ctx).Warn().Err(err).Msg("retry reclaim sweep failed")
			}
		}
	}
}

// sweep re-dispatches every overdue scheduled retry once.
func (r *RetryReclaimer) sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.interval)
	jobs, err := r.store.ListDueRetries(ctx, cutoff, reclaimBatchSize)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		jobCtx := logging.ContextWithJobID(ctx, job.ID.String())
		logging.Ctx(jobCtx).Info().
			Str("step", string(job.CurrentStep)).
			Int("attempt", job.RetryCount).
			Msg("reclaiming overdue retry")
		if err := r.dispatcher.Dispatch(jobCtx, job.ID, job.CurrentStep, job.RetryCount); err != nil {
			logging.Ctx(jobCtx).Error().Err(err).
				Str("step", string(job.CurrentStep)).
				Msg("failed to reclaim retry")
		}
	}
	return nil
}

func (r *RetryReclaimer) String() string {
	return "retry-reclaimer"
}
