// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/config"
	"github.com/baifan1366/Studify-sub011/internal/logging"
	"github.com/baifan1366/Studify-sub011/internal/models"
	"github.com/baifan1366/Studify-sub011/internal/store"
)

// ErrNotCancellable is returned when cancel is requested for a job that
// already reached a terminal state.
var ErrNotCancellable = errors.New("job is not cancellable")

// ErrJobNotFound is returned when the referenced job does not exist.
var ErrJobNotFound = errors.New("job not found")

// JobStore is the persistence surface the service needs.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.ProcessingJob) (*models.ProcessingJob, bool, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error)
	ListJobsForOwner(ctx context.Context, ownerID uuid.UUID, status models.JobStatus, limit, offset int) ([]*models.ProcessingJob, error)
	CancelJob(ctx context.Context, jobID uuid.UUID) error
}

// FirstStepDispatcher dispatches the first step of a new job.
type FirstStepDispatcher interface {
	DispatchFirst(ctx context.Context, jobID uuid.UUID) error
}

// Service is the job lifecycle API behind the HTTP handlers. Create and
// Cancel return immediately; all heavy work happens in dispatched steps.
type Service struct {
	store      JobStore
	dispatcher FirstStepDispatcher
	cfg        config.PipelineConfig
}

// NewService creates a pipeline service.
func NewService(jobs JobStore, dispatcher FirstStepDispatcher, cfg config.PipelineConfig) *Service {
	return &Service{
		store:      jobs,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// Create registers a processing job for the referenced content and
// dispatches its first step out of band. Creation is idempotent per
// contentRef: if a non-terminal job already exists for the same content
// it is returned instead, with created=false, and nothing is dispatched.
func (s *Service) Create(ctx context.Context, contentRef string, ownerID uuid.UUID) (*models.ProcessingJob, bool, error) {
	if _, err := ParseContentRef(contentRef); err != nil {
		return nil, false, fmt.Errorf("invalid content ref: %w", err)
	}

	job := &models.ProcessingJob{
		ID:          uuid.New(),
		ContentRef:  contentRef,
		OwnerID:     ownerID,
		CurrentStep: FirstStep(),
		Status:      models.JobStatusPending,
		MaxRetries:  s.cfg.MaxRetries,
	}

	created, wasNew, err := s.store.CreateJob(ctx, job)
	if err != nil {
		return nil, false, fmt.Errorf("create job: %w", err)
	}
	if !wasNew {
		return created, false, nil
	}

	// First dispatch runs detached: the create request must not block on
	// the configured dispatch delay or transport availability.
	go func() {
		ctx := logging.ContextWithJobID(context.Background(), created.ID.String())
		if err := s.dispatcher.DispatchFirst(ctx, created.ID); err != nil {
			logging.Ctx(ctx).Error().Err(err).
				Str("content_ref", contentRef).
				Msg("first step dispatch failed")
		}
	}()

	return created, true, nil
}

// Status returns the job with its ordered step history.
func (s *Service) Status(ctx context.Context, jobID uuid.UUID) (*models.ProcessingJob, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListForOwner returns the owner's jobs, optionally filtered by status.
func (s *Service) ListForOwner(ctx context.Context, ownerID uuid.UUID, status models.JobStatus, limit, offset int) ([]*models.ProcessingJob, error) {
	jobs, err := s.store.ListJobsForOwner(ctx, ownerID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Cancel transitions a non-terminal job to cancelled. In-flight step
// messages for the job become acked no-ops via the tombstone check, and
// long-running executors observe the flag at chunk boundaries.
func (s *Service) Cancel(ctx context.Context, jobID uuid.UUID) error {
	err := s.store.CancelJob(ctx, jobID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrJobNotFound
	case errors.Is(err, store.ErrStaleTransition):
		return ErrNotCancellable
	case err != nil:
		return fmt.Errorf("cancel job: %w", err)
	}

	logging.Ctx(ctx).Info().Str("job_id", jobID.String()).Msg("job cancelled")
	return nil
}
