// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/logging"
	"github.com/baifan1366/Studify-sub011/internal/metrics"
	"github.com/baifan1366/Studify-sub011/internal/models"
	"github.com/baifan1366/Studify-sub011/internal/store"
	"github.com/baifan1366/Studify-sub011/internal/transport"
)

// Executor performs the work of one pipeline step. Implementations must
// be idempotent: the transport delivers at least once, and a crashed
// instance's work may be repeated. Errors should be classified with
// Transient or Permanent; unclassified errors count as transient.
type Executor interface {
	Step() models.PipelineStep
	Execute(ctx context.Context, job *models.ProcessingJob) error
}

// RunnerStore is the persistence surface step execution needs. Every
// transition is a compare-and-set against the step the message targets.
type RunnerStore interface {
	ClaimStep(ctx context.Context, jobID uuid.UUID, step models.PipelineStep) (*models.ProcessingJob, error)
	AdvanceStep(ctx context.Context, jobID uuid.UUID, from, to models.PipelineStep, progress int) error
	CompleteJob(ctx context.Context, jobID uuid.UUID, from models.PipelineStep) error
	MarkRetrying(ctx context.Context, jobID uuid.UUID, step models.PipelineStep, errMsg string) (int, error)
	MarkFailed(ctx context.Context, jobID uuid.UUID, step models.PipelineStep, errMsg string) error
	AppendStepRecord(ctx context.Context, jobID uuid.UUID, rec models.StepRecord) error
}

// StepDispatcher is the dispatch surface the runner needs.
type StepDispatcher interface {
	Dispatch(ctx context.Context, jobID uuid.UUID, step models.PipelineStep, attempt int) error
	Redispatch(ctx context.Context, jobID uuid.UUID, step models.PipelineStep, attempt int) error
}

// Runner consumes step-execution messages and drives jobs through the
// pipeline. One Runner handles all step topics; the executor registry
// maps each topic to its implementation.
type Runner struct {
	store       RunnerStore
	signer      *transport.Signer
	dispatcher  StepDispatcher
	executors   map[models.PipelineStep]Executor
	stepTimeout time.Duration
	notifier    Notifier
}

// NewRunner creates a runner over the given executors.
func NewRunner(st RunnerStore, signer *transport.Signer, dispatcher StepDispatcher, stepTimeout time.Duration, executors ...Executor) *Runner {
	m := make(map[models.PipelineStep]Executor, len(executors))
	for _, e := range executors {
		m[e.Step()] = e
	}
	return &Runner{
		store:       st,
		signer:      signer,
		dispatcher:  dispatcher,
		executors:   m,
		stepTimeout: stepTimeout,
	}
}

// SetNotifier attaches an optional outcome notifier. A nil runner
// notifier is fine; terminal transitions then go unannounced.
func (r *Runner) SetNotifier(n Notifier) {
	r.notifier = n
}

// Register adds one consumer handler per registered step topic.
func (r *Runner) Register(router *transport.Router, subscriber message.Subscriber) {
	for step := range r.executors {
		topic := transport.StepTopic(string(step))
		router.AddConsumerHandler(
			"step-"+string(step),
			topic,
			subscriber,
			r.Handle,
		)
	}
}

// Handle processes one step-execution message.
//
// Returning nil acks the message; an error nacks it and lets the router
// retry. The rule: business outcomes (success, permanent failure,
// exhausted retries, stale delivery, bad signature) ack, because
// redelivery cannot change them. Only infrastructure failures (store
// unreachable) propagate as errors.
func (r *Runner) Handle(msg *message.Message) error {
	stepMsg, err := transport.UnmarshalStepMessage(msg.Payload)
	if err != nil {
		logging.Warn().Err(err).
			Str("message_uuid", msg.UUID).
			Msg("dropping malformed step message")
		return nil
	}

	ctx := logging.ContextWithJobID(msg.Context(), stepMsg.JobID.String())
	if reqID := msg.Metadata.Get(transport.RequestIDHeader); reqID != "" {
		ctx = logging.ContextWithRequestID(ctx, reqID)
	}
	log := logging.Ctx(ctx)

	if err := r.signer.Verify(msg.Metadata.Get(transport.SignatureHeader), stepMsg.JobID, stepMsg.Step); err != nil {
		metrics.TransportSignatureRejections.Inc()
		log.Warn().Err(err).
			Str("step", string(stepMsg.Step)).
			Msg("dropping step message with invalid signature")
		return nil
	}

	// Tombstone check: claim the exact step this message targets. A
	// cancelled, failed, or already-advanced job matches nothing and the
	// delivery becomes a no-op.
	job, err := r.store.ClaimStep(ctx, stepMsg.JobID, stepMsg.Step)
	if errors.Is(err, store.ErrStaleTransition) {
		metrics.PipelineStaleDeliveries.Inc()
		log.Debug().
			Str("step", string(stepMsg.Step)).
			Msg("stale step delivery ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim step: %w", err)
	}

	return r.execute(ctx, job, stepMsg.Step)
}

func (r *Runner) execute(ctx context.Context, job *models.ProcessingJob, step models.PipelineStep) error {
	exec, ok := r.executors[step]
	if !ok {
		// Registry bug, not a content problem. Fail the job so it does
		// not sit in processing forever.
		return r.failJob(ctx, job, step, time.Now().UTC(), fmt.Errorf("no executor registered for step %s", step))
	}

	execCtx := ctx
	if r.stepTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.stepTimeout)
		defer cancel()
	}

	started := time.Now().UTC()
	execErr := exec.Execute(execCtx, job)
	duration := time.Since(started)

	switch {
	case execErr == nil:
		metrics.RecordStepExecution(string(step), "success", duration)
		return r.succeed(ctx, job, step, started, duration)

	case IsPermanent(execErr):
		metrics.RecordStepExecution(string(step), "permanent_failure", duration)
		return r.failJob(ctx, job, step, started, execErr)

	default:
		metrics.RecordStepExecution(string(step), "transient_failure", duration)
		return r.retryOrFail(ctx, job, step, started, execErr)
	}
}

// succeed records the attempt, advances the job to the next step (or
// completes it), and dispatches the follow-up.
func (r *Runner) succeed(ctx context.Context, job *models.ProcessingJob, step models.PipelineStep, started time.Time, duration time.Duration) error {
	r.record(ctx, job, step, started, duration, models.StepStatusSucceeded, "")

	next, hasNext := NextStep(step)
	if !hasNext {
		err := r.store.CompleteJob(ctx, job.ID, step)
		if errors.Is(err, store.ErrStaleTransition) {
			// Concurrent cancel won the terminal transition; the job is
			// not completed and must not be announced as such.
			return nil
		}
		if err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
		logging.Ctx(ctx).Info().Str("step", string(step)).Msg("pipeline completed")
		if r.notifier != nil {
			r.notifier.NotifyJobCompleted(ctx, job)
		}
		return nil
	}

	err := r.store.AdvanceStep(ctx, job.ID, step, next, ProgressAfter(step))
	if errors.Is(err, store.ErrStaleTransition) {
		// Concurrent cancel or duplicate advance; either way the next
		// dispatch would be dropped by the tombstone check.
		return nil
	}
	if err != nil {
		return fmt.Errorf("advance step: %w", err)
	}

	// The message id is deterministic per (job, step, attempt), so the
	// bounded retry here cannot double-dispatch.
	dispatch := func() error {
		return r.dispatcher.Dispatch(ctx, job.ID, next, 0)
	}
	if err := backoff.Retry(dispatch, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)); err != nil {
		logging.Ctx(ctx).Error().Err(err).
			Str("next_step", string(next)).
			Msg("failed to dispatch next step; job requires manual re-dispatch")
	}
	return nil
}

// retryOrFail consumes one unit of the retry budget and either schedules
// a backoff re-dispatch or fails the job once the budget is exhausted.
func (r *Runner) retryOrFail(ctx context.Context, job *models.ProcessingJob, step models.PipelineStep, started time.Time, execErr error) error {
	retryCount, err := r.store.MarkRetrying(ctx, job.ID, step, execErr.Error())
	if errors.Is(err, store.ErrStaleTransition) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark retrying: %w", err)
	}

	r.record(ctx, job, step, started, time.Since(started), models.StepStatusFailed, execErr.Error())

	if retryCount > job.MaxRetries {
		err := r.store.MarkFailed(ctx, job.ID, step, execErr.Error())
		if errors.Is(err, store.ErrStaleTransition) {
			// Concurrent cancel took the terminal transition instead.
			return nil
		}
		if err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		logging.Ctx(ctx).Warn().Err(execErr).
			Str("step", string(step)).
			Int("retry_count", retryCount).
			Msg("retry budget exhausted, failing job")
		if r.notifier != nil {
			r.notifier.NotifyJobFailed(ctx, job, execErr.Error())
		}
		return nil
	}

	metrics.PipelineStepRetries.WithLabelValues(string(step)).Inc()

	// The backoff sleep must not hold the consumer slot, so re-dispatch
	// runs detached.
	go func() {
		ctx := logging.ContextWithJobID(context.Background(), job.ID.String())
		if err := r.dispatcher.Redispatch(ctx, job.ID, step, retryCount); err != nil {
			logging.Ctx(ctx).Error().Err(err).
				Str("step", string(step)).
				Msg("backoff re-dispatch failed")
		}
	}()
	return nil
}

// failJob transitions the job to failed with the captured error.
func (r *Runner) failJob(ctx context.Context, job *models.ProcessingJob, step models.PipelineStep, started time.Time, execErr error) error {
	r.record(ctx, job, step, started, time.Since(started), models.StepStatusFailed, execErr.Error())

	err := r.store.MarkFailed(ctx, job.ID, step, execErr.Error())
	if errors.Is(err, store.ErrStaleTransition) {
		// A concurrent cancel already ended the job; it is cancelled,
		// not failed, so there is nothing to announce.
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	logging.Ctx(ctx).Warn().Err(execErr).
		Str("step", string(step)).
		Msg("job failed permanently")
	if r.notifier != nil {
		r.notifier.NotifyJobFailed(ctx, job, execErr.Error())
	}
	return nil
}

// record appends one attempt to the job's step history. History is
// observability data; its write never fails the attempt.
func (r *Runner) record(ctx context.Context, job *models.ProcessingJob, step models.PipelineStep, started time.Time, duration time.Duration, status models.StepStatus, errMsg string) {
	completed := started.Add(duration)
	rec := models.StepRecord{
		StepName:        step,
		Status:          status,
		StartedAt:       started,
		CompletedAt:     &completed,
		DurationSeconds: duration.Seconds(),
		RetryCount:      job.RetryCount,
		ErrorMessage:    errMsg,
	}
	if err := r.store.AppendStepRecord(ctx, job.ID, rec); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("failed to append step record")
	}
}
