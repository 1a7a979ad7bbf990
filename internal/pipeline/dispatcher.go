// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/baifan1366/Studify-sub011/internal/config"
	"github.com/baifan1366/Studify-sub011/internal/logging"
	"github.com/baifan1366/Studify-sub011/internal/metrics"
	"github.com/baifan1366/Studify-sub011/internal/models"
	"github.com/baifan1366/Studify-sub011/internal/transport"
)

// MessagePublisher is the transport surface the dispatcher needs.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
}

// DispatchStore persists transport traceability data on the job row.
type DispatchStore interface {
	SetDispatchInfo(ctx context.Context, jobID uuid.UUID, msgID string) error
	ScheduleRetry(ctx context.Context, jobID uuid.UUID, at time.Time) error
}

// Dispatcher publishes signed step-execution requests. Each dispatch
// carries an HS256 token binding it to the exact job and step, and a
// deterministic Nats-Msg-Id so duplicate publishes of the same attempt
// collapse inside the stream's duplicate window.
type Dispatcher struct {
	pub    MessagePublisher
	store  DispatchStore
	signer *transport.Signer
	cfg    config.PipelineConfig
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(pub MessagePublisher, store DispatchStore, signer *transport.Signer, cfg config.PipelineConfig) *Dispatcher {
	return &Dispatcher{
		pub:    pub,
		store:  store,
		signer: signer,
		cfg:    cfg,
	}
}

// Dispatch publishes one signed step-execution request and persists the
// transport message id on the job for traceability.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID uuid.UUID, step models.PipelineStep, attempt int) error {
	now := time.Now().UTC()

	payload, err := transport.MarshalStepMessage(&transport.StepMessage{
		JobID:        jobID,
		Step:         step,
		DispatchedAt: now,
		Attempt:      attempt,
	})
	if err != nil {
		return fmt.Errorf("build step message: %w", err)
	}

	token, err := d.signer.Sign(jobID, step, now)
	if err != nil {
		return fmt.Errorf("sign step message: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(transport.SignatureHeader, token)
	if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
		msg.Metadata.Set(transport.RequestIDHeader, reqID)
	}
	// Deterministic per attempt: a duplicate publish of the same attempt
	// deduplicates, while a backoff re-dispatch (new attempt) does not.
	msg.Metadata.Set(natsgo.MsgIdHdr, fmt.Sprintf("%s:%s:%d", jobID, step, attempt))

	if err := d.pub.Publish(ctx, transport.StepTopic(string(step)), msg); err != nil {
		return fmt.Errorf("publish step %s for job %s: %w", step, jobID, err)
	}

	metrics.PipelineDispatches.WithLabelValues(string(step)).Inc()

	if err := d.store.SetDispatchInfo(ctx, jobID, msg.UUID); err != nil {
		// The message is already on the wire; losing traceability is not
		// worth failing the dispatch over.
		logging.Ctx(ctx).Warn().Err(err).
			Str("job_id", jobID.String()).
			Msg("failed to persist dispatch message id")
	}
	return nil
}

// DispatchFirst publishes the first pipeline step for a newly created
// job, honoring the configured initial delay. It is meant to run out of
// band from the create request.
func (d *Dispatcher) DispatchFirst(ctx context.Context, jobID uuid.UUID) error {
	if d.cfg.DispatchDelay > 0 {
		if err := sleepCtx(ctx, d.cfg.DispatchDelay); err != nil {
			return err
		}
	}
	return d.Dispatch(ctx, jobID, FirstStep(), 0)
}

// Redispatch re-publishes a step after a transient failure, waiting out
// the exponential backoff for the given attempt number first. The due
// time is persisted before the wait so the retry reclaimer can recover
// it if the process dies mid-backoff.
func (d *Dispatcher) Redispatch(ctx context.Context, jobID uuid.UUID, step models.PipelineStep, attempt int) error {
	wait := d.backoffFor(attempt)
	logging.Ctx(ctx).Info().
		Str("job_id", jobID.String()).
		Str("step", string(step)).
		Int("attempt", attempt).
		Dur("backoff", wait).
		Msg("re-dispatching step after transient failure")

	if err := d.store.ScheduleRetry(ctx, jobID, time.Now().UTC().Add(wait)); err != nil {
		// The in-memory wait still runs; only crash recovery is degraded.
		logging.Ctx(ctx).Warn().Err(err).
			Str("job_id", jobID.String()).
			Msg("failed to persist retry schedule")
	}

	if err := sleepCtx(ctx, wait); err != nil {
		return err
	}
	return d.Dispatch(ctx, jobID, step, attempt)
}

// backoffFor computes the wait before the given attempt (1-based) using
// the configured exponential policy.
func (d *Dispatcher) backoffFor(attempt int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.InitialBackoff
	bo.MaxInterval = d.cfg.MaxBackoff
	bo.Multiplier = d.cfg.BackoffMultiplier
	bo.RandomizationFactor = 0.1
	bo.MaxElapsedTime = 0 // the retry ceiling lives on the job
	bo.Reset()

	wait := bo.NextBackOff()
	for i := 1; i < attempt; i++ {
		wait = bo.NextBackOff()
	}
	if wait == backoff.Stop || wait > d.cfg.MaxBackoff {
		wait = d.cfg.MaxBackoff
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
