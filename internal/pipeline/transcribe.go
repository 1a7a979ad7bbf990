// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/logging"
	"github.com/baifan1366/Studify-sub011/internal/models"
)

// ErrJobCancelled aborts a long-running step when the user cancels
// mid-stream. The job row is already terminal at that point, so the
// runner's follow-up transition matches nothing and the delivery ends as
// a no-op.
var ErrJobCancelled = errors.New("job cancelled during execution")

// CancelChecker exposes the job's cancellation flag for mid-step polls.
type CancelChecker interface {
	IsCancelled(ctx context.Context, jobID uuid.UUID) (bool, error)
}

// defaultCancelCheckBytes is how much source data flows between
// cancellation polls. Polling per chunk bounds wasted transcription work
// after a cancel to one chunk.
const defaultCancelCheckBytes = 4 << 20 // 4MB

// TranscribeExecutor streams the compressed source to the external
// speech-to-text collaborator and stores the transcript. The source is
// never fully buffered. On success the transcript content is enqueued
// for embedding as a best-effort side effect.
type TranscribeExecutor struct {
	source      ContentSource
	transcriber Transcriber
	enqueuer    Enqueuer
	cancels     CancelChecker

	checkBytes int64
}

// NewTranscribeExecutor creates the transcribe step executor.
func NewTranscribeExecutor(source ContentSource, transcriber Transcriber, enqueuer Enqueuer, cancels CancelChecker) *TranscribeExecutor {
	return &TranscribeExecutor{
		source:      source,
		transcriber: transcriber,
		enqueuer:    enqueuer,
		cancels:     cancels,
		checkBytes:  defaultCancelCheckBytes,
	}
}

// Step implements Executor.
func (e *TranscribeExecutor) Step() models.PipelineStep {
	return models.StepTranscribe
}

// Execute implements Executor.
func (e *TranscribeExecutor) Execute(ctx context.Context, job *models.ProcessingJob) error {
	ref, err := ParseContentRef(job.ContentRef)
	if err != nil {
		return Permanent(err)
	}

	rc, info, err := e.source.Open(ctx, ref)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer rc.Close()

	reader := &cancelAwareReader{
		r:          rc,
		checkEvery: e.checkBytes,
		check: func() (bool, error) {
			return e.cancels.IsCancelled(ctx, job.ID)
		},
	}

	transcript, err := e.transcriber.Transcribe(ctx, reader, info)
	if errors.Is(err, ErrJobCancelled) {
		logging.Ctx(ctx).Info().Msg("transcription aborted by cancellation")
		return Permanent(err)
	}
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	if err := e.source.SaveTranscript(ctx, ref, transcript); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}

	// Best effort only: the transcript is durably stored, and a missed
	// enqueue is repaired by the next edit or the embed step.
	if err := e.enqueuer.Enqueue(ctx, ref.Type, ref.ID, 5); err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("content_ref", ref.String()).
			Msg("transcript embedding enqueue failed")
	}

	return nil
}

// cancelAwareReader polls the cancellation flag at chunk boundaries
// while streaming the source. A cancelled job surfaces as ErrJobCancelled
// from Read, aborting the downstream upload.
type cancelAwareReader struct {
	r          io.Reader
	checkEvery int64
	check      func() (bool, error)

	sinceCheck int64
}

func (c *cancelAwareReader) Read(p []byte) (int, error) {
	if c.sinceCheck >= c.checkEvery {
		c.sinceCheck = 0
		cancelled, err := c.check()
		if err == nil && cancelled {
			return 0, ErrJobCancelled
		}
		// A flag-check error is not worth aborting the stream over.
	}

	n, err := c.r.Read(p)
	c.sinceCheck += int64(n)
	return n, err
}
