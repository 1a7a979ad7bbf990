// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package pipeline

import (
	"context"
	"fmt"

	"github.com/baifan1366/Studify-sub011/internal/logging"
	"github.com/baifan1366/Studify-sub011/internal/models"
)

// EmbedExecutor is the final pipeline step. It confirms the processed
// content is queued for embedding generation; vector generation itself
// happens asynchronously in the embedding worker. Unlike the transcribe
// side effect, this enqueue must succeed for the job to complete.
type EmbedExecutor struct {
	enqueuer Enqueuer
}

// NewEmbedExecutor creates the embed step executor.
func NewEmbedExecutor(enqueuer Enqueuer) *EmbedExecutor {
	return &EmbedExecutor{enqueuer: enqueuer}
}

// Step implements Executor.
func (e *EmbedExecutor) Step() models.PipelineStep {
	return models.StepEmbed
}

// Execute implements Executor. Enqueue is an upsert on
// (content type, content id), so repeated executions converge.
func (e *EmbedExecutor) Execute(ctx context.Context, job *models.ProcessingJob) error {
	ref, err := ParseContentRef(job.ContentRef)
	if err != nil {
		return Permanent(err)
	}

	if err := e.enqueuer.Enqueue(ctx, ref.Type, ref.ID, 1); err != nil {
		return fmt.Errorf("enqueue embedding: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("content_ref", ref.String()).
		Msg("content queued for embedding generation")
	return nil
}
