// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package pipeline

import (
	"context"

	"github.com/baifan1366/Studify-sub011/internal/logging"
	"github.com/baifan1366/Studify-sub011/internal/models"
)

// CompressExecutor shrinks uploaded media via the external compression
// collaborator. The original size and type are preserved in the result
// as audit metadata.
type CompressExecutor struct {
	compressor Compressor
}

// NewCompressExecutor creates the compress step executor.
func NewCompressExecutor(compressor Compressor) *CompressExecutor {
	return &CompressExecutor{compressor: compressor}
}

// Step implements Executor.
func (e *CompressExecutor) Step() models.PipelineStep {
	return models.StepCompress
}

// Execute implements Executor. Compression is idempotent on the
// collaborator side: re-compressing already-compressed content is a
// cheap no-op there.
func (e *CompressExecutor) Execute(ctx context.Context, job *models.ProcessingJob) error {
	ref, err := ParseContentRef(job.ContentRef)
	if err != nil {
		return Permanent(err)
	}

	result, err := e.compressor.Compress(ctx, ref)
	if err != nil {
		return err
	}

	logging.Ctx(ctx).Info().
		Str("content_ref", ref.String()).
		Int64("original_bytes", result.OriginalBytes).
		Int64("compressed_bytes", result.CompressedBytes).
		Str("original_type", result.OriginalType).
		Str("output_type", result.OutputType).
		Msg("media compressed")
	return nil
}
