// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package pipeline

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/models"
)

// ContentSource provides access to the raw media a job processes. The
// actual bytes live in object storage outside this service.
type ContentSource interface {
	// Open returns a streaming reader over the referenced content plus
	// its metadata. The caller closes the reader.
	Open(ctx context.Context, ref ContentRef) (io.ReadCloser, ContentInfo, error)

	// SaveTranscript persists a generated transcript alongside the
	// content.
	SaveTranscript(ctx context.Context, ref ContentRef, transcript string) error
}

// ContentInfo is source metadata captured before processing.
type ContentInfo struct {
	SizeBytes int64
	MimeType  string
}

// Compressor is the external media compression collaborator.
type Compressor interface {
	// Compress asks the external service to compress the referenced
	// content in place. Returns audit metadata about the result.
	Compress(ctx context.Context, ref ContentRef) (CompressResult, error)
}

// CompressResult is the audit record of one compression run. Original
// size and type are preserved for later inspection.
type CompressResult struct {
	OriginalBytes   int64  `json:"original_bytes"`
	CompressedBytes int64  `json:"compressed_bytes"`
	OriginalType    string `json:"original_type"`
	OutputType      string `json:"output_type"`
}

// Transcriber is the external speech-to-text collaborator. The source is
// streamed rather than buffered so large media never sits in memory.
type Transcriber interface {
	Transcribe(ctx context.Context, source io.Reader, info ContentInfo) (string, error)
}

// Enqueuer feeds processed content into the embedding queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, contentType models.ContentType, contentID uuid.UUID, priority int) error
}

// Notifier announces terminal job outcomes to the notification service.
// Delivery is best-effort: a failed notification is logged and dropped,
// never retried, and never affects the job state.
type Notifier interface {
	NotifyJobCompleted(ctx context.Context, job *models.ProcessingJob)
	NotifyJobFailed(ctx context.Context, job *models.ProcessingJob, reason string)
}
