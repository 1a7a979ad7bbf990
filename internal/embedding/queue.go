// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package embedding

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/logging"
	"github.com/baifan1366/Studify-sub011/internal/models"
)

// ContentReader fetches the raw fields of a content item for text
// extraction. Backed by the platform's content gateway.
type ContentReader interface {
	Content(ctx context.Context, contentType models.ContentType, contentID uuid.UUID) (ContentFields, error)
}

// QueueStore is the persistence surface for enqueueing.
type QueueStore interface {
	UpsertQueueItem(ctx context.Context, item *models.EmbeddingQueueItem) error
}

// Queue enqueues content for embedding generation. Enqueue is an upsert
// keyed on (content type, content id): re-enqueueing an edited item
// replaces stale text and resets it to queued, which is how content
// edits trigger eager re-embedding.
type Queue struct {
	store   QueueStore
	content ContentReader
}

// NewQueue creates an embedding queue.
func NewQueue(store QueueStore, content ContentReader) *Queue {
	return &Queue{store: store, content: content}
}

// Enqueue extracts the canonical text for the content item and upserts a
// queue entry. Items whose extraction yields empty text are skipped
// entirely; there is nothing to embed.
func (q *Queue) Enqueue(ctx context.Context, contentType models.ContentType, contentID uuid.UUID, priority int) error {
	if !contentType.Valid() {
		return fmt.Errorf("unknown content type %q", contentType)
	}

	fields, err := q.content.Content(ctx, contentType, contentID)
	if err != nil {
		return fmt.Errorf("fetch content %s/%s: %w", contentType, contentID, err)
	}

	text := ExtractText(contentType, fields)
	if text == "" {
		logging.Ctx(ctx).Debug().
			Str("content_type", string(contentType)).
			Str("content_id", contentID.String()).
			Msg("skipping enqueue of empty content")
		return nil
	}

	item := &models.EmbeddingQueueItem{
		ID:            uuid.New(),
		ContentType:   contentType,
		ContentID:     contentID,
		ExtractedText: text,
		ContentHash:   HashText(text),
		Priority:      priority,
		Status:        models.QueueStatusQueued,
	}
	if err := q.store.UpsertQueueItem(ctx, item); err != nil {
		return fmt.Errorf("upsert queue item: %w", err)
	}
	return nil
}
