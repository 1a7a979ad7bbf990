// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/models"
)

type fakeQueueStore struct {
	upserts []*models.EmbeddingQueueItem
}

func (s *fakeQueueStore) UpsertQueueItem(_ context.Context, item *models.EmbeddingQueueItem) error {
	s.upserts = append(s.upserts, item)
	return nil
}

type fakeContentReader struct {
	fields ContentFields
	err    error
}

func (r *fakeContentReader) Content(_ context.Context, _ models.ContentType, _ uuid.UUID) (ContentFields, error) {
	return r.fields, r.err
}

func TestQueueEnqueue(t *testing.T) {
	ctx := context.Background()

	t.Run("enqueues extracted text with hash", func(t *testing.T) {
		st := &fakeQueueStore{}
		q := NewQueue(st, &fakeContentReader{fields: ContentFields{Title: "Algebra", Body: "notes"}})

		id := uuid.New()
		if err := q.Enqueue(ctx, models.ContentTypePost, id, 3); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if len(st.upserts) != 1 {
			t.Fatalf("upserts = %d, want 1", len(st.upserts))
		}

		item := st.upserts[0]
		if item.ContentID != id {
			t.Errorf("content id = %s, want %s", item.ContentID, id)
		}
		if item.ExtractedText != "Algebra\nnotes" {
			t.Errorf("extracted text = %q", item.ExtractedText)
		}
		if item.ContentHash != HashText("Algebra\nnotes") {
			t.Errorf("hash mismatch: %q", item.ContentHash)
		}
		if item.Priority != 3 {
			t.Errorf("priority = %d, want 3", item.Priority)
		}
		if item.Status != models.QueueStatusQueued {
			t.Errorf("status = %q, want queued", item.Status)
		}
	})

	t.Run("empty extraction is a no-op", func(t *testing.T) {
		st := &fakeQueueStore{}
		q := NewQueue(st, &fakeContentReader{fields: ContentFields{}})

		if err := q.Enqueue(ctx, models.ContentTypeComment, uuid.New(), 5); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if len(st.upserts) != 0 {
			t.Errorf("upserts = %d for empty content, want 0", len(st.upserts))
		}
	})

	t.Run("rejects unknown content type", func(t *testing.T) {
		q := NewQueue(&fakeQueueStore{}, &fakeContentReader{})
		if err := q.Enqueue(ctx, models.ContentType("webinar"), uuid.New(), 5); err == nil {
			t.Fatal("expected error for unknown content type")
		}
	})

	t.Run("content fetch failure propagates", func(t *testing.T) {
		q := NewQueue(&fakeQueueStore{}, &fakeContentReader{err: errors.New("gateway down")})
		if err := q.Enqueue(ctx, models.ContentTypePost, uuid.New(), 5); err == nil {
			t.Fatal("expected error when content fetch fails")
		}
	})
}
