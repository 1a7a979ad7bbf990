// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/models"
	"github.com/baifan1366/Studify-sub011/internal/store"
)

type queueKey struct {
	contentType models.ContentType
	contentID   uuid.UUID
}

// fakeGeneratorStore mimics the queue and embedding tables, including
// the retry-ceiling transition RecordQueueFailure performs in SQL.
type fakeGeneratorStore struct {
	mu         sync.Mutex
	items      map[queueKey]*models.EmbeddingQueueItem
	embeddings map[queueKey]*models.ContentEmbedding
	claimErr   error
}

func newFakeGeneratorStore() *fakeGeneratorStore {
	return &fakeGeneratorStore{
		items:      make(map[queueKey]*models.EmbeddingQueueItem),
		embeddings: make(map[queueKey]*models.ContentEmbedding),
	}
}

func (s *fakeGeneratorStore) add(item *models.EmbeddingQueueItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[queueKey{item.ContentType, item.ContentID}] = item
}

func (s *fakeGeneratorStore) ClaimBatch(_ context.Context, limit int) ([]*models.EmbeddingQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	var claimed []*models.EmbeddingQueueItem
	for _, item := range s.items {
		if item.Status != models.QueueStatusQueued {
			continue
		}
		item.Status = "processing"
		claimed = append(claimed, item)
		if len(claimed) == limit {
			break
		}
	}
	return claimed, nil
}

func (s *fakeGeneratorStore) MarkQueueProcessed(_ context.Context, ct models.ContentType, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[queueKey{ct, id}]
	if !ok {
		return store.ErrNotFound
	}
	item.Status = models.QueueStatusProcessed
	return nil
}

func (s *fakeGeneratorStore) RecordQueueFailure(_ context.Context, ct models.ContentType, id uuid.UUID, maxRetries int) (models.QueueStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[queueKey{ct, id}]
	if !ok {
		return "", store.ErrNotFound
	}
	item.RetryCount++
	if item.RetryCount > maxRetries {
		item.Status = models.QueueStatusFailed
	} else {
		item.Status = models.QueueStatusQueued
	}
	return item.Status, nil
}

func (s *fakeGeneratorStore) UpsertEmbedding(_ context.Context, emb *models.ContentEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := queueKey{emb.ContentType, emb.ContentID}
	existing, ok := s.embeddings[key]
	if !ok {
		cp := *emb
		s.embeddings[key] = &cp
		return nil
	}
	// Mirror the COALESCE merge: absent vectors keep the stored side.
	if emb.HasVectorA {
		existing.VectorA = emb.VectorA
		existing.HasVectorA = true
	}
	if emb.HasVectorB {
		existing.VectorB = emb.VectorB
		existing.HasVectorB = true
	}
	existing.ContentHash = emb.ContentHash
	return nil
}

func (s *fakeGeneratorStore) GetEmbedding(_ context.Context, ct models.ContentType, id uuid.UUID) (*models.ContentEmbedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	emb, ok := s.embeddings[queueKey{ct, id}]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *emb
	return &cp, nil
}

func (s *fakeGeneratorStore) QueueDepth(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	depth := 0
	for _, item := range s.items {
		if item.Status == models.QueueStatusQueued {
			depth++
		}
	}
	return depth, nil
}

func (s *fakeGeneratorStore) item(t *testing.T, ct models.ContentType, id uuid.UUID) *models.EmbeddingQueueItem {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[queueKey{ct, id}]
	if !ok {
		t.Fatalf("queue item %s/%s not found", ct, id)
	}
	return item
}

// fakeEmbedder returns a fixed vector, or fails the first failUntil
// calls.
type fakeEmbedder struct {
	name      string
	vector    []float64
	calls     int
	failUntil int
}

func (e *fakeEmbedder) Name() string { return e.name }

func (e *fakeEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	e.calls++
	if e.calls <= e.failUntil {
		return nil, fmt.Errorf("%s unavailable", e.name)
	}
	return e.vector, nil
}

func queuedItem(text string) *models.EmbeddingQueueItem {
	return &models.EmbeddingQueueItem{
		ID:            uuid.New(),
		ContentType:   models.ContentTypePost,
		ContentID:     uuid.New(),
		ExtractedText: text,
		ContentHash:   HashText(text),
		Priority:      5,
		Status:        models.QueueStatusQueued,
	}
}

func TestGeneratorProcessBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("generates both vectors and marks processed", func(t *testing.T) {
		st := newFakeGeneratorStore()
		item := queuedItem("intro to calculus")
		st.add(item)

		modelA := &fakeEmbedder{name: "model-a", vector: []float64{1, 0}}
		modelB := &fakeEmbedder{name: "model-b", vector: []float64{0, 1}}
		gen, err := NewGenerator(st, modelA, modelB, 3)
		if err != nil {
			t.Fatalf("NewGenerator: %v", err)
		}

		n, err := gen.ProcessBatch(ctx, 10)
		if err != nil {
			t.Fatalf("ProcessBatch: %v", err)
		}
		if n != 1 {
			t.Fatalf("processed = %d, want 1", n)
		}

		emb, err := st.GetEmbedding(ctx, item.ContentType, item.ContentID)
		if err != nil {
			t.Fatalf("GetEmbedding: %v", err)
		}
		if !emb.HasVectorA || !emb.HasVectorB {
			t.Errorf("expected both vectors, got A=%v B=%v", emb.HasVectorA, emb.HasVectorB)
		}
		if emb.ContentHash != item.ContentHash {
			t.Errorf("hash = %q, want %q", emb.ContentHash, item.ContentHash)
		}
		if got := st.item(t, item.ContentType, item.ContentID).Status; got != models.QueueStatusProcessed {
			t.Errorf("status = %q, want processed", got)
		}
	})

	t.Run("one failing item does not sink the batch", func(t *testing.T) {
		st := newFakeGeneratorStore()
		good := queuedItem("good item")
		bad := queuedItem("bad item")
		st.add(good)
		st.add(bad)

		modelA := &fakeEmbedder{name: "model-a", vector: []float64{1}}
		gen, err := NewGenerator(st, modelA, nil, 3)
		if err != nil {
			t.Fatalf("NewGenerator: %v", err)
		}
		// Fail exactly one Embed call; the other item still lands.
		modelA.failUntil = 1

		n, err := gen.ProcessBatch(ctx, 10)
		if err != nil {
			t.Fatalf("ProcessBatch: %v", err)
		}
		if n != 1 {
			t.Fatalf("processed = %d, want 1", n)
		}

		processed, failed := 0, 0
		for _, it := range []*models.EmbeddingQueueItem{good, bad} {
			switch st.item(t, it.ContentType, it.ContentID).Status {
			case models.QueueStatusProcessed:
				processed++
			case models.QueueStatusQueued:
				failed++
			}
		}
		if processed != 1 || failed != 1 {
			t.Errorf("processed=%d requeued=%d, want 1 and 1", processed, failed)
		}
	})

	t.Run("retry ceiling marks item failed", func(t *testing.T) {
		st := newFakeGeneratorStore()
		item := queuedItem("doomed item")
		st.add(item)

		modelA := &fakeEmbedder{name: "model-a", vector: []float64{1}, failUntil: 100}
		gen, err := NewGenerator(st, modelA, nil, 1)
		if err != nil {
			t.Fatalf("NewGenerator: %v", err)
		}

		// Attempt 1 requeues, attempt 2 crosses the ceiling.
		for i := 0; i < 2; i++ {
			if _, err := gen.ProcessBatch(ctx, 10); err != nil {
				t.Fatalf("ProcessBatch %d: %v", i, err)
			}
		}

		got := st.item(t, item.ContentType, item.ContentID)
		if got.Status != models.QueueStatusFailed {
			t.Errorf("status = %q, want failed", got.Status)
		}
		if got.RetryCount != 2 {
			t.Errorf("retry count = %d, want 2", got.RetryCount)
		}

		// Failed items never get claimed again.
		n, err := gen.ProcessBatch(ctx, 10)
		if err != nil {
			t.Fatalf("ProcessBatch after failure: %v", err)
		}
		if n != 0 {
			t.Errorf("processed = %d after terminal failure, want 0", n)
		}
	})

	t.Run("partial model success persists available vector", func(t *testing.T) {
		st := newFakeGeneratorStore()
		item := queuedItem("half covered")
		st.add(item)

		modelA := &fakeEmbedder{name: "model-a", vector: []float64{1}}
		modelB := &fakeEmbedder{name: "model-b", failUntil: 100}
		gen, err := NewGenerator(st, modelA, modelB, 3)
		if err != nil {
			t.Fatalf("NewGenerator: %v", err)
		}

		n, err := gen.ProcessBatch(ctx, 10)
		if err != nil {
			t.Fatalf("ProcessBatch: %v", err)
		}
		if n != 1 {
			t.Fatalf("processed = %d, want 1", n)
		}

		emb, err := st.GetEmbedding(ctx, item.ContentType, item.ContentID)
		if err != nil {
			t.Fatalf("GetEmbedding: %v", err)
		}
		if !emb.HasVectorA || emb.HasVectorB {
			t.Errorf("expected only vector A, got A=%v B=%v", emb.HasVectorA, emb.HasVectorB)
		}
		if got := st.item(t, item.ContentType, item.ContentID).Status; got != models.QueueStatusProcessed {
			t.Errorf("status = %q, want processed", got)
		}
	})

	t.Run("hash match skips model calls", func(t *testing.T) {
		st := newFakeGeneratorStore()
		item := queuedItem("already embedded")
		st.add(item)
		st.embeddings[queueKey{item.ContentType, item.ContentID}] = &models.ContentEmbedding{
			ContentType: item.ContentType,
			ContentID:   item.ContentID,
			VectorA:     []float64{1},
			HasVectorA:  true,
			ContentHash: item.ContentHash,
		}

		modelA := &fakeEmbedder{name: "model-a", vector: []float64{9}}
		gen, err := NewGenerator(st, modelA, nil, 3)
		if err != nil {
			t.Fatalf("NewGenerator: %v", err)
		}

		n, err := gen.ProcessBatch(ctx, 10)
		if err != nil {
			t.Fatalf("ProcessBatch: %v", err)
		}
		if n != 1 {
			t.Fatalf("processed = %d, want 1", n)
		}
		if modelA.calls != 0 {
			t.Errorf("model called %d times for unchanged content, want 0", modelA.calls)
		}
	})

	t.Run("stale hash regenerates", func(t *testing.T) {
		st := newFakeGeneratorStore()
		item := queuedItem("edited content")
		st.add(item)
		st.embeddings[queueKey{item.ContentType, item.ContentID}] = &models.ContentEmbedding{
			ContentType: item.ContentType,
			ContentID:   item.ContentID,
			VectorA:     []float64{1},
			HasVectorA:  true,
			ContentHash: HashText("old content"),
		}

		modelA := &fakeEmbedder{name: "model-a", vector: []float64{2}}
		gen, err := NewGenerator(st, modelA, nil, 3)
		if err != nil {
			t.Fatalf("NewGenerator: %v", err)
		}

		if _, err := gen.ProcessBatch(ctx, 10); err != nil {
			t.Fatalf("ProcessBatch: %v", err)
		}
		if modelA.calls != 1 {
			t.Errorf("model calls = %d, want 1", modelA.calls)
		}
		emb, _ := st.GetEmbedding(ctx, item.ContentType, item.ContentID)
		if emb.ContentHash != item.ContentHash {
			t.Errorf("hash not refreshed: %q", emb.ContentHash)
		}
	})

	t.Run("claim failure surfaces as batch error", func(t *testing.T) {
		st := newFakeGeneratorStore()
		st.claimErr = errors.New("connection refused")

		gen, err := NewGenerator(st, &fakeEmbedder{name: "model-a"}, nil, 3)
		if err != nil {
			t.Fatalf("NewGenerator: %v", err)
		}
		if _, err := gen.ProcessBatch(ctx, 10); err == nil {
			t.Fatal("expected error when claiming fails")
		}
	})

	t.Run("requires at least one model", func(t *testing.T) {
		if _, err := NewGenerator(newFakeGeneratorStore(), nil, nil, 3); err == nil {
			t.Fatal("expected constructor error with no models")
		}
	})
}
