// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/baifan1366/Studify-sub011/internal/models"
)

const queueColumns = `id, content_type, content_id, extracted_text, content_hash,
	priority, status, retry_count, created_at, updated_at, processed_at`

// UpsertQueueItem inserts or replaces the queue item for its
// (content_type, content_id) key. A re-enqueue of an existing key replaces
// stale text and hash and resets the item to queued with a fresh retry
// budget, which also implements eager re-embedding on content edits.
func (s *Postgres) UpsertQueueItem(ctx context.Context, item *models.EmbeddingQueueItem) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO embedding_queue
			(id, content_type, content_id, extracted_text, content_hash, priority, status, retry_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 'queued', 0, NOW(), NOW())
		 ON CONFLICT (content_type, content_id) DO UPDATE SET
			extracted_text = EXCLUDED.extracted_text,
			content_hash   = EXCLUDED.content_hash,
			priority       = EXCLUDED.priority,
			status         = 'queued',
			retry_count    = 0,
			updated_at     = NOW()`,
		item.ID, item.ContentType, item.ContentID, item.ExtractedText,
		item.ContentHash, item.Priority)
	if err != nil {
		return fmt.Errorf("upsert queue item: %w", err)
	}
	return nil
}

// ClaimBatch returns up to limit queued items ordered by (priority,
// created_at). FOR UPDATE SKIP LOCKED lets concurrent workers claim
// disjoint batches without blocking each other; the occasional duplicate
// claim after a crash is acceptable because embedding generation is
// idempotent.
func (s *Postgres) ClaimBatch(ctx context.Context, limit int) ([]*models.EmbeddingQueueItem, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE embedding_queue SET updated_at = NOW()
		 WHERE (content_type, content_id) IN (
			SELECT content_type, content_id FROM embedding_queue
			WHERE status = 'queued'
			ORDER BY priority, created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+queueColumns, limit)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var items []*models.EmbeddingQueueItem
	for rows.Next() {
		var it models.EmbeddingQueueItem
		if err := rows.Scan(&it.ID, &it.ContentType, &it.ContentID, &it.ExtractedText,
			&it.ContentHash, &it.Priority, &it.Status, &it.RetryCount,
			&it.CreatedAt, &it.UpdatedAt, &it.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

// MarkQueueProcessed marks the item processed. The generator exclusively
// owns this transition.
func (s *Postgres) MarkQueueProcessed(ctx context.Context, contentType models.ContentType, contentID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE embedding_queue
		 SET status = 'processed', processed_at = NOW(), updated_at = NOW()
		 WHERE content_type = $1 AND content_id = $2`, contentType, contentID)
	if err != nil {
		return fmt.Errorf("mark queue processed: %w", err)
	}
	return nil
}

// RecordQueueFailure increments the item's retry counter and, once the
// ceiling is exceeded, marks it permanently failed. Returns the resulting
// status so callers can report the disposition.
func (s *Postgres) RecordQueueFailure(ctx context.Context, contentType models.ContentType, contentID uuid.UUID, maxRetries int) (models.QueueStatus, error) {
	var status models.QueueStatus
	err := s.pool.QueryRow(ctx,
		`UPDATE embedding_queue
		 SET retry_count = retry_count + 1,
		     status = CASE WHEN retry_count + 1 > $3 THEN 'failed' ELSE 'queued' END,
		     updated_at = NOW()
		 WHERE content_type = $1 AND content_id = $2
		 RETURNING status`,
		contentType, contentID, maxRetries).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("record queue failure: %w", err)
	}
	return status, nil
}

// QueueDepth returns the number of items awaiting generation.
func (s *Postgres) QueueDepth(ctx context.Context) (int, error) {
	var depth int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM embedding_queue WHERE status = 'queued'`).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return depth, nil
}

// GetQueueItem returns the queue item for the key, or ErrNotFound.
func (s *Postgres) GetQueueItem(ctx context.Context, contentType models.ContentType, contentID uuid.UUID) (*models.EmbeddingQueueItem, error) {
	var it models.EmbeddingQueueItem
	err := s.pool.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM embedding_queue
		 WHERE content_type = $1 AND content_id = $2`,
		contentType, contentID).Scan(
		&it.ID, &it.ContentType, &it.ContentID, &it.ExtractedText,
		&it.ContentHash, &it.Priority, &it.Status, &it.RetryCount,
		&it.CreatedAt, &it.UpdatedAt, &it.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return &it, nil
}

// UpsertEmbedding persists generated vectors. COALESCE keeps a previously
// stored vector when the new write carries only the other model, so a
// partial regeneration never erases the missing side.
func (s *Postgres) UpsertEmbedding(ctx context.Context, emb *models.ContentEmbedding) error {
	var vectorA, vectorB []float64
	if emb.HasVectorA {
		vectorA = emb.VectorA
	}
	if emb.HasVectorB {
		vectorB = emb.VectorB
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO content_embeddings (content_type, content_id, vector_a, vector_b, content_hash, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (content_type, content_id) DO UPDATE SET
			vector_a     = COALESCE(EXCLUDED.vector_a, content_embeddings.vector_a),
			vector_b     = COALESCE(EXCLUDED.vector_b, content_embeddings.vector_b),
			content_hash = EXCLUDED.content_hash,
			updated_at   = NOW()`,
		emb.ContentType, emb.ContentID, vectorA, vectorB, emb.ContentHash)
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// GetEmbedding returns the stored embedding for the key, or ErrNotFound.
func (s *Postgres) GetEmbedding(ctx context.Context, contentType models.ContentType, contentID uuid.UUID) (*models.ContentEmbedding, error) {
	var emb models.ContentEmbedding
	err := s.pool.QueryRow(ctx,
		`SELECT content_type, content_id, vector_a, vector_b, content_hash, updated_at
		 FROM content_embeddings
		 WHERE content_type = $1 AND content_id = $2`,
		contentType, contentID).Scan(
		&emb.ContentType, &emb.ContentID, &emb.VectorA, &emb.VectorB,
		&emb.ContentHash, &emb.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding: %w", err)
	}
	emb.HasVectorA = len(emb.VectorA) > 0
	emb.HasVectorB = len(emb.VectorB) > 0
	return &emb, nil
}

// GetEmbeddings returns stored embeddings for multiple content ids of one
// type, keyed by content id. Missing ids are simply absent from the map.
func (s *Postgres) GetEmbeddings(ctx context.Context, contentType models.ContentType, ids []uuid.UUID) (map[uuid.UUID]*models.ContentEmbedding, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*models.ContentEmbedding{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT content_type, content_id, vector_a, vector_b, content_hash, updated_at
		 FROM content_embeddings
		 WHERE content_type = $1 AND content_id = ANY($2)`, contentType, ids)
	if err != nil {
		return nil, fmt.Errorf("get embeddings: %w", err)
	}
	defer rows.Close()

	result := make(map[uuid.UUID]*models.ContentEmbedding, len(ids))
	for rows.Next() {
		var emb models.ContentEmbedding
		if err := rows.Scan(&emb.ContentType, &emb.ContentID, &emb.VectorA, &emb.VectorB,
			&emb.ContentHash, &emb.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		emb.HasVectorA = len(emb.VectorA) > 0
		emb.HasVectorB = len(emb.VectorB) > 0
		result[emb.ContentID] = &emb
	}
	return result, rows.Err()
}
