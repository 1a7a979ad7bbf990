// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/logging"
	"github.com/baifan1366/Studify-sub011/internal/metrics"
	"github.com/baifan1366/Studify-sub011/internal/models"
	"github.com/baifan1366/Studify-sub011/internal/store"
)

// GeneratorStore is the persistence surface batch generation needs.
type GeneratorStore interface {
	ClaimBatch(ctx context.Context, limit int) ([]*models.EmbeddingQueueItem, error)
	MarkQueueProcessed(ctx context.Context, contentType models.ContentType, contentID uuid.UUID) error
	RecordQueueFailure(ctx context.Context, contentType models.ContentType, contentID uuid.UUID, maxRetries int) (models.QueueStatus, error)
	UpsertEmbedding(ctx context.Context, emb *models.ContentEmbedding) error
	GetEmbedding(ctx context.Context, contentType models.ContentType, contentID uuid.UUID) (*models.ContentEmbedding, error)
	QueueDepth(ctx context.Context) (int, error)
}

// Generator turns queued items into stored vectors. Claiming tolerates
// concurrent workers via skip-locked batches; duplicate processing of an
// item is acceptable because generation is deterministic per text.
type Generator struct {
	store      GeneratorStore
	modelA     Embedder
	modelB     Embedder
	maxRetries int
}

// NewGenerator creates a generator. Either model may be nil for
// single-model deployments, but not both.
func NewGenerator(st GeneratorStore, modelA, modelB Embedder, maxRetries int) (*Generator, error) {
	if modelA == nil && modelB == nil {
		return nil, fmt.Errorf("at least one embedding model is required")
	}
	return &Generator{
		store:      st,
		modelA:     modelA,
		modelB:     modelB,
		maxRetries: maxRetries,
	}, nil
}

// ProcessBatch claims up to limit queued items and generates their
// vectors. Items are isolated: one failure marks only that item and the
// batch continues. Returns the number of items successfully processed.
func (g *Generator) ProcessBatch(ctx context.Context, limit int) (int, error) {
	started := time.Now()

	items, err := g.store.ClaimBatch(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("claim batch: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	if depth, err := g.store.QueueDepth(ctx); err == nil {
		metrics.EmbeddingQueueDepth.Set(float64(depth))
	}

	processed := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if err := g.processItem(ctx, item); err != nil {
			g.recordFailure(ctx, item, err)
			continue
		}
		processed++
		metrics.EmbeddingItemsProcessed.WithLabelValues("processed").Inc()
	}

	metrics.EmbeddingBatchDuration.Observe(time.Since(started).Seconds())
	logging.Ctx(ctx).Debug().
		Int("claimed", len(items)).
		Int("processed", processed).
		Msg("embedding batch finished")
	return processed, nil
}

// processItem generates and persists vectors for one item. If the stored
// embedding already covers this exact text (hash match with all
// configured models present), the item completes without model calls.
func (g *Generator) processItem(ctx context.Context, item *models.EmbeddingQueueItem) error {
	if g.upToDate(ctx, item) {
		return g.store.MarkQueueProcessed(ctx, item.ContentType, item.ContentID)
	}

	emb := &models.ContentEmbedding{
		ContentType: item.ContentType,
		ContentID:   item.ContentID,
		ContentHash: item.ContentHash,
	}

	var modelErrs []error
	if g.modelA != nil {
		if vec, err := g.modelA.Embed(ctx, item.ExtractedText); err != nil {
			modelErrs = append(modelErrs, fmt.Errorf("model a: %w", err))
		} else {
			emb.VectorA = vec
			emb.HasVectorA = true
		}
	}
	if g.modelB != nil {
		if vec, err := g.modelB.Embed(ctx, item.ExtractedText); err != nil {
			modelErrs = append(modelErrs, fmt.Errorf("model b: %w", err))
		} else {
			emb.VectorB = vec
			emb.HasVectorB = true
		}
	}

	// Partial success still persists: the similarity engine degrades
	// gracefully over whichever vectors exist.
	if !emb.HasVectorA && !emb.HasVectorB {
		return fmt.Errorf("all models failed: %w", errors.Join(modelErrs...))
	}

	if err := g.store.UpsertEmbedding(ctx, emb); err != nil {
		return fmt.Errorf("persist embedding: %w", err)
	}
	if len(modelErrs) > 0 {
		logging.Ctx(ctx).Warn().Err(errors.Join(modelErrs...)).
			Str("content_type", string(item.ContentType)).
			Str("content_id", item.ContentID.String()).
			Msg("embedding stored with partial model coverage")
	}
	return g.store.MarkQueueProcessed(ctx, item.ContentType, item.ContentID)
}

// upToDate reports whether the stored embedding already matches the
// item's text hash across every configured model.
func (g *Generator) upToDate(ctx context.Context, item *models.EmbeddingQueueItem) bool {
	existing, err := g.store.GetEmbedding(ctx, item.ContentType, item.ContentID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.Ctx(ctx).Warn().Err(err).Msg("embedding freshness check failed")
		}
		return false
	}
	if existing.ContentHash != item.ContentHash {
		return false
	}
	if g.modelA != nil && !existing.HasVectorA {
		return false
	}
	if g.modelB != nil && !existing.HasVectorB {
		return false
	}
	return true
}

// recordFailure consumes one unit of the item's retry budget.
func (g *Generator) recordFailure(ctx context.Context, item *models.EmbeddingQueueItem, cause error) {
	status, err := g.store.RecordQueueFailure(ctx, item.ContentType, item.ContentID, g.maxRetries)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).
			Str("content_id", item.ContentID.String()).
			Msg("failed to record queue failure")
		return
	}

	outcome := "retried"
	if status == models.QueueStatusFailed {
		outcome = "failed"
	}
	metrics.EmbeddingItemsProcessed.WithLabelValues(outcome).Inc()

	logging.Ctx(ctx).Warn().Err(cause).
		Str("content_type", string(item.ContentType)).
		Str("content_id", item.ContentID.String()).
		Str("disposition", outcome).
		Msg("embedding generation failed for item")
}
