// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package recommend

import (
	"context"

	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/models"
	"github.com/baifan1366/Studify-sub011/internal/similarity"
)

// UserContext is everything the scorer needs to know about the
// requesting user.
type UserContext struct {
	UserID uuid.UUID

	// Interests are the user's declared interest tags.
	Interests []string

	// GroupIDs are the groups the user belongs to.
	GroupIDs []uuid.UUID

	// AuthorInteractions counts prior interactions per author.
	AuthorInteractions map[uuid.UUID]int
}

// DataProvider feeds the engine. Typically implemented by the database
// layer; the interface keeps this package free of storage imports.
type DataProvider interface {
	// UserContext returns the requesting user's scoring context.
	UserContext(ctx context.Context, userID uuid.UUID) (UserContext, error)

	// Candidates returns content eligible for the request, pre-filtered
	// only by coarse criteria (Since window); all scoring-sensitive
	// filters are applied by the engine.
	Candidates(ctx context.Context, req Request) ([]Candidate, error)

	// UserVectors returns the user's profile embedding, if any.
	UserVectors(ctx context.Context, userID uuid.UUID) (similarity.Vectors, error)

	// ContentVectors returns embeddings for the given content ids.
	// Missing ids are simply absent from the map.
	ContentVectors(ctx context.Context, contentType models.ContentType, ids []uuid.UUID) (map[uuid.UUID]similarity.Vectors, error)
}

// VectorsFromEmbedding converts a stored embedding into the similarity
// engine's representation, dropping vectors flagged absent.
func VectorsFromEmbedding(emb *models.ContentEmbedding) similarity.Vectors {
	var v similarity.Vectors
	if emb == nil {
		return v
	}
	if emb.HasVectorA {
		v.A = emb.VectorA
	}
	if emb.HasVectorB {
		v.B = emb.VectorB
	}
	return v
}
