// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package recommend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/models"
	"github.com/baifan1366/Studify-sub011/internal/similarity"
)

// EmbeddingReader is the slice of the store the provider needs for
// vector lookups.
type EmbeddingReader interface {
	GetEmbedding(ctx context.Context, contentType models.ContentType, contentID uuid.UUID) (*models.ContentEmbedding, error)
	GetEmbeddings(ctx context.Context, contentType models.ContentType, ids []uuid.UUID) (map[uuid.UUID]*models.ContentEmbedding, error)
}

// GatewayProvider implements DataProvider against the platform's
// content gateway for user context and candidates, and the embedding
// store for vectors.
type GatewayProvider struct {
	baseURL    string
	client     *http.Client
	embeddings EmbeddingReader
}

// NewGatewayProvider creates a provider over the given gateway
// endpoint and embedding store.
func NewGatewayProvider(baseURL string, timeout time.Duration, embeddings EmbeddingReader) (*GatewayProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("gateway url is required")
	}
	if embeddings == nil {
		return nil, fmt.Errorf("embedding reader is required")
	}
	return &GatewayProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: timeout},
		embeddings: embeddings,
	}, nil
}

// userContextPayload is the gateway's wire shape for a user's scoring
// context.
type userContextPayload struct {
	Interests          []string       `json:"interests"`
	GroupIDs           []uuid.UUID    `json:"group_ids"`
	AuthorInteractions map[string]int `json:"author_interactions"`
}

// UserContext implements DataProvider.
func (p *GatewayProvider) UserContext(ctx context.Context, userID uuid.UUID) (UserContext, error) {
	var payload userContextPayload
	endpoint := fmt.Sprintf("%s/v1/users/%s/context", p.baseURL, userID)
	if err := p.getJSON(ctx, endpoint, &payload); err != nil {
		return UserContext{}, fmt.Errorf("fetch user context: %w", err)
	}

	uc := UserContext{
		UserID:    userID,
		Interests: payload.Interests,
		GroupIDs:  payload.GroupIDs,
	}
	if len(payload.AuthorInteractions) > 0 {
		uc.AuthorInteractions = make(map[uuid.UUID]int, len(payload.AuthorInteractions))
		for author, count := range payload.AuthorInteractions {
			id, err := uuid.Parse(author)
			if err != nil {
				continue
			}
			uc.AuthorInteractions[id] = count
		}
	}
	return uc, nil
}

// Candidates implements DataProvider. Only the coarse Since window is
// pushed down to the gateway; the engine applies everything else.
func (p *GatewayProvider) Candidates(ctx context.Context, req Request) ([]Candidate, error) {
	query := url.Values{}
	if !req.Since.IsZero() {
		query.Set("since", req.Since.UTC().Format(time.RFC3339))
	}

	endpoint := p.baseURL + "/v1/content/candidates"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload struct {
		Candidates []Candidate `json:"candidates"`
	}
	if err := p.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	return payload.Candidates, nil
}

// UserVectors implements DataProvider. A user with no profile embedding
// yields empty vectors, not an error.
func (p *GatewayProvider) UserVectors(ctx context.Context, userID uuid.UUID) (similarity.Vectors, error) {
	emb, err := p.embeddings.GetEmbedding(ctx, models.ContentTypeProfile, userID)
	if err != nil {
		return similarity.Vectors{}, fmt.Errorf("fetch user vectors: %w", err)
	}
	return VectorsFromEmbedding(emb), nil
}

// ContentVectors implements DataProvider.
func (p *GatewayProvider) ContentVectors(ctx context.Context, contentType models.ContentType, ids []uuid.UUID) (map[uuid.UUID]similarity.Vectors, error) {
	embs, err := p.embeddings.GetEmbeddings(ctx, contentType, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch content vectors: %w", err)
	}

	out := make(map[uuid.UUID]similarity.Vectors, len(embs))
	for id, emb := range embs {
		out[id] = VectorsFromEmbedding(emb)
	}
	return out, nil
}

func (p *GatewayProvider) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
