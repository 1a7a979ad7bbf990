// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package embedding

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/baifan1366/Studify-sub011/internal/metrics"
	"github.com/baifan1366/Studify-sub011/internal/models"
)

// Embedder produces one vector for one text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// HTTPEmbedder calls an external embedding model endpoint. Each model
// gets its own client and circuit breaker so one struggling model never
// blocks the other.
type HTTPEmbedder struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]float64]
}

// NewHTTPEmbedder creates a client for one embedding model. name labels
// metrics and logs ("model_a" or "model_b").
func NewHTTPEmbedder(name, baseURL, apiKey string, timeout time.Duration) *HTTPEmbedder {
	return &HTTPEmbedder{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[[]float64](gobreaker.Settings{
			Name:        "embedder-" + name,
			MaxRequests: 2,
			Interval:    60 * time.Second,
			Timeout:     15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Name returns the model label.
func (e *HTTPEmbedder) Name() string {
	return e.name
}

// Embed implements Embedder.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vector, err := e.breaker.Execute(func() ([]float64, error) {
		return e.call(ctx, text)
	})
	if err != nil {
		metrics.EmbeddingModelCalls.WithLabelValues(e.name, "error").Inc()
		return nil, err
	}
	metrics.EmbeddingModelCalls.WithLabelValues(e.name, "ok").Inc()
	return vector, nil
}

func (e *HTTPEmbedder) call(ctx context.Context, text string) ([]float64, error) {
	payload, err := json.Marshal(map[string]string{"input": text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed call (%s): %w", e.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embed model %s: status %d: %s", e.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response (%s): %w", e.name, err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("embed model %s returned empty vector", e.name)
	}
	return result.Embedding, nil
}

// HTTPContentReader fetches content fields from the platform's content
// gateway for text extraction.
type HTTPContentReader struct {
	baseURL string
	client  *http.Client
}

// NewHTTPContentReader creates a content reader for the given endpoint.
func NewHTTPContentReader(baseURL string, timeout time.Duration) *HTTPContentReader {
	return &HTTPContentReader{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Content implements ContentReader.
func (r *HTTPContentReader) Content(ctx context.Context, contentType models.ContentType, contentID uuid.UUID) (ContentFields, error) {
	endpoint := fmt.Sprintf("%s/v1/content/%s/%s/fields", r.baseURL, contentType, contentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ContentFields{}, fmt.Errorf("build content request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return ContentFields{}, fmt.Errorf("fetch content fields: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ContentFields{}, fmt.Errorf("content gateway: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var fields ContentFields
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return ContentFields{}, fmt.Errorf("decode content fields: %w", err)
	}
	return fields, nil
}
