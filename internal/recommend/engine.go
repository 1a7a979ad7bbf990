// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package recommend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/config"
	"github.com/baifan1366/Studify-sub011/internal/logging"
	"github.com/baifan1366/Studify-sub011/internal/metrics"
	"github.com/baifan1366/Studify-sub011/internal/similarity"
)

// Engine scores and categorizes candidate content for users. It is safe
// for concurrent use; all per-request state lives on the stack.
type Engine struct {
	cfg      config.RecommendConfig
	provider DataProvider
	cache    ResponseCache
	now      func() time.Time
}

// NewEngine creates a recommendation engine. cache may be nil to
// disable response caching.
func NewEngine(cfg config.RecommendConfig, provider DataProvider, cache ResponseCache) (*Engine, error) {
	if provider == nil {
		return nil, fmt.Errorf("data provider is required")
	}
	if cache == nil {
		cache = noopCache{}
	}
	return &Engine{
		cfg:      cfg,
		provider: provider,
		cache:    cache,
		now:      time.Now,
	}, nil
}

// Recommend scores candidates for the request and returns the ranked,
// categorized result. Embedding unavailability degrades to rules-only
// scoring; only provider failures on the rules path surface as errors.
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recommendation request: %w", err)
	}
	req = e.clampLimit(req)
	start := e.now()
	defer func() {
		metrics.RecommendRequestDuration.Observe(time.Since(start).Seconds())
	}()

	// Debug requests bypass the cache entirely: a cached non-debug
	// response has no sub-scores, and debug payloads must not be
	// served to regular requests either.
	key := cacheKey(req)
	if !req.Debug {
		if cached, err := e.cache.Get(key); err == nil {
			metrics.RecommendCacheHits.Inc()
			cached.CacheHit = true
			return cached, nil
		}
	}

	user, err := e.provider.UserContext(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user context: %w", err)
	}

	candidates, err := e.provider.Candidates(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	candidates = dedupeCandidates(candidates)
	candidates = e.prefilter(req, candidates)

	userVecs, contentVecs, degraded := e.lookupVectors(ctx, req, candidates)

	sc := newScorer(e.cfg, user, req, candidates, start)
	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		s := sc.score(c, userVecs, contentVecs[c.ContentID])
		if s.HybridScore < req.MinScore {
			continue
		}
		scored = append(scored, s)
	}
	rankScored(scored)

	cats := categorize(scored, user)
	items := cats[CategoryForYou]
	if req.GroupsOnly {
		items = cats[CategoryFromGroups]
	}
	items = truncate(items, req.Limit)
	for cat, list := range cats {
		cats[cat] = truncate(list, req.Limit)
	}

	resp := &Response{
		Items:       items,
		Categories:  cats,
		GeneratedAt: start,
		Degraded:    degraded,
	}
	if req.Debug {
		resp.Debug = &DebugInfo{
			CandidateCount:   len(candidates),
			ScoredCount:      len(scored),
			EmbeddingLookups: len(contentVecs),
			Duration:         time.Since(start),
		}
	}

	if !req.Debug {
		if err := e.cache.Set(key, resp); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("failed to cache recommendation response")
		}
	}
	return resp, nil
}

// Close releases the response cache.
func (e *Engine) Close() error {
	return e.cache.Close()
}

func (e *Engine) clampLimit(req Request) Request {
	if req.Limit <= 0 {
		req.Limit = e.cfg.DefaultLimit
	}
	if req.Limit > e.cfg.MaxLimit {
		req.Limit = e.cfg.MaxLimit
	}
	return req
}

// prefilter applies the scoring-independent request filters.
func (e *Engine) prefilter(req Request, candidates []Candidate) []Candidate {
	query := strings.ToLower(strings.TrimSpace(req.Query))
	out := candidates[:0]
	for _, c := range candidates {
		if req.ExcludeOwnPosts && c.AuthorID == req.UserID {
			continue
		}
		if !req.Since.IsZero() && c.CreatedAt.Before(req.Since) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(c.Title), query) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// lookupVectors fetches user and content embeddings under the scoring
// latency budget. Any failure or timeout returns empty vectors and
// flags the response degraded; the rules path proceeds regardless.
func (e *Engine) lookupVectors(ctx context.Context, req Request, candidates []Candidate) (similarity.Vectors, map[uuid.UUID]similarity.Vectors, bool) {
	if len(candidates) == 0 {
		return similarity.Vectors{}, nil, false
	}

	lookupCtx := ctx
	if e.cfg.EmbeddingTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, e.cfg.EmbeddingTimeout)
		defer cancel()
	}

	userVecs, err := e.provider.UserVectors(lookupCtx, req.UserID)
	if err != nil {
		metrics.RecommendDegraded.Inc()
		logging.Ctx(ctx).Debug().Err(err).Msg("user embedding unavailable, scoring rules-only")
		return similarity.Vectors{}, nil, true
	}
	if len(userVecs.A) == 0 && len(userVecs.B) == 0 {
		// No profile embedding yet; rules-only but not a degradation.
		return similarity.Vectors{}, nil, false
	}

	byType := make(map[string][]uuid.UUID)
	typeOf := make(map[uuid.UUID]Candidate, len(candidates))
	for _, c := range candidates {
		byType[string(c.ContentType)] = append(byType[string(c.ContentType)], c.ContentID)
		typeOf[c.ContentID] = c
	}

	contentVecs := make(map[uuid.UUID]similarity.Vectors, len(candidates))
	for ct, ids := range byType {
		vecs, err := e.provider.ContentVectors(lookupCtx, typeOf[ids[0]].ContentType, ids)
		if err != nil {
			metrics.RecommendDegraded.Inc()
			logging.Ctx(ctx).Debug().Err(err).Str("content_type", ct).
				Msg("content embeddings unavailable, scoring rules-only")
			return similarity.Vectors{}, nil, true
		}
		for id, v := range vecs {
			contentVecs[id] = v
		}
	}
	return userVecs, contentVecs, false
}

func truncate(items []ScoredCandidate, limit int) []ScoredCandidate {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
