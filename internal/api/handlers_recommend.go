// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package api

import (
	"net/http"
	"time"

	"github.com/baifan1366/Studify-sub011/internal/logging"
	"github.com/baifan1366/Studify-sub011/internal/recommend"
)

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if s.recommend == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "recommendations are not available", nil)
		return
	}

	req, err := parseRecommendRequest(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}

	start := time.Now()
	resp, err := s.recommend.Recommend(r.Context(), req)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).
			Str("user_id", req.UserID.String()).
			Msg("recommendation scoring failed")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "could not score recommendations", nil)
		return
	}

	respondCached(w, r, resp, resp.CacheHit, time.Since(start))
}

func parseRecommendRequest(r *http.Request) (recommend.Request, error) {
	userID, err := queryUUID(r, "user_id")
	if err != nil {
		return recommend.Request{}, err
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		return recommend.Request{}, err
	}
	since, err := queryTime(r, "since")
	if err != nil {
		return recommend.Request{}, err
	}
	groupsOnly, err := queryBool(r, "groups_only")
	if err != nil {
		return recommend.Request{}, err
	}
	excludeOwn, err := queryBool(r, "exclude_own_posts")
	if err != nil {
		return recommend.Request{}, err
	}
	minScore, err := queryFloat(r, "min_score", 0)
	if err != nil {
		return recommend.Request{}, err
	}
	debug, err := queryBool(r, "debug")
	if err != nil {
		return recommend.Request{}, err
	}

	return recommend.Request{
		UserID:          userID,
		Limit:           limit,
		Since:           since,
		GroupsOnly:      groupsOnly,
		ExcludeOwnPosts: excludeOwn,
		MinScore:        minScore,
		Query:           r.URL.Query().Get("q"),
		Hashtags:        queryList(r, "hashtags"),
		Debug:           debug,
	}, nil
}
