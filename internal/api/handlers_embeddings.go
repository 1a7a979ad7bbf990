// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/logging"
	"github.com/baifan1366/Studify-sub011/internal/models"
	"github.com/baifan1366/Studify-sub011/internal/validation"
)

func (s *Server) handleEnqueueEmbedding(w http.ResponseWriter, r *http.Request) {
	if s.enqueuer == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "embedding queue is not available", nil)
		return
	}

	var req EnqueueEmbeddingRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, apiErr.Message, apiErr.Details)
		return
	}

	contentID, err := uuid.Parse(req.ContentID)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "content_id must be a valid UUID", nil)
		return
	}

	contentType := models.ContentType(req.ContentType)
	if err := s.enqueuer.Enqueue(r.Context(), contentType, contentID, req.Priority); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).
			Str("content_type", req.ContentType).
			Str("content_id", req.ContentID).
			Msg("embedding enqueue failed")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "could not enqueue content", nil)
		return
	}

	respondSuccess(w, r, http.StatusAccepted, map[string]interface{}{
		"content_type": contentType,
		"content_id":   contentID,
		"priority":     req.Priority,
	})
}
