// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/logging"
	"github.com/baifan1366/Studify-sub011/internal/models"
	"github.com/baifan1366/Studify-sub011/internal/pipeline"
	"github.com/baifan1366/Studify-sub011/internal/validation"
)

// JobResponse is the user-facing job view. Status is the coarse state
// and Summary a human sentence; raw internal error text never appears.
type JobResponse struct {
	ID          uuid.UUID           `json:"id"`
	ContentRef  string              `json:"content_ref"`
	Status      models.JobStatus    `json:"status"`
	Summary     string              `json:"summary"`
	CurrentStep models.PipelineStep `json:"current_step"`
	Progress    int                 `json:"progress_percentage"`
	CreatedAt   time.Time           `json:"created_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Steps       []StepView          `json:"steps,omitempty"`
}

// StepView is one step-history entry without operator detail.
type StepView struct {
	Step            models.PipelineStep `json:"step"`
	Status          models.StepStatus   `json:"status"`
	StartedAt       time.Time           `json:"started_at"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	DurationSeconds float64             `json:"duration_seconds"`
	RetryCount      int                 `json:"retry_count"`
}

func jobResponse(job *models.ProcessingJob, includeSteps bool) JobResponse {
	status, summary := job.UserFacingSummary()
	resp := JobResponse{
		ID:          job.ID,
		ContentRef:  job.ContentRef,
		Status:      status,
		Summary:     summary,
		CurrentStep: job.CurrentStep,
		Progress:    job.ProgressPercentage,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
	if includeSteps {
		resp.Steps = make([]StepView, 0, len(job.StepHistory))
		for _, rec := range job.StepHistory {
			resp.Steps = append(resp.Steps, StepView{
				Step:            rec.StepName,
				Status:          rec.Status,
				StartedAt:       rec.StartedAt,
				CompletedAt:     rec.CompletedAt,
				DurationSeconds: rec.DurationSeconds,
				RetryCount:      rec.RetryCount,
			})
		}
	}
	return resp
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "job service is not available", nil)
		return
	}

	var req CreateJobRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, apiErr.Message, apiErr.Details)
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "owner_id must be a valid UUID", nil)
		return
	}

	job, created, err := s.jobs.Create(r.Context(), req.ContentRef, ownerID)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("content_ref", req.ContentRef).Msg("job creation failed")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "could not create job", nil)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondSuccess(w, r, status, jobResponse(job, false))
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "job service is not available", nil)
		return
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "job id must be a valid UUID", nil)
		return
	}

	job, err := s.jobs.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, pipeline.ErrJobNotFound) {
			respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "job not found", nil)
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Str("job_id", jobID.String()).Msg("job status lookup failed")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "could not load job", nil)
		return
	}

	respondSuccess(w, r, http.StatusOK, jobResponse(job, true))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "job service is not available", nil)
		return
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "job id must be a valid UUID", nil)
		return
	}

	switch err := s.jobs.Cancel(r.Context(), jobID); {
	case err == nil:
		respondSuccess(w, r, http.StatusOK, map[string]interface{}{
			"id":     jobID,
			"status": models.JobStatusCancelled,
		})
	case errors.Is(err, pipeline.ErrJobNotFound):
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "job not found", nil)
	case errors.Is(err, pipeline.ErrNotCancellable):
		respondError(w, r, http.StatusConflict, ErrCodeConflict, "job is already finished", nil)
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("job_id", jobID.String()).Msg("job cancel failed")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "could not cancel job", nil)
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "job service is not available", nil)
		return
	}

	ownerID, err := queryUUID(r, "owner_id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}

	status := models.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "unknown job status", nil)
		return
	}

	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	jobs, err := s.jobs.ListForOwner(r.Context(), ownerID, status, limit, offset)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("owner_id", ownerID.String()).Msg("job list failed")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "could not list jobs", nil)
		return
	}

	views := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, jobResponse(job, false))
	}
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{
		"jobs":   views,
		"limit":  limit,
		"offset": offset,
	})
}
