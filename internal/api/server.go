// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package api

import (
	"context"
	"net/http"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/baifan1366/Studify-sub011/internal/config"
	"github.com/baifan1366/Studify-sub011/internal/middleware"
	"github.com/baifan1366/Studify-sub011/internal/models"
	"github.com/baifan1366/Studify-sub011/internal/recommend"
	"github.com/baifan1366/Studify-sub011/internal/transport"
)

// JobService is the pipeline surface the API consumes.
type JobService interface {
	Create(ctx context.Context, contentRef string, ownerID uuid.UUID) (*models.ProcessingJob, bool, error)
	Status(ctx context.Context, jobID uuid.UUID) (*models.ProcessingJob, error)
	ListForOwner(ctx context.Context, ownerID uuid.UUID, status models.JobStatus, limit, offset int) ([]*models.ProcessingJob, error)
	Cancel(ctx context.Context, jobID uuid.UUID) error
}

// StepHandler consumes a signed step message, normally the pipeline
// runner. A returned error means the step could not be accepted and
// the caller should retry delivery.
type StepHandler interface {
	Handle(msg *message.Message) error
}

// EmbeddingEnqueuer is the embedding queue surface the API consumes.
type EmbeddingEnqueuer interface {
	Enqueue(ctx context.Context, contentType models.ContentType, contentID uuid.UUID, priority int) error
}

// Recommender scores content for users.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) (*recommend.Response, error)
}

// ReadinessCheck probes one dependency for the readiness endpoint.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server wires handlers to their dependencies and owns the router.
type Server struct {
	cfg       config.ServerConfig
	jobs      JobService
	steps     StepHandler
	signer    *transport.Signer
	enqueuer  EmbeddingEnqueuer
	recommend Recommender
	readiness []ReadinessCheck

	router chi.Router
}

// NewServer builds the API server. Any dependency may be nil during
// partial deployments; its endpoints then return 503.
func NewServer(cfg config.ServerConfig, jobs JobService, steps StepHandler, signer *transport.Signer, enqueuer EmbeddingEnqueuer, rec Recommender, readiness ...ReadinessCheck) *Server {
	s := &Server{
		cfg:       cfg,
		jobs:      jobs,
		steps:     steps,
		signer:    signer,
		enqueuer:  enqueuer,
		recommend: rec,
		readiness: readiness,
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the configured HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Prometheus)
	r.Use(middleware.Compression)

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if s.cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimit, s.cfg.RateLimitWindow))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleJobStatus)
		r.Post("/jobs/{id}/cancel", s.handleCancelJob)

		r.Post("/pipeline/steps", s.handleStepExecution)

		r.Post("/embeddings/queue", s.handleEnqueueEmbedding)

		r.Get("/recommendations", s.handleRecommendations)

		r.Get("/health/live", s.handleLiveness)
		r.Get("/health/ready", s.handleReadiness)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
