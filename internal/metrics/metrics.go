// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

// Package metrics provides Prometheus instrumentation for the pipeline,
// the embedding subsystem, the recommendation engine, and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics

	PipelineStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_step_duration_seconds",
			Help:    "Duration of pipeline step executions in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"step", "outcome"}, // outcome: success, transient_failure, permanent_failure, noop
	)

	PipelineStepRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_step_retries_total",
			Help: "Total number of step retry dispatches",
		},
		[]string{"step"},
	)

	PipelineJobsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_jobs",
			Help: "Number of processing jobs by status (sampled)",
		},
		[]string{"status"},
	)

	PipelineDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_dispatches_total",
			Help: "Total step messages published to the transport",
		},
		[]string{"step"},
	)

	PipelineStaleDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_stale_deliveries_total",
			Help: "Step messages discarded by the tombstone check",
		},
	)

	// Embedding metrics

	EmbeddingQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "embedding_queue_depth",
			Help: "Queued embedding items at last batch claim",
		},
	)

	EmbeddingBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "embedding_batch_duration_seconds",
			Help:    "Duration of embedding generation batches in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EmbeddingItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_items_processed_total",
			Help: "Embedding queue items by final disposition",
		},
		[]string{"outcome"}, // processed, retried, failed
	)

	EmbeddingModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_model_calls_total",
			Help: "Calls to the external embedding models",
		},
		[]string{"model", "status"},
	)

	// Recommendation metrics

	RecommendRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommend_request_duration_seconds",
			Help:    "Recommendation scoring latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	RecommendCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommend_cache_hits_total",
			Help: "Recommendation responses served from cache",
		},
	)

	RecommendDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommend_degraded_total",
			Help: "Recommendation requests scored rules-only because embeddings were unavailable",
		},
	)

	// Transport metrics

	TransportPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transport_publishes_total",
			Help: "Messages published to NATS JetStream",
		},
		[]string{"topic"},
	)

	TransportSignatureRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transport_signature_rejections_total",
			Help: "Step messages rejected due to missing or invalid signatures",
		},
	)

	// API metrics

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordAPIRequest records one completed HTTP request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordTransportPublish records one successful JetStream publish.
func RecordTransportPublish(topic string) {
	TransportPublishes.WithLabelValues(topic).Inc()
}

// RecordStepExecution records one step execution attempt.
func RecordStepExecution(step, outcome string, duration time.Duration) {
	PipelineStepDuration.WithLabelValues(step, outcome).Observe(duration.Seconds())
}
