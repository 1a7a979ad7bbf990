// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

/*
Package api exposes the HTTP surface of the platform.

Endpoints (all JSON, wrapped in models.APIResponse):

	POST   /api/v1/jobs                 create a processing job (idempotent per content ref)
	GET    /api/v1/jobs                 list a user's jobs (status filter, pagination)
	GET    /api/v1/jobs/{id}            job status with step history and progress
	POST   /api/v1/jobs/{id}/cancel     cancel a non-terminal job
	POST   /api/v1/pipeline/steps       signed step-execution ingress
	POST   /api/v1/embeddings/queue     idempotent embedding enqueue
	GET    /api/v1/recommendations      scored, categorized recommendations
	GET    /api/v1/health/live          process liveness
	GET    /api/v1/health/ready         dependency readiness
	GET    /metrics                     Prometheus metrics

Job status responses expose coarse state and a human summary only;
internal error text never leaves the job record. The step-execution
ingress verifies the transport signature before any work and rejects
unsigned or forged requests with 401.
*/
package api
