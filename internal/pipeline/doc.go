// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

// Package pipeline implements the asynchronous content-processing
// pipeline: a durable job store drives uploaded media through the fixed
// step sequence compress, transcribe, embed.
//
// Step execution is stateless and at-least-once. The job row is the
// single source of truth: every transition is a compare-and-set against
// the exact step a message targets, so duplicate or out-of-order
// deliveries become acked no-ops rather than corrupting job state. Heavy
// work never runs on the request path; Create persists the job and
// dispatches the first step out of band.
//
// Failures are classified: transient failures (network, timeout) consume
// the per-step retry budget with exponential backoff re-dispatch, while
// permanent failures (unsupported or corrupt content) fail the job
// immediately.
package pipeline
