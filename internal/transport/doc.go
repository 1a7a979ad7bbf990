// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

// Package transport provides the at-least-once message delivery layer for
// asynchronous pipeline step execution, built on Watermill over NATS
// JetStream.
//
// The package wraps four concerns:
//
//   - An optional embedded NATS server for self-contained single-binary
//     deployments (EmbeddedServer).
//   - A resilient JetStream publisher with circuit breaker protection and
//     Nats-Msg-Id deduplication (Publisher).
//   - A durable queue-group subscriber for load-balanced step execution
//     across instances (Subscriber).
//   - A Watermill router with recovery, retry, and poison-queue middleware
//     (Router).
//
// Every step message is signed with HMAC-SHA256 (Signer); executors reject
// unsigned, forged, or expired messages before touching the job store.
// Delivery is at-least-once: consumers must treat duplicate and
// out-of-order messages as acked no-ops.
package transport
