// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

// Package embedding maintains the embedding queue and generates content
// vectors through external embedding models.
//
// Enqueue extracts a canonical text representation per content type,
// hashes it, and upserts a queue item keyed on (content type, content
// id). The generator claims queued items in priority batches, calls up
// to two independent embedding models, and persists the resulting
// vectors. One item's failure never aborts its batch; items retry up to a
// bounded ceiling and are then parked as failed.
package embedding
