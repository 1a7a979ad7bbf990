// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

// Package models defines the shared domain types for the content-processing
// pipeline and the embedding subsystem: processing jobs with their step
// history, embedding-queue items, content embeddings, and the standard API
// response envelope.
//
// The package is dependency-light so it can be imported from every layer
// without creating cycles.
package models
