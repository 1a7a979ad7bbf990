// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package models

import (
	"time"
)

// APIResponse is the standardized response wrapper used by all HTTP
// endpoints.
//
// Status field values:
//   - "success": request completed, see Data
//   - "error": request failed, see Error
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
type Metadata struct {
	// Timestamp is server time when the response was generated.
	Timestamp time.Time `json:"timestamp"`

	// QueryTimeMS is the handler execution time in milliseconds.
	QueryTimeMS int64 `json:"query_time_ms,omitempty"`

	// Cached indicates the response was served from cache.
	Cached bool `json:"cached,omitempty"`
}

// APIError carries a machine-readable code and a human-readable message.
// Details is optional structured context (e.g. the failing field).
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
