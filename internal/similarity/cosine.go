// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

// Package similarity computes vector similarity over one or two embedding
// spaces. All functions are pure and never fail: degenerate input (missing,
// empty, zero-magnitude, or mismatched vectors) yields 0 rather than an
// error, so callers degrade gracefully when embeddings are absent.
package similarity

import "math"

// Cosine returns the cosine similarity of a and b in [-1, 1].
// It returns 0 when either vector is nil, empty, zero-magnitude, or the
// lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
