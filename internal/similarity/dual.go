// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package similarity

// Vectors is one side's embeddings across the two models. Either vector
// may be nil when that model has not produced output for the content.
type Vectors struct {
	A []float64
	B []float64
}

// Weights controls the contribution of each model to the combined score.
type Weights struct {
	A float64
	B float64
}

// DefaultWeights favors model B, which produces higher-dimensional
// vectors and measurably better ranking quality.
var DefaultWeights = Weights{A: 0.4, B: 0.6}

// DualModel combines cosine similarity across the two embedding spaces
// into a single score in [0, 1].
//
// A model contributes only when both sides carry its vector. Each
// contributing cosine is mapped from [-1, 1] to [0, 1] via (x+1)/2,
// weighted, and summed; the sum is divided by the weight actually used,
// so a single available model still produces a full-range score.
// Returns 0 when no model is available on both sides.
func DualModel(user, content Vectors, w Weights) float64 {
	var sum, used float64

	if len(user.A) > 0 && len(content.A) > 0 {
		sum += w.A * normalize(Cosine(user.A, content.A))
		used += w.A
	}
	if len(user.B) > 0 && len(content.B) > 0 {
		sum += w.B * normalize(Cosine(user.B, content.B))
		used += w.B
	}
	if used == 0 {
		return 0
	}
	return sum / used
}

// normalize maps a cosine in [-1, 1] onto [0, 1].
func normalize(cos float64) float64 {
	return (cos + 1) / 2
}
