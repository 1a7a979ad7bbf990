// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package similarity

import "testing"

func TestDualModel(t *testing.T) {
	identityA := []float64{1, 0, 0}
	identityB := []float64{0, 1, 0, 0}

	t.Run("both models available", func(t *testing.T) {
		user := Vectors{A: identityA, B: identityB}
		content := Vectors{A: identityA, B: identityB}

		got := DualModel(user, content, DefaultWeights)
		// Both cosines are 1, normalized to 1; fully weighted sum stays 1.
		if !almostEqual(got, 1) {
			t.Errorf("DualModel() = %v, want 1", got)
		}
	})

	t.Run("only model A on both sides renormalizes", func(t *testing.T) {
		user := Vectors{A: identityA}
		content := Vectors{A: identityA, B: identityB}

		got := DualModel(user, content, DefaultWeights)
		// Single contributing model divides by its own weight, so an
		// identical pair still scores a full 1 rather than 0.4.
		if !almostEqual(got, 1) {
			t.Errorf("DualModel() = %v, want 1", got)
		}
	})

	t.Run("only model B on both sides renormalizes", func(t *testing.T) {
		user := Vectors{B: identityB}
		content := Vectors{B: identityB}

		got := DualModel(user, content, DefaultWeights)
		if !almostEqual(got, 1) {
			t.Errorf("DualModel() = %v, want 1", got)
		}
	})

	t.Run("no overlapping models", func(t *testing.T) {
		user := Vectors{A: identityA}
		content := Vectors{B: identityB}

		got := DualModel(user, content, DefaultWeights)
		if got != 0 {
			t.Errorf("DualModel() = %v, want 0", got)
		}
	})

	t.Run("no vectors at all", func(t *testing.T) {
		got := DualModel(Vectors{}, Vectors{}, DefaultWeights)
		if got != 0 {
			t.Errorf("DualModel() = %v, want 0", got)
		}
	})

	t.Run("opposite vectors normalize to zero", func(t *testing.T) {
		user := Vectors{A: []float64{1, 2, 3}}
		content := Vectors{A: []float64{-1, -2, -3}}

		got := DualModel(user, content, DefaultWeights)
		// Cosine -1 maps to 0 under (x+1)/2.
		if !almostEqual(got, 0) {
			t.Errorf("DualModel() = %v, want 0", got)
		}
	})

	t.Run("weighted blend of differing models", func(t *testing.T) {
		user := Vectors{
			A: []float64{1, 0},
			B: []float64{1, 0},
		}
		content := Vectors{
			A: []float64{1, 0},  // cosine 1 -> normalized 1
			B: []float64{-1, 0}, // cosine -1 -> normalized 0
		}

		got := DualModel(user, content, DefaultWeights)
		want := (0.4*1 + 0.6*0) / (0.4 + 0.6)
		if !almostEqual(got, want) {
			t.Errorf("DualModel() = %v, want %v", got, want)
		}
	})

	t.Run("result stays within unit interval", func(t *testing.T) {
		user := Vectors{
			A: []float64{0.2, -0.8, 0.5},
			B: []float64{-0.4, 0.1, 0.9, 0.3},
		}
		content := Vectors{
			A: []float64{-0.6, 0.3, 0.7},
			B: []float64{0.8, -0.2, 0.1, -0.5},
		}

		got := DualModel(user, content, DefaultWeights)
		if got < 0 || got > 1 {
			t.Errorf("DualModel() = %v, outside [0, 1]", got)
		}
	})
}
