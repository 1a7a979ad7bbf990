// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package config

import "testing"

func validTestConfig() *Config {
	cfg := defaultConfig()
	cfg.Embedding.ModelAURL = "http://localhost:9000/embed"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	t.Run("defaults with a model URL are valid", func(t *testing.T) {
		if err := validTestConfig().Validate(); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	})

	t.Run("hybrid weights must sum to one", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Recommend.RulesWeight = 0.5
		cfg.Recommend.EmbeddingWeight = 0.4
		if err := cfg.Validate(); err == nil {
			t.Error("Expected weight-sum validation error")
		}
	})

	t.Run("at least one embedding model required", func(t *testing.T) {
		cfg := defaultConfig()
		if err := cfg.Validate(); err == nil {
			t.Error("Expected missing model URL error")
		}
	})

	t.Run("backoff window must be ordered", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Pipeline.MaxBackoff = cfg.Pipeline.InitialBackoff / 2
		if err := cfg.Validate(); err == nil {
			t.Error("Expected backoff window error")
		}
	})

	t.Run("backoff multiplier below one rejected", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Pipeline.BackoffMultiplier = 0.5
		if err := cfg.Validate(); err == nil {
			t.Error("Expected multiplier error")
		}
	})
}
