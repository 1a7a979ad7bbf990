// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package recommend

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/config"
	"github.com/baifan1366/Studify-sub011/internal/similarity"
)

const scoreEpsilon = 1e-9

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < scoreEpsilon
}

func testRecommendConfig() config.RecommendConfig {
	return config.RecommendConfig{
		RulesWeight:       0.6,
		EmbeddingWeight:   0.4,
		ModelAWeight:      0.4,
		ModelBWeight:      0.6,
		FreshnessHalfLife: 72 * time.Hour,
		ReasonThreshold:   0.2,
		DefaultLimit:      20,
		MaxLimit:          100,
		EmbeddingTimeout:  time.Second,
	}
}

func TestOverlapRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"both empty", nil, nil, 0},
		{"one empty", []string{"math"}, nil, 0},
		{"disjoint", []string{"math"}, []string{"art"}, 0},
		{"identical", []string{"math", "art"}, []string{"math", "art"}, 1},
		{"case insensitive", []string{"Math"}, []string{"math"}, 1},
		{"partial over smaller set", []string{"math"}, []string{"math", "art", "music"}, 1},
		{"half overlap", []string{"math", "art"}, []string{"math", "music"}, 0.5},
		{"duplicates collapse", []string{"math"}, []string{"math", "math"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := overlapRatio(tt.a, tt.b); !closeTo(got, tt.want) {
				t.Errorf("overlapRatio(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestAffinityScore(t *testing.T) {
	if got := affinityScore(0); got != 0 {
		t.Errorf("affinityScore(0) = %v, want 0", got)
	}
	if got := affinityScore(5); !closeTo(got, 0.5) {
		t.Errorf("affinityScore(5) = %v, want 0.5", got)
	}
	if affinityScore(100) <= affinityScore(10) {
		t.Error("affinity should grow with interaction count")
	}
	if affinityScore(1000000) > 1 {
		t.Error("affinity must stay bounded by 1")
	}
}

func TestFreshnessScore(t *testing.T) {
	halfLife := 72 * time.Hour

	if got := freshnessScore(0, halfLife); got != 1 {
		t.Errorf("zero age = %v, want 1", got)
	}
	if got := freshnessScore(-time.Hour, halfLife); got != 1 {
		t.Errorf("future content = %v, want 1", got)
	}
	if got := freshnessScore(halfLife, halfLife); !closeTo(got, 0.5) {
		t.Errorf("one half-life = %v, want 0.5", got)
	}
	if got := freshnessScore(2*halfLife, halfLife); !closeTo(got, 0.25) {
		t.Errorf("two half-lives = %v, want 0.25", got)
	}
	if got := freshnessScore(time.Hour, 0); got != 0 {
		t.Errorf("zero half-life = %v, want 0", got)
	}
}

func TestReasonCodes(t *testing.T) {
	t.Run("picks top factors above threshold", func(t *testing.T) {
		sub := SubScores{
			InterestOverlap: 0.9,
			Freshness:       0.8,
			AuthorAffinity:  0.5,
			GroupMembership: 0.1,
		}
		codes := reasonCodes(sub, 0.2)
		want := []string{ReasonMatchesInterests, ReasonNewlyPosted, ReasonAuthorYouLike}
		if len(codes) != len(want) {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
		for i := range want {
			if codes[i] != want[i] {
				t.Errorf("codes[%d] = %q, want %q", i, codes[i], want[i])
			}
		}
	})

	t.Run("caps at three", func(t *testing.T) {
		sub := SubScores{1, 1, 1, 1, 1, 1}
		if codes := reasonCodes(sub, 0.2); len(codes) != maxReasonCodes {
			t.Errorf("codes = %v, want at most %d", codes, maxReasonCodes)
		}
	})

	t.Run("nothing above threshold yields none", func(t *testing.T) {
		sub := SubScores{InterestOverlap: 0.1}
		if codes := reasonCodes(sub, 0.2); len(codes) != 0 {
			t.Errorf("codes = %v, want none", codes)
		}
	})
}

func TestRankScoredDeterministic(t *testing.T) {
	idA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	idB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	scored := []ScoredCandidate{
		{Candidate: Candidate{ContentID: idB}, HybridScore: 0.5},
		{Candidate: Candidate{ContentID: idA}, HybridScore: 0.5},
		{Candidate: Candidate{ContentID: uuid.New()}, HybridScore: 0.9},
	}
	rankScored(scored)

	if scored[0].HybridScore != 0.9 {
		t.Errorf("highest score should rank first, got %v", scored[0].HybridScore)
	}
	if scored[1].ContentID != idA || scored[2].ContentID != idB {
		t.Error("equal scores should tie-break by content id ascending")
	}
}

func TestScoreHybridCombination(t *testing.T) {
	cfg := testRecommendConfig()
	now := time.Now()
	user := UserContext{
		UserID:    uuid.New(),
		Interests: []string{"math"},
	}
	cand := Candidate{
		ContentID: uuid.New(),
		AuthorID:  uuid.New(),
		Tags:      []string{"math"},
		CreatedAt: now,
	}
	sc := newScorer(cfg, user, Request{UserID: user.UserID}, []Candidate{cand}, now)

	t.Run("no embedding renormalizes to rules only", func(t *testing.T) {
		got := sc.score(cand, similarity.Vectors{}, similarity.Vectors{})
		if got.HasEmbeddingSignal {
			t.Error("expected no embedding signal")
		}
		if !closeTo(got.HybridScore, got.RulesScore) {
			t.Errorf("hybrid = %v, want rules score %v", got.HybridScore, got.RulesScore)
		}
	})

	t.Run("embedding signal blends with configured weights", func(t *testing.T) {
		userVecs := similarity.Vectors{A: []float64{1, 0}}
		contentVecs := similarity.Vectors{A: []float64{1, 0}}
		got := sc.score(cand, userVecs, contentVecs)
		if !got.HasEmbeddingSignal {
			t.Fatal("expected embedding signal")
		}
		// Identical vectors give similarity 1.
		want := cfg.RulesWeight*got.RulesScore + cfg.EmbeddingWeight*1.0
		if !closeTo(got.HybridScore, want) {
			t.Errorf("hybrid = %v, want %v", got.HybridScore, want)
		}
	})

	t.Run("debug attaches sub-scores", func(t *testing.T) {
		dbg := newScorer(cfg, user, Request{UserID: user.UserID, Debug: true}, []Candidate{cand}, now)
		got := dbg.score(cand, similarity.Vectors{}, similarity.Vectors{})
		if got.SubScores == nil {
			t.Fatal("expected sub-score breakdown for debug request")
		}
		if !closeTo(got.SubScores.InterestOverlap, 1) {
			t.Errorf("interest overlap = %v, want 1", got.SubScores.InterestOverlap)
		}
	})
}

func TestDedupeCandidates(t *testing.T) {
	id := uuid.New()
	candidates := []Candidate{
		{ContentID: id, Title: "first"},
		{ContentID: uuid.New(), Title: "other"},
		{ContentID: id, Title: "duplicate"},
	}
	out := dedupeCandidates(candidates)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].Title != "first" {
		t.Errorf("dedupe should keep the first occurrence, got %q", out[0].Title)
	}
}
