// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package recommend

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/config"
	"github.com/baifan1366/Studify-sub011/internal/similarity"
)

const (
	// affinitySaturation controls how quickly repeated interactions with
	// the same author saturate toward an affinity of 1.
	affinitySaturation = 5.0

	// trendingFloor is the minimum interaction sub-score for a candidate
	// to enter the trending category.
	trendingFloor = 0.5

	// maxReasonCodes caps the reason codes attached per candidate.
	maxReasonCodes = 3
)

// scorer computes sub-scores and hybrid scores for one request. It is
// built per request because normalization depends on the candidate set.
type scorer struct {
	cfg  config.RecommendConfig
	user UserContext
	req  Request
	now  time.Time

	groups  map[uuid.UUID]struct{}
	maxLog  float64
	weights similarity.Weights
}

func newScorer(cfg config.RecommendConfig, user UserContext, req Request, candidates []Candidate, now time.Time) *scorer {
	groups := make(map[uuid.UUID]struct{}, len(user.GroupIDs))
	for _, g := range user.GroupIDs {
		groups[g] = struct{}{}
	}

	maxInteractions := 0
	for _, c := range candidates {
		if c.InteractionCount > maxInteractions {
			maxInteractions = c.InteractionCount
		}
	}

	return &scorer{
		cfg:     cfg,
		user:    user,
		req:     req,
		now:     now,
		groups:  groups,
		maxLog:  math.Log1p(float64(maxInteractions)),
		weights: similarity.Weights{A: cfg.ModelAWeight, B: cfg.ModelBWeight},
	}
}

// score computes the full breakdown for one candidate. contentVecs may
// be the zero value when the candidate has no embedding.
func (s *scorer) score(c Candidate, userVecs, contentVecs similarity.Vectors) ScoredCandidate {
	sub := SubScores{
		InterestOverlap:  overlapRatio(s.user.Interests, c.Tags),
		GroupMembership:  s.groupScore(c),
		AuthorAffinity:   affinityScore(s.user.AuthorInteractions[c.AuthorID]),
		HashtagRelevance: s.hashtagScore(c),
		InteractionCount: s.interactionScore(c.InteractionCount),
		Freshness:        freshnessScore(s.now.Sub(c.CreatedAt), s.cfg.FreshnessHalfLife),
	}

	rules := (sub.InterestOverlap + sub.GroupMembership + sub.AuthorAffinity +
		sub.HashtagRelevance + sub.InteractionCount + sub.Freshness) / 6

	embSim := similarity.DualModel(userVecs, contentVecs, s.weights)
	hasSignal := hasEmbeddingSignal(userVecs, contentVecs)

	// Renormalize to rules-only when there is no embedding signal; a
	// missing vector must never penalize a candidate.
	hybrid := rules
	if hasSignal {
		hybrid = s.cfg.RulesWeight*rules + s.cfg.EmbeddingWeight*embSim
	}

	sc := ScoredCandidate{
		Candidate:           c,
		RulesScore:          rules,
		EmbeddingSimilarity: embSim,
		HasEmbeddingSignal:  hasSignal,
		HybridScore:         hybrid,
		ReasonCodes:         reasonCodes(sub, s.cfg.ReasonThreshold),
	}
	if s.req.Debug {
		subCopy := sub
		sc.SubScores = &subCopy
	}
	return sc
}

func (s *scorer) groupScore(c Candidate) float64 {
	if c.GroupID == nil {
		return 0
	}
	if _, ok := s.groups[*c.GroupID]; ok {
		return 1
	}
	return 0
}

// hashtagScore prefers the request's explicit hashtags; without them it
// falls back to the user's interests as the comparison set.
func (s *scorer) hashtagScore(c Candidate) float64 {
	ref := s.req.Hashtags
	if len(ref) == 0 {
		ref = s.user.Interests
	}
	return overlapRatio(ref, c.Hashtags)
}

func (s *scorer) interactionScore(count int) float64 {
	if count <= 0 || s.maxLog == 0 {
		return 0
	}
	return math.Log1p(float64(count)) / s.maxLog
}

// overlapRatio is the overlap coefficient between two tag sets,
// case-insensitive: |intersection| / min(|a|, |b|).
func overlapRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	matched := 0
	seen := make(map[string]struct{}, len(b))
	for _, t := range b {
		key := strings.ToLower(strings.TrimSpace(t))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := set[key]; ok {
			matched++
		}
	}
	smaller := len(set)
	if len(seen) < smaller {
		smaller = len(seen)
	}
	if smaller == 0 {
		return 0
	}
	return float64(matched) / float64(smaller)
}

// affinityScore saturates interaction counts so prolific authors do not
// drown out everything else: c/(c+k).
func affinityScore(count int) float64 {
	if count <= 0 {
		return 0
	}
	c := float64(count)
	return c / (c + affinitySaturation)
}

// freshnessScore decays exponentially with content age, halving every
// halfLife. Future-dated content scores 1.
func freshnessScore(age, halfLife time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	if halfLife <= 0 {
		return 0
	}
	return math.Exp2(-age.Hours() / halfLife.Hours())
}

func hasEmbeddingSignal(user, content similarity.Vectors) bool {
	if len(user.A) > 0 && len(content.A) > 0 {
		return true
	}
	return len(user.B) > 0 && len(content.B) > 0
}

// reasonCodes selects up to three factor codes ordered by contribution,
// keeping only factors above the threshold.
func reasonCodes(sub SubScores, threshold float64) []string {
	type factor struct {
		code  string
		value float64
	}
	factors := []factor{
		{ReasonMatchesInterests, sub.InterestOverlap},
		{ReasonFromYourGroup, sub.GroupMembership},
		{ReasonAuthorYouLike, sub.AuthorAffinity},
		{ReasonMatchingHashtags, sub.HashtagRelevance},
		{ReasonPopularNow, sub.InteractionCount},
		{ReasonNewlyPosted, sub.Freshness},
	}
	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].value > factors[j].value
	})

	var codes []string
	for _, f := range factors {
		if f.value < threshold {
			break
		}
		codes = append(codes, f.code)
		if len(codes) == maxReasonCodes {
			break
		}
	}
	return codes
}

// dedupeCandidates keeps one candidate per content id, preferring the
// first occurrence (provider order).
func dedupeCandidates(candidates []Candidate) []Candidate {
	seen := make(map[uuid.UUID]struct{}, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if _, dup := seen[c.ContentID]; dup {
			continue
		}
		seen[c.ContentID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// rankScored sorts descending by hybrid score with a content-id
// tie-break so identical scores rank deterministically.
func rankScored(scored []ScoredCandidate) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].HybridScore != scored[j].HybridScore {
			return scored[i].HybridScore > scored[j].HybridScore
		}
		return scored[i].ContentID.String() < scored[j].ContentID.String()
	})
}

// categorize partitions the ranked set. Filters overlap: one candidate
// may land in several categories. Trending ignores the user's graph so
// it stays populated even for brand-new accounts.
func categorize(ranked []ScoredCandidate, user UserContext) map[Category][]ScoredCandidate {
	cats := map[Category][]ScoredCandidate{
		CategoryFromGroups:     {},
		CategoryAuthorsYouLike: {},
		CategoryTrending:       {},
		CategoryForYou:         {},
	}
	groups := make(map[uuid.UUID]struct{}, len(user.GroupIDs))
	for _, g := range user.GroupIDs {
		groups[g] = struct{}{}
	}

	for _, sc := range ranked {
		cats[CategoryForYou] = append(cats[CategoryForYou], sc)
		if sc.GroupID != nil {
			if _, ok := groups[*sc.GroupID]; ok {
				cats[CategoryFromGroups] = append(cats[CategoryFromGroups], sc)
			}
		}
		if user.AuthorInteractions[sc.AuthorID] > 0 {
			cats[CategoryAuthorsYouLike] = append(cats[CategoryAuthorsYouLike], sc)
		}
	}

	// Trending is re-ranked by raw engagement over the same set.
	trending := make([]ScoredCandidate, 0, len(ranked))
	maxLog := 0.0
	for _, sc := range ranked {
		if l := math.Log1p(float64(sc.InteractionCount)); l > maxLog {
			maxLog = l
		}
	}
	for _, sc := range ranked {
		if maxLog == 0 {
			break
		}
		if math.Log1p(float64(sc.InteractionCount))/maxLog >= trendingFloor {
			trending = append(trending, sc)
		}
	}
	sort.SliceStable(trending, func(i, j int) bool {
		if trending[i].InteractionCount != trending[j].InteractionCount {
			return trending[i].InteractionCount > trending[j].InteractionCount
		}
		return trending[i].ContentID.String() < trending[j].ContentID.String()
	})
	cats[CategoryTrending] = trending

	return cats
}
