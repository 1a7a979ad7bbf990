// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package recommend

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/models"
)

// Category names a partition of the scored set. A candidate may appear
// in several categories.
type Category string

const (
	// CategoryFromGroups holds content from groups the user belongs to.
	CategoryFromGroups Category = "from_groups"
	// CategoryAuthorsYouLike holds content by authors the user has
	// interacted with before.
	CategoryAuthorsYouLike Category = "authors_you_like"
	// CategoryTrending holds content with high recent engagement,
	// independent of the user's own graph.
	CategoryTrending Category = "trending"
	// CategoryForYou is the full personalized ranking.
	CategoryForYou Category = "for_you"
)

// Reason codes surfaced to users, ordered here by display priority.
const (
	ReasonMatchesInterests = "matches_your_interests"
	ReasonFromYourGroup    = "from_your_group"
	ReasonAuthorYouLike    = "author_you_like"
	ReasonMatchingHashtags = "matching_hashtags"
	ReasonPopularNow       = "popular_now"
	ReasonNewlyPosted      = "newly_posted"
)

// Request describes one recommendation read.
type Request struct {
	UserID uuid.UUID `json:"user_id"`

	// Limit caps the ranked result. Zero means the configured default.
	Limit int `json:"limit,omitempty"`

	// Since excludes content created before this instant. Zero means no
	// lower bound.
	Since time.Time `json:"since,omitempty"`

	// GroupsOnly restricts the personalized ranking to content from the
	// user's groups. Trending is still computed over the full set.
	GroupsOnly bool `json:"groups_only,omitempty"`

	// ExcludeOwnPosts drops candidates authored by the requesting user.
	ExcludeOwnPosts bool `json:"exclude_own_posts,omitempty"`

	// MinScore drops candidates whose hybrid score falls below it.
	MinScore float64 `json:"min_score,omitempty"`

	// Query is a free-text filter matched against candidate titles.
	Query string `json:"query,omitempty"`

	// Hashtags biases hashtag relevance toward these tags instead of
	// the user's stored interests.
	Hashtags []string `json:"hashtags,omitempty"`

	// Debug attaches the per-factor breakdown to each result.
	Debug bool `json:"debug,omitempty"`
}

// Validate rejects requests that cannot be scored.
func (r Request) Validate() error {
	if r.UserID == uuid.Nil {
		return fmt.Errorf("user id is required")
	}
	if r.Limit < 0 {
		return fmt.Errorf("limit must be non-negative")
	}
	if r.MinScore < 0 || r.MinScore > 1 {
		return fmt.Errorf("min_score must be in [0,1]")
	}
	return nil
}

// Candidate is one piece of content eligible for recommendation, as
// supplied by the DataProvider.
type Candidate struct {
	ContentID   uuid.UUID          `json:"content_id"`
	ContentType models.ContentType `json:"content_type"`
	AuthorID    uuid.UUID          `json:"author_id"`

	// GroupID is the originating group, nil for ungrouped content.
	GroupID *uuid.UUID `json:"group_id,omitempty"`

	Title    string   `json:"title"`
	Tags     []string `json:"tags,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`

	// InteractionCount is total engagement (views, likes, comments).
	InteractionCount int `json:"interaction_count"`

	CreatedAt time.Time `json:"created_at"`
}

// SubScores is the rules-based factor breakdown, each in [0,1].
type SubScores struct {
	InterestOverlap  float64 `json:"interest_overlap"`
	GroupMembership  float64 `json:"group_membership"`
	AuthorAffinity   float64 `json:"author_affinity"`
	HashtagRelevance float64 `json:"hashtag_relevance"`
	InteractionCount float64 `json:"interaction_count"`
	Freshness        float64 `json:"freshness"`
}

// ScoredCandidate is a candidate with its computed scores.
type ScoredCandidate struct {
	Candidate

	// RulesScore is the combined rules-based score in [0,1].
	RulesScore float64 `json:"rules_score"`

	// EmbeddingSimilarity is the dual-model similarity in [0,1]. Only
	// meaningful when HasEmbeddingSignal is true.
	EmbeddingSimilarity float64 `json:"embedding_similarity"`
	HasEmbeddingSignal  bool    `json:"has_embedding_signal"`

	// HybridScore is the final ranking score in [0,1].
	HybridScore float64 `json:"hybrid_score"`

	// ReasonCodes names the 2-3 factors that contributed most.
	ReasonCodes []string `json:"reason_codes,omitempty"`

	// SubScores is attached only for debug requests.
	SubScores *SubScores `json:"sub_scores,omitempty"`
}

// Response is a scored, categorized recommendation result.
type Response struct {
	// Items is the deduplicated personalized ranking, best first.
	Items []ScoredCandidate `json:"items"`

	// Categories partitions the same scored set by category filters.
	Categories map[Category][]ScoredCandidate `json:"categories"`

	GeneratedAt time.Time `json:"generated_at"`

	// Degraded is true when embedding lookups were unavailable and
	// scoring fell back to rules only.
	Degraded bool `json:"degraded"`

	CacheHit bool `json:"cache_hit"`

	// Debug carries request timing for debug requests.
	Debug *DebugInfo `json:"debug,omitempty"`
}

// DebugInfo is the optional observability breakdown.
type DebugInfo struct {
	CandidateCount   int           `json:"candidate_count"`
	ScoredCount      int           `json:"scored_count"`
	EmbeddingLookups int           `json:"embedding_lookups"`
	Duration         time.Duration `json:"duration"`
}
