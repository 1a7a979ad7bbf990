// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

// Package recommend scores candidate content for a user at read time.
//
// Scoring is hybrid: six rules-based sub-scores (interest overlap,
// group membership, author affinity, hashtag relevance, interaction
// count, freshness) are blended with dual-model embedding similarity.
// When embedding lookups time out or fail the engine renormalizes to a
// rules-only score rather than blocking or penalizing candidates, so a
// degraded vector store never takes recommendations down with it.
//
// The scored set is deduplicated, deterministically ranked, truncated,
// and partitioned into overlapping categories (from_groups,
// authors_you_like, trending, for_you). Responses are cached in badger
// with a TTL keyed by user and request shape.
//
// The package has no dependency on the database layer; callers supply a
// DataProvider.
package recommend
