// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package models

import (
	"time"

	"github.com/google/uuid"
)

// ContentType identifies the kind of content an embedding-queue item or
// embedding belongs to. Each type has its own canonical text extraction.
type ContentType string

const (
	// ContentTypeProfile is a user profile (name, bio, role).
	ContentTypeProfile ContentType = "profile"
	// ContentTypeCourse is a course (title, description, tags,
	// requirements, objectives).
	ContentTypeCourse ContentType = "course"
	// ContentTypePost is a community post (title, body).
	ContentTypePost ContentType = "post"
	// ContentTypeComment is a comment (body).
	ContentTypeComment ContentType = "comment"
	// ContentTypeLesson is a lesson (title, description, transcript).
	ContentTypeLesson ContentType = "lesson"
)

// Valid reports whether t is a known content type.
func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeProfile, ContentTypeCourse, ContentTypePost,
		ContentTypeComment, ContentTypeLesson:
		return true
	default:
		return false
	}
}

// QueueStatus is the lifecycle state of an embedding-queue item.
// Terminal queue states (processed, failed) are immutable; the generator
// exclusively owns these transitions.
type QueueStatus string

const (
	// QueueStatusQueued means the item is awaiting embedding generation.
	QueueStatusQueued QueueStatus = "queued"
	// QueueStatusProcessed means vectors were generated and persisted.
	QueueStatusProcessed QueueStatus = "processed"
	// QueueStatusFailed means the retry ceiling was reached; the item is
	// excluded from future batches.
	QueueStatusFailed QueueStatus = "failed"
)

// EmbeddingQueueItem is a unit of embedding work, unique per
// (ContentType, ContentID). Re-enqueueing the same key replaces stale
// text and hash and resets the status to queued.
type EmbeddingQueueItem struct {
	ID          uuid.UUID   `json:"id"`
	ContentType ContentType `json:"content_type"`
	ContentID   uuid.UUID   `json:"content_id"`

	// ExtractedText is the canonical text representation for this
	// content type, produced at enqueue time.
	ExtractedText string `json:"extracted_text"`

	// ContentHash is a stable hash over ExtractedText, used to skip
	// regeneration when content has not actually changed.
	ContentHash string `json:"content_hash"`

	// Priority orders batch claiming; lower values are more urgent.
	Priority int `json:"priority"`

	Status      QueueStatus `json:"status"`
	RetryCount  int         `json:"retry_count"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	ProcessedAt *time.Time  `json:"processed_at,omitempty"`
}

// ContentEmbedding holds the dual-model vector representations of one
// content item. Either vector may be absent; consumers must degrade
// gracefully rather than fail on a missing model.
type ContentEmbedding struct {
	ContentType ContentType `json:"content_type"`
	ContentID   uuid.UUID   `json:"content_id"`

	VectorA []float64 `json:"vector_a,omitempty"`
	VectorB []float64 `json:"vector_b,omitempty"`

	HasVectorA bool `json:"has_vector_a"`
	HasVectorB bool `json:"has_vector_b"`

	ContentHash string    `json:"content_hash,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
