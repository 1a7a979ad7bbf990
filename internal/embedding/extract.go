// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/baifan1366/Studify-sub011/internal/models"
)

// ContentFields carries the raw fields of one content item. Only the
// fields relevant to the item's type are consulted during extraction.
type ContentFields struct {
	// Profile fields.
	Name string `json:"name,omitempty"`
	Bio  string `json:"bio,omitempty"`
	Role string `json:"role,omitempty"`

	// Shared fields.
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Body        string `json:"body,omitempty"`

	// Course fields.
	Tags         []string `json:"tags,omitempty"`
	Requirements []string `json:"requirements,omitempty"`
	Objectives   []string `json:"objectives,omitempty"`

	// Lesson fields.
	Transcript string `json:"transcript,omitempty"`
}

// ExtractText builds the canonical text representation used for
// embedding one content item. The representation is deterministic so
// the content hash only changes when the meaningful text changes.
func ExtractText(contentType models.ContentType, f ContentFields) string {
	var parts []string
	switch contentType {
	case models.ContentTypeProfile:
		parts = []string{f.Name, f.Bio, f.Role}
	case models.ContentTypeCourse:
		parts = []string{
			f.Title, f.Description,
			strings.Join(f.Tags, " "),
			strings.Join(f.Requirements, " "),
			strings.Join(f.Objectives, " "),
		}
	case models.ContentTypePost:
		parts = []string{f.Title, f.Body}
	case models.ContentTypeComment:
		parts = []string{f.Body}
	case models.ContentTypeLesson:
		parts = []string{f.Title, f.Description, f.Transcript}
	default:
		return ""
	}

	nonEmpty := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n")
}

// HashText returns the stable content hash over extracted text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
