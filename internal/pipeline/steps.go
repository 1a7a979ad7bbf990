// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package pipeline

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/models"
)

// stepOrder is the fixed pipeline sequence for media content. Steps only
// advance forward through this order.
var stepOrder = []models.PipelineStep{
	models.StepCompress,
	models.StepTranscribe,
	models.StepEmbed,
}

// stepProgress maps each step to the job's cumulative progress once that
// step completes. Compression dominates wall-clock time for large
// uploads, so it carries the largest share.
var stepProgress = map[models.PipelineStep]int{
	models.StepCompress:   40,
	models.StepTranscribe: 75,
	models.StepEmbed:      100,
}

// FirstStep returns the entry step of the pipeline.
func FirstStep() models.PipelineStep {
	return stepOrder[0]
}

// NextStep returns the step after s, or false if s is the final step.
func NextStep(s models.PipelineStep) (models.PipelineStep, bool) {
	for i, step := range stepOrder {
		if step == s && i+1 < len(stepOrder) {
			return stepOrder[i+1], true
		}
	}
	return "", false
}

// ProgressAfter returns the job progress percentage once step completes.
func ProgressAfter(step models.PipelineStep) int {
	if p, ok := stepProgress[step]; ok {
		return p
	}
	return 0
}

// ContentRef identifies the content a job processes, in the form
// "<content_type>:<uuid>", e.g. "lesson:2f9c…".
type ContentRef struct {
	Type models.ContentType
	ID   uuid.UUID
}

// String renders the canonical reference form.
func (r ContentRef) String() string {
	return string(r.Type) + ":" + r.ID.String()
}

// ParseContentRef parses a reference string. Malformed references are a
// permanent failure: retrying cannot repair a bad reference.
func ParseContentRef(ref string) (ContentRef, error) {
	kind, id, ok := strings.Cut(ref, ":")
	if !ok {
		return ContentRef{}, fmt.Errorf("content ref %q missing type separator", ref)
	}
	ct := models.ContentType(kind)
	if !ct.Valid() {
		return ContentRef{}, fmt.Errorf("content ref %q has unknown type %q", ref, kind)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ContentRef{}, fmt.Errorf("content ref %q has invalid id: %w", ref, err)
	}
	return ContentRef{Type: ct, ID: parsed}, nil
}
