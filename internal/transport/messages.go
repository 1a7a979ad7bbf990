// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package transport

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/models"
)

// SignatureHeader is the message metadata key carrying the HS256 token.
const SignatureHeader = "signature"

// RequestIDHeader is the message metadata key carrying the originating
// HTTP request id, propagated for log correlation across dispatches.
const RequestIDHeader = "request_id"

// StepMessage is the payload of a step-execution request. The transport
// delivers it at least once; executors must treat duplicates and
// messages for already-advanced jobs as acked no-ops.
type StepMessage struct {
	JobID        uuid.UUID           `json:"job_id"`
	Step         models.PipelineStep `json:"step"`
	DispatchedAt time.Time           `json:"dispatched_at"`

	// Attempt counts dispatches of this step for this job, starting at 0.
	// Used for log correlation only; the retry budget lives on the job.
	Attempt int `json:"attempt"`
}

// Validate checks required fields before marshaling.
func (m *StepMessage) Validate() error {
	if m.JobID == uuid.Nil {
		return fmt.Errorf("step message missing job id")
	}
	if !m.Step.Valid() {
		return fmt.Errorf("step message has unknown step %q", m.Step)
	}
	if m.DispatchedAt.IsZero() {
		return fmt.Errorf("step message missing dispatch timestamp")
	}
	return nil
}

// MarshalStepMessage encodes a step message to JSON bytes.
func MarshalStepMessage(m *StepMessage) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("validate step message: %w", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal step message: %w", err)
	}
	return data, nil
}

// UnmarshalStepMessage decodes JSON bytes into a step message.
func UnmarshalStepMessage(data []byte) (*StepMessage, error) {
	var m StepMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal step message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("validate step message: %w", err)
	}
	return &m, nil
}
