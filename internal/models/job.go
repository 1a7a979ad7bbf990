// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a processing job.
//
// Transitions:
//
//	pending → processing → {completed | failed | cancelled}
//	processing ⇄ retrying (bounded by MaxRetries)
//	any non-terminal state → cancelled on explicit request
//
// Terminal states (completed, failed, cancelled) are immutable.
type JobStatus string

const (
	// JobStatusPending means the job is created but no step has started.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing means a step executor is working on the job.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusRetrying means the last step attempt failed transiently and
	// a re-dispatch with backoff is scheduled.
	JobStatusRetrying JobStatus = "retrying"
	// JobStatusCompleted means all pipeline steps finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed means the job stopped permanently, either because a
	// step failed with a permanent error or retries were exhausted.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled means the owner cancelled the job before it
	// reached a terminal state.
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is a legal
// state-machine transition.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case JobStatusCancelled:
		return true
	case JobStatusProcessing:
		return s == JobStatusPending || s == JobStatusRetrying || s == JobStatusProcessing
	case JobStatusRetrying:
		return s == JobStatusProcessing
	case JobStatusCompleted, JobStatusFailed:
		return s == JobStatusProcessing || s == JobStatusRetrying
	case JobStatusPending:
		return false
	default:
		return false
	}
}

// Valid reports whether s is a known status value.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusRetrying,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// PipelineStep identifies one discrete unit of work in the fixed ordered
// sequence a job passes through. Ordering is owned by the pipeline package.
type PipelineStep string

const (
	// StepCompress shrinks uploaded media, recording original size and
	// type as audit metadata.
	StepCompress PipelineStep = "compress"
	// StepTranscribe produces a transcript via the external
	// speech-to-text collaborator.
	StepTranscribe PipelineStep = "transcribe"
	// StepEmbed queues the content for embedding generation and is the
	// terminal pipeline step.
	StepEmbed PipelineStep = "embed"
)

// Valid reports whether s is a known pipeline step.
func (s PipelineStep) Valid() bool {
	switch s {
	case StepCompress, StepTranscribe, StepEmbed:
		return true
	default:
		return false
	}
}

// StepStatus is the outcome of a single step attempt.
type StepStatus string

const (
	// StepStatusRunning means the attempt is in progress.
	StepStatusRunning StepStatus = "running"
	// StepStatusSucceeded means the attempt completed successfully.
	StepStatusSucceeded StepStatus = "succeeded"
	// StepStatusFailed means the attempt failed.
	StepStatusFailed StepStatus = "failed"
)

// ProcessingJob is the durable record of one content item moving through
// the processing pipeline. The job row is the single source of truth:
// step executors transition it with compare-and-set semantics so duplicate
// or out-of-order message delivery is safe by construction.
type ProcessingJob struct {
	ID          uuid.UUID    `json:"id"`
	ContentRef  string       `json:"content_ref"`
	OwnerID     uuid.UUID    `json:"owner_id"`
	CurrentStep PipelineStep `json:"current_step"`
	Status      JobStatus    `json:"status"`

	// ProgressPercentage is 0-100 and monotonically non-decreasing until
	// the job reaches a terminal state.
	ProgressPercentage int `json:"progress_percentage"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	// ErrorMessage holds the verbatim step error for operator visibility.
	// It is never exposed through user-facing status responses.
	ErrorMessage string `json:"error_message,omitempty"`

	// DispatchMsgID is the transport message id of the most recent step
	// dispatch, persisted for traceability.
	DispatchMsgID string `json:"dispatch_msg_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	// StepHistory is the ordered list of step attempts, oldest first.
	StepHistory []StepRecord `json:"step_history,omitempty"`
}

// StepRecord captures one attempt of one pipeline step.
type StepRecord struct {
	StepName        PipelineStep `json:"step_name"`
	Status          StepStatus   `json:"status"`
	StartedAt       time.Time    `json:"started_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	DurationSeconds float64      `json:"duration_seconds"`
	RetryCount      int          `json:"retry_count"`
	ErrorMessage    string       `json:"error_message,omitempty"`
}

// UserFacingSummary maps the internal state to the coarse status plus a
// human summary exposed by the job API. Raw internal error text stays on
// the job record.
func (j *ProcessingJob) UserFacingSummary() (JobStatus, string) {
	switch j.Status {
	case JobStatusPending, JobStatusProcessing, JobStatusRetrying:
		return JobStatusProcessing, "Your content is being processed."
	case JobStatusCompleted:
		return JobStatusCompleted, "Processing finished."
	case JobStatusFailed:
		return JobStatusFailed, "Processing failed. Our team has been notified."
	case JobStatusCancelled:
		return JobStatusCancelled, "Processing was cancelled."
	default:
		return j.Status, ""
	}
}
