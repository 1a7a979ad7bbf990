// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/models"
	"github.com/baifan1366/Studify-sub011/internal/store"
	"github.com/baifan1366/Studify-sub011/internal/transport"
)

// fakeJobStore mimics the Postgres store's compare-and-set transition
// semantics in memory.
type fakeJobStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*models.ProcessingJob
	records []models.StepRecord
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*models.ProcessingJob)}
}

func (f *fakeJobStore) put(job *models.ProcessingJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
}

func (f *fakeJobStore) get(id uuid.UUID) models.ProcessingJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.jobs[id]
}

func (f *fakeJobStore) active(job *models.ProcessingJob) bool {
	switch job.Status {
	case models.JobStatusPending, models.JobStatusProcessing, models.JobStatusRetrying:
		return true
	}
	return false
}

func (f *fakeJobStore) ClaimStep(_ context.Context, jobID uuid.UUID, step models.PipelineStep) (*models.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok || job.CurrentStep != step || !f.active(job) {
		return nil, store.ErrStaleTransition
	}
	job.Status = models.JobStatusProcessing
	copied := *job
	return &copied, nil
}

func (f *fakeJobStore) AdvanceStep(_ context.Context, jobID uuid.UUID, from, to models.PipelineStep, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok || job.CurrentStep != from ||
		(job.Status != models.JobStatusProcessing && job.Status != models.JobStatusRetrying) {
		return store.ErrStaleTransition
	}
	job.CurrentStep = to
	job.RetryCount = 0
	if progress > job.ProgressPercentage {
		job.ProgressPercentage = progress
	}
	job.Status = models.JobStatusProcessing
	return nil
}

func (f *fakeJobStore) CompleteJob(_ context.Context, jobID uuid.UUID, from models.PipelineStep) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok || job.CurrentStep != from ||
		(job.Status != models.JobStatusProcessing && job.Status != models.JobStatusRetrying) {
		return store.ErrStaleTransition
	}
	job.Status = models.JobStatusCompleted
	job.ProgressPercentage = 100
	return nil
}

func (f *fakeJobStore) MarkRetrying(_ context.Context, jobID uuid.UUID, step models.PipelineStep, errMsg string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok || job.CurrentStep != step ||
		(job.Status != models.JobStatusProcessing && job.Status != models.JobStatusRetrying) {
		return 0, store.ErrStaleTransition
	}
	job.Status = models.JobStatusRetrying
	job.RetryCount++
	job.ErrorMessage = errMsg
	return job.RetryCount, nil
}

func (f *fakeJobStore) MarkFailed(_ context.Context, jobID uuid.UUID, step models.PipelineStep, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok || job.CurrentStep != step || !f.active(job) {
		return store.ErrStaleTransition
	}
	job.Status = models.JobStatusFailed
	job.ErrorMessage = errMsg
	return nil
}

func (f *fakeJobStore) AppendStepRecord(_ context.Context, _ uuid.UUID, rec models.StepRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

// fakeDispatcher records dispatches without touching a transport.
type fakeDispatcher struct {
	mu           sync.Mutex
	dispatched   []dispatchCall
	redispatched chan dispatchCall
}

type dispatchCall struct {
	jobID   uuid.UUID
	step    models.PipelineStep
	attempt int
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{redispatched: make(chan dispatchCall, 16)}
}

func (f *fakeDispatcher) Dispatch(_ context.Context, jobID uuid.UUID, step models.PipelineStep, attempt int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, dispatchCall{jobID, step, attempt})
	return nil
}

func (f *fakeDispatcher) Redispatch(_ context.Context, jobID uuid.UUID, step models.PipelineStep, attempt int) error {
	f.redispatched <- dispatchCall{jobID, step, attempt}
	return nil
}

func (f *fakeDispatcher) dispatches() []dispatchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatchCall(nil), f.dispatched...)
}

// fakeExecutor runs a canned function for one step.
type fakeExecutor struct {
	step  models.PipelineStep
	fn    func(ctx context.Context, job *models.ProcessingJob) error
	calls int
	mu    sync.Mutex
}

func (f *fakeExecutor) Step() models.PipelineStep { return f.step }

func (f *fakeExecutor) Execute(ctx context.Context, job *models.ProcessingJob) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fn == nil {
		return nil
	}
	return f.fn(ctx, job)
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testSigner(t *testing.T) *transport.Signer {
	t.Helper()
	signer, err := transport.NewSigner("test-secret", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	return signer
}

func signedStepMessage(t *testing.T, signer *transport.Signer, jobID uuid.UUID, step models.PipelineStep) *message.Message {
	t.Helper()
	payload, err := transport.MarshalStepMessage(&transport.StepMessage{
		JobID:        jobID,
		Step:         step,
		DispatchedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("MarshalStepMessage() error = %v", err)
	}
	token, err := signer.Sign(jobID, step, time.Now())
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(transport.SignatureHeader, token)
	return msg
}

func newTestJob(step models.PipelineStep, maxRetries int) *models.ProcessingJob {
	return &models.ProcessingJob{
		ID:          uuid.New(),
		ContentRef:  "lesson:" + uuid.NewString(),
		OwnerID:     uuid.New(),
		CurrentStep: step,
		Status:      models.JobStatusPending,
		MaxRetries:  maxRetries,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestRunnerSuccessAdvancesAndDispatchesNext(t *testing.T) {
	st := newFakeJobStore()
	disp := newFakeDispatcher()
	signer := testSigner(t)

	job := newTestJob(models.StepCompress, 3)
	st.put(job)

	exec := &fakeExecutor{step: models.StepCompress}
	runner := NewRunner(st, signer, disp, time.Minute, exec)

	if err := runner.Handle(signedStepMessage(t, signer, job.ID, models.StepCompress)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := st.get(job.ID)
	if got.CurrentStep != models.StepTranscribe {
		t.Errorf("CurrentStep = %v, want transcribe", got.CurrentStep)
	}
	if got.Status != models.JobStatusProcessing {
		t.Errorf("Status = %v, want processing", got.Status)
	}
	if got.ProgressPercentage != ProgressAfter(models.StepCompress) {
		t.Errorf("Progress = %d, want %d", got.ProgressPercentage, ProgressAfter(models.StepCompress))
	}

	dispatches := disp.dispatches()
	if len(dispatches) != 1 || dispatches[0].step != models.StepTranscribe || dispatches[0].attempt != 0 {
		t.Errorf("dispatches = %+v, want one transcribe attempt 0", dispatches)
	}

	if len(st.records) != 1 || st.records[0].Status != models.StepStatusSucceeded {
		t.Errorf("records = %+v, want one succeeded record", st.records)
	}
}

func TestRunnerFinalStepCompletes(t *testing.T) {
	st := newFakeJobStore()
	disp := newFakeDispatcher()
	signer := testSigner(t)

	job := newTestJob(models.StepEmbed, 3)
	job.ProgressPercentage = 75
	st.put(job)

	exec := &fakeExecutor{step: models.StepEmbed}
	runner := NewRunner(st, signer, disp, time.Minute, exec)

	if err := runner.Handle(signedStepMessage(t, signer, job.ID, models.StepEmbed)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := st.get(job.ID)
	if got.Status != models.JobStatusCompleted {
		t.Errorf("Status = %v, want completed", got.Status)
	}
	if got.ProgressPercentage != 100 {
		t.Errorf("Progress = %d, want 100", got.ProgressPercentage)
	}
	if len(disp.dispatches()) != 0 {
		t.Errorf("final step should not dispatch, got %+v", disp.dispatches())
	}
}

func TestRunnerTransientFailuresThenSuccess(t *testing.T) {
	st := newFakeJobStore()
	disp := newFakeDispatcher()
	signer := testSigner(t)

	job := newTestJob(models.StepTranscribe, 3)
	st.put(job)

	var failures int
	exec := &fakeExecutor{
		step: models.StepTranscribe,
		fn: func(ctx context.Context, j *models.ProcessingJob) error {
			if failures < 2 {
				failures++
				return Transientf("downstream timeout")
			}
			return nil
		},
	}
	runner := NewRunner(st, signer, disp, time.Minute, exec)

	for attempt := 1; attempt <= 2; attempt++ {
		if err := runner.Handle(signedStepMessage(t, signer, job.ID, models.StepTranscribe)); err != nil {
			t.Fatalf("Handle() attempt %d error = %v", attempt, err)
		}

		select {
		case call := <-disp.redispatched:
			if call.step != models.StepTranscribe || call.attempt != attempt {
				t.Errorf("redispatch = %+v, want transcribe attempt %d", call, attempt)
			}
		case <-time.After(time.Second):
			t.Fatalf("no redispatch after transient failure %d", attempt)
		}

		got := st.get(job.ID)
		if got.Status != models.JobStatusRetrying || got.RetryCount != attempt {
			t.Errorf("after failure %d: status=%v retries=%d", attempt, got.Status, got.RetryCount)
		}
	}

	// Third delivery succeeds and advances to embed with a reset counter.
	if err := runner.Handle(signedStepMessage(t, signer, job.ID, models.StepTranscribe)); err != nil {
		t.Fatalf("Handle() final error = %v", err)
	}

	got := st.get(job.ID)
	if got.CurrentStep != models.StepEmbed || got.RetryCount != 0 {
		t.Errorf("after success: step=%v retries=%d, want embed/0", got.CurrentStep, got.RetryCount)
	}
}

func TestRunnerRetryBudgetExhaustion(t *testing.T) {
	st := newFakeJobStore()
	disp := newFakeDispatcher()
	signer := testSigner(t)

	job := newTestJob(models.StepCompress, 1)
	st.put(job)

	exec := &fakeExecutor{
		step: models.StepCompress,
		fn: func(ctx context.Context, j *models.ProcessingJob) error {
			return Transientf("still broken")
		},
	}
	runner := NewRunner(st, signer, disp, time.Minute, exec)

	// First failure consumes the budget and schedules a retry.
	if err := runner.Handle(signedStepMessage(t, signer, job.ID, models.StepCompress)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	<-disp.redispatched

	// Second failure exceeds maxRetries and fails the job terminally.
	if err := runner.Handle(signedStepMessage(t, signer, job.ID, models.StepCompress)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := st.get(job.ID)
	if got.Status != models.JobStatusFailed {
		t.Errorf("Status = %v, want failed", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Error("failed job should capture the error message")
	}

	select {
	case call := <-disp.redispatched:
		t.Errorf("unexpected redispatch after exhaustion: %+v", call)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunnerPermanentFailureFailsImmediately(t *testing.T) {
	st := newFakeJobStore()
	disp := newFakeDispatcher()
	signer := testSigner(t)

	job := newTestJob(models.StepCompress, 3)
	st.put(job)

	exec := &fakeExecutor{
		step: models.StepCompress,
		fn: func(ctx context.Context, j *models.ProcessingJob) error {
			return Permanentf("unsupported codec")
		},
	}
	runner := NewRunner(st, signer, disp, time.Minute, exec)

	if err := runner.Handle(signedStepMessage(t, signer, job.ID, models.StepCompress)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := st.get(job.ID)
	if got.Status != models.JobStatusFailed {
		t.Errorf("Status = %v, want failed", got.Status)
	}
	if got.RetryCount != 0 {
		t.Errorf("RetryCount = %d, permanent failures must not consume retries", got.RetryCount)
	}

	select {
	case call := <-disp.redispatched:
		t.Errorf("unexpected redispatch for permanent failure: %+v", call)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunnerLateMessageForCancelledJobIsNoop(t *testing.T) {
	st := newFakeJobStore()
	disp := newFakeDispatcher()
	signer := testSigner(t)

	job := newTestJob(models.StepTranscribe, 3)
	job.Status = models.JobStatusCancelled
	st.put(job)

	exec := &fakeExecutor{step: models.StepTranscribe}
	runner := NewRunner(st, signer, disp, time.Minute, exec)

	if err := runner.Handle(signedStepMessage(t, signer, job.ID, models.StepTranscribe)); err != nil {
		t.Fatalf("Handle() error = %v, late messages must ack", err)
	}

	if exec.callCount() != 0 {
		t.Error("executor must not run for a cancelled job")
	}
	got := st.get(job.ID)
	if got.Status != models.JobStatusCancelled {
		t.Errorf("Status = %v, cancelled is terminal", got.Status)
	}
}

func TestRunnerDuplicateDeliveryOfAdvancedStepIsNoop(t *testing.T) {
	st := newFakeJobStore()
	disp := newFakeDispatcher()
	signer := testSigner(t)

	// Job already advanced past compress; a late compress message must be
	// dropped by the tombstone check.
	job := newTestJob(models.StepTranscribe, 3)
	st.put(job)

	exec := &fakeExecutor{step: models.StepCompress}
	runner := NewRunner(st, signer, disp, time.Minute, exec)

	if err := runner.Handle(signedStepMessage(t, signer, job.ID, models.StepCompress)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if exec.callCount() != 0 {
		t.Error("executor must not run for an already-advanced step")
	}
}

func TestRunnerRejectsInvalidSignature(t *testing.T) {
	st := newFakeJobStore()
	disp := newFakeDispatcher()
	signer := testSigner(t)

	job := newTestJob(models.StepCompress, 3)
	st.put(job)

	exec := &fakeExecutor{step: models.StepCompress}
	runner := NewRunner(st, signer, disp, time.Minute, exec)

	msg := signedStepMessage(t, signer, job.ID, models.StepCompress)
	msg.Metadata.Set(transport.SignatureHeader, "forged")

	if err := runner.Handle(msg); err != nil {
		t.Fatalf("Handle() error = %v, forged messages must ack and drop", err)
	}
	if exec.callCount() != 0 {
		t.Error("executor must not run for a forged message")
	}
	got := st.get(job.ID)
	if got.Status != models.JobStatusPending {
		t.Errorf("Status = %v, job must be untouched", got.Status)
	}
}

func TestRunnerInfrastructureErrorNacks(t *testing.T) {
	signer := testSigner(t)
	disp := newFakeDispatcher()

	runner := NewRunner(failingStore{}, signer, disp, time.Minute,
		&fakeExecutor{step: models.StepCompress})

	msg := signedStepMessage(t, signer, uuid.New(), models.StepCompress)
	if err := runner.Handle(msg); err == nil {
		t.Error("Handle() should propagate store infrastructure errors for redelivery")
	}
}

// failingStore simulates an unreachable database.
type failingStore struct{}

var errDB = errors.New("connection refused")

func (failingStore) ClaimStep(context.Context, uuid.UUID, models.PipelineStep) (*models.ProcessingJob, error) {
	return nil, errDB
}
func (failingStore) AdvanceStep(context.Context, uuid.UUID, models.PipelineStep, models.PipelineStep, int) error {
	return errDB
}
func (failingStore) CompleteJob(context.Context, uuid.UUID, models.PipelineStep) error { return errDB }
func (failingStore) MarkRetrying(context.Context, uuid.UUID, models.PipelineStep, string) (int, error) {
	return 0, errDB
}
func (failingStore) MarkFailed(context.Context, uuid.UUID, models.PipelineStep, string) error {
	return errDB
}
func (failingStore) AppendStepRecord(context.Context, uuid.UUID, models.StepRecord) error {
	return errDB
}

type fakeNotifier struct {
	mu        sync.Mutex
	completed []uuid.UUID
	failed    []string
}

func (n *fakeNotifier) NotifyJobCompleted(ctx context.Context, job *models.ProcessingJob) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, job.ID)
}

func (n *fakeNotifier) NotifyJobFailed(ctx context.Context, job *models.ProcessingJob, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, reason)
}

func TestRunnerNotifiesTerminalOutcomes(t *testing.T) {
	t.Run("completion", func(t *testing.T) {
		st := newFakeJobStore()
		disp := newFakeDispatcher()
		signer := testSigner(t)

		job := newTestJob(models.StepEmbed, 3)
		job.ProgressPercentage = 75
		st.put(job)

		notifier := &fakeNotifier{}
		runner := NewRunner(st, signer, disp, time.Minute, &fakeExecutor{step: models.StepEmbed})
		runner.SetNotifier(notifier)

		if err := runner.Handle(signedStepMessage(t, signer, job.ID, models.StepEmbed)); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
		if len(notifier.completed) != 1 || notifier.completed[0] != job.ID {
			t.Errorf("completed notifications = %v, want [%s]", notifier.completed, job.ID)
		}
		if len(notifier.failed) != 0 {
			t.Errorf("unexpected failure notifications: %v", notifier.failed)
		}
	})

	t.Run("permanent failure", func(t *testing.T) {
		st := newFakeJobStore()
		disp := newFakeDispatcher()
		signer := testSigner(t)

		job := newTestJob(models.StepCompress, 3)
		st.put(job)

		notifier := &fakeNotifier{}
		exec := &fakeExecutor{
			step: models.StepCompress,
			fn: func(ctx context.Context, j *models.ProcessingJob) error {
				return Permanentf("unsupported codec")
			},
		}
		runner := NewRunner(st, signer, disp, time.Minute, exec)
		runner.SetNotifier(notifier)

		if err := runner.Handle(signedStepMessage(t, signer, job.ID, models.StepCompress)); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
		if len(notifier.failed) != 1 {
			t.Fatalf("failure notifications = %v, want one", notifier.failed)
		}
		if !strings.Contains(notifier.failed[0], "unsupported codec") {
			t.Errorf("failure reason = %q, want codec detail", notifier.failed[0])
		}
		if len(notifier.completed) != 0 {
			t.Errorf("unexpected completion notifications: %v", notifier.completed)
		}
	})
}

func TestRunnerCancelledJobSuppressesTerminalNotifications(t *testing.T) {
	cancelInStore := func(st *fakeJobStore, id uuid.UUID) {
		st.mu.Lock()
		defer st.mu.Unlock()
		st.jobs[id].Status = models.JobStatusCancelled
	}

	t.Run("cancel during final step", func(t *testing.T) {
		st := newFakeJobStore()
		disp := newFakeDispatcher()
		signer := testSigner(t)

		job := newTestJob(models.StepEmbed, 3)
		job.ProgressPercentage = 75
		st.put(job)

		notifier := &fakeNotifier{}
		exec := &fakeExecutor{
			step: models.StepEmbed,
			fn: func(ctx context.Context, j *models.ProcessingJob) error {
				cancelInStore(st, j.ID)
				return nil
			},
		}
		runner := NewRunner(st, signer, disp, time.Minute, exec)
		runner.SetNotifier(notifier)

		if err := runner.Handle(signedStepMessage(t, signer, job.ID, models.StepEmbed)); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}

		got := st.get(job.ID)
		if got.Status != models.JobStatusCancelled {
			t.Errorf("Status = %v, want cancelled", got.Status)
		}
		if len(notifier.completed) != 0 {
			t.Errorf("cancelled job produced a completed notification: %v", notifier.completed)
		}
	})

	t.Run("cancel during execution", func(t *testing.T) {
		st := newFakeJobStore()
		disp := newFakeDispatcher()
		signer := testSigner(t)

		job := newTestJob(models.StepTranscribe, 3)
		st.put(job)

		notifier := &fakeNotifier{}
		exec := &fakeExecutor{
			step: models.StepTranscribe,
			fn: func(ctx context.Context, j *models.ProcessingJob) error {
				cancelInStore(st, j.ID)
				return Permanent(ErrJobCancelled)
			},
		}
		runner := NewRunner(st, signer, disp, time.Minute, exec)
		runner.SetNotifier(notifier)

		if err := runner.Handle(signedStepMessage(t, signer, job.ID, models.StepTranscribe)); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}

		got := st.get(job.ID)
		if got.Status != models.JobStatusCancelled {
			t.Errorf("Status = %v, want cancelled", got.Status)
		}
		if len(notifier.failed) != 0 {
			t.Errorf("cancelled job produced a failure notification: %v", notifier.failed)
		}
	})
}
