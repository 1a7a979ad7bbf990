// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/baifan1366/Studify-sub011/internal/config"
	"github.com/baifan1366/Studify-sub011/internal/models"
	"github.com/baifan1366/Studify-sub011/internal/store"
)

// fakeServiceStore implements the service's JobStore with idempotent
// create semantics keyed on content ref.
type fakeServiceStore struct {
	mu     sync.Mutex
	byRef  map[string]*models.ProcessingJob
	byID   map[uuid.UUID]*models.ProcessingJob
	getErr error
}

func newFakeServiceStore() *fakeServiceStore {
	return &fakeServiceStore{
		byRef: make(map[string]*models.ProcessingJob),
		byID:  make(map[uuid.UUID]*models.ProcessingJob),
	}
}

func (f *fakeServiceStore) CreateJob(_ context.Context, job *models.ProcessingJob) (*models.ProcessingJob, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.byRef[job.ContentRef]; ok && !existing.Status.IsTerminal() {
		return existing, false, nil
	}
	job.CreatedAt = time.Now().UTC()
	f.byRef[job.ContentRef] = job
	f.byID[job.ID] = job
	return job, true, nil
}

func (f *fakeServiceStore) GetJob(_ context.Context, id uuid.UUID) (*models.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	job, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (f *fakeServiceStore) ListJobsForOwner(_ context.Context, ownerID uuid.UUID, status models.JobStatus, limit, offset int) ([]*models.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ProcessingJob
	for _, job := range f.byID {
		if job.OwnerID == ownerID && (status == "" || job.Status == status) {
			out = append(out, job)
		}
	}
	return out, nil
}

func (f *fakeServiceStore) CancelJob(_ context.Context, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.byID[jobID]
	if !ok || job.Status.IsTerminal() {
		return store.ErrStaleTransition
	}
	job.Status = models.JobStatusCancelled
	return nil
}

type fakeFirstDispatcher struct {
	dispatched chan uuid.UUID
}

func (f *fakeFirstDispatcher) DispatchFirst(_ context.Context, jobID uuid.UUID) error {
	f.dispatched <- jobID
	return nil
}

func newTestService(st *fakeServiceStore) (*Service, *fakeFirstDispatcher) {
	disp := &fakeFirstDispatcher{dispatched: make(chan uuid.UUID, 8)}
	svc := NewService(st, disp, config.PipelineConfig{MaxRetries: 3})
	return svc, disp
}

func TestServiceCreateDispatchesFirstStep(t *testing.T) {
	st := newFakeServiceStore()
	svc, disp := newTestService(st)

	ref := "lesson:" + uuid.NewString()
	job, created, err := svc.Create(context.Background(), ref, uuid.New())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !created {
		t.Error("Create() created = false, want true")
	}
	if job.Status != models.JobStatusPending || job.CurrentStep != models.StepCompress {
		t.Errorf("job = %v/%v, want pending/compress", job.Status, job.CurrentStep)
	}
	if job.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", job.MaxRetries)
	}

	select {
	case id := <-disp.dispatched:
		if id != job.ID {
			t.Errorf("dispatched job = %v, want %v", id, job.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("first step was never dispatched")
	}
}

func TestServiceCreateIsIdempotentPerContentRef(t *testing.T) {
	st := newFakeServiceStore()
	svc, disp := newTestService(st)

	ref := "course:" + uuid.NewString()
	first, _, err := svc.Create(context.Background(), ref, uuid.New())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	<-disp.dispatched

	second, created, err := svc.Create(context.Background(), ref, uuid.New())
	if err != nil {
		t.Fatalf("second Create() error = %v", err)
	}
	if created {
		t.Error("second Create() created = true, want false")
	}
	if second.ID != first.ID {
		t.Errorf("second Create() returned job %v, want existing %v", second.ID, first.ID)
	}

	select {
	case <-disp.dispatched:
		t.Error("duplicate create must not dispatch again")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServiceCreateAgainAfterTerminal(t *testing.T) {
	st := newFakeServiceStore()
	svc, disp := newTestService(st)

	ref := "lesson:" + uuid.NewString()
	first, _, err := svc.Create(context.Background(), ref, uuid.New())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	<-disp.dispatched

	st.mu.Lock()
	st.byID[first.ID].Status = models.JobStatusFailed
	st.mu.Unlock()

	second, created, err := svc.Create(context.Background(), ref, uuid.New())
	if err != nil {
		t.Fatalf("Create() after terminal error = %v", err)
	}
	if !created || second.ID == first.ID {
		t.Error("terminal jobs must not block re-processing the same content")
	}
}

func TestServiceCreateRejectsBadRef(t *testing.T) {
	svc, _ := newTestService(newFakeServiceStore())

	if _, _, err := svc.Create(context.Background(), "not-a-ref", uuid.New()); err == nil {
		t.Error("Create() should reject malformed content refs")
	}
}

func TestServiceCancel(t *testing.T) {
	st := newFakeServiceStore()
	svc, disp := newTestService(st)

	job, _, err := svc.Create(context.Background(), "post:"+uuid.NewString(), uuid.New())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	<-disp.dispatched

	if err := svc.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if got := st.byID[job.ID].Status; got != models.JobStatusCancelled {
		t.Errorf("Status = %v, want cancelled", got)
	}

	if err := svc.Cancel(context.Background(), job.ID); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("second Cancel() error = %v, want ErrNotCancellable", err)
	}
}

func TestServiceStatusNotFound(t *testing.T) {
	svc, _ := newTestService(newFakeServiceStore())

	if _, err := svc.Status(context.Background(), uuid.New()); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Status() error = %v, want ErrJobNotFound", err)
	}
}
