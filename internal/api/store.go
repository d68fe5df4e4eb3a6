package api

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samcharles93/relaxdisp/internal/fit"
)

type fitRecord struct {
	job    FitJob
	cancel context.CancelFunc
}

// FitStore keeps fit jobs in memory for retrieval by id.
type FitStore struct {
	mu   sync.Mutex
	jobs map[string]*fitRecord
}

func NewFitStore() *FitStore {
	return &FitStore{jobs: make(map[string]*fitRecord)}
}

// Create registers a queued job. cancel aborts its fit.
func (s *FitStore) Create(req *FitRequest, model string, cancel context.CancelFunc, now time.Time) FitJob {
	job := FitJob{
		ID:         newFitID(),
		Object:     "fit",
		CreatedAt:  now.Unix(),
		Status:     StatusQueued,
		Background: req.Background,
		Model:      model,
		Name:       req.Name,
	}
	s.mu.Lock()
	s.jobs[job.ID] = &fitRecord{job: job, cancel: cancel}
	s.mu.Unlock()
	return job
}

func (s *FitStore) Get(id string) (FitJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[id]
	if !ok {
		return FitJob{}, false
	}
	return rec.job, true
}

// List returns every job, newest first.
func (s *FitStore) List() []FitJob {
	s.mu.Lock()
	out := make([]FitJob, 0, len(s.jobs))
	for _, rec := range s.jobs {
		out = append(out, rec.job)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b FitJob) int {
		if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Start moves a queued job to in progress. It reports false when the job
// was cancelled or removed meanwhile.
func (s *FitStore) Start(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[id]
	if !ok || rec.job.Status != StatusQueued {
		return false
	}
	rec.job.Status = StatusInProgress
	return true
}

// Finish records the outcome of a job unless it has already finished.
func (s *FitStore) Finish(id string, res *fit.Result, fitErr *ResponseError, now time.Time) (FitJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[id]
	if !ok {
		return FitJob{}, false
	}
	if rec.job.finished() {
		return rec.job, true
	}
	done := now.Unix()
	rec.job.CompletedAt = &done
	if fitErr != nil {
		rec.job.Status = StatusFailed
		rec.job.Error = fitErr
	} else {
		rec.job.Status = StatusCompleted
		rec.job.Result = res
	}
	rec.cancel()
	return rec.job, true
}

// Cancel stops a running job. Finished jobs are returned unchanged.
func (s *FitStore) Cancel(id string, now time.Time) (FitJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[id]
	if !ok {
		return FitJob{}, false
	}
	if !rec.job.finished() {
		done := now.Unix()
		rec.job.Status = StatusCancelled
		rec.job.CompletedAt = &done
		rec.cancel()
	}
	return rec.job, true
}

// Delete removes a job, cancelling it first if it is still running.
func (s *FitStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[id]
	if !ok {
		return false
	}
	rec.cancel()
	delete(s.jobs, id)
	return true
}

// CancelAll aborts every running job.
func (s *FitStore) CancelAll(now time.Time) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.Cancel(id, now)
	}
}

func newFitID() string {
	return "fit_" + uuid.NewString()
}
