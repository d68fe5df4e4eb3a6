package api

import (
	"context"
	"testing"
	"time"

	"github.com/samcharles93/relaxdisp/internal/fit"
)

func TestFitStoreTransitions(t *testing.T) {
	t.Parallel()
	s := NewFitStore()
	now := time.Unix(1700000000, 0)
	ctx, cancel := context.WithCancel(context.Background())
	job := s.Create(&FitRequest{Name: "res1"}, "CR72", cancel, now)
	if job.Status != StatusQueued || job.Object != "fit" || job.Name != "res1" {
		t.Fatalf("created %+v", job)
	}
	if !s.Start(job.ID) {
		t.Fatalf("queued job should start")
	}
	if s.Start(job.ID) {
		t.Fatalf("in-progress job started twice")
	}

	res := &fit.Result{Model: "CR72", Chi2: 1.5}
	done, ok := s.Finish(job.ID, res, nil, now.Add(time.Minute))
	if !ok || done.Status != StatusCompleted || done.Result != res || *done.CompletedAt != now.Unix()+60 {
		t.Fatalf("finished %+v", done)
	}
	if ctx.Err() == nil {
		t.Fatalf("finish should release the job context")
	}

	// Later outcomes do not overwrite a finished job.
	again, _ := s.Finish(job.ID, nil, &ResponseError{Message: "late"}, now.Add(time.Hour))
	if again.Status != StatusCompleted || again.Error != nil {
		t.Fatalf("finished job changed: %+v", again)
	}
	if c, _ := s.Cancel(job.ID, now); c.Status != StatusCompleted {
		t.Fatalf("cancel changed a finished job: %+v", c)
	}
}

func TestFitStoreListAndDelete(t *testing.T) {
	t.Parallel()
	s := NewFitStore()
	base := time.Unix(1700000000, 0)
	var ids []string
	for i := range 3 {
		job := s.Create(&FitRequest{}, "LM63", func() {}, base.Add(time.Duration(i)*time.Second))
		ids = append(ids, job.ID)
	}
	list := s.List()
	if len(list) != 3 || list[0].ID != ids[2] || list[2].ID != ids[0] {
		t.Fatalf("list not newest first: %+v", list)
	}
	if !s.Delete(ids[1]) || s.Delete(ids[1]) {
		t.Fatalf("delete should succeed exactly once")
	}
	if _, ok := s.Get(ids[1]); ok {
		t.Fatalf("deleted job still present")
	}

	s.CancelAll(base)
	for _, j := range s.List() {
		if j.Status != StatusCancelled {
			t.Fatalf("job %s not cancelled: %s", j.ID, j.Status)
		}
	}
}
