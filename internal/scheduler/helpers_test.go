package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"pingflow/internal/domain"
	"pingflow/internal/invoker"
	"pingflow/internal/store"
)

var now = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

// fakeInvoker fails any URL listed in failing and records every call.
type fakeInvoker struct {
	mu      sync.Mutex
	failing map[string]bool
	panics  map[string]bool
	calls   []string
}

func newFakeInvoker(failing ...string) *fakeInvoker {
	f := &fakeInvoker{failing: map[string]bool{}, panics: map[string]bool{}}
	for _, u := range failing {
		f.failing[u] = true
	}
	return f
}

func (f *fakeInvoker) Invoke(_ context.Context, url string) invoker.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	fail, boom := f.failing[url], f.panics[url]
	f.mu.Unlock()

	if boom {
		panic("invoker exploded")
	}
	if fail {
		return invoker.Outcome{URL: url, Status: invoker.StatusError, StatusCode: 500, Cause: "HTTP 500 Internal Server Error"}
	}
	return invoker.Outcome{URL: url, Status: invoker.StatusSuccess, StatusCode: 200, Duration: time.Millisecond}
}

func (f *fakeInvoker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// flakyStore wraps Memory and injects failures.
type flakyStore struct {
	*store.Memory
	findErr    error
	updateErrs map[string]error
}

func (s *flakyStore) FindDue(ctx context.Context, at time.Time) ([]domain.Task, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.Memory.FindDue(ctx, at)
}

func (s *flakyStore) Update(ctx context.Context, owner, id string, p domain.Patch) (domain.Task, error) {
	if err := s.updateErrs[id]; err != nil {
		return domain.Task{}, err
	}
	return s.Memory.Update(ctx, owner, id, p)
}

var errDiskFull = errors.New("disk full")

func seed(st store.Store, t domain.Task) domain.Task {
	if t.OwnerID == "" {
		t.OwnerID = "alice"
	}
	if t.Status == "" {
		t.Status = domain.StatusActive
	}
	if t.IntervalMinutes == 0 {
		t.IntervalMinutes = 5
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now.Add(-time.Hour)
		t.UpdatedAt = t.CreatedAt
	}
	created, err := st.Create(context.Background(), t)
	if err != nil {
		panic(err)
	}
	return created
}

func ptr(t time.Time) *time.Time { return &t }

func resultFor(r Report, id string) (TaskResult, bool) {
	for _, res := range r.Results {
		if res.TaskID == id {
			return res, true
		}
	}
	return TaskResult{}, false
}
