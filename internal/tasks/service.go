// Package tasks implements the owner-facing task lifecycle: creation,
// batch merging, edits, pause/resume and deletion.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pingflow/internal/domain"
	"pingflow/internal/store"
)

var ErrNoActiveMembers = errors.New("no active tasks found to merge")

type NewTask struct {
	URL             string `json:"url"`
	IntervalMinutes int    `json:"intervalMinutes"`
	Description     string `json:"description"`
}

type BatchRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	TaskIDs     []string `json:"taskIds"`
}

// Edit is a partial update. Nil fields are left as they are.
type Edit struct {
	URL             *string        `json:"url"`
	IntervalMinutes *int           `json:"intervalMinutes"`
	Description     *string        `json:"description"`
	Status          *domain.Status `json:"status"`
}

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(st store.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: st, now: now}
}

// Create registers an active task whose first run is one interval from now.
func (s *Service) Create(ctx context.Context, owner string, req NewTask) (domain.Task, error) {
	return s.create(ctx, domain.Task{
		OwnerID:         owner,
		Target:          domain.SingleTarget(strings.TrimSpace(req.URL)),
		IntervalMinutes: req.IntervalMinutes,
		Description:     req.Description,
		Status:          domain.StatusActive,
	})
}

// CreateBatch merges the owner's active tasks named in req into one batch
// task. Members keep request order and contribute every URL they call. The
// batch interval is the smallest member interval at the time of merging.
func (s *Service) CreateBatch(ctx context.Context, owner string, req BatchRequest) (domain.Task, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Task{}, &domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len(req.TaskIDs) == 0 {
		return domain.Task{}, &domain.ValidationError{Field: "taskIds", Reason: "must list at least one task"}
	}

	var (
		urls     []string
		interval int
		seen     = make(map[string]bool, len(req.TaskIDs))
	)
	for _, id := range req.TaskIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		member, err := s.store.Get(ctx, owner, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.Task{}, err
		}
		if member.Status != domain.StatusActive {
			continue
		}
		target, err := domain.DecodeTarget(member.Target.Encode())
		if err != nil {
			return domain.Task{}, &domain.ValidationError{Field: "taskIds", Reason: fmt.Sprintf("task %s: %v", id, err)}
		}
		urls = append(urls, target.URLs()...)
		if interval == 0 || member.IntervalMinutes < interval {
			interval = member.IntervalMinutes
		}
	}
	if len(urls) == 0 {
		return domain.Task{}, ErrNoActiveMembers
	}

	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		desc = "merged task: " + name
	}
	return s.create(ctx, domain.Task{
		OwnerID:         owner,
		Target:          domain.BatchTarget(urls),
		IntervalMinutes: interval,
		Description:     desc,
		Status:          domain.StatusActive,
	})
}

func (s *Service) create(ctx context.Context, t domain.Task) (domain.Task, error) {
	if err := t.Validate(); err != nil {
		return domain.Task{}, err
	}
	now := s.now()
	next := t.NextRunAfter(now)
	t.CreatedAt = now
	t.UpdatedAt = now
	t.NextRun = &next
	return s.store.Create(ctx, t)
}

func (s *Service) Get(ctx context.Context, owner, id string) (domain.Task, error) {
	return s.store.Get(ctx, owner, id)
}

func (s *Service) List(ctx context.Context, owner string, page, limit int) (store.Page, error) {
	return s.store.List(ctx, owner, page, limit)
}

// Edit validates and applies a partial update. The schedule is not touched.
func (s *Service) Edit(ctx context.Context, owner, id string, e Edit) (domain.Task, error) {
	var p domain.Patch
	if e.URL != nil {
		target := domain.SingleTarget(strings.TrimSpace(*e.URL))
		if err := domain.ValidateTarget(target); err != nil {
			return domain.Task{}, err
		}
		p.Target = &target
	}
	if e.IntervalMinutes != nil {
		if err := domain.ValidateInterval(*e.IntervalMinutes); err != nil {
			return domain.Task{}, err
		}
		p.IntervalMinutes = e.IntervalMinutes
	}
	if e.Description != nil {
		p.Description = e.Description
	}
	if e.Status != nil {
		if err := domain.ValidateStatus(*e.Status); err != nil {
			return domain.Task{}, err
		}
		p.Status = e.Status
	}
	if p.Empty() {
		return s.store.Get(ctx, owner, id)
	}
	p.UpdatedAt = s.now()
	return s.store.Update(ctx, owner, id, p)
}

// Toggle pauses an active task and resumes any other. NextRun is kept.
func (s *Service) Toggle(ctx context.Context, owner, id string) (domain.Task, error) {
	t, err := s.store.Get(ctx, owner, id)
	if err != nil {
		return domain.Task{}, err
	}
	status := t.Toggled()
	return s.store.Update(ctx, owner, id, domain.Patch{Status: &status, UpdatedAt: s.now()})
}

func (s *Service) Delete(ctx context.Context, owner, id string) (bool, error) {
	return s.store.Delete(ctx, owner, id)
}
