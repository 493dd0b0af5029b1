package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"pingflow/internal/domain"
)

// Memory is a map-backed Store for tests and single-process use.
type Memory struct {
	mu    sync.RWMutex
	tasks map[string]domain.Task
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]domain.Task), now: time.Now}
}

func (m *Memory) FindDue(_ context.Context, now time.Time) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []domain.Task
	for _, t := range m.tasks {
		if t.Due(now) {
			due = append(due, clone(t))
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRun.Before(*due[j].NextRun) })
	return due, nil
}

func (m *Memory) Get(_ context.Context, owner, id string) (domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok || t.OwnerID != owner {
		return domain.Task{}, ErrNotFound
	}
	return clone(t), nil
}

func (m *Memory) List(_ context.Context, owner string, page, limit int) (Page, error) {
	page, limit = NormalizePage(page, limit)
	m.mu.RLock()
	var owned []domain.Task
	for _, t := range m.tasks {
		if t.OwnerID == owner {
			owned = append(owned, clone(t))
		}
	}
	m.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	p := Page{Page: page, TotalTasks: len(owned), TotalPages: totalPages(len(owned), limit)}
	start := (page - 1) * limit
	if start < len(owned) {
		end := min(start+limit, len(owned))
		p.Tasks = owned[start:end]
	}
	return p, nil
}

func (m *Memory) Create(_ context.Context, t domain.Task) (domain.Task, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	now := m.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = clone(t)
	return clone(t), nil
}

func (m *Memory) Update(_ context.Context, owner, id string, p domain.Patch) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.OwnerID != owner {
		return domain.Task{}, ErrNotFound
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = m.now()
	}
	t = p.Apply(t)
	m.tasks[id] = t
	return clone(t), nil
}

func (m *Memory) Delete(_ context.Context, owner, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.OwnerID != owner {
		return false, nil
	}
	delete(m.tasks, id)
	return true, nil
}

func clone(t domain.Task) domain.Task {
	if t.LastRun != nil {
		lr := *t.LastRun
		t.LastRun = &lr
	}
	if t.NextRun != nil {
		nr := *t.NextRun
		t.NextRun = &nr
	}
	return t
}
