// Package store persists ping tasks. Every operation except FindDue is
// scoped to the owning principal.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"pingflow/internal/domain"
)

var ErrNotFound = errors.New("task not found")

type Store interface {
	// FindDue returns active tasks whose next run is not after now, across owners.
	FindDue(ctx context.Context, now time.Time) ([]domain.Task, error)
	Get(ctx context.Context, owner, id string) (domain.Task, error)
	List(ctx context.Context, owner string, page, limit int) (Page, error)
	Create(ctx context.Context, t domain.Task) (domain.Task, error)
	// Update applies p in a single atomic write and returns the stored task.
	Update(ctx context.Context, owner, id string, p domain.Patch) (domain.Task, error)
	Delete(ctx context.Context, owner, id string) (bool, error)
}

type Page struct {
	Tasks      []domain.Task `json:"tasks"`
	Page       int           `json:"page"`
	TotalPages int           `json:"totalPages"`
	TotalTasks int           `json:"totalTasks"`
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// NormalizePage clamps pagination input to sane values.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

func totalPages(total, limit int) int {
	return (total + limit - 1) / limit
}

func newID() string {
	return "tsk_" + uuid.NewString()
}
