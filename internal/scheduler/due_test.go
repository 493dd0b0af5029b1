package scheduler

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pingflow/internal/domain"
)

func TestSelectDueEdges(t *testing.T) {
	tasks := []domain.Task{
		{ID: "overdue", Status: domain.StatusActive, NextRun: ptr(now.Add(-time.Minute))},
		{ID: "exact", Status: domain.StatusActive, NextRun: ptr(now)},
		{ID: "future", Status: domain.StatusActive, NextRun: ptr(now.Add(time.Second))},
		{ID: "paused", Status: domain.StatusPaused, NextRun: ptr(now.Add(-time.Hour))},
		{ID: "error", Status: domain.StatusError, NextRun: ptr(now.Add(-time.Hour))},
		{ID: "never-activated", Status: domain.StatusActive},
	}
	due := SelectDue(now, tasks)

	var ids []string
	for _, d := range due {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"overdue", "exact"}, ids)
	assert.Len(t, tasks, 6, "input untouched")
}

func TestSelectDueProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	statuses := []domain.Status{domain.StatusActive, domain.StatusPaused, domain.StatusError}

	for round := 0; round < 200; round++ {
		at := now.Add(time.Duration(rng.Intn(10000)-5000) * time.Second)
		n := rng.Intn(30)
		tasks := make([]domain.Task, n)
		for i := range tasks {
			tasks[i] = domain.Task{
				ID:     fmt.Sprintf("t%d", i),
				Status: statuses[rng.Intn(len(statuses))],
			}
			if rng.Intn(5) > 0 {
				tasks[i].NextRun = ptr(now.Add(time.Duration(rng.Intn(10000)-5000) * time.Second))
			}
		}
		snapshot := append([]domain.Task(nil), tasks...)

		due := SelectDue(at, tasks)
		selected := map[string]bool{}
		for _, d := range due {
			selected[d.ID] = true
		}
		for _, task := range tasks {
			want := task.Status == domain.StatusActive && task.NextRun != nil && !task.NextRun.After(at)
			assert.Equal(t, want, selected[task.ID], "round %d task %s", round, task.ID)
		}
		assert.Equal(t, snapshot, tasks)
	}
}
