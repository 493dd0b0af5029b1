package scheduler

import (
	"time"

	"pingflow/internal/domain"
)

// SelectDue returns, in input order, exactly the tasks that are active and
// whose next run is at or before now. The input is not modified.
func SelectDue(now time.Time, tasks []domain.Task) []domain.Task {
	var due []domain.Task
	for _, t := range tasks {
		if t.Due(now) {
			due = append(due, t)
		}
	}
	return due
}
