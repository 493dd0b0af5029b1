package domain

import "time"

type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusError  Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusError:
		return true
	}
	return false
}

const (
	MinIntervalMinutes = 1
	MaxIntervalMinutes = 1440
)

type Task struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"-"`
	Target          Target     `json:"target"`
	IntervalMinutes int        `json:"intervalMinutes"`
	Description     string     `json:"description"`
	Status          Status     `json:"status"`
	LastRun         *time.Time `json:"lastRun,omitempty"`
	NextRun         *time.Time `json:"nextRun,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Interval returns the task cadence as a duration.
func (t Task) Interval() time.Duration {
	return time.Duration(t.IntervalMinutes) * time.Minute
}

// NextRunAfter is the run time that follows an execution at ran.
func (t Task) NextRunAfter(ran time.Time) time.Time {
	return ran.Add(t.Interval())
}

// Due reports whether the task is eligible for execution at now.
// A task that was never activated (no NextRun) is never due.
func (t Task) Due(now time.Time) bool {
	return t.Status == StatusActive && t.NextRun != nil && !t.NextRun.After(now)
}

// Toggled returns the status a pause/resume toggle moves to. Anything that
// is not active resumes, so a task in error can be brought back.
func (t Task) Toggled() Status {
	if t.Status == StatusActive {
		return StatusPaused
	}
	return StatusActive
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Target          *Target
	IntervalMinutes *int
	Description     *string
	Status          *Status
	LastRun         *time.Time
	NextRun         *time.Time
	UpdatedAt       time.Time
}

func (p Patch) Empty() bool {
	return p.Target == nil && p.IntervalMinutes == nil && p.Description == nil &&
		p.Status == nil && p.LastRun == nil && p.NextRun == nil
}

// Apply returns t with the patch applied.
func (p Patch) Apply(t Task) Task {
	if p.Target != nil {
		t.Target = *p.Target
	}
	if p.IntervalMinutes != nil {
		t.IntervalMinutes = *p.IntervalMinutes
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.LastRun != nil {
		lr := *p.LastRun
		t.LastRun = &lr
	}
	if p.NextRun != nil {
		nr := *p.NextRun
		t.NextRun = &nr
	}
	if !p.UpdatedAt.IsZero() {
		t.UpdatedAt = p.UpdatedAt
	}
	return t
}
