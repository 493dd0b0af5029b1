package scheduler

import (
	"time"

	"pingflow/internal/invoker"
)

type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// ErrorKind tells an operator which stage a failed task stopped at.
type ErrorKind string

const (
	// KindExpansion: the batch target could not be decoded; nothing was called.
	KindExpansion ErrorKind = "expansion"
	// KindInvocation: at least one target call failed.
	KindInvocation ErrorKind = "invocation"
	// KindStore: the run could not be recorded; the schedule did not advance.
	KindStore ErrorKind = "store"
	// KindInternal: the task pipeline panicked.
	KindInternal ErrorKind = "internal"
)

type TargetResult struct {
	URL        string         `json:"url"`
	Status     invoker.Status `json:"status"`
	StatusCode int            `json:"statusCode,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs"`
}

func targetResult(o invoker.Outcome) TargetResult {
	return TargetResult{
		URL:        o.URL,
		Status:     o.Status,
		StatusCode: o.StatusCode,
		Error:      o.Cause,
		DurationMs: o.Duration.Milliseconds(),
	}
}

type TaskResult struct {
	TaskID    string         `json:"taskId"`
	Status    ResultStatus   `json:"status"`
	ErrorKind ErrorKind      `json:"errorKind,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	NextRun   *time.Time     `json:"nextRun,omitempty"`
	Persisted bool           `json:"persisted"`
	Targets   []TargetResult `json:"targets,omitempty"`
}

type Report struct {
	TasksEvaluated int          `json:"tasksEvaluated"`
	Results        []TaskResult `json:"results"`
}

// Counts returns how many results succeeded and failed.
func (r Report) Counts() (succeeded, failed int) {
	for _, res := range r.Results {
		if res.Status == ResultSuccess {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Reduce folds target outcomes into one task status: success only when
// there is at least one outcome and every one succeeded.
func Reduce(outcomes []invoker.Outcome) ResultStatus {
	if len(outcomes) == 0 {
		return ResultError
	}
	for _, o := range outcomes {
		if !o.OK() {
			return ResultError
		}
	}
	return ResultSuccess
}
