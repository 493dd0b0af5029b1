package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pingflow/internal/domain"
	"pingflow/internal/invoker"
	"pingflow/internal/metrics"
	"pingflow/internal/store"
)

// ErrStoreUnavailable means the due-set query failed and the cycle did no work.
var ErrStoreUnavailable = errors.New("task store unavailable")

type Invoker interface {
	Invoke(ctx context.Context, url string) invoker.Outcome
}

type Options struct {
	// MaxConcurrency caps how many tasks run at once. Zero means no cap.
	MaxConcurrency int
	Metrics        *metrics.Metrics
	Now            func() time.Time
}

// Service runs trigger cycles. It keeps no state between cycles.
type Service struct {
	store   store.Store
	invoker Invoker
	limit   int
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(st store.Store, inv Invoker, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:   st,
		invoker: inv,
		limit:   opts.MaxConcurrency,
		metrics: opts.Metrics,
		now:     now,
	}
}

// RunCycle executes every task due at a single captured instant and reports
// per-task results. Only a failing due-set query is returned as an error.
func (s *Service) RunCycle(ctx context.Context) (Report, error) {
	started := time.Now()
	now := s.now()

	found, err := s.store.FindDue(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to get due tasks")
		s.metrics.ObserveCycle("store_unavailable", time.Since(started), 0)
		return Report{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	due := SelectDue(now, found)

	results := make([]TaskResult, len(due))
	var g errgroup.Group
	if s.limit > 0 {
		g.SetLimit(s.limit)
	}
	for i, t := range due {
		g.Go(func() error {
			results[i] = s.process(ctx, t, now)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{TasksEvaluated: len(due), Results: results}
	ok, failed := report.Counts()
	s.metrics.ObserveCycle("completed", time.Since(started), len(due))
	log.Info().
		Int("evaluated", len(due)).
		Int("succeeded", ok).
		Int("failed", failed).
		Dur("took", time.Since(started)).
		Msg("cron cycle completed")
	return report, nil
}

// RunTask executes one task immediately, whether or not it is due, with the
// same write-back as a cycle.
func (s *Service) RunTask(ctx context.Context, t domain.Task) TaskResult {
	return s.process(ctx, t, s.now())
}

func (s *Service) process(ctx context.Context, t domain.Task, now time.Time) (res TaskResult) {
	res = TaskResult{TaskID: t.ID, Timestamp: now}
	defer func() {
		if r := recover(); r != nil {
			res.Status = ResultError
			res.ErrorKind = KindInternal
			res.Error = fmt.Sprintf("panic: %v", r)
			res.Persisted = false
			res.NextRun = nil
			log.Error().Str("task_id", t.ID).Interface("panic", r).Msg("task pipeline panicked")
		}
		s.metrics.ObserveTask(string(res.Status), string(res.ErrorKind))
	}()

	urls, err := Expand(t)
	if err != nil {
		res.Status = ResultError
		res.ErrorKind = KindExpansion
		res.Error = err.Error()
	} else {
		outcomes := s.invokeAll(ctx, urls)
		res.Targets = make([]TargetResult, len(outcomes))
		failed := 0
		for i, o := range outcomes {
			res.Targets[i] = targetResult(o)
			if !o.OK() {
				failed++
			}
		}
		res.Status = Reduce(outcomes)
		if res.Status == ResultError {
			res.ErrorKind = KindInvocation
			res.Error = fmt.Sprintf("%d of %d targets failed", failed, len(outcomes))
		}
	}

	next, err := s.writeBack(ctx, t, now)
	if err != nil {
		res.Status = ResultError
		res.ErrorKind = KindStore
		res.Error = err.Error()
		log.Error().Err(err).Str("task_id", t.ID).Msg("failed to record task run")
		return res
	}
	res.Persisted = true
	res.NextRun = &next

	ev := log.Info()
	if res.Status == ResultError {
		ev = log.Warn().Str("kind", string(res.ErrorKind)).Str("error", res.Error)
	}
	ev.Str("task_id", t.ID).
		Str("status", string(res.Status)).
		Int("targets", len(res.Targets)).
		Time("next_run", next).
		Msg("task executed")
	return res
}

// invokeAll calls every URL concurrently and waits for all of them.
// Outcomes are returned in URL order.
func (s *Service) invokeAll(ctx context.Context, urls []string) []invoker.Outcome {
	outcomes := make([]invoker.Outcome, len(urls))
	var g errgroup.Group
	for i, u := range urls {
		g.Go(func() error {
			outcomes[i] = s.invoke(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *Service) invoke(ctx context.Context, url string) (out invoker.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = invoker.Outcome{URL: url, Status: invoker.StatusError, Cause: fmt.Sprintf("panic: %v", r)}
		}
		s.metrics.ObserveInvocation(string(out.Status), out.Duration)
	}()
	out = s.invoker.Invoke(ctx, url)
	if out.URL == "" {
		out.URL = url
	}
	if !out.OK() && out.Cause == "" {
		out.Cause = "request failed"
	}
	return out
}

// writeBack advances the schedule whatever the outcome. Status is left alone.
func (s *Service) writeBack(ctx context.Context, t domain.Task, now time.Time) (time.Time, error) {
	next := t.NextRunAfter(now)
	_, err := s.store.Update(ctx, t.OwnerID, t.ID, domain.Patch{
		LastRun:   &now,
		NextRun:   &next,
		UpdatedAt: now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("record run: %w", err)
	}
	return next, nil
}
