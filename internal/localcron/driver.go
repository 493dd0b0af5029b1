// Package localcron fires trigger cycles in-process for deployments that
// have no platform cron. It calls the scheduler exactly as the HTTP
// trigger does.
package localcron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"pingflow/internal/scheduler"
)

type Runner interface {
	RunCycle(ctx context.Context) (scheduler.Report, error)
}

type Driver struct {
	cron   *cron.Cron
	runner Runner
	spec   string
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a driver for spec, a standard five-field cron expression or a
// descriptor such as "@every 1m".
func New(spec string, runner Runner) (*Driver, error) {
	if err := ValidateSchedule(spec); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		// A slow cycle makes the next tick skip rather than overlap.
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		runner: runner,
		spec:   spec,
		ctx:    ctx,
		cancel: cancel,
	}
	if _, err := d.cron.AddFunc(spec, d.tick); err != nil {
		cancel()
		return nil, err
	}
	return d, nil
}

func (d *Driver) Start() {
	log.Info().Str("schedule", d.spec).Msg("local cron driver started")
	d.cron.Start()
}

// Stop cancels in-flight cycles and waits for them to return or ctx to expire.
func (d *Driver) Stop(ctx context.Context) {
	d.cancel()
	done := d.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (d *Driver) tick() {
	report, err := d.runner.RunCycle(d.ctx)
	if err != nil {
		log.Error().Err(err).Msg("local cron cycle failed")
		return
	}
	ok, failed := report.Counts()
	log.Debug().Int("evaluated", report.TasksEvaluated).Int("succeeded", ok).Int("failed", failed).Msg("local cron tick")
}

// ValidateSchedule validates a cron expression
func ValidateSchedule(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

// NextRunTime calculates the next tick after from.
func NextRunTime(expr string, from time.Time) (time.Time, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(from), nil
}
