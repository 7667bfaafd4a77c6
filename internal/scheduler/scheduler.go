package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/config"
	"github.com/imamik/leasehold/internal/engine"
)

// Job names used in logs and metrics.
const (
	JobSweep     = "sweep"
	JobBackups   = "backups"
	JobReminders = "reminders"
)

// ErrUnknownJob is returned by RunNow for a job that is not registered.
var ErrUnknownJob = errors.New("unknown or disabled job")

// Jobs returns the names of the scheduled jobs.
func Jobs() []string {
	return []string{JobSweep, JobBackups, JobReminders}
}

// Runner is the part of the engine driven on a schedule.
type Runner interface {
	Sweep(ctx context.Context) (engine.SweepResult, error)
	RotateBackups(ctx context.Context) (engine.RotationResult, error)
	RemindIdle(ctx context.Context) (int, error)
}

// Scheduler owns the cron instance and its triggers.
type Scheduler struct {
	cron     *cron.Cron
	triggers map[string]*trigger
	entries  map[string]cron.EntryID
}

// New registers the sweep, backup and reminder triggers. An empty spec
// disables its trigger. Jobs run with contexts derived from ctx.
func New(ctx context.Context, cfg config.ScheduleConfig, runner Runner) (*Scheduler, error) {
	logger := log.FromContext(ctx).WithName("scheduler")
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(cron.Recover(cronLogger{logger})),
		),
		triggers: make(map[string]*trigger),
		entries:  make(map[string]cron.EntryID),
	}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{JobSweep, cfg.Sweep, func(ctx context.Context) error {
			res, err := runner.Sweep(ctx)
			if len(res.Depleted) > 0 {
				log.FromContext(ctx).Info("accounts depleted", "accounts", res.Depleted, "stopped", res.Stopped)
			}
			return err
		}},
		{JobBackups, cfg.Backups, func(ctx context.Context) error {
			_, err := runner.RotateBackups(ctx)
			return err
		}},
		{JobReminders, cfg.Reminders, func(ctx context.Context) error {
			_, err := runner.RemindIdle(ctx)
			return err
		}},
	}

	for _, j := range jobs {
		if j.spec == "" {
			logger.Info("trigger disabled", "job", j.name)
			continue
		}
		t := &trigger{name: j.name, run: j.run, ctx: log.IntoContext(ctx, logger.WithValues("job", j.name))}
		id, err := s.cron.AddJob(j.spec, t)
		if err != nil {
			return nil, fmt.Errorf("invalid %s schedule %q: %w", j.name, j.spec, err)
		}
		s.triggers[j.name] = t
		s.entries[j.name] = id
	}
	return s, nil
}

// Start begins firing triggers in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for active runs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next scheduled time of a job, or the zero time when the
// job is disabled or the scheduler is not running.
func (s *Scheduler) Next(job string) time.Time {
	id, ok := s.entries[job]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// RunNow fires a job immediately, honoring the skip-if-running guard. It
// reports whether the job ran.
func (s *Scheduler) RunNow(job string) (bool, error) {
	t, ok := s.triggers[job]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownJob, job)
	}
	return t.fire()
}

// trigger runs a job at most once at a time.
type trigger struct {
	name    string
	ctx     context.Context
	run     func(context.Context) error
	running atomic.Bool
}

// Run implements cron.Job.
func (t *trigger) Run() {
	_, _ = t.fire()
}

func (t *trigger) fire() (bool, error) {
	logger := log.FromContext(t.ctx)
	if !t.running.CompareAndSwap(false, true) {
		runsTotal.WithLabelValues(t.name, "skipped").Inc()
		logger.Info("previous run still active, skipping")
		return false, nil
	}
	defer t.running.Store(false)

	start := time.Now()
	err := t.run(t.ctx)
	runDuration.WithLabelValues(t.name).Observe(time.Since(start).Seconds())
	if err != nil {
		runsTotal.WithLabelValues(t.name, "error").Inc()
		logger.Error(err, "scheduled run failed", "duration", time.Since(start).Round(time.Millisecond))
		return true, err
	}
	runsTotal.WithLabelValues(t.name, "success").Inc()
	logger.V(1).Info("scheduled run finished", "duration", time.Since(start).Round(time.Millisecond))
	return true, nil
}

// cronLogger adapts logr to cron.Logger; cron's info output is debug noise.
type cronLogger struct {
	logr.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.Logger.V(1).Info(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.Logger.Error(err, msg, keysAndValues...)
}
