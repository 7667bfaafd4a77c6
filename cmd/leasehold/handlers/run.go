package handlers

import (
	"context"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/config"
	"github.com/imamik/leasehold/internal/scheduler"
)

// Jobs returns the names accepted by RunJob.
func Jobs() []string {
	return scheduler.Jobs()
}

// RunJob handles the run command: it executes one scheduled job against the
// configured platform and prints its outcome to the log. It refuses to run
// while a server answers on the configured address unless force is set.
func RunJob(ctx context.Context, configPath, job string, force bool) error {
	if !validJob(job) {
		return fmt.Errorf("unknown job %q (valid: %v)", job, Jobs())
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := checkNoDaemon(ctx, cfg.Server.Addr, job, force); err != nil {
		return err
	}
	tp, shutdownTracing, err := setupTracing(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.WithoutCancel(ctx)) }()

	rt, err := buildRuntime(ctx, cfg, tp)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	return runJob(ctx, rt.engine, job)
}

func checkNoDaemon(ctx context.Context, addr, job string, force bool) error {
	if !daemonRunning(ctx, addr) {
		return nil
	}
	if force {
		log.FromContext(ctx).Info("a leasehold server is running, running job anyway", "addr", addr, "job", job)
		return nil
	}
	return fmt.Errorf("a leasehold server is answering on %s and runs %s on its own schedule; "+
		"trigger it there with POST /v1/jobs/%s or pass --force", addr, job, job)
}

func validJob(job string) bool {
	for _, j := range Jobs() {
		if j == job {
			return true
		}
	}
	return false
}

func runJob(ctx context.Context, runner scheduler.Runner, job string) error {
	logger := log.FromContext(ctx).WithValues("job", job)

	switch job {
	case scheduler.JobSweep:
		res, err := runner.Sweep(ctx)
		logger.Info("consumption sweep finished",
			"accounts", res.Accounts,
			"charged", res.Charged.String(),
			"depleted", len(res.Depleted),
			"stopped", res.Stopped)
		return err
	case scheduler.JobBackups:
		res, err := runner.RotateBackups(ctx)
		logger.Info("backup rotation finished", "created", res.Created, "evicted", res.Evicted, "failed", res.Failed)
		return err
	case scheduler.JobReminders:
		sent, err := runner.RemindIdle(ctx)
		logger.Info("idle reminders sent", "count", sent)
		return err
	}
	return fmt.Errorf("unknown job %q", job)
}
