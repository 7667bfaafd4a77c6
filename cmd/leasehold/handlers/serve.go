package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/leasehold/internal/config"
	"github.com/imamik/leasehold/internal/scheduler"
	"github.com/imamik/leasehold/internal/server"
)

// Serve handles the serve command.
//
// It runs the engine, the scheduler and the ops API until SIGINT or SIGTERM.
// Shutdown order: stop accepting scheduled and HTTP work, wait for running
// scheduled jobs, then drain the allocation and provisioning queues.
func Serve(ctx context.Context, configPath string, shutdownTimeout time.Duration) error {
	logger := log.FromContext(ctx)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	tp, shutdownTracing, err := setupTracing(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			logger.Error(err, "failed to flush traces")
		}
	}()

	rt, err := buildRuntime(ctx, cfg, tp)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error(err, "failed to close connections")
		}
	}()

	recovered, err := rt.engine.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover interrupted provisioning: %w", err)
	}
	if recovered > 0 {
		logger.Info("marked interrupted provisioning runs as failed", "count", recovered)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt.engine.Start(ctx)

	sched, err := scheduler.New(ctx, cfg.Schedule, rt.engine)
	if err != nil {
		drainEngine(ctx, rt, shutdownTimeout)
		return err
	}
	sched.Start()
	for _, job := range scheduler.Jobs() {
		if next := sched.Next(job); !next.IsZero() {
			logger.Info("job scheduled", "job", job, "next", next)
		}
	}

	srv := server.New(ctx, cfg.Server, rt.engine, rt.store, sched)
	serveErr := srv.Run(ctx, shutdownTimeout)
	stop()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		logger.Error(err, "scheduled jobs did not finish in time")
	}
	drainEngine(ctx, rt, shutdownTimeout)

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	logger.Info("shutdown complete")
	return nil
}

func drainEngine(ctx context.Context, rt *runtime, timeout time.Duration) {
	logger := log.FromContext(ctx)
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if pending := rt.engine.PendingProvisions(); pending > 0 {
		logger.Info("draining provisioning queue", "pending", pending)
	}
	if err := rt.engine.Stop(drainCtx); err != nil {
		logger.Error(err, "queues did not drain in time")
	}
}
