package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// step is one named stage of a pipeline.
type step struct {
	name string
	// fatal steps stop the pipeline on failure; others are logged and skipped over.
	fatal bool
	// when, if set, must report true for the step to run.
	when func() bool
	run  func(ctx context.Context) error
}

// stepRunner executes steps strictly in order.
type stepRunner struct {
	pipeline string
	tracer   trace.Tracer
}

// stepReport summarizes a run.
type stepReport struct {
	Degraded []string
	Skipped  []string
}

// run executes the steps and returns the first fatal failure wrapped with the
// step name. Best-effort failures are recorded in the report.
func (r stepRunner) run(ctx context.Context, steps []step) (stepReport, error) {
	var report stepReport
	logger := log.FromContext(ctx)

	for i, s := range steps {
		if s.when != nil && !s.when() {
			report.Skipped = append(report.Skipped, s.name)
			stepsTotal.WithLabelValues(r.pipeline, s.name, "skipped").Inc()
			logger.V(1).Info("step skipped", "step", s.name)
			continue
		}

		stepCtx, span := r.tracer.Start(ctx, r.pipeline+"/"+s.name, trace.WithAttributes(
			attribute.String("leasehold.step", s.name),
			attribute.Int("leasehold.step.index", i+1),
			attribute.Bool("leasehold.step.fatal", s.fatal),
		))
		start := time.Now()
		err := s.run(stepCtx)
		stepDuration.WithLabelValues(r.pipeline, s.name).Observe(time.Since(start).Seconds())

		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "")
			stepsTotal.WithLabelValues(r.pipeline, s.name, "success").Inc()
			logger.V(1).Info("step completed", "step", s.name, "duration", time.Since(start).Round(time.Millisecond))
		case s.fatal:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			stepsTotal.WithLabelValues(r.pipeline, s.name, "failed").Inc()
			return report, fmt.Errorf("%s step failed: %w", s.name, err)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			report.Degraded = append(report.Degraded, s.name)
			stepsTotal.WithLabelValues(r.pipeline, s.name, "degraded").Inc()
			logger.Error(err, "best-effort step failed", "step", s.name)
		}
		span.End()
	}
	return report, nil
}
