package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// Queue metrics
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "leasehold",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of jobs waiting in a work queue",
		},
		[]string{"queue"},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leasehold",
			Subsystem: "queue",
			Name:      "jobs_total",
			Help:      "Total number of executed jobs by queue and result",
		},
		[]string{"queue", "result"},
	)

	// Pipeline metrics
	stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leasehold",
			Subsystem: "pipeline",
			Name:      "steps_total",
			Help:      "Total number of pipeline steps by pipeline, step and result",
		},
		[]string{"pipeline", "step", "result"},
	)

	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "leasehold",
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Duration of pipeline steps in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"pipeline", "step"},
	)

	provisionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leasehold",
			Subsystem: "pipeline",
			Name:      "provision_total",
			Help:      "Total number of provisioning runs by outcome (online, degraded, error)",
		},
		[]string{"outcome"},
	)

	// Consumption metrics
	sweepCharged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "leasehold",
			Subsystem: "consumption",
			Name:      "charged_points_total",
			Help:      "Total number of points deducted by the consumption sweep",
		},
	)

	accountsDepleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "leasehold",
			Subsystem: "consumption",
			Name:      "accounts_depleted_total",
			Help:      "Total number of times an account reached a zero balance and was stopped",
		},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "leasehold",
			Subsystem: "consumption",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one consumption sweep in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	// Rotation metrics
	rotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leasehold",
			Subsystem: "rotation",
			Name:      "operations_total",
			Help:      "Total number of snapshot and backup operations by kind, action and result",
		},
		[]string{"kind", "action", "result"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		queueDepth,
		jobsTotal,
		stepsTotal,
		stepDuration,
		provisionTotal,
		sweepCharged,
		accountsDepleted,
		sweepDuration,
		rotationsTotal,
	)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func recordRotation(kind, action string, err error) {
	rotationsTotal.WithLabelValues(kind, action, resultLabel(err)).Inc()
}
