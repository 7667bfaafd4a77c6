package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leasehold",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Scheduled job runs by job and result (success, error, skipped).",
		},
		[]string{"job", "result"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "leasehold",
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Duration of scheduled job runs.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"job"},
	)
)

func init() {
	metrics.Registry.MustRegister(runsTotal, runDuration)
}
