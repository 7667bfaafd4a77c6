package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "leasehold",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"name"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leasehold",
			Subsystem: "breaker",
			Name:      "rejections_total",
			Help:      "Calls rejected without execution because the breaker was open",
		},
		[]string{"name"},
	)
)

func init() {
	metrics.Registry.MustRegister(breakerState, rejectionsTotal)
}

func recordState(name string, s gobreaker.State) {
	var v float64
	switch s {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	breakerState.WithLabelValues(name).Set(v)
}
