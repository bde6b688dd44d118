package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devotional_delivery_generation_runs_total",
			Help: "Generation runs by mode (full|continuation) and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	retriesScheduledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devotional_delivery_retries_scheduled_total",
			Help: "Automatic continuation retries scheduled.",
		},
	)

	retriesExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devotional_delivery_retries_exhausted_total",
			Help: "Times the automatic retry cap was reached.",
		},
	)
)
