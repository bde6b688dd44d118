package generation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики AI-запросов генератора девоционалов.
var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devotional_generator_ai_requests_total",
			Help: "Total number of AI generation requests by model and status.",
		},
		[]string{"model", "status"},
	)

	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devotional_generator_ai_request_duration_seconds",
			Help:    "Duration of AI generation requests.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"model"},
	)

	aiPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devotional_generator_ai_prompt_tokens",
			Help:    "Prompt tokens per AI request.",
			Buckets: prometheus.ExponentialBuckets(128, 2, 10),
		},
		[]string{"model"},
	)

	aiCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devotional_generator_ai_completion_tokens",
			Help:    "Completion tokens per AI request.",
			Buckets: prometheus.ExponentialBuckets(128, 2, 10),
		},
		[]string{"model"},
	)

	aiEstimatedCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devotional_generator_ai_estimated_cost_usd_total",
			Help: "Estimated cumulative AI spend in USD.",
		},
		[]string{"model"},
	)

	daysGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devotional_generator_days_generated_total",
			Help: "Total number of devotional days successfully generated.",
		},
		[]string{"mode"}, // initial | continuation
	)
)
