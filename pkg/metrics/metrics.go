package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokensIssued counts tokens handed out per purpose; mode is fresh or reused.
	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorlist_tokens_issued_total",
			Help: "Verification tokens issued by purpose and mode",
		},
		[]string{"purpose", "mode"},
	)

	// TokenConfirmations counts confirm attempts per purpose and result (success|invalid|error).
	TokenConfirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorlist_token_confirmations_total",
			Help: "Verification token confirmation attempts",
		},
		[]string{"purpose", "result"},
	)

	// TokenRequestsThrottled counts requests rejected by the per-subject throttle window.
	TokenRequestsThrottled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorlist_token_requests_throttled_total",
			Help: "Token requests rejected because one was issued recently",
		},
		[]string{"purpose"},
	)

	// ScheduledJobs counts scheduled job runs by job label and result (success|failure).
	ScheduledJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorlist_scheduled_jobs_total",
			Help: "Scheduled job dispatches",
		},
		[]string{"job", "result"},
	)

	// ScheduledJobDuration measures how long each dispatched job took.
	ScheduledJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "motorlist_scheduled_job_duration_seconds",
			Help:    "Duration of scheduled job dispatches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	// SearchBatchItems counts search logs moved through batch processing by outcome.
	SearchBatchItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorlist_search_batch_items_total",
			Help: "Search log items processed by batch jobs",
		},
		[]string{"outcome"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "motorlist_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
