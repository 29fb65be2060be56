package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every collector exported on /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Scoring paths.
const (
	ScoringPathAI       = "ai"
	ScoringPathFallback = "fallback"
	// ScoringPathDisabled is the fallback taken because AI scoring is off,
	// not because it failed.
	ScoringPathDisabled = "disabled"
)

var (
	// ScoringTotal counts scored feedback by the path that produced the points.
	ScoringTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "doubtdesk_scoring_total",
		Help: "Feedback scored, by scoring path",
	}, []string{"path"})

	// ScoringPrimaryFailures counts primary-path failures by reason.
	ScoringPrimaryFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "doubtdesk_scoring_primary_failures_total",
		Help: "Primary scoring failures absorbed by the fallback, by reason",
	}, []string{"reason"})

	// ScoringLatency records the external scoring call latency.
	ScoringLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "doubtdesk_scoring_latency_seconds",
		Help:    "Latency of the primary scoring call in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// PointsAwarded sums points credited to answer authors.
	PointsAwarded = factory.NewCounter(prometheus.CounterOpts{
		Name: "doubtdesk_points_awarded_total",
		Help: "Total reward points credited to answer authors",
	})

	// FeedbackSubmissions counts feedback submissions by outcome.
	FeedbackSubmissions = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "doubtdesk_feedback_submissions_total",
		Help: "Feedback submissions by outcome",
	}, []string{"outcome"})

	// RedisErrors counts Redis errors by command.
	RedisErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "doubtdesk_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})
)
