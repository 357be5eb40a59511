// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry is the registry served by the web server.
var Registry = prometheus.NewRegistry()

var (
	Balance = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "whalewatch_balance",
		Help: "Last observed account balance in display units",
	})

	GuardDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whalewatch_guard_decisions_total",
		Help: "Circuit breaker decisions by outcome",
	}, []string{"decision"})

	FeedMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whalewatch_feed_messages_total",
		Help: "Feed deliveries by kind (batch, error, skipped)",
	}, []string{"kind"})

	LargeTrades = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "whalewatch_large_trades_total",
		Help: "Trades above the USD threshold handed to the evaluator",
	})

	Opportunities = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whalewatch_opportunities_total",
		Help: "Evaluated trades by outcome",
	}, []string{"outcome"})

	Submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whalewatch_submissions_total",
		Help: "Transfer legs by role and status",
	}, []string{"role", "status"})

	SubmissionRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "whalewatch_submission_retries_total",
		Help: "Failed submission attempts that were retried",
	})

	SubmissionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "whalewatch_submission_latency_seconds",
		Help:    "Time from scheduling a leg until it is confirmed or abandoned",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	SubmissionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "whalewatch_submissions_in_flight",
		Help: "Transfer legs currently holding a submission slot",
	})

	BalanceStreamDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "whalewatch_balance_stream_drops_total",
		Help: "Live balance readings not delivered to a full subscriber",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		Balance,
		GuardDecisions,
		FeedMessages,
		LargeTrades,
		Opportunities,
		Submissions,
		SubmissionRetries,
		SubmissionLatency,
		SubmissionsInFlight,
		BalanceStreamDrops,
	)
}
