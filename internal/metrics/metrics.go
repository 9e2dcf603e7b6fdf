// Package metrics exposes Prometheus collectors for the harvesting pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Requests tracks the number of GET attempts issued, including retries.
	Requests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_requests_total",
		Help: "The total number of HTTP GET attempts issued.",
	})
	// Retries tracks backoff sleeps taken after transient failures.
	Retries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_retries_total",
		Help: "The total number of retries after server errors or transient transport failures.",
	})
	// RecordsExtracted tracks pages successfully converted into records.
	RecordsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_records_extracted_total",
		Help: "The total number of incident pages converted into schema-complete records.",
	})
	// FetchFailures tracks permanent failures by classification.
	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_fetch_failures_total",
		Help: "The total number of fetches surfaced as failures, labeled by kind.",
	}, []string{"kind"})
	// BackoffSeconds observes the jittered waits chosen by the retry loop.
	BackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvester_backoff_seconds",
		Help:    "Distribution of jittered backoff waits.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)
