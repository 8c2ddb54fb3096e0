// Package metrics holds the process-wide Prometheus counters for the research pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDecisions counts per-item outcomes by stage and verdict.
	StageDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "painscout",
		Subsystem: "pipeline",
		Name:      "decisions_total",
		Help:      "Item decisions by stage and verdict",
	}, []string{"stage", "verdict"})

	// FailOpenBatches counts classifier batches passed through after a failure.
	FailOpenBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "painscout",
		Subsystem: "classifier",
		Name:      "fail_open_batches_total",
		Help:      "Classifier batches passed through unclassified, by stage and cause",
	}, []string{"stage", "cause"})

	// EmbeddingCache counts cache lookups by result.
	EmbeddingCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "painscout",
		Subsystem: "embedding",
		Name:      "cache_lookups_total",
		Help:      "Embedding cache lookups by result (hit or miss)",
	}, []string{"result"})

	// ArchiveRequests counts upstream archive calls by outcome.
	ArchiveRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "painscout",
		Subsystem: "archive",
		Name:      "requests_total",
		Help:      "Archive requests by outcome (ok, transient, error)",
	}, []string{"outcome"})
)
