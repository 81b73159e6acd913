// Package metrics exposes pipeline counters. Collectors are package-level so
// any stage can record without carrying a registry handle around.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scribed_active_sessions",
		Help: "Number of meeting sessions currently in the registry.",
	})

	FragmentsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribed_fragments_ingested_total",
		Help: "Transcript fragments accepted into the cumulative transcript.",
	})

	FragmentsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribed_fragments_rejected_total",
		Help: "Transcript fragments rejected before buffering.",
	}, []string{"reason"})

	BatchJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribed_batch_jobs_total",
		Help: "Batch inference jobs by kind and outcome.",
	}, []string{"kind", "outcome"})

	DispatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribed_dispatch_attempts_total",
		Help: "Artifact dispatch attempts by target and outcome.",
	}, []string{"target", "outcome"})

	TranscribeCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribed_transcribe_calls_total",
		Help: "External transcription calls by outcome.",
	}, []string{"outcome"})
)
