// Package metrics defines Prometheus metrics for the Vigil pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SignalsNormalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_signals_normalized_total",
			Help: "Total number of raw signals normalized",
		},
		[]string{"type"},
	)

	DetectionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_detections_created_total",
			Help: "Total number of new detections stored",
		},
		[]string{"severity"},
	)

	DetectionsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_detections_duplicate_total",
			Help: "Total number of detection puts that converged on an existing record",
		},
	)

	CandidatesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_candidates_generated_total",
			Help: "Total number of incident candidates generated",
		},
		[]string{"rule"},
	)

	PromotionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_promotion_decisions_total",
			Help: "Promotion gate decisions by outcome and rejection code",
		},
		[]string{"decision", "code"},
	)

	IncidentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_incident_transitions_total",
			Help: "Incident lifecycle transitions by target status",
		},
		[]string{"to"},
	)

	ReplayVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_replay_verifications_total",
			Help: "Event-log replay verifications by result",
		},
		[]string{"result"},
	)

	IntegrityViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_integrity_violations_total",
			Help: "Integrity violations detected, by code",
		},
		[]string{"code"},
	)

	EmitFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_emit_failures_total",
			Help: "Best-effort observability emissions that failed and were swallowed",
		},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_pipeline_duration_seconds",
			Help:    "End-to-end time to process one raw signal through the pipeline",
			Buckets: prometheus.DefBuckets,
		},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_cache_errors_total",
			Help: "Cache backend errors by backend and operation",
		},
		[]string{"backend", "operation"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_cache_hits_total",
			Help: "Cache hits by backend",
		},
		[]string{"backend"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_cache_misses_total",
			Help: "Cache misses by backend",
		},
		[]string{"backend"},
	)
)
