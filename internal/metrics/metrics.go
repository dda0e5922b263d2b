package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerflow_events_enqueued_total",
		Help: "Total number of raw events placed on the ingestion queue.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerflow_events_dropped_total",
		Help: "Total number of raw events rejected due to a full queue.",
	})

	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerflow_events_ingested_total",
		Help: "Raw events that reached a terminal status, labelled by status and channel.",
	}, []string{"status", "channel"})

	EventsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerflow_events_classified_total",
		Help: "Normalized events persisted, labelled by intent.",
	}, []string{"intent"})

	PipelineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerflow_pipeline_errors_total",
		Help: "Pipeline errors attached to raw events, labelled by code and stage.",
	}, []string{"code", "stage"})

	ValidationWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerflow_validation_warnings_total",
		Help: "Non-blocking validation warnings, labelled by field.",
	}, []string{"field"})

	RateFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerflow_rate_fallbacks_total",
		Help: "Conversions that fell back to a 1.0 rate, labelled by currency.",
	}, []string{"currency"})

	EventProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledgerflow_event_processing_duration_ms",
		Help:    "End-to-end pipeline latency per raw event in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgerflow_queue_utilization_ratio",
		Help: "Current ingestion queue utilization (0-1).",
	})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerflow_ingress_rate_limited_total",
		Help: "Requests rejected by the per-source rate limiter.",
	}, []string{"source"})

	ConfigReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerflow_config_reloads_total",
		Help: "Configuration reload attempts, labelled by result.",
	}, []string{"result"})
)
