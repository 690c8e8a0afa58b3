package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Auto-preprocess effect metrics
var (
	// EffectRunsTotal tracks effect instances by terminal state
	// (done, canceled, failed, skipped).
	EffectRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preprocess_effect_runs_total",
			Help: "Auto-preprocess effect instances by terminal state",
		},
		[]string{"outcome"},
	)

	// EffectSupersededTotal tracks instances canceled by a newer trigger.
	EffectSupersededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preprocess_effect_superseded_total",
			Help: "Effect instances canceled because a newer trigger arrived",
		},
	)

	// EffectDuration tracks wall time of completed effect runs in seconds.
	EffectDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "preprocess_effect_duration_seconds",
			Help:    "Wall time of completed effect runs",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// ContractViolationsTotal tracks detected backend protocol drift.
	ContractViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "preprocess_contract_violations_total",
			Help: "Backend contract violations detected by the effect",
		},
		[]string{"kind"},
	)
)

// Queue API metrics
var (
	// QueueSubmissionsTotal tracks batch submissions by status (ok, error, forbidden).
	QueueSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_submissions_total",
			Help: "Batch submissions by status",
		},
		[]string{"status"},
	)

	// QueueCancellationsTotal tracks best-effort batch cancellations by status.
	QueueCancellationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_cancellations_total",
			Help: "Batch cancellation requests by status",
		},
		[]string{"status"},
	)

	// QueueRequestDuration tracks backend queue API latency in seconds.
	QueueRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_request_duration_seconds",
			Help:    "Backend queue API request duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	// CircuitBreakerState tracks the queue API breaker state (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Push channel metrics
var (
	// SocketEventsTotal tracks push-channel events received by type.
	SocketEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socket_events_total",
			Help: "Push-channel events received by event type",
		},
		[]string{"event"},
	)

	// SocketReconnectsTotal tracks push-channel reconnections.
	SocketReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "socket_reconnects_total",
			Help: "Push-channel reconnections",
		},
	)

	// SocketDroppedEventsTotal tracks events dropped because a subscriber was slow.
	SocketDroppedEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "socket_dropped_events_total",
			Help: "Push-channel events dropped due to a full subscriber buffer",
		},
	)
)

// Store metrics
var (
	// StoreEventsTotal tracks dispatched state-change events by type.
	StoreEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_events_total",
			Help: "State-change events dispatched by event type",
		},
		[]string{"event"},
	)

	// StoreDroppedEventsTotal tracks events dropped because a subscriber was slow.
	StoreDroppedEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_dropped_events_total",
			Help: "Store events dropped due to a full subscriber buffer",
		},
	)

	// StoreSubscribers tracks the current number of store subscribers.
	StoreSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_subscribers",
			Help: "Current number of store event subscribers",
		},
	)
)

// UI push metrics
var (
	// UIConnectionsActive tracks currently connected UI clients.
	UIConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ui_connections_active",
			Help: "Currently connected UI push clients",
		},
	)

	// UIMessagesPublished tracks messages published to UI channels.
	UIMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ui_messages_published_total",
			Help: "Messages published to UI push channels",
		},
		[]string{"channel"},
	)
)

// Metadata client metrics
var (
	// MetaRequestsTotal tracks metadata API requests by operation and status.
	MetaRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meta_requests_total",
			Help: "Metadata API requests by operation and status",
		},
		[]string{"operation", "status"},
	)

	// MetaTagCacheHits tracks metadata tag cache hits.
	MetaTagCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meta_tag_cache_hits_total",
			Help: "Metadata tag cache hits",
		},
	)

	// MetaTagCacheMisses tracks metadata tag cache misses.
	MetaTagCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meta_tag_cache_misses_total",
			Help: "Metadata tag cache misses",
		},
	)
)

// Descriptor cache metrics
var (
	// ImageDTOCacheHits tracks descriptor cache hits.
	ImageDTOCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_dto_cache_hits_total",
			Help: "Image descriptor cache hits",
		},
	)

	// ImageDTOCacheMisses tracks descriptor cache misses.
	ImageDTOCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_dto_cache_misses_total",
			Help: "Image descriptor cache misses",
		},
	)
)
