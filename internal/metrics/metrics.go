package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Claim Metrics
// =============================================================================

var (
	// ClaimRequestsTotal counts claim calls by outcome
	ClaimRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "field_claim_requests_total",
			Help: "Total number of claim requests by status",
		},
		[]string{"status"},
	)

	// CellsClaimedTotal counts cells won by claims
	CellsClaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "field_cells_claimed_total",
			Help: "Total number of cells newly claimed",
		},
	)

	// ClaimConflictsTotal counts candidates that were already claimed
	ClaimConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "field_claim_conflicts_total",
			Help: "Total number of claim candidates that were already claimed",
		},
	)

	// MinesRevealedTotal counts mines uncovered by claims
	MinesRevealedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "field_mines_revealed_total",
			Help: "Total number of mines revealed",
		},
	)

	// ClaimDurationSeconds measures end-to-end claim latency
	ClaimDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "field_claim_duration_seconds",
			Help:    "Time taken to process a claim request",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	// RateLimitRequestsTotal counts rate limiter decisions
	RateLimitRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "field_rate_limit_requests_total",
			Help: "Total number of requests seen by the rate limiter",
		},
		[]string{"result"},
	)
)

// =============================================================================
// Publication Metrics
// =============================================================================

var (
	// PublishTicksTotal counts publication ticks by status
	PublishTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "field_publish_ticks_total",
			Help: "Total number of publication ticks",
		},
		[]string{"status"},
	)

	// PublishFailuresTotal counts failed publication steps
	PublishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "field_publish_failures_total",
			Help: "Total number of failed publication steps by stage",
		},
		[]string{"stage"},
	)

	// BlobBytesTotal tracks bytes uploaded to the blob store
	BlobBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "field_blob_bytes_total",
			Help: "Total bytes uploaded by blob kind",
		},
		[]string{"kind"},
	)

	// EncodeDurationSeconds measures patch and snapshot encoding
	EncodeDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "field_encode_duration_seconds",
			Help:    "Time taken to encode a partition blob",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
		[]string{"kind"},
	)

	// RoundsEndedTotal counts rounds closed by the score check
	RoundsEndedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "field_rounds_ended_total",
			Help: "Total number of rounds that ended",
		},
	)

	// BufferPoolOperations counts encode buffer pool Get/Put operations
	BufferPoolOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "field_buffer_pool_operations_total",
			Help: "Total number of encode buffer pool operations",
		},
		[]string{"operation"},
	)
)

// =============================================================================
// Cache Metrics
// =============================================================================

var (
	// CacheHitsTotal counts TTL cache hits by cache name
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "field_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	// CacheMissesTotal counts TTL cache misses by cache name
	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "field_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// CacheEvictionsTotal counts LRU evictions by cache name
	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "field_cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"cache"},
	)

	// CacheSize is the current number of entries by cache name
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "field_cache_size",
			Help: "Current number of cache entries",
		},
		[]string{"cache"},
	)
)

// =============================================================================
// Pub/Sub Metrics
// =============================================================================

var (
	// PubsubSubscribers is the number of live subscribers
	PubsubSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "field_pubsub_subscribers",
			Help: "Number of connected notification subscribers",
		},
	)

	// PubsubMessagesTotal counts notifications by delivery result
	PubsubMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "field_pubsub_messages_total",
			Help: "Total number of notifications by delivery result",
		},
		[]string{"result"},
	)
)

// =============================================================================
// Sync Client Metrics
// =============================================================================

var (
	// SyncFetchesTotal counts partition fetches by kind and result
	SyncFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "field_sync_fetches_total",
			Help: "Total number of partition blob fetches",
		},
		[]string{"kind", "result"},
	)

	// SyncDroppedPatchesTotal counts sequence gaps observed by sync clients
	SyncDroppedPatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "field_sync_dropped_patches_total",
			Help: "Total number of patches missed by sync clients",
		},
	)

	// SyncInflightFetches is the number of fetches currently running
	SyncInflightFetches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "field_sync_inflight_fetches",
			Help: "Number of partition fetches in flight",
		},
	)
)

// =============================================================================
// Logging Metrics
// =============================================================================

var (
	// LogEntriesTotal counts log entries by level
	LogEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "field_log_entries_total",
			Help: "Total number of log entries by level",
		},
		[]string{"level"},
	)
)
