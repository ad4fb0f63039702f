package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// Sync kinds
	SyncKindConnect     = "connect"
	SyncKindBootstrap   = "bootstrap"
	SyncKindIncremental = "incremental"

	// Sync results
	ResultSuccess = "success"
	ResultFailure = "failure"

	// Scheduler outcomes
	OutcomeSynced  = "synced"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
	OutcomeIdle    = "idle"

	// HTTP endpoints
	EndpointHealth           = "health"
	EndpointConnectionStatus = "connection_status"
	EndpointConnect          = "connect"
	EndpointSync             = "sync"
	EndpointBackfill         = "backfill_rollups"

	// Strava API operations
	OpFetchProfile   = "fetch_profile"
	OpListActivities = "list_activities"
	OpFetchDetail    = "fetch_detail"
	OpFetchMap       = "fetch_map"
	OpFetchStreams   = "fetch_streams"

	// Rate limit types
	RateLimit15Min = "15min"
	RateLimitDaily = "daily"

	// Rate limit buckets
	BucketLimit = "limit"
	BucketUsage = "usage"

	// Database operations
	DBOpUpsertProfile        = "upsert_profile"
	DBOpConnectedAthlete     = "connected_athlete"
	DBOpLastSuccessfulSync   = "last_successful_sync"
	DBOpCreateSyncLog        = "create_sync_log"
	DBOpCompleteSyncLog      = "complete_sync_log"
	DBOpUpsertActivities     = "upsert_activities"
	DBOpRecomputeRollups     = "recompute_rollups"
	DBOpRecomputeUserRollups = "recompute_user_rollups"
	DBOpCreateGoal           = "create_goal"
	DBOpArchiveGoal          = "archive_goal"
	DBOpListConnectedUsers   = "list_connected_users"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status_code"},
	)
)

// Sync Metrics
var (
	SyncAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_attempts_total",
			Help: "Total number of sync attempts by kind and result",
		},
		[]string{"kind", "result"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Time spent on one sync attempt",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	SyncActivitiesFetched = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_activities_fetched",
			Help:    "Number of activity events fetched per sync attempt",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	SyncActivitiesSaved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_activities_saved",
			Help:    "Number of activities persisted per sync attempt",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	RollupRecomputationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollup_recomputations_total",
			Help: "Total number of rollup recomputation runs by mode",
		},
		[]string{"mode"},
	)
)

// Scheduler Metrics
var (
	SchedulerCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_cycles_total",
			Help: "Total number of scheduler poll cycles by outcome",
		},
		[]string{"outcome"},
	)

	SchedulerActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_active",
			Help: "Whether the sync scheduler is currently active (1) or not (0)",
		},
	)

	ConnectedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connected_users",
			Help: "Number of users with a connected athlete profile",
		},
	)

	LastSyncAgeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "last_sync_age_seconds",
			Help: "Age of the oldest last successful sync across connected users",
		},
	)
)

// Strava API Metrics
var (
	StravaAPIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strava_api_requests_total",
			Help: "Total number of Strava API requests",
		},
		[]string{"operation", "status_code"},
	)

	StravaAPIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strava_api_request_duration_seconds",
			Help:    "Strava API request latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation", "status_code"},
	)

	StravaRateLimitUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strava_rate_limit_usage",
			Help: "Strava API rate limit usage",
		},
		[]string{"limit_type", "bucket"},
	)
)

// Database Metrics
var (
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)
)
