// Package metrics provides Prometheus metrics for the heritage progression
// service: activity counters, rewards, store health and HTTP traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "heritage"

// ─── Activity ───────────────────────────────────────────────────────────────

// ScansRecorded tracks committed heritage site scans.
var ScansRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "scans_recorded_total",
	Help:      "Total heritage site scans recorded.",
})

// ReportsRecorded tracks committed conservation reports.
var ReportsRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "reports_recorded_total",
	Help:      "Total conservation reports recorded.",
})

// ─── Rewards ────────────────────────────────────────────────────────────────

// PointsAwarded tracks points credited across all ledger entries.
var PointsAwarded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "points_awarded_total",
	Help:      "Total points credited to users.",
})

// AchievementsUnlocked tracks unlocks by rarity.
var AchievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "achievements_unlocked_total",
	Help:      "Total achievements unlocked by rarity.",
}, []string{"rarity"})

// LevelUps tracks handler calls that raised a user's level.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "level_ups_total",
	Help:      "Total level increases.",
})

// ─── Store ──────────────────────────────────────────────────────────────────

// StoreErrors tracks persistence failures by operation.
var StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "store_errors_total",
	Help:      "Total progression store failures by operation.",
}, []string{"op"})

// LeaderboardCache tracks leaderboard cache lookups (result=hit|miss|error).
var LeaderboardCache = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "leaderboard_cache_total",
	Help:      "Leaderboard cache lookups by result.",
}, []string{"result"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequests tracks API requests by method, route pattern and status.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "http_requests_total",
	Help:      "Total HTTP requests.",
}, []string{"method", "route", "status"})

// HTTPDuration tracks API latency in seconds.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request latency in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

// RateLimited tracks requests rejected by the per-client limiter.
var RateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "http_rate_limited_total",
	Help:      "Total requests rejected by rate limiting.",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})
