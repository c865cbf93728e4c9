package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestActivityCounters(t *testing.T) {
	ScansRecorded.Inc()
	ReportsRecorded.Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"heritage_scans_recorded_total",
		"heritage_reports_recorded_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestRewardMetrics(t *testing.T) {
	PointsAwarded.Add(150)
	AchievementsUnlocked.WithLabelValues("common").Inc()
	LevelUps.Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"heritage_points_awarded_total",
		"heritage_achievements_unlocked_total",
		"heritage_level_ups_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestStoreAndCacheMetrics(t *testing.T) {
	StoreErrors.WithLabelValues("scan").Inc()
	LeaderboardCache.WithLabelValues("miss").Inc()

	names := gatheredNames(t)
	if !names["heritage_store_errors_total"] {
		t.Error("heritage_store_errors_total not found")
	}
	if !names["heritage_leaderboard_cache_total"] {
		t.Error("heritage_leaderboard_cache_total not found")
	}
}

func TestHTTPMetrics(t *testing.T) {
	HTTPRequests.WithLabelValues("GET", "/api/progression/leaderboard", "200").Inc()
	HTTPDuration.WithLabelValues("GET", "/api/progression/leaderboard").Observe(0.012)
	RateLimited.Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"heritage_http_requests_total",
		"heritage_http_request_duration_seconds",
		"heritage_http_rate_limited_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestHealthMetrics(t *testing.T) {
	HealthCheckStatus.WithLabelValues("store").Set(1)
	HealthRecoveries.WithLabelValues("store").Inc()

	names := gatheredNames(t)
	if !names["heritage_health_check_status"] {
		t.Error("heritage_health_check_status not found")
	}
	if !names["heritage_health_recoveries_total"] {
		t.Error("heritage_health_recoveries_total not found")
	}
}
