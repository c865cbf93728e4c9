package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/heritagescan/heritage/internal/app/ledger"
	"github.com/heritagescan/heritage/internal/app/progression"
	"github.com/heritagescan/heritage/internal/domain"
	"github.com/heritagescan/heritage/internal/health"
	"github.com/heritagescan/heritage/internal/infra/sqlite"
)

func newTestServer(t *testing.T) (*Server, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := progression.NewService(db)
	srv := NewServer(svc, progression.NewRanker(db, nil), ledger.NewService(db))
	return srv, db
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeBody(t, w, &resp)
	return resp.Error.Message
}

// ─── Server ─────────────────────────────────────────────────────────────────

func TestHealth_NoChecker(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestHealth_Degraded(t *testing.T) {
	srv, _ := newTestServer(t)
	closed, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	closed.Close()

	hc := health.NewChecker(health.Deps{
		Store:   closed,
		DataDir: t.TempDir(),
		Catalog: progression.Default(),
	}, 0)
	hc.RunOnce(t.Context())
	srv.SetHealth(hc)

	w := do(t, srv.Handler(), "GET", "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	var resp struct {
		Status string          `json:"status"`
		Checks []health.Status `json:"checks"`
	}
	decodeBody(t, w, &resp)
	if resp.Status != "degraded" || len(resp.Checks) != 3 {
		t.Errorf("health = %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	if w := do(t, srv.Handler(), "GET", "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("/metrics before EnableMetrics = %d, want 404", w.Code)
	}
	srv.EnableMetrics()
	h := srv.Handler()
	do(t, h, "GET", "/api/version", "")
	w := do(t, h, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "heritage_http_requests_total") {
		t.Error("/metrics missing heritage_http_requests_total")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), "OPTIONS", "/api/progression/scans", "")
	if w.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want 200", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{domain.ErrStatsNotFound, http.StatusNotFound},
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrUnknownAchievement, http.StatusNotFound},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

// ─── Scans and reports ──────────────────────────────────────────────────────

func TestScan_FreshUser(t *testing.T) {
	srv, db := newTestServer(t)
	h := srv.Handler()

	w := do(t, h, "POST", "/api/progression/scans", `{"user_id":"alice","site_id":"borobudur"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var res domain.ScanResult
	decodeBody(t, w, &res)
	if res.PointsAwarded != progression.DefaultScanPoints {
		t.Errorf("points_awarded = %d, want %d", res.PointsAwarded, progression.DefaultScanPoints)
	}
	if res.Stats.TotalScans != 1 || res.Stats.CurrentStreak != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
	var firstSteps bool
	for _, a := range res.NewlyUnlocked {
		if a.ID == "first_steps" {
			firstSteps = true
		}
	}
	if !firstSteps {
		t.Errorf("newly_unlocked missing first_steps: %+v", res.NewlyUnlocked)
	}

	st, _ := db.GetStats(t.Context(), "alice")
	if st == nil || st.Points != res.Stats.Points {
		t.Errorf("stored stats = %+v, want points %d", st, res.Stats.Points)
	}
}

func TestScan_Validation(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing user", `{"site_id":"s"}`, "user_id is required"},
		{"missing site", `{"user_id":"u"}`, "site_id is required"},
		{"bad json", `{"user_id":`, "invalid JSON body"},
		{"unknown field", `{"user_id":"u","site_id":"s","extra":1}`, "invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "POST", "/api/progression/scans", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if msg := errorMessage(t, w); !strings.Contains(msg, tt.want) {
				t.Errorf("message = %q, want it to contain %q", msg, tt.want)
			}
		})
	}
}

func TestReport_UnknownUser(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), "POST", "/api/progression/reports", `{"user_id":"ghost","report_id":"r1"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestReport_AfterScan(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	do(t, h, "POST", "/api/progression/scans", `{"user_id":"alice","site_id":"s1"}`)

	w := do(t, h, "POST", "/api/progression/reports", `{"user_id":"alice","report_id":"r1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var res domain.ReportResult
	decodeBody(t, w, &res)
	if res.Stats.TotalReports != 1 {
		t.Errorf("total_reports = %d, want 1", res.Stats.TotalReports)
	}
	if res.PointsAwarded != progression.DefaultReportPoints {
		t.Errorf("points_awarded = %d, want %d", res.PointsAwarded, progression.DefaultReportPoints)
	}
}

// ─── Users ──────────────────────────────────────────────────────────────────

func TestAward(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := do(t, h, "POST", "/api/progression/users/bob/points", `{"points":120,"reason":"event bonus"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var st domain.UserStats
	decodeBody(t, w, &st)
	if st.Points != 120 || st.Level != progression.CalculateLevel(120) {
		t.Errorf("stats = %+v", st)
	}

	if w := do(t, h, "POST", "/api/progression/users/bob/points", `{"points":-5,"reason":"x"}`); w.Code != http.StatusBadRequest {
		t.Errorf("negative points status = %d, want 400", w.Code)
	}
	if w := do(t, h, "POST", "/api/progression/users/bob/points", `{"points":5}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing reason status = %d, want 400", w.Code)
	}
	w = do(t, h, "POST", "/api/progression/users/bob/points", `{"points":5,"reason":"x","related_achievement_id":"nope"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown achievement status = %d, want 404", w.Code)
	}
}

func TestAward_RejectsHugeDelta(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	w := do(t, h, "POST", "/api/progression/users/mallory/points", `{"points":5000000000000000000,"reason":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "points must be at most") {
		t.Errorf("body = %s", w.Body.String())
	}

	// The store stays usable for everyone else.
	if w := do(t, h, "POST", "/api/progression/scans", `{"user_id":"alice","site_id":"s1"}`); w.Code != http.StatusOK {
		t.Errorf("scan after rejected award = %d", w.Code)
	}
}

func TestRank(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	do(t, h, "POST", "/api/progression/scans", `{"user_id":"alice","site_id":"s1"}`)

	w := do(t, h, "POST", "/api/progression/users/alice/rank", `{"rank":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var res domain.RankResult
	decodeBody(t, w, &res)
	if len(res.NewlyUnlocked) != 2 {
		t.Errorf("newly_unlocked = %d, want top_ten and podium_finish", len(res.NewlyUnlocked))
	}

	if w := do(t, h, "POST", "/api/progression/users/alice/rank", `{"rank":0}`); w.Code != http.StatusBadRequest {
		t.Errorf("rank 0 status = %d, want 400", w.Code)
	}
	if w := do(t, h, "POST", "/api/progression/users/ghost/rank", `{"rank":2}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want 404", w.Code)
	}
}

func TestUserReads(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	do(t, h, "POST", "/api/progression/scans", `{"user_id":"alice","site_id":"s1"}`)

	tests := []struct {
		path string
		code int
	}{
		{"/api/progression/users/alice/stats", http.StatusOK},
		{"/api/progression/users/ghost/stats", http.StatusNotFound},
		{"/api/progression/users/alice/achievements", http.StatusOK},
		{"/api/progression/users/ghost/achievements", http.StatusOK},
		{"/api/progression/users/alice/achievements/unlocked", http.StatusOK},
		{"/api/progression/users/alice/level", http.StatusOK},
		{"/api/progression/users/alice/history", http.StatusOK},
		{"/api/progression/users/alice/history?limit=x", http.StatusBadRequest},
		{"/api/progression/users/alice/ledger", http.StatusOK},
		{"/api/progression/users/ghost/ledger", http.StatusNotFound},
	}
	for _, tt := range tests {
		if w := do(t, h, "GET", tt.path, ""); w.Code != tt.code {
			t.Errorf("GET %s = %d, want %d", tt.path, w.Code, tt.code)
		}
	}
}

func TestAchievements_AllCatalogEntries(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), "GET", "/api/progression/users/ghost/achievements", "")
	var resp struct {
		Achievements []domain.AchievementProgress `json:"achievements"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Achievements) != progression.Default().Len() {
		t.Errorf("achievements = %d, want %d", len(resp.Achievements), progression.Default().Len())
	}
	for _, p := range resp.Achievements {
		if p.IsUnlocked || p.ProgressPercent >= 100 {
			t.Errorf("fresh user progress %s = %+v", p.Achievement.ID, p)
		}
	}
}

func TestLedger_Balanced(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	do(t, h, "POST", "/api/progression/scans", `{"user_id":"alice","site_id":"s1"}`)

	w := do(t, h, "GET", "/api/progression/users/alice/ledger", "")
	var resp struct {
		domain.Reconciliation
		Breakdown map[string]int64 `json:"breakdown"`
	}
	decodeBody(t, w, &resp)
	if !resp.Balanced || resp.LedgerPoints != resp.StatsPoints {
		t.Errorf("ledger = %+v, want balanced", resp)
	}
	if resp.Breakdown["scan"] != progression.DefaultScanPoints {
		t.Errorf("breakdown scan = %d, want %d", resp.Breakdown["scan"], progression.DefaultScanPoints)
	}
}

// ─── Leaderboard ────────────────────────────────────────────────────────────

func TestLeaderboard(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	do(t, h, "POST", "/api/progression/users/bob/points", `{"points":30,"reason":"seed"}`)
	do(t, h, "POST", "/api/progression/users/alice/points", `{"points":60,"reason":"seed"}`)

	w := do(t, h, "GET", "/api/progression/leaderboard?limit=0", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Limit   int                       `json:"limit"`
		Entries []domain.LeaderboardEntry `json:"entries"`
	}
	decodeBody(t, w, &resp)
	if resp.Limit != progression.DefaultLeaderboardLimit {
		t.Errorf("limit = %d, want %d", resp.Limit, progression.DefaultLeaderboardLimit)
	}
	if len(resp.Entries) != 2 || resp.Entries[0].UserID != "alice" || resp.Entries[1].Rank != 2 {
		t.Errorf("entries = %+v", resp.Entries)
	}

	if w := do(t, h, "GET", "/api/progression/leaderboard?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}
}

func TestSweep(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	do(t, h, "POST", "/api/progression/users/alice/points", `{"points":60,"reason":"seed"}`)

	w := do(t, h, "POST", "/api/progression/leaderboard/sweep?limit=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Results []domain.RankResult `json:"results"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Results) != 1 || resp.Results[0].Rank != 1 {
		t.Errorf("results = %+v", resp.Results)
	}

	// A second sweep finds nothing new.
	w = do(t, h, "POST", "/api/progression/leaderboard/sweep?limit=10", "")
	decodeBody(t, w, &resp)
	if len(resp.Results) != 0 {
		t.Errorf("second sweep results = %d, want 0", len(resp.Results))
	}
}

func TestCatalog(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), "GET", "/api/progression/catalog", "")
	var resp struct {
		Achievements []domain.Achievement `json:"achievements"`
		Levels       []domain.LevelBand   `json:"levels"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Achievements) != 18 {
		t.Errorf("achievements = %d, want 18", len(resp.Achievements))
	}
	if len(resp.Levels) == 0 || resp.Levels[0].Level != 1 {
		t.Errorf("levels = %+v", resp.Levels)
	}
}

// ─── Rate limiting ──────────────────────────────────────────────────────────

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.SetRateLimit(0.001, 2)
	h := srv.Handler()

	for i := 0; i < 2; i++ {
		if w := do(t, h, "GET", "/api/progression/catalog", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}
	if w := do(t, h, "GET", "/api/progression/catalog", ""); w.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", w.Code)
	}
	// /health is outside the limited group.
	if w := do(t, h, "GET", "/health", ""); w.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", w.Code)
	}
}

func TestRateLimit_PerClient(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.SetRateLimit(0.001, 1)
	h := srv.Handler()

	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest("GET", "/api/progression/catalog", nil)
		req.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("first request from %s = %d, want 200", ip, w.Code)
		}
	}
}

func TestLimiterSweep(t *testing.T) {
	l := newClientLimiter(1, 1)
	l.get("a")
	l.get("b")
	if n := l.sweep(time.Now().Add(visitorIdle + time.Second)); n != 2 {
		t.Errorf("sweep() = %d, want 2", n)
	}
	if len(l.visitors) != 0 {
		t.Errorf("visitors = %d, want 0", len(l.visitors))
	}
}
