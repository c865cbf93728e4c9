package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heritagescan/heritage/internal/app/ledger"
	"github.com/heritagescan/heritage/internal/app/progression"
	"github.com/heritagescan/heritage/internal/domain"
)

// ─── Progression API (/api/progression/*) ───────────────────────────────────

// --- POST /scans ---

type scanRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	SiteID string `json:"site_id" validate:"required,max=128"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.progression.HandleScanCompleted(r.Context(), req.UserID, req.SiteID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- POST /reports ---

type reportRequest struct {
	UserID   string `json:"user_id" validate:"required,max=128"`
	ReportID string `json:"report_id" validate:"required,max=128"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.progression.HandleReportSubmitted(r.Context(), req.UserID, req.ReportID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- POST /users/{userID}/points ---

type awardRequest struct {
	Points               int64  `json:"points" validate:"gte=0,max=1000000000"`
	Reason               string `json:"reason" validate:"required,max=200"`
	RelatedAchievementID string `json:"related_achievement_id,omitempty" validate:"max=64"`
}

func (s *Server) handleAward(w http.ResponseWriter, r *http.Request) {
	var req awardRequest
	if !s.decode(w, r, &req) {
		return
	}
	stats, err := s.progression.AwardPoints(r.Context(), chi.URLParam(r, "userID"),
		req.Points, req.Reason, req.RelatedAchievementID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- POST /users/{userID}/rank ---

type rankRequest struct {
	Rank int `json:"rank" validate:"required,gte=1"`
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	var req rankRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.progression.HandleRankAchieved(r.Context(), chi.URLParam(r, "userID"), req.Rank)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- GET /users/{userID}/stats ---

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	stats, err := s.progression.GetUserStats(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if stats == nil {
		writeDomainError(w, fmt.Errorf("%w: %s", domain.ErrStatsNotFound, userID))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- GET /users/{userID}/achievements ---

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	list, err := s.progression.GetAchievementProgress(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"achievements": list,
	})
}

// --- GET /users/{userID}/achievements/unlocked ---

func (s *Server) handleUnlocked(w http.ResponseWriter, r *http.Request) {
	list, err := s.progression.UnlockedAchievements(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []domain.UnlockedAchievement{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"unlocked": list,
	})
}

// --- GET /users/{userID}/level ---

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	lp, err := s.progression.GetLevelProgress(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lp)
}

// --- GET /users/{userID}/history?limit=N ---

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	txs, err := s.ledger.History(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if txs == nil {
		txs = []domain.PointsTransaction{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
	})
}

// --- GET /users/{userID}/ledger ---

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	rec, err := s.ledger.Reconcile(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	breakdown, err := s.ledger.Breakdown(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		domain.Reconciliation
		Breakdown map[ledger.Source]int64 `json:"breakdown"`
	}{rec, breakdown})
}

// --- GET /leaderboard?limit=N ---

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	board, err := s.ranker.GetLeaderboard(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"limit":   progression.NormalizeLimit(limit),
		"entries": board,
	})
}

// --- POST /leaderboard/sweep?limit=N ---

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := s.progression.SweepRankAchievements(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if results == nil {
		results = []domain.RankResult{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

// --- GET /catalog ---

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"achievements": s.progression.Catalog().All(),
		"levels":       progression.LevelBands(),
	})
}
