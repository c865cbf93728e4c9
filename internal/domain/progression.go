// Package domain holds the pure progression types shared by every layer.
// Nothing here touches storage or transport.
package domain

import (
	"slices"
	"time"
)

// ─── User Stats ─────────────────────────────────────────────────────────────

// UserStats is the per-user progression record.
// Level is always derived from Points; AchievementsUnlocked only grows.
type UserStats struct {
	UserID               string    `json:"user_id"`
	Points               int64     `json:"points"`
	Level                int       `json:"level"`
	TotalScans           int       `json:"total_scans"`
	TotalReports         int       `json:"total_reports"`
	WeekendScans         int       `json:"weekend_scans"`
	AchievementsUnlocked []string  `json:"achievements_unlocked"`
	CurrentStreak        int       `json:"current_streak"`
	LongestStreak        int       `json:"longest_streak"`
	LastScanDate         time.Time `json:"last_scan_date"` // zero if the user never scanned
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// NewUserStats returns the initial record for a user who has never acted.
func NewUserStats(userID string, now time.Time) UserStats {
	return UserStats{
		UserID:               userID,
		Level:                1,
		AchievementsUnlocked: []string{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// HasAchievement reports whether id is already in the unlocked set.
func (s UserStats) HasAchievement(id string) bool {
	return slices.Contains(s.AchievementsUnlocked, id)
}

// Clone returns a deep copy so callers can mutate without aliasing the unlocked set.
func (s UserStats) Clone() UserStats {
	c := s
	c.AchievementsUnlocked = slices.Clone(s.AchievementsUnlocked)
	if c.AchievementsUnlocked == nil {
		c.AchievementsUnlocked = []string{}
	}
	return c
}

// ─── Achievements ───────────────────────────────────────────────────────────

// AchievementCategory groups achievements by theme.
type AchievementCategory string

const (
	CatExplorer    AchievementCategory = "explorer"
	CatContributor AchievementCategory = "contributor"
	CatStreak      AchievementCategory = "streak"
	CatSpecial     AchievementCategory = "special"
	CatSocial      AchievementCategory = "social"
)

// Rarity ranks how hard an achievement is to earn.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// CriteriaType selects which rule the evaluator applies to an achievement.
type CriteriaType string

const (
	CriteriaScanCount   CriteriaType = "scan_count"
	CriteriaReportCount CriteriaType = "report_count"
	CriteriaStreak      CriteriaType = "streak"
	CriteriaTimeBased   CriteriaType = "time_based"
	CriteriaRank        CriteriaType = "rank"
	CriteriaCustom      CriteriaType = "custom"
)

// Criteria describes when an achievement unlocks.
type Criteria struct {
	Type      CriteriaType `json:"type"`
	Target    int          `json:"target,omitempty"`
	Condition string       `json:"condition,omitempty"`
}

// Achievement is an immutable catalog entry.
type Achievement struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Icon        string              `json:"icon"`
	Category    AchievementCategory `json:"category"`
	Rarity      Rarity              `json:"rarity"`
	Points      int64               `json:"points"`
	Criteria    Criteria            `json:"criteria"`
}

// UnlockedAchievement records when a user earned an achievement.
type UnlockedAchievement struct {
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// AchievementProgress is the per-achievement view shown on a profile.
type AchievementProgress struct {
	Achievement     Achievement `json:"achievement"`
	IsUnlocked      bool        `json:"is_unlocked"`
	CurrentValue    int         `json:"current_value"`
	TargetValue     int         `json:"target_value"`
	ProgressPercent float64     `json:"progress_percent"`
}

// ─── Levels ─────────────────────────────────────────────────────────────────

// LevelBand is one row of the level table: points in [MinPoints, MaxPoints) are Level.
type LevelBand struct {
	Level     int   `json:"level"`
	MinPoints int64 `json:"min_points"`
	MaxPoints int64 `json:"max_points"`
}

// LevelProgress locates a points total inside its level band.
type LevelProgress struct {
	Level    int     `json:"level"`
	Points   int64   `json:"points"`
	Current  int64   `json:"current"`
	Next     int64   `json:"next"`
	Progress float64 `json:"progress"`
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

// PointsTransaction is one append-only ledger row. The sum of a user's
// Points deltas always equals UserStats.Points.
type PointsTransaction struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	Points               int64     `json:"points"`
	Reason               string    `json:"reason"`
	Timestamp            time.Time `json:"timestamp"`
	RelatedAchievementID string    `json:"related_achievement_id,omitempty"`
}

// Reconciliation compares the stored points total with the ledger sum.
type Reconciliation struct {
	UserID       string `json:"user_id"`
	StatsPoints  int64  `json:"stats_points"`
	LedgerPoints int64  `json:"ledger_points"`
	Entries      int    `json:"entries"`
	Balanced     bool   `json:"balanced"`
}

// ─── Leaderboard ────────────────────────────────────────────────────────────

// LeaderboardEntry is a derived, never persisted, ranking row.
type LeaderboardEntry struct {
	UserID           string `json:"user_id"`
	Points           int64  `json:"points"`
	Level            int    `json:"level"`
	Rank             int    `json:"rank"`
	AchievementCount int    `json:"achievement_count"`
	TotalScans       int    `json:"total_scans"`
}

// ─── Handler Results ────────────────────────────────────────────────────────

// ScanResult summarizes what a completed scan earned.
type ScanResult struct {
	PointsAwarded int64         `json:"points_awarded"`
	NewlyUnlocked []Achievement `json:"newly_unlocked"`
	StreakBonus   int64         `json:"streak_bonus"`
	Stats         UserStats     `json:"stats"`
}

// ReportResult summarizes what a submitted report earned.
type ReportResult struct {
	PointsAwarded int64         `json:"points_awarded"`
	NewlyUnlocked []Achievement `json:"newly_unlocked"`
	Stats         UserStats     `json:"stats"`
}

// RankResult summarizes the achievements a leaderboard position unlocked.
type RankResult struct {
	Rank          int           `json:"rank"`
	NewlyUnlocked []Achievement `json:"newly_unlocked"`
	Stats         UserStats     `json:"stats"`
}
