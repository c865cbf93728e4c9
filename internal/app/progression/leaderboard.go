package progression

import (
	"context"
	"fmt"

	"github.com/heritagescan/heritage/internal/domain"
)

// Leaderboard limits.
const (
	DefaultLeaderboardLimit = 50
	MaxLeaderboardLimit     = 500
)

// LeaderboardCache holds rendered leaderboard pages. Entries may be stale.
type LeaderboardCache interface {
	Get(ctx context.Context, limit int) ([]domain.LeaderboardEntry, bool)
	Set(ctx context.Context, limit int, entries []domain.LeaderboardEntry)
}

// Ranker builds the global leaderboard. It never writes stats.
type Ranker struct {
	store domain.StatsStore
	cache LeaderboardCache
}

// NewRanker creates a ranker. cache may be nil.
func NewRanker(store domain.StatsStore, cache LeaderboardCache) *Ranker {
	return &Ranker{store: store, cache: cache}
}

// NormalizeLimit applies the default and the cap.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		return MaxLeaderboardLimit
	}
	return limit
}

// GetLeaderboard returns the top users by points, highest first. Equal
// points are ordered by user id so ranks are stable.
func (r *Ranker) GetLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	limit = NormalizeLimit(limit)

	if r.cache != nil {
		if entries, ok := r.cache.Get(ctx, limit); ok {
			return entries, nil
		}
	}

	top, err := r.store.ListTopByPoints(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list top by points: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(top))
	for i, st := range top {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:           st.UserID,
			Points:           st.Points,
			Level:            st.Level,
			Rank:             i + 1,
			AchievementCount: len(st.AchievementsUnlocked),
			TotalScans:       st.TotalScans,
		})
	}

	if r.cache != nil {
		r.cache.Set(ctx, limit, entries)
	}
	return entries, nil
}

// RankOf returns a user's 1-based position within the top limit, or 0.
func (r *Ranker) RankOf(ctx context.Context, userID string, limit int) (int, error) {
	board, err := r.GetLeaderboard(ctx, limit)
	if err != nil {
		return 0, err
	}
	for _, e := range board {
		if e.UserID == userID {
			return e.Rank, nil
		}
	}
	return 0, nil
}
