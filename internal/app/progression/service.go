// Package progression implements the heritage scan progression engine.
// Points, levels, streaks, achievements and the leaderboard all derive from
// one per-user stats record that only changes through StatsStore.ApplyAtomic.
package progression

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/heritagescan/heritage/internal/domain"
	"github.com/heritagescan/heritage/internal/infra/metrics"
)

// Default rewards.
const (
	DefaultScanPoints   int64 = 50
	DefaultReportPoints int64 = 100
)

// MaxAwardPoints is the largest delta a single AwardPoints call accepts.
const MaxAwardPoints int64 = 1_000_000_000

// Ledger reasons.
const (
	ReasonScan        = "Heritage site scan"
	ReasonReport      = "Detailed conservation report"
	reasonStreakBonus = "%d-day streak bonus"
	reasonAchievement = "Achievement unlocked: %s"
)

// Config tunes rewards and the clock used for time-based achievements.
type Config struct {
	ScanPoints        int64
	ReportPoints      int64
	StreakBonusPerDay int64
	// Location is where "before 7 AM" and "weekend" are measured. nil = UTC.
	Location *time.Location
	// Catalog defaults to Default().
	Catalog *Catalog
}

// DefaultConfig returns the stock rewards.
func DefaultConfig() Config {
	return Config{
		ScanPoints:        DefaultScanPoints,
		ReportPoints:      DefaultReportPoints,
		StreakBonusPerDay: DefaultStreakBonusPerDay,
		Location:          time.UTC,
		Catalog:           Default(),
	}
}

// Service is the progression orchestrator. Every handler is a single atomic
// store write: on any error nothing is committed.
type Service struct {
	store   domain.StatsStore
	catalog *Catalog
	cfg     Config
	now     func() time.Time
}

// NewService creates a progression service with the default rewards.
func NewService(store domain.StatsStore) *Service {
	return NewServiceWithConfig(store, DefaultConfig())
}

// NewServiceWithConfig creates a progression service with custom rewards.
func NewServiceWithConfig(store domain.StatsStore, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Catalog == nil {
		cfg.Catalog = Default()
	}
	return &Service{
		store:   store,
		catalog: cfg.Catalog,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Catalog returns the catalog the service evaluates against.
func (s *Service) Catalog() *Catalog { return s.catalog }

// ─── Handlers ───────────────────────────────────────────────────────────────

// AwardPoints credits delta points to a user, creating the user if needed.
func (s *Service) AwardPoints(ctx context.Context, userID string, delta int64, reason, relatedAchievementID string) (*domain.UserStats, error) {
	return s.AwardPointsAt(ctx, userID, delta, reason, relatedAchievementID, s.now())
}

// AwardPointsAt is AwardPoints with an explicit clock.
func (s *Service) AwardPointsAt(ctx context.Context, userID string, delta int64, reason, relatedAchievementID string, now time.Time) (*domain.UserStats, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", domain.ErrInvalidInput)
	}
	if delta < 0 {
		return nil, fmt.Errorf("%w: negative points delta %d", domain.ErrInvalidInput, delta)
	}
	if delta > MaxAwardPoints {
		return nil, fmt.Errorf("%w: points delta %d exceeds %d", domain.ErrInvalidInput, delta, MaxAwardPoints)
	}
	if relatedAchievementID != "" {
		if _, ok := s.catalog.Lookup(relatedAchievementID); !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAchievement, relatedAchievementID)
		}
	}
	if _, err := s.store.InitializeStats(ctx, userID, now); err != nil {
		return nil, s.storeErr("initialize", err)
	}

	var awarded *round
	stats, err := s.store.ApplyAtomic(ctx, userID, func(st *domain.UserStats) (domain.Effects, error) {
		r := s.newRound(st, now)
		if err := r.credit(delta, reason, relatedAchievementID); err != nil {
			return domain.Effects{}, err
		}
		if err := r.settle(); err != nil {
			return domain.Effects{}, err
		}
		awarded = r
		return r.effects, nil
	})
	if err != nil {
		return nil, s.storeErr("award", err)
	}

	s.record(userID, awarded)
	return stats, nil
}

// HandleScanCompleted records a heritage site scan.
func (s *Service) HandleScanCompleted(ctx context.Context, userID, siteID string) (domain.ScanResult, error) {
	return s.HandleScanCompletedAt(ctx, userID, siteID, s.now())
}

// HandleScanCompletedAt is HandleScanCompleted with an explicit clock.
func (s *Service) HandleScanCompletedAt(ctx context.Context, userID, siteID string, now time.Time) (domain.ScanResult, error) {
	if userID == "" {
		return domain.ScanResult{}, fmt.Errorf("%w: empty user id", domain.ErrInvalidInput)
	}
	if _, err := s.store.InitializeStats(ctx, userID, now); err != nil {
		return domain.ScanResult{}, s.storeErr("initialize", err)
	}

	local := now.In(s.cfg.Location)
	var (
		res  domain.ScanResult
		done *round
	)
	stats, err := s.store.ApplyAtomic(ctx, userID, func(st *domain.UserStats) (domain.Effects, error) {
		r := s.newRound(st, now)

		st.TotalScans++
		if isWeekend(local) {
			st.WeekendScans++
		}

		streak := NextStreak(st.CurrentStreak, st.LongestStreak, st.LastScanDate, now, s.cfg.StreakBonusPerDay)
		st.CurrentStreak = streak.Current
		st.LongestStreak = streak.Longest
		st.LastScanDate = now

		if err := r.credit(s.cfg.ScanPoints, ReasonScan, ""); err != nil {
			return domain.Effects{}, err
		}
		if streak.Bonus > 0 {
			if err := r.credit(streak.Bonus, fmt.Sprintf(reasonStreakBonus, streak.Current), ""); err != nil {
				return domain.Effects{}, err
			}
		}

		if err := r.evaluate(domain.ScanCompleted{SiteID: siteID, Timestamp: local}); err != nil {
			return domain.Effects{}, err
		}
		if err := r.evaluate(domain.StreakUpdated{StreakCount: streak.Current}); err != nil {
			return domain.Effects{}, err
		}
		if err := r.settle(); err != nil {
			return domain.Effects{}, err
		}

		res = domain.ScanResult{
			PointsAwarded: s.cfg.ScanPoints + streak.Bonus,
			NewlyUnlocked: r.unlocked,
			StreakBonus:   streak.Bonus,
		}
		done = r
		return r.effects, nil
	})
	if err != nil {
		return domain.ScanResult{}, s.storeErr("scan", err)
	}

	metrics.ScansRecorded.Inc()
	s.record(userID, done)
	res.Stats = *stats
	if res.NewlyUnlocked == nil {
		res.NewlyUnlocked = []domain.Achievement{}
	}
	return res, nil
}

// HandleReportSubmitted records a detailed conservation report. The user
// must already have stats.
func (s *Service) HandleReportSubmitted(ctx context.Context, userID, reportID string) (domain.ReportResult, error) {
	return s.HandleReportSubmittedAt(ctx, userID, reportID, s.now())
}

// HandleReportSubmittedAt is HandleReportSubmitted with an explicit clock.
func (s *Service) HandleReportSubmittedAt(ctx context.Context, userID, reportID string, now time.Time) (domain.ReportResult, error) {
	if userID == "" {
		return domain.ReportResult{}, fmt.Errorf("%w: empty user id", domain.ErrInvalidInput)
	}

	var (
		res  domain.ReportResult
		done *round
	)
	stats, err := s.store.ApplyAtomic(ctx, userID, func(st *domain.UserStats) (domain.Effects, error) {
		r := s.newRound(st, now)

		st.TotalReports++
		if err := r.credit(s.cfg.ReportPoints, ReasonReport, ""); err != nil {
			return domain.Effects{}, err
		}

		if err := r.evaluate(domain.ReportSubmitted{ReportID: reportID, Timestamp: now.In(s.cfg.Location)}); err != nil {
			return domain.Effects{}, err
		}
		if err := r.settle(); err != nil {
			return domain.Effects{}, err
		}

		res = domain.ReportResult{
			PointsAwarded: s.cfg.ReportPoints,
			NewlyUnlocked: r.unlocked,
		}
		done = r
		return r.effects, nil
	})
	if err != nil {
		return domain.ReportResult{}, s.storeErr("report", err)
	}

	metrics.ReportsRecorded.Inc()
	s.record(userID, done)
	res.Stats = *stats
	if res.NewlyUnlocked == nil {
		res.NewlyUnlocked = []domain.Achievement{}
	}
	return res, nil
}

// HandleRankAchieved applies a leaderboard position to an existing user.
func (s *Service) HandleRankAchieved(ctx context.Context, userID string, rank int) (domain.RankResult, error) {
	return s.HandleRankAchievedAt(ctx, userID, rank, s.now())
}

// HandleRankAchievedAt is HandleRankAchieved with an explicit clock.
func (s *Service) HandleRankAchievedAt(ctx context.Context, userID string, rank int, now time.Time) (domain.RankResult, error) {
	if userID == "" {
		return domain.RankResult{}, fmt.Errorf("%w: empty user id", domain.ErrInvalidInput)
	}
	if rank < 1 {
		return domain.RankResult{}, fmt.Errorf("%w: rank %d", domain.ErrInvalidInput, rank)
	}

	var done *round
	stats, err := s.store.ApplyAtomic(ctx, userID, func(st *domain.UserStats) (domain.Effects, error) {
		r := s.newRound(st, now)
		if err := r.evaluate(domain.RankAchieved{Rank: rank}); err != nil {
			return domain.Effects{}, err
		}
		if err := r.settle(); err != nil {
			return domain.Effects{}, err
		}
		done = r
		return r.effects, nil
	})
	if err != nil {
		return domain.RankResult{}, s.storeErr("rank", err)
	}

	s.record(userID, done)
	res := domain.RankResult{Rank: rank, NewlyUnlocked: done.unlocked, Stats: *stats}
	if res.NewlyUnlocked == nil {
		res.NewlyUnlocked = []domain.Achievement{}
	}
	return res, nil
}

// SweepRankAchievements reads the current top-limit users straight from the
// store and applies each one's rank. Only users who unlocked something are
// returned.
func (s *Service) SweepRankAchievements(ctx context.Context, limit int) ([]domain.RankResult, error) {
	board, err := NewRanker(s.store, nil).GetLeaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var out []domain.RankResult
	for _, e := range board {
		res, err := s.HandleRankAchievedAt(ctx, e.UserID, e.Rank, now)
		if err != nil {
			return out, fmt.Errorf("rank %s: %w", e.UserID, err)
		}
		if len(res.NewlyUnlocked) > 0 {
			out = append(out, res)
		}
	}
	log.Printf("[progression] rank sweep: %d users checked, %d with new unlocks", len(board), len(out))
	return out, nil
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// GetUserStats returns nil, nil for a user who never acted.
func (s *Service) GetUserStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	stats, err := s.store.GetStats(ctx, userID)
	if err != nil {
		return nil, s.storeErr("get", err)
	}
	return stats, nil
}

// GetAchievementProgress reports progress on every catalog entry. Unknown
// users see everything at zero.
func (s *Service) GetAchievementProgress(ctx context.Context, userID string) ([]domain.AchievementProgress, error) {
	stats, err := s.statsOrFresh(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ProgressFor(s.catalog, stats), nil
}

// GetLevelProgress locates the user's points inside their level band.
func (s *Service) GetLevelProgress(ctx context.Context, userID string) (domain.LevelProgress, error) {
	stats, err := s.statsOrFresh(ctx, userID)
	if err != nil {
		return domain.LevelProgress{}, err
	}
	return NextLevelPoints(stats.Points), nil
}

// UnlockedAchievements lists a user's unlock records, oldest first.
func (s *Service) UnlockedAchievements(ctx context.Context, userID string) ([]domain.UnlockedAchievement, error) {
	list, err := s.store.ListUnlocked(ctx, userID)
	if err != nil {
		return nil, s.storeErr("list_unlocked", err)
	}
	return list, nil
}

func (s *Service) statsOrFresh(ctx context.Context, userID string) (domain.UserStats, error) {
	stats, err := s.GetUserStats(ctx, userID)
	if err != nil {
		return domain.UserStats{}, err
	}
	if stats == nil {
		return domain.NewUserStats(userID, time.Time{}), nil
	}
	return *stats, nil
}

// storeErr counts store failures. Canceled or expired contexts are the
// caller's doing and are not counted. The error itself is returned as is.
func (s *Service) storeErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, domain.ErrStoreUnavailable) {
		metrics.StoreErrors.WithLabelValues(op).Inc()
		log.Printf("[progression] store %s failed: %v", op, err)
	}
	return err
}

// record publishes metrics for a committed round.
func (s *Service) record(userID string, r *round) {
	if r == nil {
		return
	}
	metrics.PointsAwarded.Add(float64(r.points))
	for _, a := range r.unlocked {
		metrics.AchievementsUnlocked.WithLabelValues(string(a.Rarity)).Inc()
		log.Printf("[progression] %s unlocked %s (+%d)", userID, a.ID, a.Points)
	}
	if r.stats.Level > r.startLevel {
		metrics.LevelUps.Inc()
		log.Printf("[progression] %s reached level %d", userID, r.stats.Level)
	}
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// ─── Round ──────────────────────────────────────────────────────────────────
// A round is one mutation of a locked stats row. It keeps the points, level,
// unlocked set and ledger effects in step.

type round struct {
	cat        *Catalog
	stats      *domain.UserStats
	now        time.Time
	startLevel int
	points     int64
	unlocked   []domain.Achievement
	effects    domain.Effects
}

func (s *Service) newRound(st *domain.UserStats, now time.Time) *round {
	st.UpdatedAt = now
	return &round{cat: s.catalog, stats: st, now: now, startLevel: st.Level}
}

// credit adds delta points, re-derives the level and appends a ledger entry.
// A total past math.MaxInt64 is rejected as invalid input.
func (r *round) credit(delta int64, reason, relatedID string) error {
	if delta > 0 && r.stats.Points > math.MaxInt64-delta {
		return fmt.Errorf("%w: %d points would overflow total %d", domain.ErrInvalidInput, delta, r.stats.Points)
	}
	r.stats.Points += delta
	r.stats.Level = CalculateLevel(r.stats.Points)
	r.points += delta
	r.effects.Transactions = append(r.effects.Transactions, domain.PointsTransaction{
		ID:                   uuid.NewString(),
		UserID:               r.stats.UserID,
		Points:               delta,
		Reason:               reason,
		Timestamp:            r.now,
		RelatedAchievementID: relatedID,
	})
	return nil
}

// evaluate unlocks whatever action newly satisfies.
func (r *round) evaluate(action domain.UserAction) error {
	found, err := Evaluate(r.cat, *r.stats, action)
	if err != nil {
		return err
	}
	return r.grant(found)
}

// grant adds each achievement to the unlocked set once and credits its reward.
func (r *round) grant(list []domain.Achievement) error {
	for _, a := range list {
		if r.stats.HasAchievement(a.ID) {
			continue
		}
		r.stats.AchievementsUnlocked = append(r.stats.AchievementsUnlocked, a.ID)
		r.effects.Unlocks = append(r.effects.Unlocks, domain.UnlockedAchievement{
			UserID:        r.stats.UserID,
			AchievementID: a.ID,
			UnlockedAt:    r.now,
		})
		r.unlocked = append(r.unlocked, a)
		if err := r.credit(a.Points, fmt.Sprintf(reasonAchievement, a.Title), a.ID); err != nil {
			return err
		}
	}
	return nil
}

// settle runs the level-up pass: while the level is above where the round
// started, re-evaluate level-gated entries until nothing new unlocks. Every
// pass that continues unlocks at least one entry, so catalog size bounds it.
func (r *round) settle() error {
	if r.stats.Level <= r.startLevel {
		return nil
	}
	for pass := 0; pass < r.cat.Len(); pass++ {
		found, err := Evaluate(r.cat, *r.stats, domain.LevelReached{Level: r.stats.Level})
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return nil
		}
		if err := r.grant(found); err != nil {
			return err
		}
	}
	return nil
}
