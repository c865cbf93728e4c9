// Package ledger reads the append-only points ledger.
// Every points change is one entry, so SUM(entries) == stats.points is an
// invariant per user.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/heritagescan/heritage/internal/app/progression"
	"github.com/heritagescan/heritage/internal/domain"
)

// DefaultHistoryLimit is the page size History uses for limit <= 0.
const DefaultHistoryLimit = 50

// Service reads ledger state from the progression store.
type Service struct {
	store domain.StatsStore
}

// NewService creates a ledger service.
func NewService(store domain.StatsStore) *Service {
	return &Service{store: store}
}

// History returns recent ledger entries, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]domain.PointsTransaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.store.ListTransactions(ctx, userID, limit)
}

// Balance returns the sum of a user's ledger deltas.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	sum, _, err := s.store.SumTransactions(ctx, userID)
	return sum, err
}

// Reconcile compares a user's stored points with the ledger sum.
func (s *Service) Reconcile(ctx context.Context, userID string) (domain.Reconciliation, error) {
	stats, err := s.store.GetStats(ctx, userID)
	if err != nil {
		return domain.Reconciliation{}, err
	}
	if stats == nil {
		return domain.Reconciliation{}, fmt.Errorf("reconcile %s: %w", userID, domain.ErrStatsNotFound)
	}
	return s.reconcile(ctx, *stats)
}

// ReconcileTop reconciles the top limit users by points.
func (s *Service) ReconcileTop(ctx context.Context, limit int) ([]domain.Reconciliation, error) {
	top, err := s.store.ListTopByPoints(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Reconciliation, 0, len(top))
	for _, st := range top {
		r, err := s.reconcile(ctx, st)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Service) reconcile(ctx context.Context, stats domain.UserStats) (domain.Reconciliation, error) {
	sum, n, err := s.store.SumTransactions(ctx, stats.UserID)
	if err != nil {
		return domain.Reconciliation{}, err
	}
	return domain.Reconciliation{
		UserID:       stats.UserID,
		StatsPoints:  stats.Points,
		LedgerPoints: sum,
		Entries:      n,
		Balanced:     sum == stats.Points,
	}, nil
}

// ─── Breakdown ──────────────────────────────────────────────────────────────

// Source classifies where an entry's points came from.
type Source string

const (
	SourceScan        Source = "scan"
	SourceReport      Source = "report"
	SourceStreak      Source = "streak"
	SourceAchievement Source = "achievement"
	SourceOther       Source = "other"
)

// Classify maps a ledger entry to its Source.
func Classify(t domain.PointsTransaction) Source {
	switch {
	case t.RelatedAchievementID != "":
		return SourceAchievement
	case t.Reason == progression.ReasonScan:
		return SourceScan
	case t.Reason == progression.ReasonReport:
		return SourceReport
	case strings.HasSuffix(t.Reason, "-day streak bonus"):
		return SourceStreak
	default:
		return SourceOther
	}
}

// Breakdown totals a user's full ledger by source.
func (s *Service) Breakdown(ctx context.Context, userID string) (map[Source]int64, error) {
	all, err := s.store.ListTransactions(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	out := make(map[Source]int64)
	for _, t := range all {
		out[Classify(t)] += t.Points
	}
	return out, nil
}
