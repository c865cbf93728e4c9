package domain

import (
	"context"
	"time"
)

// ─── Store Interfaces ───────────────────────────────────────────────────────
// Infrastructure implements these; the application layer depends on them.

// Effects are the append-only records a Mutation produces. The store commits
// them in the same write as the mutated stats.
type Effects struct {
	Transactions []PointsTransaction
	Unlocks      []UnlockedAchievement
}

// Mutation edits a copy of a user's stats that the store holds under a
// per-user write lock. Returning an error aborts the whole write.
type Mutation func(stats *UserStats) (Effects, error)

// StatsStore persists user progression.
type StatsStore interface {
	// GetStats returns nil, nil when the user has no stats yet.
	GetStats(ctx context.Context, userID string) (*UserStats, error)

	// InitializeStats creates the initial record; it returns the existing
	// record unchanged if one is already present.
	InitializeStats(ctx context.Context, userID string, now time.Time) (*UserStats, error)

	// ApplyAtomic runs fn against the locked row and commits the result
	// together with its effects. Fails with ErrStatsNotFound if the user
	// was never initialized.
	ApplyAtomic(ctx context.Context, userID string, fn Mutation) (*UserStats, error)

	// ListTopByPoints orders by points descending, then user id ascending.
	ListTopByPoints(ctx context.Context, limit int) ([]UserStats, error)

	// ListTransactions returns the newest ledger entries first.
	ListTransactions(ctx context.Context, userID string, limit int) ([]PointsTransaction, error)

	// SumTransactions returns the ledger total and entry count for a user.
	SumTransactions(ctx context.Context, userID string) (int64, int, error)

	// ListUnlocked returns unlock records oldest first.
	ListUnlocked(ctx context.Context, userID string) ([]UnlockedAchievement, error)

	Ping(ctx context.Context) error
	Close() error
}
