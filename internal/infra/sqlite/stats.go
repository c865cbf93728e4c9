package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/heritagescan/heritage/internal/domain"
)

const statsColumns = `user_id, points, level, total_scans, total_reports, weekend_scans,
	current_streak, longest_streak, last_scan_at, created_at, updated_at`

// ─── Stats Repository ───────────────────────────────────────────────────────

// GetStats returns a user's stats, or nil if the user has none.
func (d *DB) GetStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	st, err := d.loadStats(ctx, d.db, userID)
	if err != nil {
		return nil, unavailable("get stats", err)
	}
	return st, nil
}

// InitializeStats creates a level-1 record if the user has none.
func (d *DB) InitializeStats(ctx context.Context, userID string, now time.Time) (*domain.UserStats, error) {
	ms := toMillis(now)
	_, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_stats (user_id, points, level, created_at, updated_at)
		 VALUES (?, 0, 1, ?, ?)`,
		userID, ms, ms,
	)
	if err != nil {
		return nil, unavailable("initialize stats", err)
	}
	return d.GetStats(ctx, userID)
}

// ApplyAtomic runs fn on the user's row inside one IMMEDIATE transaction and
// commits the updated row with fn's ledger entries and unlocks. Errors from
// fn abort the write and are returned unchanged.
func (d *DB) ApplyAtomic(ctx context.Context, userID string, fn domain.Mutation) (*domain.UserStats, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin", err)
	}
	defer tx.Rollback()

	st, err := d.loadStats(ctx, tx, userID)
	if err != nil {
		return nil, unavailable("load stats", err)
	}
	if st == nil {
		return nil, domain.ErrStatsNotFound
	}

	effects, err := fn(st)
	if err != nil {
		return nil, err
	}
	st.UserID = userID

	_, err = tx.ExecContext(ctx,
		`UPDATE user_stats SET
			points = ?, level = ?, total_scans = ?, total_reports = ?, weekend_scans = ?,
			current_streak = ?, longest_streak = ?, last_scan_at = ?, updated_at = ?
		 WHERE user_id = ?`,
		st.Points, st.Level, st.TotalScans, st.TotalReports, st.WeekendScans,
		st.CurrentStreak, st.LongestStreak, nullableMillis(st.LastScanDate), toMillis(st.UpdatedAt),
		userID,
	)
	if err != nil {
		return nil, unavailable("update stats", err)
	}

	for _, t := range effects.Transactions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO points_transactions (id, user_id, points, reason, timestamp, achievement_id)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, userID, t.Points, t.Reason, toMillis(t.Timestamp), nullableString(t.RelatedAchievementID),
		); err != nil {
			return nil, unavailable("append transaction", err)
		}
	}

	for _, u := range effects.Unlocks {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_achievements (user_id, achievement_id, unlocked_at)
			 VALUES (?, ?, ?)`,
			userID, u.AchievementID, toMillis(u.UnlockedAt),
		); err != nil {
			return nil, unavailable("insert unlock", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit", err)
	}
	return st, nil
}

// ListTopByPoints returns up to limit users ordered by points descending,
// then user id ascending.
func (d *DB) ListTopByPoints(ctx context.Context, limit int) ([]domain.UserStats, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+statsColumns+` FROM user_stats
		 ORDER BY points DESC, user_id ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, unavailable("list top", err)
	}

	var out []domain.UserStats
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			rows.Close()
			return nil, unavailable("scan stats", err)
		}
		out = append(out, *st)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, unavailable("list top", err)
	}

	// The single pooled connection is free again; fetch each unlocked set.
	for i := range out {
		ids, err := unlockedIDs(ctx, d.db, out[i].UserID)
		if err != nil {
			return nil, unavailable("list unlocked", err)
		}
		out[i].AchievementsUnlocked = ids
	}
	return out, nil
}

// ─── Ledger Repository ──────────────────────────────────────────────────────

// ListTransactions returns the newest ledger entries first. limit <= 0 means all.
func (d *DB) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.PointsTransaction, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, user_id, points, reason, timestamp, achievement_id
		 FROM points_transactions WHERE user_id = ?
		 ORDER BY timestamp DESC, seq DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, unavailable("list transactions", err)
	}
	defer rows.Close()

	var out []domain.PointsTransaction
	for rows.Next() {
		var t domain.PointsTransaction
		var ts int64
		var related sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &t.Points, &t.Reason, &ts, &related); err != nil {
			return nil, unavailable("scan transaction", err)
		}
		t.Timestamp = fromMillis(ts)
		t.RelatedAchievementID = related.String
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list transactions", err)
	}
	return out, nil
}

// SumTransactions returns the ledger total and entry count for a user.
func (d *DB) SumTransactions(ctx context.Context, userID string) (int64, int, error) {
	var sum int64
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points), 0), COUNT(*) FROM points_transactions WHERE user_id = ?`,
		userID,
	).Scan(&sum, &n)
	if err != nil {
		return 0, 0, unavailable("sum transactions", err)
	}
	return sum, n, nil
}

// ─── Achievement Repository ─────────────────────────────────────────────────

// ListUnlocked returns a user's unlock records, oldest first.
func (d *DB) ListUnlocked(ctx context.Context, userID string) ([]domain.UnlockedAchievement, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT user_id, achievement_id, unlocked_at FROM user_achievements
		 WHERE user_id = ? ORDER BY unlocked_at ASC, rowid ASC`, userID,
	)
	if err != nil {
		return nil, unavailable("list unlocked", err)
	}
	defer rows.Close()

	var out []domain.UnlockedAchievement
	for rows.Next() {
		var u domain.UnlockedAchievement
		var at int64
		if err := rows.Scan(&u.UserID, &u.AchievementID, &at); err != nil {
			return nil, unavailable("scan unlock", err)
		}
		u.UnlockedAt = fromMillis(at)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list unlocked", err)
	}
	return out, nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// loadStats reads a stats row plus its unlocked set through q, which may be
// the open transaction. Returns nil, nil when absent.
func (d *DB) loadStats(ctx context.Context, q querier, userID string) (*domain.UserStats, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+statsColumns+` FROM user_stats WHERE user_id = ?`, userID,
	)
	st, err := scanStats(row)
	if err != nil || st == nil {
		return nil, err
	}
	st.AchievementsUnlocked, err = unlockedIDs(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func unlockedIDs(ctx context.Context, q querier, userID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT achievement_id FROM user_achievements
		 WHERE user_id = ? ORDER BY unlocked_at ASC, rowid ASC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanStats(s scanner) (*domain.UserStats, error) {
	var st domain.UserStats
	var lastScan sql.NullInt64
	var createdAt, updatedAt int64

	err := s.Scan(&st.UserID, &st.Points, &st.Level, &st.TotalScans, &st.TotalReports,
		&st.WeekendScans, &st.CurrentStreak, &st.LongestStreak, &lastScan, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastScan.Valid {
		st.LastScanDate = fromMillis(lastScan.Int64)
	}
	st.CreatedAt = fromMillis(createdAt)
	st.UpdatedAt = fromMillis(updatedAt)
	st.AchievementsUnlocked = []string{}
	return &st, nil
}
