// Package postgres provides a PostgreSQL progression store for deployments
// that share stats across several API nodes. Row locks (SELECT ... FOR
// UPDATE) serialize writers per user.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heritagescan/heritage/internal/domain"
)

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultPoolConfig returns pool settings suitable for a single API node.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        25,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Store is a domain.StatsStore backed by pgxpool.
type Store struct {
	pool *pgxpool.Pool
}

var _ domain.StatsStore = (*Store)(nil)

// Open connects to databaseURL, pings it and runs migrations.
func Open(ctx context.Context, databaseURL string, pc PoolConfig) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	if pc.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pc.MaxConnIdleTime
	}
	cfg.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[postgres] connected (max_conns=%d)", cfg.MaxConns)
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS user_stats (
			user_id        TEXT PRIMARY KEY,
			points         BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0),
			level          INTEGER NOT NULL DEFAULT 1,
			total_scans    INTEGER NOT NULL DEFAULT 0,
			total_reports  INTEGER NOT NULL DEFAULT 0,
			weekend_scans  INTEGER NOT NULL DEFAULT 0,
			current_streak INTEGER NOT NULL DEFAULT 0,
			longest_streak INTEGER NOT NULL DEFAULT 0,
			last_scan_at   TIMESTAMPTZ,
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stats_points ON user_stats (points DESC, user_id)`,

		`CREATE TABLE IF NOT EXISTS points_transactions (
			seq            BIGSERIAL PRIMARY KEY,
			id             UUID NOT NULL UNIQUE,
			user_id        TEXT NOT NULL REFERENCES user_stats (user_id),
			points         BIGINT NOT NULL,
			reason         TEXT NOT NULL,
			timestamp      TIMESTAMPTZ NOT NULL,
			achievement_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_user_ts ON points_transactions (user_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS user_achievements (
			seq            BIGSERIAL,
			user_id        TEXT NOT NULL REFERENCES user_stats (user_id),
			achievement_id TEXT NOT NULL,
			unlocked_at    TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, achievement_id)
		)`,
	}
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

const statsColumns = `user_id, points, level, total_scans, total_reports, weekend_scans,
	current_streak, longest_streak, last_scan_at, created_at, updated_at`

// ─── Stats ──────────────────────────────────────────────────────────────────

// GetStats returns nil, nil when the user has no stats.
func (s *Store) GetStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	st, err := loadStats(ctx, s.pool, userID, false)
	if err != nil {
		return nil, unavailable("get stats", err)
	}
	return st, nil
}

// InitializeStats creates a level-1 record if none exists.
func (s *Store) InitializeStats(ctx context.Context, userID string, now time.Time) (*domain.UserStats, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_stats (user_id, points, level, created_at, updated_at)
		 VALUES ($1, 0, 1, $2, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, now.UTC(),
	)
	if err != nil {
		return nil, unavailable("initialize stats", err)
	}
	return s.GetStats(ctx, userID)
}

// ApplyAtomic locks the user's row, runs fn and commits the row with fn's
// effects. Errors from fn are returned unchanged.
func (s *Store) ApplyAtomic(ctx context.Context, userID string, fn domain.Mutation) (*domain.UserStats, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, unavailable("begin", err)
	}
	defer tx.Rollback(ctx)

	st, err := loadStats(ctx, tx, userID, true)
	if err != nil {
		return nil, unavailable("lock stats", err)
	}
	if st == nil {
		return nil, domain.ErrStatsNotFound
	}

	effects, err := fn(st)
	if err != nil {
		return nil, err
	}
	st.UserID = userID

	var lastScan *time.Time
	if !st.LastScanDate.IsZero() {
		t := st.LastScanDate.UTC()
		lastScan = &t
	}
	_, err = tx.Exec(ctx,
		`UPDATE user_stats SET
			points = $2, level = $3, total_scans = $4, total_reports = $5, weekend_scans = $6,
			current_streak = $7, longest_streak = $8, last_scan_at = $9, updated_at = $10
		 WHERE user_id = $1`,
		userID, st.Points, st.Level, st.TotalScans, st.TotalReports, st.WeekendScans,
		st.CurrentStreak, st.LongestStreak, lastScan, st.UpdatedAt.UTC(),
	)
	if err != nil {
		return nil, unavailable("update stats", err)
	}

	if len(effects.Transactions) > 0 || len(effects.Unlocks) > 0 {
		batch := &pgx.Batch{}
		for _, t := range effects.Transactions {
			var related *string
			if t.RelatedAchievementID != "" {
				id := t.RelatedAchievementID
				related = &id
			}
			batch.Queue(
				`INSERT INTO points_transactions (id, user_id, points, reason, timestamp, achievement_id)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				t.ID, userID, t.Points, t.Reason, t.Timestamp.UTC(), related,
			)
		}
		for _, u := range effects.Unlocks {
			batch.Queue(
				`INSERT INTO user_achievements (user_id, achievement_id, unlocked_at)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (user_id, achievement_id) DO NOTHING`,
				userID, u.AchievementID, u.UnlockedAt.UTC(),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return nil, unavailable("append effects", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable("commit", err)
	}
	return st, nil
}

// ListTopByPoints orders by points descending, then user id ascending.
func (s *Store) ListTopByPoints(ctx context.Context, limit int) ([]domain.UserStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+statsColumns+`,
			COALESCE((SELECT array_agg(a.achievement_id ORDER BY a.unlocked_at, a.seq)
			          FROM user_achievements a WHERE a.user_id = s.user_id), '{}')
		 FROM user_stats s
		 ORDER BY s.points DESC, s.user_id ASC
		 LIMIT $1`, limit,
	)
	if err != nil {
		return nil, unavailable("list top", err)
	}
	defer rows.Close()

	var out []domain.UserStats
	for rows.Next() {
		var unlocked []string
		st, err := scanStats(rows, &unlocked)
		if err != nil {
			return nil, unavailable("scan stats", err)
		}
		out = append(out, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list top", err)
	}
	return out, nil
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

// ListTransactions returns newest entries first. limit <= 0 means all.
func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.PointsTransaction, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, user_id, points, reason, timestamp, COALESCE(achievement_id, '')
		 FROM points_transactions WHERE user_id = $1
		 ORDER BY timestamp DESC, seq DESC
		 LIMIT $2`, userID, lim,
	)
	if err != nil {
		return nil, unavailable("list transactions", err)
	}
	defer rows.Close()

	var out []domain.PointsTransaction
	for rows.Next() {
		var t domain.PointsTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Points, &t.Reason, &t.Timestamp, &t.RelatedAchievementID); err != nil {
			return nil, unavailable("scan transaction", err)
		}
		t.Timestamp = t.Timestamp.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list transactions", err)
	}
	return out, nil
}

// SumTransactions returns the ledger total and entry count.
func (s *Store) SumTransactions(ctx context.Context, userID string) (int64, int, error) {
	var sum int64
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(points), 0)::bigint, COUNT(*) FROM points_transactions WHERE user_id = $1`,
		userID,
	).Scan(&sum, &n)
	if err != nil {
		return 0, 0, unavailable("sum transactions", err)
	}
	return sum, n, nil
}

// ListUnlocked returns unlock records oldest first.
func (s *Store) ListUnlocked(ctx context.Context, userID string) ([]domain.UnlockedAchievement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, achievement_id, unlocked_at FROM user_achievements
		 WHERE user_id = $1 ORDER BY unlocked_at, seq`, userID,
	)
	if err != nil {
		return nil, unavailable("list unlocked", err)
	}
	defer rows.Close()

	var out []domain.UnlockedAchievement
	for rows.Next() {
		var u domain.UnlockedAchievement
		if err := rows.Scan(&u.UserID, &u.AchievementID, &u.UnlockedAt); err != nil {
			return nil, unavailable("scan unlock", err)
		}
		u.UnlockedAt = u.UnlockedAt.UTC()
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list unlocked", err)
	}
	return out, nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// loadStats reads the row (locking it when forUpdate) and then its unlocked
// set. Returns nil, nil when absent.
func loadStats(ctx context.Context, q querier, userID string, forUpdate bool) (*domain.UserStats, error) {
	query := `SELECT ` + statsColumns + ` FROM user_stats WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	st, err := scanStats(q.QueryRow(ctx, query, userID), nil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx,
		`SELECT achievement_id FROM user_achievements
		 WHERE user_id = $1 ORDER BY unlocked_at, seq`, userID,
	)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if ids != nil {
		st.AchievementsUnlocked = ids
	}
	return st, nil
}

// scanStats reads statsColumns, plus the aggregated unlocked ids when
// unlocked is non-nil.
func scanStats(row pgx.Row, unlocked *[]string) (*domain.UserStats, error) {
	var st domain.UserStats
	var lastScan *time.Time
	dest := []any{&st.UserID, &st.Points, &st.Level, &st.TotalScans, &st.TotalReports,
		&st.WeekendScans, &st.CurrentStreak, &st.LongestStreak, &lastScan,
		&st.CreatedAt, &st.UpdatedAt}
	if unlocked != nil {
		dest = append(dest, unlocked)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if lastScan != nil {
		st.LastScanDate = lastScan.UTC()
	}
	st.CreatedAt = st.CreatedAt.UTC()
	st.UpdatedAt = st.UpdatedAt.UTC()
	st.AchievementsUnlocked = []string{}
	if unlocked != nil && *unlocked != nil {
		st.AchievementsUnlocked = *unlocked
	}
	return &st, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}
