package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/heritagescan/heritage/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var t0 = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, FileName)); os.IsNotExist(err) {
		t.Error("state.db should exist")
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if _, err := db.InitializeStats(context.Background(), "alice", t0); err != nil {
		t.Fatalf("InitializeStats() error: %v", err)
	}
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("re-Open() error: %v", err)
	}
	defer db.Close()

	st, err := db.GetStats(context.Background(), "alice")
	if err != nil || st == nil {
		t.Fatalf("GetStats() = %v, %v; want stats after reopen", st, err)
	}
}

func TestOpen_Ping(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}

func TestClosed_StoreUnavailable(t *testing.T) {
	db := newTestDB(t)
	db.Close()

	ctx := context.Background()
	if err := db.Ping(ctx); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("Ping() on closed db = %v, want ErrStoreUnavailable", err)
	}
	if _, err := db.GetStats(ctx, "alice"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("GetStats() on closed db = %v, want ErrStoreUnavailable", err)
	}
	_, err := db.ApplyAtomic(ctx, "alice", func(*domain.UserStats) (domain.Effects, error) {
		return domain.Effects{}, nil
	})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("ApplyAtomic() on closed db = %v, want ErrStoreUnavailable", err)
	}
}

func TestCanceledContext_KeepsCause(t *testing.T) {
	db := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.GetStats(ctx, "alice")
	if !errors.Is(err, domain.ErrStoreUnavailable) || !errors.Is(err, context.Canceled) {
		t.Errorf("GetStats() with canceled ctx = %v, want ErrStoreUnavailable wrapping context.Canceled", err)
	}
	_, err = db.ApplyAtomic(ctx, "alice", func(*domain.UserStats) (domain.Effects, error) {
		return domain.Effects{}, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ApplyAtomic() with canceled ctx = %v, want context.Canceled in chain", err)
	}
}

// ─── Stats ──────────────────────────────────────────────────────────────────

func TestGetStats_Missing(t *testing.T) {
	db := newTestDB(t)
	st, err := db.GetStats(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetStats() error: %v", err)
	}
	if st != nil {
		t.Errorf("GetStats() = %+v, want nil", st)
	}
}

func TestInitializeStats_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.InitializeStats(ctx, "alice", t0)
	if err != nil {
		t.Fatalf("InitializeStats() error: %v", err)
	}
	if first.Level != 1 || first.Points != 0 {
		t.Errorf("initial stats = level %d points %d, want 1/0", first.Level, first.Points)
	}
	if !first.LastScanDate.IsZero() {
		t.Errorf("LastScanDate = %v, want zero", first.LastScanDate)
	}

	_, err = db.ApplyAtomic(ctx, "alice", func(st *domain.UserStats) (domain.Effects, error) {
		st.Points = 40
		return domain.Effects{}, nil
	})
	if err != nil {
		t.Fatalf("ApplyAtomic() error: %v", err)
	}

	again, err := db.InitializeStats(ctx, "alice", t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("second InitializeStats() error: %v", err)
	}
	if again.Points != 40 {
		t.Errorf("points after re-init = %d, want 40", again.Points)
	}
	if !again.CreatedAt.Equal(t0) {
		t.Errorf("CreatedAt = %v, want %v", again.CreatedAt, t0)
	}
}

func TestApplyAtomic_NotFound(t *testing.T) {
	db := newTestDB(t)
	called := false
	_, err := db.ApplyAtomic(context.Background(), "ghost", func(*domain.UserStats) (domain.Effects, error) {
		called = true
		return domain.Effects{}, nil
	})
	if !errors.Is(err, domain.ErrStatsNotFound) {
		t.Errorf("ApplyAtomic() error = %v, want ErrStatsNotFound", err)
	}
	if called {
		t.Error("mutation should not run for a missing user")
	}
}

func TestApplyAtomic_CommitsEffects(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	db.InitializeStats(ctx, "alice", t0)

	got, err := db.ApplyAtomic(ctx, "alice", func(st *domain.UserStats) (domain.Effects, error) {
		st.Points += 100
		st.Level = 2
		st.TotalScans++
		st.CurrentStreak, st.LongestStreak = 1, 1
		st.LastScanDate = t0
		st.UpdatedAt = t0
		st.AchievementsUnlocked = append(st.AchievementsUnlocked, "first_steps")
		return domain.Effects{
			Transactions: []domain.PointsTransaction{
				{ID: "tx-1", UserID: "alice", Points: 50, Reason: "Heritage site scan", Timestamp: t0},
				{ID: "tx-2", UserID: "alice", Points: 50, Reason: "Achievement unlocked: First Steps", Timestamp: t0, RelatedAchievementID: "first_steps"},
			},
			Unlocks: []domain.UnlockedAchievement{
				{UserID: "alice", AchievementID: "first_steps", UnlockedAt: t0},
			},
		}, nil
	})
	if err != nil {
		t.Fatalf("ApplyAtomic() error: %v", err)
	}
	if got.Points != 100 {
		t.Errorf("returned points = %d, want 100", got.Points)
	}

	st, _ := db.GetStats(ctx, "alice")
	if st.Points != 100 || st.Level != 2 || st.TotalScans != 1 {
		t.Errorf("stored stats = %+v", st)
	}
	if !st.LastScanDate.Equal(t0) {
		t.Errorf("LastScanDate = %v, want %v", st.LastScanDate, t0)
	}
	if len(st.AchievementsUnlocked) != 1 || st.AchievementsUnlocked[0] != "first_steps" {
		t.Errorf("AchievementsUnlocked = %v, want [first_steps]", st.AchievementsUnlocked)
	}

	sum, n, err := db.SumTransactions(ctx, "alice")
	if err != nil {
		t.Fatalf("SumTransactions() error: %v", err)
	}
	if sum != 100 || n != 2 {
		t.Errorf("SumTransactions() = %d, %d; want 100, 2", sum, n)
	}

	txs, _ := db.ListTransactions(ctx, "alice", 10)
	if len(txs) != 2 {
		t.Fatalf("ListTransactions() len = %d, want 2", len(txs))
	}
	if txs[0].ID != "tx-2" {
		t.Errorf("newest entry = %s, want tx-2", txs[0].ID)
	}
	if txs[0].RelatedAchievementID != "first_steps" {
		t.Errorf("RelatedAchievementID = %q, want first_steps", txs[0].RelatedAchievementID)
	}
	if txs[1].RelatedAchievementID != "" {
		t.Errorf("scan entry RelatedAchievementID = %q, want empty", txs[1].RelatedAchievementID)
	}
}

func TestApplyAtomic_MutationErrorRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	db.InitializeStats(ctx, "alice", t0)

	boom := errors.New("boom")
	_, err := db.ApplyAtomic(ctx, "alice", func(st *domain.UserStats) (domain.Effects, error) {
		st.Points = 999
		return domain.Effects{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("ApplyAtomic() error = %v, want boom", err)
	}
	if errors.Is(err, domain.ErrStoreUnavailable) {
		t.Error("mutation errors must not be reported as store failures")
	}

	st, _ := db.GetStats(ctx, "alice")
	if st.Points != 0 {
		t.Errorf("points after rollback = %d, want 0", st.Points)
	}
}

func TestApplyAtomic_DuplicateTransactionRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	db.InitializeStats(ctx, "alice", t0)

	_, err := db.ApplyAtomic(ctx, "alice", func(st *domain.UserStats) (domain.Effects, error) {
		st.Points += 20
		return domain.Effects{Transactions: []domain.PointsTransaction{
			{ID: "dup", Points: 10, Reason: "a", Timestamp: t0},
			{ID: "dup", Points: 10, Reason: "b", Timestamp: t0},
		}}, nil
	})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("ApplyAtomic() error = %v, want ErrStoreUnavailable", err)
	}

	st, _ := db.GetStats(ctx, "alice")
	if st.Points != 0 {
		t.Errorf("points = %d, want 0 (whole write aborted)", st.Points)
	}
	if _, n, _ := db.SumTransactions(ctx, "alice"); n != 0 {
		t.Errorf("ledger entries = %d, want 0", n)
	}
}

func TestApplyAtomic_UnlockIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	db.InitializeStats(ctx, "alice", t0)

	unlock := func(*domain.UserStats) (domain.Effects, error) {
		return domain.Effects{Unlocks: []domain.UnlockedAchievement{
			{UserID: "alice", AchievementID: "first_steps", UnlockedAt: t0},
		}}, nil
	}
	for i := 0; i < 2; i++ {
		if _, err := db.ApplyAtomic(ctx, "alice", unlock); err != nil {
			t.Fatalf("ApplyAtomic() #%d error: %v", i, err)
		}
	}

	list, err := db.ListUnlocked(ctx, "alice")
	if err != nil {
		t.Fatalf("ListUnlocked() error: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("unlocks = %d, want 1", len(list))
	}
}

func TestApplyAtomic_ConcurrentIncrements(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	db.InitializeStats(ctx, "alice", t0)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := db.ApplyAtomic(ctx, "alice", func(st *domain.UserStats) (domain.Effects, error) {
				st.Points += 5
				st.TotalScans++
				return domain.Effects{Transactions: []domain.PointsTransaction{
					{ID: fmt.Sprintf("tx-%d", i), Points: 5, Reason: "scan", Timestamp: t0},
				}}, nil
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent ApplyAtomic() error: %v", err)
		}
	}

	st, _ := db.GetStats(ctx, "alice")
	if st.TotalScans != workers || st.Points != 5*workers {
		t.Errorf("after %d writers: scans=%d points=%d", workers, st.TotalScans, st.Points)
	}
	if sum, _, _ := db.SumTransactions(ctx, "alice"); sum != st.Points {
		t.Errorf("ledger sum %d != points %d", sum, st.Points)
	}
}

// ─── Leaderboard & Ledger Reads ─────────────────────────────────────────────

func TestListTopByPoints_OrderAndTies(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seed := map[string]int64{"carol": 300, "bob": 500, "alice": 300, "dave": 10}
	for user, pts := range seed {
		db.InitializeStats(ctx, user, t0)
		pts := pts
		db.ApplyAtomic(ctx, user, func(st *domain.UserStats) (domain.Effects, error) {
			st.Points = pts
			return domain.Effects{}, nil
		})
	}
	db.ApplyAtomic(ctx, "bob", func(st *domain.UserStats) (domain.Effects, error) {
		st.AchievementsUnlocked = append(st.AchievementsUnlocked, "first_steps")
		return domain.Effects{Unlocks: []domain.UnlockedAchievement{{AchievementID: "first_steps", UnlockedAt: t0}}}, nil
	})

	top, err := db.ListTopByPoints(ctx, 3)
	if err != nil {
		t.Fatalf("ListTopByPoints() error: %v", err)
	}
	want := []string{"bob", "alice", "carol"}
	if len(top) != len(want) {
		t.Fatalf("len = %d, want %d", len(top), len(want))
	}
	for i, u := range want {
		if top[i].UserID != u {
			t.Errorf("top[%d] = %s, want %s", i, top[i].UserID, u)
		}
	}
	if len(top[0].AchievementsUnlocked) != 1 {
		t.Errorf("bob unlocked = %v, want 1 entry", top[0].AchievementsUnlocked)
	}
}

func TestListTransactions_LimitAndAll(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	db.InitializeStats(ctx, "alice", t0)

	for i := 0; i < 5; i++ {
		i := i
		db.ApplyAtomic(ctx, "alice", func(st *domain.UserStats) (domain.Effects, error) {
			st.Points += 1
			return domain.Effects{Transactions: []domain.PointsTransaction{
				{ID: fmt.Sprintf("tx-%d", i), Points: 1, Reason: "r", Timestamp: t0.Add(time.Duration(i) * time.Minute)},
			}}, nil
		})
	}

	recent, _ := db.ListTransactions(ctx, "alice", 2)
	if len(recent) != 2 || recent[0].ID != "tx-4" {
		t.Errorf("ListTransactions(2) = %+v, want newest tx-4 first", recent)
	}
	all, _ := db.ListTransactions(ctx, "alice", 0)
	if len(all) != 5 {
		t.Errorf("ListTransactions(0) len = %d, want 5", len(all))
	}
}

func TestSumTransactions_Empty(t *testing.T) {
	db := newTestDB(t)
	sum, n, err := db.SumTransactions(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("SumTransactions() error: %v", err)
	}
	if sum != 0 || n != 0 {
		t.Errorf("SumTransactions() = %d, %d; want 0, 0", sum, n)
	}
}
