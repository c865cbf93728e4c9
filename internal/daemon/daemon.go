package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heritagescan/heritage/internal/api"
	"github.com/heritagescan/heritage/internal/app/ledger"
	"github.com/heritagescan/heritage/internal/app/progression"
	"github.com/heritagescan/heritage/internal/domain"
	"github.com/heritagescan/heritage/internal/health"
	"github.com/heritagescan/heritage/internal/infra/cache"
	"github.com/heritagescan/heritage/internal/infra/postgres"
	"github.com/heritagescan/heritage/internal/infra/sqlite"
)

// Daemon is the core heritage runtime. It wires together all services.
type Daemon struct {
	Config      Config
	Store       domain.StatsStore
	Cache       *cache.Leaderboard
	Progression *progression.Service
	Ranker      *progression.Ranker
	Ledger      *ledger.Service
	Health      *health.Checker
	Server      *api.Server
	logFile     *os.File
	cancel      context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	d := &Daemon{Config: cfg}

	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		log.SetOutput(f)
		d.logFile = f
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Store = store

	// Leaderboard cache (optional)
	ttl := parseDuration(cfg.Cache.TTL, cache.DefaultTTL)
	if cfg.Cache.RedisURL != "" {
		lc, err := cache.Dial(ctx, cfg.Cache.RedisURL, ttl)
		if err != nil {
			log.Printf("[daemon] WARNING: redis unavailable, leaderboard cache disabled: %v", err)
			lc = cache.New(nil, ttl)
		}
		d.Cache = lc
	} else {
		d.Cache = cache.New(nil, ttl)
	}

	pc, err := cfg.ProgressionService()
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Progression = progression.NewServiceWithConfig(store, pc)
	if err := d.Progression.Catalog().Validate(); err != nil {
		d.Close()
		return nil, fmt.Errorf("achievement catalog: %w", err)
	}

	var lbCache progression.LeaderboardCache
	if d.Cache.Enabled() {
		lbCache = d.Cache
	}
	d.Ranker = progression.NewRanker(store, lbCache)
	d.Ledger = ledger.NewService(store)

	deps := health.Deps{
		Store:   store,
		DataDir: cfg.Store.DataDir,
		Catalog: d.Progression.Catalog(),
	}
	if d.Cache.Enabled() {
		deps.Cache = d.Cache
	}
	d.Health = health.NewChecker(deps, parseDuration(cfg.Health.Interval, health.DefaultInterval))

	srv := api.NewServer(d.Progression, d.Ranker, d.Ledger)
	srv.SetHealth(d.Health)
	srv.SetRateLimit(cfg.API.RateLimit, cfg.API.RateBurst)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	return d, nil
}

// openStore opens the configured stats store.
func openStore(ctx context.Context, cfg Config) (domain.StatsStore, error) {
	switch cfg.Store.Driver {
	case DriverPostgres:
		s, err := postgres.Open(ctx, cfg.Store.DatabaseURL, cfg.PoolConfig())
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	default:
		db, err := sqlite.Open(cfg.Store.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	}
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)
	go d.Server.RunLimiterJanitor(ctx)
	if every := parseDuration(d.Config.Progression.RankSweepInterval, 0); every > 0 {
		go d.runRankSweep(ctx, every)
	}

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Heritage progression serving on http://%s\n", addr)
	fmt.Printf("  Store: %s\n", d.Config.Store.Driver)
	if d.Cache.Enabled() {
		fmt.Printf("  Leaderboard cache: redis\n")
	}
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// runRankSweep periodically applies leaderboard positions so rank
// achievements unlock without a client calling the sweep endpoint.
func (d *Daemon) runRankSweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Progression.SweepRankAchievements(ctx, d.Config.Progression.RankSweepLimit); err != nil {
				log.Printf("[daemon] rank sweep: %v", err)
			}
		}
	}
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Cache != nil {
		_ = d.Cache.Close()
	}
	if d.Store != nil {
		_ = d.Store.Close()
	}
	if d.logFile != nil {
		log.SetOutput(os.Stderr)
		_ = d.logFile.Close()
	}
}
