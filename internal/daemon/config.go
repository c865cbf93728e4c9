// Package daemon manages the heritage daemon lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
	_ "time/tzdata" // timezone names resolve without system zoneinfo

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/heritagescan/heritage/internal/app/progression"
	"github.com/heritagescan/heritage/internal/infra/postgres"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all daemon configuration.
type Config struct {
	API         APIConfig         `toml:"api"`
	Store       StoreConfig       `toml:"store"`
	Cache       CacheConfig       `toml:"cache"`
	Progression ProgressionConfig `toml:"progression"`
	Health      HealthConfig      `toml:"health"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
	Logging     LoggingConfig     `toml:"logging"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host      string  `toml:"host"`
	Port      int     `toml:"port"`
	RateLimit float64 `toml:"rate_limit"` // requests/sec per client IP, 0 = off
	RateBurst int     `toml:"rate_burst"`
}

// StoreConfig selects and tunes the stats store.
type StoreConfig struct {
	Driver          string `toml:"driver"`
	DataDir         string `toml:"data_dir"`
	DatabaseURL     string `toml:"database_url"`
	MaxConns        int32  `toml:"max_conns"`
	MinConns        int32  `toml:"min_conns"`
	MaxConnLifetime string `toml:"max_conn_lifetime"`
	MaxConnIdleTime string `toml:"max_conn_idle_time"`
}

// CacheConfig controls the Redis leaderboard cache. Empty URL = no cache.
type CacheConfig struct {
	RedisURL string `toml:"redis_url"`
	TTL      string `toml:"ttl"`
}

// ProgressionConfig tunes rewards and scheduling.
type ProgressionConfig struct {
	ScanPoints        int64  `toml:"scan_points"`
	ReportPoints      int64  `toml:"report_points"`
	StreakBonusPerDay int64  `toml:"streak_bonus_per_day"`
	Timezone          string `toml:"timezone"`
	RankSweepInterval string `toml:"rank_sweep_interval"` // "" = never
	RankSweepLimit    int    `toml:"rank_sweep_limit"`
}

// HealthConfig controls the health check loop.
type HealthConfig struct {
	Interval string `toml:"interval"`
}

// TelemetryConfig controls metrics exposure.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	File string `toml:"file"` // "" = stderr
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := heritageHome()
	pool := postgres.DefaultPoolConfig()
	return Config{
		API: APIConfig{
			Host:      "127.0.0.1",
			Port:      8420,
			RateLimit: 10,
			RateBurst: 30,
		},
		Store: StoreConfig{
			Driver:          DriverSQLite,
			DataDir:         homeDir,
			MaxConns:        pool.MaxConns,
			MinConns:        pool.MinConns,
			MaxConnLifetime: pool.MaxConnLifetime.String(),
			MaxConnIdleTime: pool.MaxConnIdleTime.String(),
		},
		Cache: CacheConfig{
			TTL: "30s",
		},
		Progression: ProgressionConfig{
			ScanPoints:        progression.DefaultScanPoints,
			ReportPoints:      progression.DefaultReportPoints,
			StreakBonusPerDay: progression.DefaultStreakBonusPerDay,
			Timezone:          "UTC",
			RankSweepLimit:    progression.DefaultLeaderboardLimit,
		},
		Health: HealthConfig{
			Interval: "60s",
		},
	}
}

// LoadConfig reads $HERITAGE_HOME/config.toml over the defaults, after
// loading any .env file, then applies environment overrides.
func LoadConfig() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	path := filepath.Join(heritageHome(), "config.toml")

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// loadDotEnv loads ./.env and then $HERITAGE_HOME/.env. Variables already
// set in the environment win.
func loadDotEnv() error {
	for _, p := range []string{".env", filepath.Join(heritageHome(), ".env")} {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// applyEnv overrides file settings with HERITAGE_PORT, DATABASE_URL,
// REDIS_URL and HERITAGE_STORE_DRIVER.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("HERITAGE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HERITAGE_PORT: %w", err)
		}
		cfg.API.Port = port
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.DatabaseURL = v
		cfg.Store.Driver = DriverPostgres
	}
	if v := os.Getenv("HERITAGE_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	return nil
}

// Validate rejects settings the daemon cannot start with.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.DataDir == "" {
			return errors.New("store.data_dir is required for sqlite")
		}
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("store.database_url (or DATABASE_URL) is required for postgres")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Progression.ScanPoints < 0 || c.Progression.ReportPoints < 0 || c.Progression.StreakBonusPerDay < 0 {
		return errors.New("progression rewards must not be negative")
	}
	if _, err := time.LoadLocation(c.Progression.Timezone); err != nil {
		return fmt.Errorf("progression.timezone: %w", err)
	}
	for name, v := range map[string]string{
		"store.max_conn_lifetime":         c.Store.MaxConnLifetime,
		"store.max_conn_idle_time":        c.Store.MaxConnIdleTime,
		"cache.ttl":                       c.Cache.TTL,
		"health.interval":                 c.Health.Interval,
		"progression.rank_sweep_interval": c.Progression.RankSweepInterval,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// ProgressionService builds the service settings from the config.
func (c Config) ProgressionService() (progression.Config, error) {
	loc, err := time.LoadLocation(c.Progression.Timezone)
	if err != nil {
		return progression.Config{}, fmt.Errorf("load timezone: %w", err)
	}
	pc := progression.DefaultConfig()
	pc.ScanPoints = c.Progression.ScanPoints
	pc.ReportPoints = c.Progression.ReportPoints
	pc.StreakBonusPerDay = c.Progression.StreakBonusPerDay
	pc.Location = loc
	return pc, nil
}

// PoolConfig builds the PostgreSQL pool settings from the config.
func (c Config) PoolConfig() postgres.PoolConfig {
	pc := postgres.DefaultPoolConfig()
	if c.Store.MaxConns > 0 {
		pc.MaxConns = c.Store.MaxConns
	}
	if c.Store.MinConns > 0 {
		pc.MinConns = c.Store.MinConns
	}
	pc.MaxConnLifetime = parseDuration(c.Store.MaxConnLifetime, pc.MaxConnLifetime)
	pc.MaxConnIdleTime = parseDuration(c.Store.MaxConnIdleTime, pc.MaxConnIdleTime)
	return pc
}

// SaveConfig writes the config to $HERITAGE_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(heritageHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// heritageHome returns the heritage data directory.
func heritageHome() string {
	if env := os.Getenv("HERITAGE_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".heritage")
}

// HeritageHome is exported for use by other packages.
func HeritageHome() string {
	return heritageHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
