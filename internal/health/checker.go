// Package health runs periodic health checks with auto-recovery.
package health

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/heritagescan/heritage/internal/infra/metrics"
)

// DefaultInterval is how often the check loop runs.
const DefaultInterval = 60 * time.Second

// Pinger is anything with a liveness probe: the stats store, the cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Validator checks static configuration, such as the achievement catalog.
type Validator interface {
	Validate() error
}

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// Deps are the components the standard checks probe. Cache may be nil.
type Deps struct {
	Store   Pinger
	Cache   Pinger
	DataDir string
	Catalog Validator
}

// NewChecker creates a health checker with the standard checks.
func NewChecker(d Deps, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	checks := []Check{
		{
			Name:    "store",
			CheckFn: d.Store.Ping,
		},
		{
			Name: "data_dir",
			CheckFn: func(ctx context.Context) error {
				return checkDataDir(d.DataDir)
			},
			RecoverFn: func(ctx context.Context) error {
				return os.MkdirAll(d.DataDir, 0o755)
			},
		},
		{
			Name: "catalog",
			CheckFn: func(ctx context.Context) error {
				return d.Catalog.Validate()
			},
		},
	}
	if d.Cache != nil {
		checks = append(checks, Check{Name: "cache", CheckFn: d.Cache.Ping})
	}
	return &Checker{checks: checks, interval: interval}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

// RunOnce runs every check immediately and returns the results.
func (c *Checker) RunOnce(ctx context.Context) []Status {
	c.runAll(ctx)
	return c.Statuses()
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
			log.Printf("[health] %s: %v", check.Name, err)
			if check.RecoverFn != nil {
				metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
				if rerr := check.RecoverFn(ctx); rerr != nil {
					log.Printf("[health] %s: recovery failed: %v", check.Name, rerr)
				}
			}
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
		} else {
			s.Healthy = true
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkDataDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", dir)
	}
	return nil
}
