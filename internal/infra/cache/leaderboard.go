// Package cache keeps rendered leaderboard pages in Redis.
//
// The cache is optional: a Leaderboard built over a nil client behaves as a
// permanent miss, so callers never branch on whether Redis is configured.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/heritagescan/heritage/internal/domain"
	"github.com/heritagescan/heritage/internal/infra/metrics"
)

// DefaultTTL bounds how stale a cached page may be.
const DefaultTTL = 30 * time.Second

const keyPrefix = "heritage:leaderboard"

// Leaderboard implements progression.LeaderboardCache on Redis.
type Leaderboard struct {
	rdb *redis.Client
	ttl time.Duration
}

// New wraps an existing client. rdb may be nil.
func New(rdb *redis.Client, ttl time.Duration) *Leaderboard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Leaderboard{rdb: rdb, ttl: ttl}
}

// Dial parses a redis:// URL and verifies the server answers.
func Dial(ctx context.Context, url string, ttl time.Duration) (*Leaderboard, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Printf("[cache] connected to redis at %s (ttl %s)", opts.Addr, ttl)
	return New(rdb, ttl), nil
}

// Enabled reports whether a client is attached.
func (c *Leaderboard) Enabled() bool {
	return c != nil && c.rdb != nil
}

func key(limit int) string {
	return fmt.Sprintf("%s:%d", keyPrefix, limit)
}

// Get returns a cached page. Errors count as misses.
func (c *Leaderboard) Get(ctx context.Context, limit int) ([]domain.LeaderboardEntry, bool) {
	if !c.Enabled() {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, key(limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.LeaderboardCache.WithLabelValues("miss").Inc()
		return nil, false
	}
	if err != nil {
		metrics.LeaderboardCache.WithLabelValues("error").Inc()
		log.Printf("[cache] get %s: %v", key(limit), err)
		return nil, false
	}
	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		metrics.LeaderboardCache.WithLabelValues("error").Inc()
		log.Printf("[cache] decode %s: %v", key(limit), err)
		return nil, false
	}
	metrics.LeaderboardCache.WithLabelValues("hit").Inc()
	return entries, true
}

// Set stores a page for the configured TTL. Failures are logged only.
func (c *Leaderboard) Set(ctx context.Context, limit int, entries []domain.LeaderboardEntry) {
	if !c.Enabled() {
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		log.Printf("[cache] encode %s: %v", key(limit), err)
		return
	}
	if err := c.rdb.Set(ctx, key(limit), raw, c.ttl).Err(); err != nil {
		metrics.LeaderboardCache.WithLabelValues("error").Inc()
		log.Printf("[cache] set %s: %v", key(limit), err)
	}
}

// Flush drops every cached page.
func (c *Leaderboard) Flush(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	iter := c.rdb.Scan(ctx, 0, keyPrefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan leaderboard keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Ping checks the connection. A disabled cache is always healthy.
func (c *Leaderboard) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// Close releases the client.
func (c *Leaderboard) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}
