package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const statsVersionKey = "stats:version"

// StatsCache stores report results in Redis under versioned keys.  The
// lifecycle engine calls Bump after every committed mutation, which moves
// all readers to fresh keys; stale entries simply expire.  A nil cache
// or a nil client passes every call through to the loader.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache returns a cache whose entries live for ttl.
func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{client: client, ttl: ttl}
}

func (c *StatsCache) enabled() bool { return c != nil && c.client != nil }

// Version returns the current cache version, initialising it when missing.
func (c *StatsCache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, statsVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX so two first readers agree on the initial version
		if err := c.client.SetNX(ctx, statsVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, statsVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey joins parts and appends the current version.
func (c *StatsCache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if !c.enabled() {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// Fetch loads key into dest, calling loader and storing its result on a
// miss.  It reports whether the value came from the cache.
func (c *StatsCache) Fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) (bool, error) {
	if loader == nil {
		return false, errors.New("stats cache: loader required")
	}
	if c.enabled() {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return true, json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return false, err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return false, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	if c.enabled() {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return false, err
		}
	}
	return false, json.Unmarshal(raw, dest)
}

// Bump invalidates every cached report.
func (c *StatsCache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, statsVersionKey).Err()
}
