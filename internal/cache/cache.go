// Package cache keeps each user's street summaries in Redis between mutations.
//
// The street list is the first thing the UI loads and it is re-fetched after
// every change, so it is read far more often than it changes.
//
// VERSIONED KEYS:
// Invalidation does not delete entries. Each user has a generation counter
// and the whole cache has an epoch; an entry is stored under the version
// (epoch + generation) that the reader saw before it queried the store.
//
//	billing:streets:epoch           bumped by InvalidateAll
//	billing:streets:gen:<user>      bumped by Invalidate
//	billing:streets:<user>:<e>.<g>  the summary, expires after the TTL
//
// A read that overlaps a mutation can therefore only write to a key that
// no later reader looks up. Superseded entries expire on their own.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/billing-tracker/internal/model"
)

// StreetCache stores street summaries per user.
//
// Callers take a Version before loading from the store and pass it to
// SetStreets. A miss is (nil, false, nil); errors are only for a failing backend.
type StreetCache interface {
	Version(ctx context.Context, userID string) (string, error)
	GetStreets(ctx context.Context, userID, version string) ([]model.StreetSummary, bool, error)
	SetStreets(ctx context.Context, userID, version string, streets []model.StreetSummary) error
	// Invalidate retires every entry of userID written before the call.
	Invalidate(ctx context.Context, userID string) error
	// InvalidateAll retires every user's entries (after a global month reset).
	InvalidateAll(ctx context.Context) error
}

const (
	keyPrefix = "billing:streets:"
	epochKey  = keyPrefix + "epoch"
	genPrefix = keyPrefix + "gen:"
)

func genKey(userID string) string {
	return genPrefix + userID
}

func streetsKey(userID, version string) string {
	return keyPrefix + userID + ":" + version
}

// Redis is a StreetCache backed by a go-redis client.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis connects to addr and checks the server answers.
func NewRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("cache: pinging redis at %s: %w", addr, err)
	}
	return NewRedisFromClient(rdb, ttl), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

// Version reads the epoch and the user's generation in one round trip.
// Missing counters count as 0.
func (c *Redis) Version(ctx context.Context, userID string) (string, error) {
	vals, err := c.rdb.MGet(ctx, epochKey, genKey(userID)).Result()
	if err != nil {
		return "", fmt.Errorf("cache: reading version: %w", err)
	}
	return counter(vals[0]) + "." + counter(vals[1]), nil
}

// counter renders an MGET value; nil is a key that was never incremented.
func counter(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "0"
}

func (c *Redis) GetStreets(ctx context.Context, userID, version string) ([]model.StreetSummary, bool, error) {
	val, err := c.rdb.Get(ctx, streetsKey(userID, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get: %w", err)
	}

	var streets []model.StreetSummary
	if err := json.Unmarshal(val, &streets); err != nil {
		return nil, false, fmt.Errorf("cache: decoding entry: %w", err)
	}
	return streets, true, nil
}

func (c *Redis) SetStreets(ctx context.Context, userID, version string, streets []model.StreetSummary) error {
	b, err := json.Marshal(streets)
	if err != nil {
		return fmt.Errorf("cache: encoding entry: %w", err)
	}
	if err := c.rdb.Set(ctx, streetsKey(userID, version), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

// Invalidate bumps the user's generation. The counter has no expiry: if it
// were dropped, the version would go back to a value an old reader may hold.
func (c *Redis) Invalidate(ctx context.Context, userID string) error {
	if err := c.rdb.Incr(ctx, genKey(userID)).Err(); err != nil {
		return fmt.Errorf("cache: bumping generation: %w", err)
	}
	return nil
}

// InvalidateAll bumps the epoch, which is part of every user's version.
func (c *Redis) InvalidateAll(ctx context.Context) error {
	if err := c.rdb.Incr(ctx, epochKey).Err(); err != nil {
		return fmt.Errorf("cache: bumping epoch: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (c *Redis) Close() error {
	return c.rdb.Close()
}

// Noop is used when REDIS_ADDR is empty: every lookup misses.
type Noop struct{}

func (Noop) Version(context.Context, string) (string, error) { return "", nil }
func (Noop) GetStreets(context.Context, string, string) ([]model.StreetSummary, bool, error) {
	return nil, false, nil
}
func (Noop) SetStreets(context.Context, string, string, []model.StreetSummary) error { return nil }
func (Noop) Invalidate(context.Context, string) error                               { return nil }
func (Noop) InvalidateAll(context.Context) error                                    { return nil }

var (
	_ StreetCache = (*Redis)(nil)
	_ StreetCache = Noop{}
)
