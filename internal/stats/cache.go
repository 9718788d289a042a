package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "stats:version"
	reportKeyPrefix = "stats:report"
	// BumpChannel carries version bumps between processes.
	BumpChannel = "stats.bump"
)

// raiseVersion moves the version forward to ARGV[1] and never backwards.
// It returns the version in effect afterwards.
var raiseVersion = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0') or 0
local proposed = tonumber(ARGV[1])
if proposed > current then
  redis.call('SET', KEYS[1], ARGV[1])
  return proposed
end
return current
`)

// Cache keeps assembled reports in Redis. Every key embeds the global
// version so a single bump retires all cached reports at once.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// ReportKey names the cached report of scope over period. Besides the
// version, the key carries the month the trailing monthly series is anchored
// to, since that series moves with the calendar and not with the period.
func (c *Cache) ReportKey(ctx context.Context, scope Scope, period Period, now time.Time) (string, error) {
	parts := []string{reportKeyPrefix}
	if c.enabled() {
		ver, err := c.Version(ctx)
		if err != nil {
			return "", fmt.Errorf("cache version: %w", err)
		}
		parts = append(parts, "v"+strconv.FormatInt(ver, 10))
	}
	parts = append(parts,
		scope.token(),
		period.FromLabel(),
		period.ToLabel(),
		startOfMonth(now).Format("2006-01"),
	)
	return strings.Join(parts, ":"), nil
}

// Report returns the report stored under key, building and storing it on a
// miss. Both paths hand back the decoded JSON so a hit and a miss look the
// same to callers. Failed builds are never stored.
func (c *Cache) Report(ctx context.Context, key string, build func(context.Context) (Report, error)) (Report, error) {
	if build == nil {
		return Report{}, errors.New("cache: report builder required")
	}
	if !c.enabled() {
		return build(ctx)
	}

	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var report Report
		if err := json.Unmarshal(payload, &report); err != nil {
			// Entries written by an incompatible release are rebuilt.
			_ = c.client.Del(ctx, key).Err()
			return c.store(ctx, key, build)
		}
		return report, nil
	case errors.Is(err, redis.Nil):
		return c.store(ctx, key, build)
	default:
		return Report{}, err
	}
}

func (c *Cache) store(ctx context.Context, key string, build func(context.Context) (Report, error)) (Report, error) {
	report, err := build(ctx)
	if err != nil {
		return Report{}, err
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return Report{}, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return Report{}, err
	}
	var stored Report
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Report{}, err
	}
	return stored, nil
}

// Bump invalidates the cache by incrementing the global version and publishing an event.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// raise applies a version announced by another process.
func (c *Cache) raise(ctx context.Context, ver int64) (int64, error) {
	return raiseVersion.Run(ctx, c.client, []string{cacheVersionKey}, ver).Int64()
}

// apply handles one bump message. Payloads that are not a version still mean
// something changed, so they advance the local version by one.
func (c *Cache) apply(ctx context.Context, payload string) error {
	ver, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil || ver <= 0 {
		return c.client.Incr(ctx, cacheVersionKey).Err()
	}
	_, err = c.raise(ctx, ver)
	return err
}

// ListenForInvalidation follows version bumps published by other processes
// until ctx is cancelled.
func (c *Cache) ListenForInvalidation(ctx context.Context, channel string) error {
	if !c.enabled() {
		return nil
	}
	if channel == "" {
		channel = BumpChannel
	}
	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				_ = c.apply(ctx, msg.Payload)
			}
		}
	}()
	return nil
}
