// Package cache provides Redis caching utilities for the application.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"doubtdesk/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client. A nil *Cache, or one without a client, turns
// every operation into a pass-through so callers never branch on it.
type Cache struct {
	client *redis.Client
}

type metricsHook struct{}

func (h metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RedisErrors.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (h metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		// An aborted WATCH transaction is expected, not a Redis failure.
		if err != nil && !errors.Is(err, redis.Nil) && !errors.Is(err, redis.TxFailedErr) {
			observability.RedisErrors.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}

// New wraps an existing client and installs the metrics hook.
func New(client *redis.Client) *Cache {
	if client == nil {
		return &Cache{}
	}
	client.AddHook(metricsHook{})
	return &Cache{client: client}
}

// Connect dials addr (host:port or redis:// URL). When Redis is unreachable
// the returned cache is disabled and the application keeps running.
func Connect(addr string) *Cache {
	if strings.TrimSpace(addr) == "" {
		observability.Logger.Info("Redis not configured, caching disabled")
		return &Cache{}
	}

	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			observability.Logger.Warn("Redis connection warning: invalid REDIS_URL (continuing without cache)",
				slog.String("error", err.Error()))
			return &Cache{}
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		observability.Logger.Warn("Redis connection warning (continuing without cache)",
			slog.String("error", err.Error()))
		_ = client.Close()
		return &Cache{}
	}
	observability.Logger.Info("Redis connected successfully")
	return New(client)
}

// Enabled reports whether a Redis client is attached.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// Client returns the underlying client, or nil when caching is disabled.
func (c *Cache) Client() *redis.Client {
	if c == nil {
		return nil
	}
	return c.client
}

// Ping checks Redis health. A disabled cache reports healthy.
func (c *Cache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

// GetJSON loads key into dest. It returns false on a miss, a decode failure,
// or when caching is disabled.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	if !c.Enabled() {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.client.Del(ctx, key)
		return false
	}
	return true
}

// Aside implements cache-aside: serve key from Redis when present, otherwise
// run load to fill dest and store the result. The fill is dropped when the
// key was invalidated while load ran, so a slow reader cannot put back a row
// that a committed write already replaced.
func (c *Cache) Aside(ctx context.Context, key string, dest interface{}, ttl time.Duration, load func() error) error {
	if c.GetJSON(ctx, key, dest) {
		return nil
	}
	gen, ok := c.generation(ctx, key)
	if err := load(); err != nil {
		return err
	}
	if ok {
		c.setIfGeneration(ctx, key, gen, dest, ttl)
	}
	return nil
}

func (c *Cache) generation(ctx context.Context, key string) (int64, bool) {
	if !c.Enabled() {
		return 0, false
	}
	gen, err := c.client.Get(ctx, generationKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		return 0, false
	}
	return gen, true
}

// setIfGeneration stores value only while the key's generation still equals
// gen. WATCH aborts the write when Invalidate bumps it concurrently.
func (c *Cache) setIfGeneration(ctx context.Context, key string, gen int64, value interface{}, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	genKey := generationKey(key)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		observability.Logger.DebugContext(ctx, "cache fill skipped after invalidation", slog.String("key", key))
	default:
		observability.Logger.WarnContext(ctx, "cache set failed",
			slog.String("key", key), slog.String("error", err.Error()))
	}
}
