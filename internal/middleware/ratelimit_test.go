package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"doubtdesk/internal/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCheckRateLimit(t *testing.T) {
	mr, rdb := setupRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := CheckRateLimit(ctx, rdb, "translate", "user:1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "hit %d", i+1)
	}
	allowed, err := CheckRateLimit(ctx, rdb, "translate", "user:1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	// other users have their own budget
	allowed, err = CheckRateLimit(ctx, rdb, "translate", "user:2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	mr.FastForward(time.Minute + time.Second)
	allowed, err = CheckRateLimit(ctx, rdb, "translate", "user:1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "window expired")
}

func TestCheckRateLimit_NilClient(t *testing.T) {
	_, err := CheckRateLimit(context.Background(), nil, "r", "id", 1, time.Minute)
	assert.Error(t, err)
}

func rateLimitedApp(c *cache.Cache, policy FailPolicy) *fiber.App {
	app := fiber.New()
	app.Post("/translate", RateLimit(c, "translate", 2, time.Minute, policy), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRateLimitMiddleware(t *testing.T) {
	_, rdb := setupRedis(t)
	app := rateLimitedApp(cache.New(rdb), FailClosed)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/translate", nil), -1)
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{fiber.StatusOK, fiber.StatusOK, fiber.StatusTooManyRequests}, codes)
}

func TestRateLimitMiddleware_CacheDisabled(t *testing.T) {
	resp, err := rateLimitedApp(nil, FailOpen).Test(httptest.NewRequest(http.MethodPost, "/translate", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = rateLimitedApp(nil, FailClosed).Test(httptest.NewRequest(http.MethodPost, "/translate", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
