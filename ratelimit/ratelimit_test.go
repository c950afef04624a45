package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/connector"
	"github.com/ceyewan/kmis/metrics"
	"github.com/ceyewan/kmis/xerrors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newStandaloneLimiter(t *testing.T, opts ...Option) *standaloneLimiter {
	t.Helper()
	l, err := New(&Config{
		CleanupInterval: 50 * time.Millisecond,
		IdleTimeout:     100 * time.Millisecond,
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l.(*standaloneLimiter)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = New(&Config{Mode: "cluster"})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = New(&Config{Mode: ModeDistributed})
	assert.ErrorIs(t, err, ErrConnectorNil)
}

func TestStandalone_Burst(t *testing.T) {
	l := newStandaloneLimiter(t)
	ctx := context.Background()
	limit := Limit{Rate: 1, Burst: 3}

	for i := 0; i < 3; i++ {
		allowed, err := l.Allow(ctx, "user:1", limit)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d within burst", i)
	}
	allowed, err := l.Allow(ctx, "user:1", limit)
	require.NoError(t, err)
	assert.False(t, allowed)

	// 不同 key 互不影响
	allowed, err = l.Allow(ctx, "user:2", limit)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestStandalone_Refill(t *testing.T) {
	l := newStandaloneLimiter(t)
	ctx := context.Background()
	limit := Limit{Rate: 20, Burst: 1}

	allowed, _ := l.Allow(ctx, "k", limit)
	require.True(t, allowed)
	allowed, _ = l.Allow(ctx, "k", limit)
	require.False(t, allowed)

	time.Sleep(100 * time.Millisecond)
	allowed, _ = l.Allow(ctx, "k", limit)
	assert.True(t, allowed)
}

func TestStandalone_AllowN(t *testing.T) {
	l := newStandaloneLimiter(t)
	ctx := context.Background()
	limit := Limit{Rate: 1, Burst: 5}

	allowed, err := l.AllowN(ctx, "k", limit, 5)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = l.AllowN(ctx, "k", limit, 1)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestStandalone_InvalidArguments(t *testing.T) {
	l := newStandaloneLimiter(t)
	ctx := context.Background()

	_, err := l.Allow(ctx, "", Limit{Rate: 1, Burst: 1})
	assert.ErrorIs(t, err, ErrKeyEmpty)

	_, err = l.Allow(ctx, "k", Limit{Rate: 0, Burst: 1})
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, err = l.AllowN(ctx, "k", Limit{Rate: 1, Burst: 1}, 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestStandalone_EvictIdle(t *testing.T) {
	l := newStandaloneLimiter(t)
	ctx := context.Background()

	_, err := l.Allow(ctx, "a", Limit{Rate: 1, Burst: 1})
	require.NoError(t, err)
	_, err = l.Allow(ctx, "b", Limit{Rate: 1, Burst: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, l.size())

	assert.Equal(t, 2, l.evictIdle(time.Now().Add(time.Second)))
	assert.Equal(t, 0, l.size())
}

func TestStandalone_CleanupLoop(t *testing.T) {
	l := newStandaloneLimiter(t)
	_, err := l.Allow(context.Background(), "idle", Limit{Rate: 1, Burst: 1})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return l.size() == 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestStandalone_Concurrent(t *testing.T) {
	l := newStandaloneLimiter(t)
	ctx := context.Background()
	limit := Limit{Rate: 0.001, Burst: 10}

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow(ctx, "shared", limit); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(10), allowed.Load())
}

func TestStandalone_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter, err := metrics.New(metrics.NewDevDefaultConfig("kmis-test"), metrics.WithReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() { _ = meter.Shutdown(context.Background()) })

	l := newStandaloneLimiter(t, WithMeter(meter))
	ctx := context.Background()
	limit := Limit{Rate: 0.001, Burst: 1}
	_, _ = l.Allow(ctx, "k", limit)
	_, _ = l.Allow(ctx, "k", limit)
	_, _ = l.Allow(ctx, "k", limit)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(1), counterTotal(rm, MetricAllowed))
	assert.Equal(t, int64(2), counterTotal(rm, MetricDenied))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := newStandaloneLimiter(t)

	router := gin.New()
	router.GET("/search",
		GinMiddleware(l, func(c *gin.Context) string { return c.GetHeader("X-User") }, Fixed(Limit{Rate: 0.001, Burst: 2})),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/search", nil)
		if user != "" {
			req.Header.Set("X-User", user)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do("alice").Code)
	assert.Equal(t, http.StatusOK, do("alice").Code)
	w := do("alice")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, w.Body.String(), "rate_limited")

	assert.Equal(t, http.StatusOK, do("bob").Code)
	// 空 key 不限流
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do("").Code)
	}
}

func TestGinMiddleware_InvalidLimitPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := newStandaloneLimiter(t)

	router := gin.New()
	router.GET("/", GinMiddleware(l, nil, Fixed(Limit{})), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestDistributed(t *testing.T) {
	addr := os.Getenv("KMIS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KMIS_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	conn, err := connector.NewRedis(&connector.RedisConfig{Addr: addr})
	require.NoError(t, err)
	require.NoError(t, conn.Connect(ctx))
	t.Cleanup(func() { _ = conn.Close() })

	l, err := New(&Config{Mode: ModeDistributed, Prefix: "kmis:test:ratelimit:" + t.Name() + ":"},
		WithRedisConnector(conn), WithLogger(clog.Discard()))
	require.NoError(t, err)
	key := time.Now().Format(time.RFC3339Nano)
	limit := Limit{Rate: 0.01, Burst: 2}

	for i := 0; i < 2; i++ {
		allowed, err := l.Allow(ctx, key, limit)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := l.Allow(ctx, key, limit)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func counterTotal(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}
