package dlock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/kmis/testkit"
	"github.com/ceyewan/kmis/xerrors"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = New(&Config{Mode: "zookeeper"})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = New(&Config{Mode: ModeDistributed})
	assert.ErrorIs(t, err, ErrConnectorNil)

	cfg := &Config{}
	l, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, ModeStandalone, cfg.Mode)
	assert.Equal(t, "dlock:", cfg.Prefix)
	assert.Equal(t, 10*time.Second, cfg.DefaultTTL)
	assert.NoError(t, l.Close())
}

func newTestStandalone(t *testing.T) *standaloneLocker {
	t.Helper()
	cfg := &Config{RetryInterval: 5 * time.Millisecond}
	cfg.setDefaults()
	return newStandalone(cfg)
}

func TestStandalone_TryLock(t *testing.T) {
	ctx := context.Background()
	l := newTestStandalone(t)

	ok, err := l.TryLock(ctx, "reprocess")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryLock(ctx, "reprocess")
	require.NoError(t, err)
	assert.False(t, ok, "second holder must wait")

	ok, err = l.TryLock(ctx, "other")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Unlock(ctx, "reprocess"))
	ok, err = l.TryLock(ctx, "reprocess")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = l.TryLock(ctx, "")
	assert.ErrorIs(t, err, ErrKeyEmpty)
}

func TestStandalone_Expiry(t *testing.T) {
	ctx := context.Background()
	l := newTestStandalone(t)
	now := time.Now()
	l.clock = func() time.Time { return now }

	ok, err := l.TryLock(ctx, "k", WithTTL(time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, err = l.TryLock(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "expired lock can be taken over")

	now = now.Add(time.Minute)
	assert.ErrorIs(t, l.Unlock(ctx, "k"), ErrOwnershipLost)
}

func TestStandalone_UnlockNotHeld(t *testing.T) {
	l := newTestStandalone(t)
	assert.ErrorIs(t, l.Unlock(context.Background(), "missing"), ErrLockNotHeld)
}

func TestStandalone_LockWaits(t *testing.T) {
	ctx := context.Background()
	l := newTestStandalone(t)
	require.NoError(t, l.Lock(ctx, "k"))

	var acquired atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := l.Lock(ctx, "k"); err == nil {
			acquired.Store(true)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, acquired.Load())
	require.NoError(t, l.Unlock(ctx, "k"))
	wg.Wait()
	assert.True(t, acquired.Load())
}

func TestStandalone_LockCanceled(t *testing.T) {
	l := newTestStandalone(t)
	ok, err := l.TryLock(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = l.Lock(ctx, "k")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRedis_Locker(t *testing.T) {
	conn := testkit.GetRedisConnector(t)
	ctx := testkit.NewContext(t, 10*time.Second)
	prefix := "dlock:test:" + testkit.NewID() + ":"

	a, err := New(&Config{Mode: ModeDistributed, Prefix: prefix, DefaultTTL: 300 * time.Millisecond},
		WithRedisConnector(conn), WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	b, err := New(&Config{Mode: ModeDistributed, Prefix: prefix, DefaultTTL: 300 * time.Millisecond},
		WithRedisConnector(conn))
	require.NoError(t, err)

	ok, err := a.TryLock(ctx, "reprocess")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.TryLock(ctx, "reprocess")
	require.NoError(t, err)
	assert.False(t, ok, "held by this instance")

	// watchdog 续期，超过 TTL 后其他实例仍拿不到
	time.Sleep(600 * time.Millisecond)
	ok, err = b.TryLock(ctx, "reprocess")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Unlock(ctx, "reprocess"))
	ok, err = b.TryLock(ctx, "reprocess")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Unlock(ctx, "reprocess"), ErrLockNotHeld)
}
