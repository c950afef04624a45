package dlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/xerrors"
)

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

type redisLocker struct {
	client redis.UniversalClient
	cfg    *Config
	logger clog.Logger

	mu    sync.Mutex
	locks map[string]*redisLockEntry
}

type redisLockEntry struct {
	token string
	ttl   time.Duration
	stop  chan struct{}
	done  chan struct{}
}

func newRedis(client redis.UniversalClient, cfg *Config, logger clog.Logger) *redisLocker {
	return &redisLocker{
		client: client,
		cfg:    cfg,
		logger: logger,
		locks:  make(map[string]*redisLockEntry),
	}
}

func (l *redisLocker) Lock(ctx context.Context, key string, opts ...LockOption) error {
	return waitLock(ctx, l.cfg.RetryInterval, func() (bool, error) {
		return l.TryLock(ctx, key, opts...)
	})
}

func (l *redisLocker) TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}
	o := applyLockOptions(l.cfg.DefaultTTL, opts)

	l.mu.Lock()
	defer l.mu.Unlock()
	// 本实例已持有时与其他实例持有一样视为未获取
	if _, ok := l.locks[key]; ok {
		return false, nil
	}

	token, err := newToken()
	if err != nil {
		return false, err
	}
	ok, err := l.client.SetNX(ctx, l.cfg.Prefix+key, token, o.ttl).Result()
	if err != nil {
		return false, xerrors.Wrap(err, "dlock: acquire")
	}
	if !ok {
		return false, nil
	}

	entry := &redisLockEntry{token: token, ttl: o.ttl, stop: make(chan struct{}), done: make(chan struct{})}
	l.locks[key] = entry
	go l.watchdog(key, entry)

	l.logger.DebugContext(ctx, "lock acquired", clog.String("key", key))
	return true, nil
}

func (l *redisLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	entry, ok := l.locks[key]
	delete(l.locks, key)
	l.mu.Unlock()
	if !ok {
		return xerrors.Wrapf(ErrLockNotHeld, "key: %s", key)
	}

	close(entry.stop)
	<-entry.done

	n, err := releaseScript.Run(ctx, l.client, []string{l.cfg.Prefix + key}, entry.token).Int64()
	if err != nil {
		return xerrors.Wrap(err, "dlock: release")
	}
	if n == 0 {
		return xerrors.Wrapf(ErrOwnershipLost, "key: %s", key)
	}
	l.logger.DebugContext(ctx, "lock released", clog.String("key", key))
	return nil
}

// Close 释放所有仍持有的锁
func (l *redisLocker) Close() error {
	l.mu.Lock()
	keys := make([]string, 0, len(l.locks))
	for k := range l.locks {
		keys = append(keys, k)
	}
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for _, k := range keys {
		if err := l.Unlock(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return xerrors.Combine(errs...)
}

// watchdog 按 TTL/3 续期，直到 Unlock 或所有权丢失
func (l *redisLocker) watchdog(key string, e *redisLockEntry) {
	defer close(e.done)

	interval := e.ttl / 3
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			n, err := renewScript.Run(ctx, l.client, []string{l.cfg.Prefix + key}, e.token, e.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				l.logger.Error("lock renew failed", clog.String("key", key), clog.Error(err))
				return
			}
			if n == 0 {
				l.logger.Warn("lock ownership lost", clog.String("key", key))
				return
			}
		}
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", xerrors.Wrap(err, "dlock: generate token")
	}
	return hex.EncodeToString(b), nil
}
