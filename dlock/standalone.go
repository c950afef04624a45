package dlock

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/kmis/xerrors"
)

// standaloneLocker 进程内互斥锁，TTL 到期后他人可以抢占
type standaloneLocker struct {
	cfg   *Config
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

func newStandalone(cfg *Config) *standaloneLocker {
	return &standaloneLocker{cfg: cfg, held: make(map[string]time.Time), clock: time.Now}
}

func (l *standaloneLocker) Lock(ctx context.Context, key string, opts ...LockOption) error {
	return waitLock(ctx, l.cfg.RetryInterval, func() (bool, error) {
		return l.TryLock(ctx, key, opts...)
	})
}

func (l *standaloneLocker) TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	o := applyLockOptions(l.cfg.DefaultTTL, opts)

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if exp, ok := l.held[key]; ok && exp.After(now) {
		return false, nil
	}
	l.held[key] = now.Add(o.ttl)
	return true, nil
}

func (l *standaloneLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, ok := l.held[key]
	if !ok {
		return xerrors.Wrapf(ErrLockNotHeld, "key: %s", key)
	}
	delete(l.held, key)
	if !exp.After(l.clock()) {
		return xerrors.Wrapf(ErrOwnershipLost, "key: %s", key)
	}
	return nil
}

func (l *standaloneLocker) Close() error {
	l.mu.Lock()
	clear(l.held)
	l.mu.Unlock()
	return nil
}
