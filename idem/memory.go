package idem

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	token     LockToken
	expiresAt time.Time
}

// memoryStore 进程内存储，仅适用于单副本
type memoryStore struct {
	mu      sync.Mutex
	prefix  string
	locks   map[string]memoryEntry
	results map[string]memoryEntry
	now     func() time.Time
}

func newMemoryStore(prefix string) *memoryStore {
	return &memoryStore{
		prefix:  prefix,
		locks:   make(map[string]memoryEntry),
		results: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (ms *memoryStore) Lock(ctx context.Context, key string, ttl time.Duration) (LockToken, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	token, err := newLockToken()
	if err != nil {
		return "", false, err
	}

	lockKey := ms.prefix + key + lockSuffix
	now := ms.now()

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if e, ok := ms.locks[lockKey]; ok && e.expiresAt.After(now) {
		return "", false, nil
	}
	ms.locks[lockKey] = memoryEntry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (ms *memoryStore) Unlock(_ context.Context, key string, token LockToken) error {
	lockKey := ms.prefix + key + lockSuffix
	ms.mu.Lock()
	if e, ok := ms.locks[lockKey]; ok && e.token == token {
		delete(ms.locks, lockKey)
	}
	ms.mu.Unlock()
	return nil
}

func (ms *memoryStore) SetResult(ctx context.Context, key string, val []byte, ttl time.Duration, token LockToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resultKey := ms.prefix + key + resultSuffix
	lockKey := ms.prefix + key + lockSuffix

	ms.mu.Lock()
	ms.results[resultKey] = memoryEntry{
		value:     append([]byte(nil), val...),
		expiresAt: ms.now().Add(ttl),
	}
	if e, ok := ms.locks[lockKey]; ok && e.token == token {
		delete(ms.locks, lockKey)
	}
	ms.mu.Unlock()
	return nil
}

func (ms *memoryStore) GetResult(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resultKey := ms.prefix + key + resultSuffix

	ms.mu.Lock()
	defer ms.mu.Unlock()
	e, ok := ms.results[resultKey]
	if !ok {
		return nil, ErrResultNotFound
	}
	if !e.expiresAt.After(ms.now()) {
		delete(ms.results, resultKey)
		return nil, ErrResultNotFound
	}
	return append([]byte(nil), e.value...), nil
}
