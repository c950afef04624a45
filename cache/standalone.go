package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/ceyewan/kmis/xerrors"
)

// standaloneStore 进程内缓存，过期从写入开始计算，读取不续期
type standaloneStore struct {
	cache *otter.Cache[string, []byte]
}

// noExpiry 写入时总会用 SetExpiresAfter 覆盖
const noExpiry = 24 * 365 * time.Hour

func newStandaloneStore(capacity int) (*standaloneStore, error) {
	c, err := otter.New(&otter.Options[string, []byte]{
		MaximumSize:      capacity,
		ExpiryCalculator: otter.ExpiryWriting[string, []byte](noExpiry),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "cache: build otter cache")
	}
	return &standaloneStore{cache: c}, nil
}

func (s *standaloneStore) set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	s.cache.Set(key, data)
	s.cache.SetExpiresAfter(key, ttl)
	return nil
}

func (s *standaloneStore) get(_ context.Context, key string) ([]byte, error) {
	data, ok := s.cache.GetIfPresent(key)
	if !ok {
		return nil, ErrMiss
	}
	return data, nil
}

func (s *standaloneStore) del(_ context.Context, key string) error {
	s.cache.Invalidate(key)
	return nil
}

func (s *standaloneStore) close() error {
	s.cache.StopAllGoroutines()
	return nil
}
