// Package cache 提供带 TTL 的键值缓存，用于检索结果等可重建的数据。
//
// 两种后端语义一致：值先经 serializer 编码再存储，读取得到的是独立副本。
//
//	c, _ := cache.New(&cache.Config{Mode: "standalone", Prefix: "kmis:"}, cache.WithLogger(logger))
//	_ = c.Set(ctx, "search:abc", results, time.Minute)
//
//	var cached []Result
//	if err := c.Get(ctx, "search:abc", &cached); errors.Is(err, cache.ErrMiss) {
//		// 回源
//	}
package cache

import (
	"context"
	"time"

	"github.com/ceyewan/kmis/cache/serializer"
	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/metrics"
	"github.com/ceyewan/kmis/xerrors"
)

var (
	// ErrMiss 键不存在或已过期
	ErrMiss = xerrors.New("cache: miss")
	// ErrRedisConnectorRequired distributed 模式缺少 Redis 连接器
	ErrRedisConnectorRequired = xerrors.Wrap(xerrors.ErrInvalidInput, "cache: redis connector is required in distributed mode")
)

// Cache 键值缓存
type Cache interface {
	// Set 写入，ttl <= 0 时使用 DefaultTTL
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Get 读取并解码到 dest，未命中返回 ErrMiss
	Get(ctx context.Context, key string, dest any) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
	Close() error
}

// New 按 Mode 创建缓存
func New(cfg *Config, opts ...Option) (Cache, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := &options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	s, err := serializer.New(c.Serializer)
	if err != nil {
		return nil, err
	}
	m, err := newCacheMetrics(o.meter, c.Mode)
	if err != nil {
		return nil, err
	}

	var backend store
	switch c.Mode {
	case ModeDistributed:
		if o.redisConn == nil || o.redisConn.GetClient() == nil {
			return nil, ErrRedisConnectorRequired
		}
		backend = newRedisStore(o.redisConn.GetClient())
	default:
		backend, err = newStandaloneStore(c.Capacity)
		if err != nil {
			return nil, err
		}
	}

	o.logger.Info("cache created",
		clog.String("mode", c.Mode),
		clog.String("serializer", s.Name()),
		clog.Duration("default_ttl", c.DefaultTTL))

	return &cache{
		store:      backend,
		serializer: s,
		prefix:     c.Prefix,
		defaultTTL: c.DefaultTTL,
		logger:     o.logger,
		metrics:    m,
	}, nil
}

// store 是后端的原始字节存储
type store interface {
	set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	get(ctx context.Context, key string) ([]byte, error)
	del(ctx context.Context, key string) error
	close() error
}

type cache struct {
	store      store
	serializer serializer.Serializer
	prefix     string
	defaultTTL time.Duration
	logger     clog.Logger
	metrics    *cacheMetrics
}

func (c *cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := c.serializer.Marshal(value)
	if err != nil {
		return xerrors.Wrapf(err, "cache: marshal %s", key)
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.store.set(ctx, c.prefix+key, data, ttl)
}

func (c *cache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.store.get(ctx, c.prefix+key)
	if err != nil {
		if xerrors.Is(err, ErrMiss) {
			c.metrics.miss(ctx)
		} else {
			c.logger.WarnContext(ctx, "cache get failed", clog.String("key", key), clog.Error(err))
		}
		return err
	}
	if err := c.serializer.Unmarshal(data, dest); err != nil {
		// 无法解码的旧数据视为未命中
		_ = c.store.del(ctx, c.prefix+key)
		c.metrics.miss(ctx)
		return xerrors.Wrapf(ErrMiss, "undecodable value for %s: %v", key, err)
	}
	c.metrics.hit(ctx)
	return nil
}

func (c *cache) Delete(ctx context.Context, key string) error {
	return c.store.del(ctx, c.prefix+key)
}

func (c *cache) Has(ctx context.Context, key string) (bool, error) {
	_, err := c.store.get(ctx, c.prefix+key)
	switch {
	case err == nil:
		return true, nil
	case xerrors.Is(err, ErrMiss):
		return false, nil
	default:
		return false, err
	}
}

func (c *cache) Close() error {
	return c.store.close()
}
