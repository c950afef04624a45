// Package idem 为写接口提供幂等保护：携带相同幂等键的重复请求只执行一次，
// 之后直接回放第一次的响应。
//
//   - 单机模式：结果保存在进程内存中
//   - 分布式模式：结果与处理中标记保存在 Redis，多副本共享
//
// 基本使用：
//
//	guard, _ := idem.New(&idem.Config{Mode: idem.ModeDistributed},
//	    idem.WithRedisConnector(redisConn), idem.WithLogger(logger))
//	r.POST("/documents", guard.GinMiddleware(), createHandler)
//
// 同一幂等键的请求仍在处理时，后到的请求得到 409。
// 只有 2xx 响应会被缓存，失败的请求可以用同一个键重试。
package idem

import (
	"github.com/gin-gonic/gin"

	"github.com/ceyewan/kmis/clog"
)

// Idempotency 幂等组件
type Idempotency interface {
	// GinMiddleware 从请求头读取幂等键，命中时回放缓存的响应
	GinMiddleware(opts ...MiddlewareOption) gin.HandlerFunc
}

type idem struct {
	cfg    *Config
	store  Store
	logger clog.Logger
}

// New 按配置创建幂等组件
func New(cfg *Config, opts ...Option) (Idempotency, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	var store Store
	switch cfg.Mode {
	case ModeDistributed:
		if o.redisConn == nil {
			return nil, ErrConnectorNil
		}
		store = newRedisStore(o.redisConn.GetClient(), cfg.Prefix)
	default:
		store = newMemoryStore(cfg.Prefix)
	}

	o.logger.Info("creating idempotency guard",
		clog.String("mode", cfg.Mode),
		clog.String("prefix", cfg.Prefix),
		clog.Duration("default_ttl", cfg.DefaultTTL),
		clog.Duration("lock_ttl", cfg.LockTTL))
	return &idem{cfg: cfg, store: store, logger: o.logger}, nil
}
