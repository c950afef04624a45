// Package ratelimit 提供基于令牌桶的限流组件，支持单机和分布式两种模式。
//
//   - 单机模式：基于 golang.org/x/time/rate 的内存限流，按 key 维护限流器并定期清理空闲项
//   - 分布式模式：基于 Redis + Lua 的令牌桶，多个实例共享配额
//
// 基本使用：
//
//	limiter, _ := ratelimit.New(&ratelimit.Config{Mode: ratelimit.ModeStandalone})
//	allowed, _ := limiter.Allow(ctx, "user:123", ratelimit.Limit{Rate: 10, Burst: 20})
//
// Gin 中间件：
//
//	r.GET("/search", ratelimit.GinMiddleware(limiter, keyFunc, ratelimit.Fixed(limit)), handler)
package ratelimit

import (
	"context"

	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/metrics"
)

// Limit 定义限流规则（令牌桶算法）
type Limit struct {
	Rate  float64 `mapstructure:"rate"`  // 每秒生成的令牌数
	Burst int     `mapstructure:"burst"` // 桶容量
}

// Valid 规则是否可用
func (l Limit) Valid() bool {
	return l.Rate > 0 && l.Burst > 0
}

// Limiter 限流器核心接口
type Limiter interface {
	// Allow 尝试获取 1 个令牌（非阻塞）。error 只表示系统错误
	Allow(ctx context.Context, key string, limit Limit) (bool, error)

	// AllowN 尝试获取 N 个令牌（非阻塞）
	AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error)

	// Close 释放后台资源，不关闭外部传入的连接
	Close() error
}

// New 按配置创建限流器
func New(cfg *Config, opts ...Option) (Limiter, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	m, err := newLimiterMetrics(o.meter, cfg.Mode)
	if err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case ModeDistributed:
		if o.redisConn == nil {
			return nil, ErrConnectorNil
		}
		o.logger.Info("creating distributed rate limiter", clog.String("prefix", cfg.Prefix))
		return newDistributed(cfg, o.redisConn, o.logger, m), nil
	default:
		o.logger.Info("creating standalone rate limiter",
			clog.Duration("cleanup_interval", cfg.CleanupInterval),
			clog.Duration("idle_timeout", cfg.IdleTimeout))
		return newStandalone(cfg, o.logger, m), nil
	}
}

type limiterMetrics struct {
	mode    string
	allowed metrics.Counter
	denied  metrics.Counter
	errors  metrics.Counter
}

func newLimiterMetrics(m metrics.Meter, mode string) (*limiterMetrics, error) {
	lm := &limiterMetrics{mode: mode}
	var err error
	if lm.allowed, err = m.Counter(MetricAllowed, "Number of allowed requests"); err != nil {
		return nil, err
	}
	if lm.denied, err = m.Counter(MetricDenied, "Number of denied requests"); err != nil {
		return nil, err
	}
	if lm.errors, err = m.Counter(MetricErrors, "Number of limiter errors"); err != nil {
		return nil, err
	}
	return lm, nil
}

func (m *limiterMetrics) record(ctx context.Context, allowed bool) {
	if allowed {
		m.allowed.Inc(ctx, metrics.L(LabelMode, m.mode))
		return
	}
	m.denied.Inc(ctx, metrics.L(LabelMode, m.mode))
}
