package dlock

import (
	"time"

	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/connector"
)

// Option 组件初始化选项
type Option func(*options)

type options struct {
	logger    clog.Logger
	redisConn connector.RedisConnector
}

// WithLogger 设置 Logger，自动添加 "dlock" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("dlock")
		}
	}
}

// WithRedisConnector 设置 Redis 连接器（分布式模式必需）
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		o.redisConn = conn
	}
}

func applyOptions(opts []Option) *options {
	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// LockOption 单次加锁的选项
type LockOption func(*lockOptions)

type lockOptions struct {
	ttl time.Duration
}

// WithTTL 覆盖配置中的 DefaultTTL
func WithTTL(d time.Duration) LockOption {
	return func(o *lockOptions) {
		o.ttl = d
	}
}

func applyLockOptions(def time.Duration, opts []LockOption) lockOptions {
	o := lockOptions{ttl: def}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl <= 0 {
		o.ttl = def
	}
	return o
}
