// Package dlock 提供互斥锁组件，用于多副本部署时保证同一时刻只有一个实例执行某项任务。
//
//   - 单机模式：进程内互斥，适合单副本或测试
//   - 分布式模式：基于 Redis SET NX + Lua 释放，持锁期间由 watchdog 自动续期
//
// 基本使用：
//
//	locker, _ := dlock.New(&dlock.Config{Mode: dlock.ModeDistributed},
//	    dlock.WithRedisConnector(redisConn), dlock.WithLogger(logger))
//	ok, err := locker.TryLock(ctx, "reprocess")
//	if ok {
//	    defer locker.Unlock(ctx, "reprocess")
//	}
package dlock

import (
	"context"
	"time"

	"github.com/ceyewan/kmis/clog"
)

// Locker 互斥锁的核心行为
type Locker interface {
	// Lock 阻塞加锁，直到成功或 ctx 结束
	Lock(ctx context.Context, key string, opts ...LockOption) error

	// TryLock 非阻塞加锁。锁被占用时返回 false, nil
	TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error)

	// Unlock 释放本实例持有的锁
	Unlock(ctx context.Context, key string) error

	// Close 释放本实例持有的全部锁，不关闭外部传入的连接
	Close() error
}

// New 按配置创建 Locker
func New(cfg *Config, opts ...Option) (Locker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	switch cfg.Mode {
	case ModeDistributed:
		if o.redisConn == nil {
			return nil, ErrConnectorNil
		}
		o.logger.Info("creating distributed locker",
			clog.String("prefix", cfg.Prefix),
			clog.Duration("default_ttl", cfg.DefaultTTL))
		return newRedis(o.redisConn.GetClient(), cfg, o.logger), nil
	default:
		o.logger.Info("creating standalone locker")
		return newStandalone(cfg), nil
	}
}

// waitLock 按 interval 重试 try，直到成功、出错或 ctx 结束
func waitLock(ctx context.Context, interval time.Duration, try func() (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
