package document

import (
	"context"
	"math"
	"time"

	"github.com/ceyewan/kmis/breaker"
	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/dlock"
)

// reprocessLockKey 多副本部署时只有持锁实例执行一轮
const reprocessLockKey = "reprocess"

// Stats 一轮重新提交的统计
type Stats struct {
	Submitted int  `json:"submitted"`
	Indexed   int  `json:"indexed"`
	Refreshed int  `json:"refreshed"`
	Skipped   bool `json:"skipped"`
}

// Reprocessor 周期性地把 not_processed 文档重新提交给检索服务，
// 并查询 processing 文档的处理结果。熔断器打开期间整轮跳过。
type Reprocessor struct {
	svc    *Service
	cfg    ReprocessConfig
	logger clog.Logger
	locker dlock.Locker
}

// ReprocessorOption Reprocessor 选项
type ReprocessorOption func(*Reprocessor)

// WithLocker 每轮开始前尝试加锁，拿不到锁的副本跳过本轮
func WithLocker(l dlock.Locker) ReprocessorOption {
	return func(r *Reprocessor) {
		r.locker = l
	}
}

// NewReprocessor 创建后台任务，日志沿用 svc 的记录器
func NewReprocessor(svc *Service, cfg *ReprocessConfig, opts ...ReprocessorOption) *Reprocessor {
	c := ReprocessConfig{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()
	r := &Reprocessor{svc: svc, cfg: c, logger: svc.logger.WithNamespace("reprocessor")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config 生效的配置
func (r *Reprocessor) Config() ReprocessConfig {
	return r.cfg
}

// Run 按 Interval 循环执行 RunOnce，直到 ctx 取消
func (r *Reprocessor) Run(ctx context.Context) {
	r.logger.InfoContext(ctx, "reprocessor started",
		clog.Duration("interval", r.cfg.Interval),
		clog.Int("batch_size", r.cfg.BatchSize),
		clog.Int("max_attempts", r.cfg.MaxAttempts))

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reprocessor stopped")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "reprocess round failed", clog.Error(err))
			}
		}
	}
}

// RunOnce 执行一轮：先重新提交，再查询处理中的文档
func (r *Reprocessor) RunOnce(ctx context.Context) (Stats, error) {
	var st Stats
	if r.svc.guard.State() == breaker.StateOpen {
		st.Skipped = true
		r.logger.DebugContext(ctx, "circuit open, skipping reprocess round")
		return st, nil
	}

	if r.locker != nil {
		ok, err := r.locker.TryLock(ctx, reprocessLockKey)
		if err != nil {
			return st, err
		}
		if !ok {
			st.Skipped = true
			r.logger.DebugContext(ctx, "reprocess lock held elsewhere, skipping round")
			return st, nil
		}
		defer func() {
			if err := r.locker.Unlock(context.WithoutCancel(ctx), reprocessLockKey); err != nil {
				r.logger.WarnContext(ctx, "release reprocess lock failed", clog.Error(err))
			}
		}()
	}

	pending, err := r.svc.repo.ListForProcessing(ctx, StatusNotProcessed, r.cfg.MaxAttempts, r.cfg.BatchSize)
	if err != nil {
		return st, err
	}
	for _, doc := range pending {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		if r.svc.guard.State() == breaker.StateOpen {
			r.logger.WarnContext(ctx, "circuit opened, stopping reprocess round", clog.Int("submitted", st.Submitted))
			return st, nil
		}
		if err := r.svc.index(ctx, doc); err != nil {
			return st, err
		}
		st.Submitted++
		if doc.Status == StatusIndexed {
			st.Indexed++
		}
	}

	processing, err := r.svc.repo.ListForProcessing(ctx, StatusProcessing, math.MaxInt32, r.cfg.BatchSize)
	if err != nil {
		return st, err
	}
	for _, doc := range processing {
		if doc.ExternalID == "" {
			continue
		}
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		if r.svc.guard.State() == breaker.StateOpen {
			return st, nil
		}
		if err := r.svc.refresh(ctx, doc); err != nil {
			return st, err
		}
		if doc.Status != StatusProcessing {
			st.Refreshed++
		}
	}

	if st.Submitted > 0 || st.Refreshed > 0 {
		r.logger.InfoContext(ctx, "reprocess round finished",
			clog.Int("submitted", st.Submitted),
			clog.Int("indexed", st.Indexed),
			clog.Int("refreshed", st.Refreshed))
	}
	return st, nil
}
