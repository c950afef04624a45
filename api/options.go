package api

import (
	"context"

	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/document"
	"github.com/ceyewan/kmis/idem"
	"github.com/ceyewan/kmis/metrics"
	"github.com/ceyewan/kmis/ratelimit"
)

// Option 服务器选项
type Option func(*options)

// HealthCheck /healthz 检查的一项依赖
type HealthCheck func(ctx context.Context) error

type options struct {
	logger      clog.Logger
	meter       metrics.Meter
	serviceName string
	tracing     bool
	limiter     ratelimit.Limiter
	searchLimit ratelimit.Limit
	reprocessor *document.Reprocessor
	idempotency idem.Idempotency
	checks      map[string]HealthCheck
}

// WithLogger 注入日志记录器，自动添加 "api" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("api")
		}
	}
}

// WithMeter 记录 HTTP RED 指标
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

// WithTracing 为每个请求创建 server span
func WithTracing(serviceName string) Option {
	return func(o *options) {
		o.tracing = true
		if serviceName != "" {
			o.serviceName = serviceName
		}
	}
}

// WithSearchLimit 按用户限制检索频率
func WithSearchLimit(l ratelimit.Limiter, limit ratelimit.Limit) Option {
	return func(o *options) {
		o.limiter = l
		o.searchLimit = limit
	}
}

// WithReprocessor 开启 POST /system/reprocess
func WithReprocessor(r *document.Reprocessor) Option {
	return func(o *options) {
		o.reprocessor = r
	}
}

// WithIdempotency 让 POST /documents 支持 Idempotency-Key 请求头
func WithIdempotency(i idem.Idempotency) Option {
	return func(o *options) {
		o.idempotency = i
	}
}

// WithHealthCheck 添加 /healthz 检查项
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(o *options) {
		if check != nil {
			o.checks[name] = check
		}
	}
}
