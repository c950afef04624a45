package breaker

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/metrics"
)

// Option Guard 选项
type Option func(*options)

type options struct {
	logger         clog.Logger
	meter          metrics.Meter
	tracerProvider trace.TracerProvider
	observer       func(RetryEvent)
}

// WithLogger 注入日志记录器，自动添加 "breaker" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("breaker")
		}
	}
}

// WithMeter 注入指标
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

// WithTracerProvider 指定 TracerProvider，默认使用全局 Provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// RetryEvent 一次失败尝试之后、下一次尝试之前的事件
type RetryEvent struct {
	Service string
	Attempt int // 刚失败的尝试序号，从 1 开始
	Delay   time.Duration
	Err     *Error
}

// WithRetryObserver 在每次退避等待前回调
func WithRetryObserver(fn func(RetryEvent)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// CallOptions 单次 Call 的策略，默认值来自 Guard 的 Config
type CallOptions struct {
	MaxRetries      int
	RetryDelay      time.Duration
	Timeout         time.Duration
	FallbackEnabled bool
}

// CallOption 覆盖单次调用的策略
type CallOption func(*CallOptions)

// WithMaxRetries 重试次数，总尝试数为 n+1
func WithMaxRetries(n int) CallOption {
	return func(o *CallOptions) {
		if n >= 0 {
			o.MaxRetries = n
		}
	}
}

// WithRetryDelay 退避基数，第 i 次重试前等待 d * 2^i
func WithRetryDelay(d time.Duration) CallOption {
	return func(o *CallOptions) {
		if d >= 0 {
			o.RetryDelay = d
		}
	}
}

// WithTimeout 单次尝试的超时，0 表示不限制
func WithTimeout(d time.Duration) CallOption {
	return func(o *CallOptions) {
		if d >= 0 {
			o.Timeout = d
		}
	}
}

// WithFallback 是否允许降级；为 false 时失败以 *Error 返回
func WithFallback(enabled bool) CallOption {
	return func(o *CallOptions) {
		o.FallbackEnabled = enabled
	}
}

func (g *Guard) callOptions(opts []CallOption) CallOptions {
	co := CallOptions{
		MaxRetries:      g.cfg.MaxRetries,
		RetryDelay:      g.cfg.RetryDelay,
		Timeout:         g.cfg.Timeout,
		FallbackEnabled: !g.cfg.DisableFallback,
	}
	for _, opt := range opts {
		opt(&co)
	}
	return co
}
