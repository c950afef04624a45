package connector

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/kmis/clog"
)

type options struct {
	logger         clog.Logger
	tracerProvider trace.TracerProvider
	instrument     bool
}

// Option 配置连接器的选项
type Option func(*options)

// WithLogger 设置日志记录器，自动添加 "connector" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("connector")
		}
	}
}

// WithInstrumentation 为 Redis 客户端注册 OpenTelemetry 追踪与连接池指标，
// tp 为 nil 时使用全局 Provider
func WithInstrumentation(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.instrument = true
		o.tracerProvider = tp
	}
}

func applyOptions(opts []Option) *options {
	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
