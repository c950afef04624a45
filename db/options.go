package db

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/kmis/clog"
)

// Option 配置 DB 实例的选项
type Option func(*options)

type options struct {
	logger         clog.Logger
	tracerProvider trace.TracerProvider
}

// WithLogger 注入日志记录器，自动添加 "db" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("db")
		}
	}
}

// WithTracerProvider 指定 otelgorm 使用的 TracerProvider，默认为全局 Provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}
