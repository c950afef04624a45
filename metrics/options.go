package metrics

import (
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ceyewan/kmis/clog"
)

// Option Meter 选项
type Option func(*options)

type options struct {
	logger clog.Logger
	reader sdkmetric.Reader
}

// WithLogger 注入日志记录器，自动添加 "metrics" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("metrics")
		}
	}
}

// WithReader 使用自定义 Reader 替代 Prometheus 导出器
//
// 测试中配合 sdkmetric.NewManualReader 读取指标值，此时 Handler 返回 404。
func WithReader(r sdkmetric.Reader) Option {
	return func(o *options) {
		o.reader = r
	}
}
