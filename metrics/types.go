// Package metrics 为 kmis 提供基于 OpenTelemetry 的指标能力，通过 Prometheus 暴露。
//
//	meter, _ := metrics.New(&metrics.Config{Enabled: true, ServiceName: "kmis", Port: 9090, Path: "/metrics"})
//	defer meter.Shutdown(ctx)
//
//	calls, _ := meter.Counter("breaker_requests_total", "guarded vendor calls")
//	calls.Inc(ctx, metrics.L("service", "docai"), metrics.L("result", "success"))
//
// 未启用或未注入时使用 Discard()，所有记录都是空操作。
package metrics

import (
	"context"
	"net/http"
)

// Counter 只增不减的累计值
type Counter interface {
	Inc(ctx context.Context, labels ...Label)
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 可任意增减的瞬时值
type Gauge interface {
	Set(ctx context.Context, val float64, labels ...Label)
	Inc(ctx context.Context, labels ...Label)
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 记录值的分布，例如请求耗时
type Histogram interface {
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标工厂
//
// 同名指标重复创建时返回同一个底层仪表，创建出的指标可并发使用。
type Meter interface {
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)

	// Handler 返回 Prometheus 抓取端点，可挂载到业务 HTTP 服务上
	Handler() http.Handler

	// Shutdown 刷新指标并关闭内置的抓取服务
	Shutdown(ctx context.Context) error
}

// MetricOption 创建指标时的选项
type MetricOption func(*MetricOptions)

// MetricOptions 指标选项
type MetricOptions struct {
	Unit    string
	Buckets []float64
}

// WithUnit 设置单位，建议使用 UCUM 代码，例如 "s"、"By"
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}

// WithBuckets 设置直方图的显式桶边界
func WithBuckets(buckets []float64) MetricOption {
	return func(o *MetricOptions) {
		o.Buckets = append([]float64(nil), buckets...)
	}
}
