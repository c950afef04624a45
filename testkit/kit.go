// Package testkit 提供测试用的公共依赖：日志、指标、内存 SQLite 与可选的 Redis。
package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/idgen"
	"github.com/ceyewan/kmis/metrics"
)

// Kit 包含通用的测试依赖
type Kit struct {
	Ctx    context.Context
	Logger clog.Logger
	Meter  metrics.Meter
}

// NewKit 返回一个包含默认依赖的测试工具包
func NewKit(t *testing.T) *Kit {
	t.Helper()
	return &Kit{
		Ctx:    context.Background(),
		Logger: NewLogger(),
		Meter:  NewMeter(),
	}
}

// NewLogger 返回用于测试的 logger，只输出 warn 及以上，避免刷屏
func NewLogger() clog.Logger {
	logger, err := clog.New(&clog.Config{Level: "warn", Format: "console", Output: "stderr"})
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewMeter 返回用于测试的 meter
func NewMeter() metrics.Meter {
	meter, err := metrics.New(metrics.NewDevDefaultConfig("kmis-test"))
	if err != nil {
		return metrics.Discard()
	}
	return meter
}

// NewContext 返回一个带有超时的测试上下文，随测试结束取消
func NewContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// NewID 返回一个唯一的短 ID，用于 Key、库名等后缀，避免测试间数据冲突
func NewID() string {
	id := idgen.NewUUIDV4()
	return id[:8]
}
