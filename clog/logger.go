package clog

import "context"

// Logger 结构化日志接口
//
// 每个级别都有带 Context 的版本，带 Context 的方法会按 Option 配置提取字段。
//
//	child := logger.With(clog.String("document_id", id))
//	vendor := logger.WithNamespace("docai")
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	FatalContext(ctx context.Context, msg string, fields ...Field)

	// With 创建带预设字段的子 Logger
	With(fields ...Field) Logger

	// WithNamespace 追加命名空间，例如 "kmis" -> "kmis.breaker"
	WithNamespace(parts ...string) Logger

	// SetLevel 运行时调整日志级别，对所有派生的子 Logger 同时生效
	SetLevel(level Level) error

	// Flush 同步缓冲区
	Flush()
}
