package clog

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

// 标准 Context 键，由 WithStandardContext 提取
const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
)

// ContextWithRequestID 在 Context 中写入 request_id
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// ContextWithUserID 在 Context 中写入 user_id
func ContextWithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

// extractContextFields 按配置从 Context 中提取字段
func extractContextFields(ctx context.Context, o *options) []slog.Attr {
	if len(o.contextFields) == 0 && !o.traceExtraction {
		return nil
	}

	var attrs []slog.Attr
	for _, cf := range o.contextFields {
		if v := ctx.Value(cf.Key); v != nil {
			attrs = append(attrs, slog.Any(cf.FieldName, v))
		}
	}

	if o.traceExtraction {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			attrs = append(attrs,
				slog.String("trace_id", sc.TraceID().String()),
				slog.String("span_id", sc.SpanID().String()),
			)
		}
	}
	return attrs
}
