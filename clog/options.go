package clog

import (
	"io"
	"strings"
)

// NamespaceKey 日志中命名空间的字段名
const NamespaceKey = "namespace"

// ContextField 从 Context 中提取字段的规则
type ContextField struct {
	Key       any    // Context 中的键
	FieldName string // 日志中的字段名
}

// Option Logger 的函数式选项
type Option func(*options)

type options struct {
	namespaceParts  []string
	contextFields   []ContextField
	traceExtraction bool
	writer          io.Writer
}

// WithNamespace 设置命名空间，多级以 "." 连接
func WithNamespace(parts ...string) Option {
	return func(o *options) {
		o.namespaceParts = append(o.namespaceParts, parts...)
	}
}

// WithContextField 添加自定义的 Context 字段提取规则
func WithContextField(key any, fieldName string) Option {
	return func(o *options) {
		o.contextFields = append(o.contextFields, ContextField{Key: key, FieldName: fieldName})
	}
}

// WithStandardContext 提取 request_id 与 user_id
func WithStandardContext() Option {
	return func(o *options) {
		o.contextFields = append(o.contextFields,
			ContextField{Key: RequestIDKey, FieldName: string(RequestIDKey)},
			ContextField{Key: UserIDKey, FieldName: string(UserIDKey)},
		)
	}
}

// WithTraceContext 提取 OpenTelemetry 的 trace_id 与 span_id
func WithTraceContext() Option {
	return func(o *options) {
		o.traceExtraction = true
	}
}

// WithWriter 配合 Output: "buffer" 使用，测试中常用 bytes.Buffer
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) clone() *options {
	c := *o
	c.namespaceParts = append([]string(nil), o.namespaceParts...)
	return &c
}

func (o *options) namespace() string {
	return strings.Join(o.namespaceParts, ".")
}
