package ratelimit

// 指标名称
const (
	MetricAllowed = "ratelimit_allowed_total"
	MetricDenied  = "ratelimit_denied_total"
	MetricErrors  = "ratelimit_errors_total"

	// LabelMode 模式标签 (standalone/distributed)
	LabelMode = "mode"
)
