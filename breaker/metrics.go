package breaker

import (
	"context"
	"time"

	"github.com/ceyewan/kmis/metrics"
)

// 指标名称
const (
	MetricRequestsTotal   = "breaker_requests_total"
	MetricRetriesTotal    = "breaker_retries_total"
	MetricFailuresTotal   = "breaker_failures_total"
	MetricRejectsTotal    = "breaker_rejects_total"
	MetricFallbacksTotal  = "breaker_fallbacks_total"
	MetricStateChanges    = "breaker_state_changes_total"
	MetricState           = "breaker_state"
	MetricRequestDuration = "breaker_request_duration_seconds"
)

// 标签
const (
	LabelService   = "service"
	LabelResult    = "result"
	LabelKind      = "kind"
	LabelFromState = "from_state"
	LabelToState   = "to_state"
)

// result 标签取值
const (
	ResultSuccess  = "success"
	ResultFallback = "fallback"
	ResultError    = "error"
	ResultRejected = "rejected"
)

type guardMetrics struct {
	service      string
	requests     metrics.Counter
	retries      metrics.Counter
	failures     metrics.Counter
	rejects      metrics.Counter
	fallbacks    metrics.Counter
	stateChanges metrics.Counter
	state        metrics.Gauge
	duration     metrics.Histogram
}

func newGuardMetrics(m metrics.Meter, service string) (*guardMetrics, error) {
	if m == nil {
		m = metrics.Discard()
	}
	gm := &guardMetrics{service: service}

	var err error
	if gm.requests, err = m.Counter(MetricRequestsTotal, "Guarded calls by final result."); err != nil {
		return nil, err
	}
	if gm.retries, err = m.Counter(MetricRetriesTotal, "Retries scheduled after transient failures."); err != nil {
		return nil, err
	}
	if gm.failures, err = m.Counter(MetricFailuresTotal, "Failed attempts by error kind."); err != nil {
		return nil, err
	}
	if gm.rejects, err = m.Counter(MetricRejectsTotal, "Calls rejected by an open circuit."); err != nil {
		return nil, err
	}
	if gm.fallbacks, err = m.Counter(MetricFallbacksTotal, "Calls answered with the fallback outcome."); err != nil {
		return nil, err
	}
	if gm.stateChanges, err = m.Counter(MetricStateChanges, "Circuit state transitions."); err != nil {
		return nil, err
	}
	if gm.state, err = m.Gauge(MetricState, "Circuit state: 0 closed, 1 half-open, 2 open."); err != nil {
		return nil, err
	}
	if gm.duration, err = m.Histogram(MetricRequestDuration, "Guarded call duration including retries.", metrics.WithUnit("s")); err != nil {
		return nil, err
	}
	return gm, nil
}

func (m *guardMetrics) observe(ctx context.Context, result string, d time.Duration) {
	labels := []metrics.Label{metrics.L(LabelService, m.service), metrics.L(LabelResult, result)}
	m.requests.Inc(ctx, labels...)
	m.duration.Record(ctx, d.Seconds(), labels...)
	switch result {
	case ResultFallback:
		m.fallbacks.Inc(ctx, metrics.L(LabelService, m.service))
	case ResultRejected:
		m.rejects.Inc(ctx, metrics.L(LabelService, m.service))
	}
}

func (m *guardMetrics) failure(ctx context.Context, kind Kind) {
	m.failures.Inc(ctx, metrics.L(LabelService, m.service), metrics.L(LabelKind, string(kind)))
}

func (m *guardMetrics) retry(ctx context.Context, kind Kind) {
	m.retries.Inc(ctx, metrics.L(LabelService, m.service), metrics.L(LabelKind, string(kind)))
}

func (m *guardMetrics) stateChanged(from, to State) {
	ctx := context.Background()
	m.stateChanges.Inc(ctx,
		metrics.L(LabelService, m.service),
		metrics.L(LabelFromState, from.String()),
		metrics.L(LabelToState, to.String()))
	m.state.Set(ctx, float64(to), metrics.L(LabelService, m.service))
}
