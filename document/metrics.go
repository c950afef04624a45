package document

import (
	"context"

	"github.com/ceyewan/kmis/metrics"
)

// 指标名称
const (
	MetricIndexTotal  = "document_index_total"
	MetricSearchTotal = "document_search_total"
)

// 标签
const (
	LabelStatus = "status"
	LabelSource = "source"
)

type serviceMetrics struct {
	index  metrics.Counter
	search metrics.Counter
}

func newServiceMetrics(m metrics.Meter) (*serviceMetrics, error) {
	sm := &serviceMetrics{}
	var err error
	if sm.index, err = m.Counter(MetricIndexTotal, "Document index submissions by resulting status."); err != nil {
		return nil, err
	}
	if sm.search, err = m.Counter(MetricSearchTotal, "Searches by the source that answered them."); err != nil {
		return nil, err
	}
	return sm, nil
}

func (m *serviceMetrics) indexed(ctx context.Context, status Status) {
	m.index.Inc(ctx, metrics.L(LabelStatus, string(status)))
}

func (m *serviceMetrics) searched(ctx context.Context, source string) {
	m.search.Inc(ctx, metrics.L(LabelSource, source))
}
