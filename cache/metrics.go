package cache

import (
	"context"

	"github.com/ceyewan/kmis/metrics"
)

// MetricRequests 缓存读取次数，按 result=hit|miss 区分
const MetricRequests = "cache_requests_total"

type cacheMetrics struct {
	requests metrics.Counter
	mode     string
}

func newCacheMetrics(m metrics.Meter, mode string) (*cacheMetrics, error) {
	requests, err := m.Counter(MetricRequests, "Cache reads by result.")
	if err != nil {
		return nil, err
	}
	return &cacheMetrics{requests: requests, mode: mode}, nil
}

func (m *cacheMetrics) hit(ctx context.Context) {
	m.requests.Inc(ctx, metrics.L("mode", m.mode), metrics.L("result", "hit"))
}

func (m *cacheMetrics) miss(ctx context.Context) {
	m.requests.Inc(ctx, metrics.L("mode", m.mode), metrics.L("result", "miss"))
}
