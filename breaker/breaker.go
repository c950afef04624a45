// Package breaker 为调用外部供应商（文档索引与检索 SaaS）提供统一的弹性保护：
// 错误分类、指数退避重试、单次尝试超时与熔断。
//
// 熔断器是显式的 *Guard 实例，阈值通过 Config 注入，由发起供应商调用的组件持有：
//
//	guard, _ := breaker.New(&breaker.Config{Name: "docai", MaxFailures: 5, ResetTimeout: time.Minute},
//	    breaker.WithLogger(logger), breaker.WithMeter(meter))
//
//	out, err := breaker.Call(ctx, guard, func(ctx context.Context) (*docai.IndexResult, error) {
//	    return client.IndexDocument(ctx, req)
//	})
//	if out.FallbackUsed {
//	    // 降级：out.Err 为最后一次分类后的错误
//	}
//
// 状态机：closed -> open（连续瞬时失败达到 MaxFailures）-> half_open（ResetTimeout 到期）。
// half_open 只是可观测的过渡态：下一次调用进入时熔断器按 closed 处理并清零失败计数，
// 同时到达的调用全部放行，之后失败再次累计到 MaxFailures 时重新打开。
package breaker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/kmis/clog"
)

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// MarshalText 使 State 以字符串形式出现在 JSON 中
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

// Guard 持有一个熔断器以及调用的默认策略，可并发使用
type Guard struct {
	name     string
	cfg      Config
	logger   clog.Logger
	tracer   trace.Tracer
	observer func(RetryEvent)
	metrics  *guardMetrics

	cb atomic.Pointer[gobreaker.TwoStepCircuitBreaker[struct{}]]

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
}

// New 创建 Guard
func New(cfg *Config, opts ...Option) (*Guard, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	g := &Guard{
		name:     c.Name,
		cfg:      c,
		logger:   o.logger.With(clog.String("service", c.Name)),
		observer: o.observer,
	}
	if o.tracerProvider != nil {
		g.tracer = o.tracerProvider.Tracer(instrumentationName)
	} else {
		g.tracer = otel.Tracer(instrumentationName)
	}

	m, err := newGuardMetrics(o.meter, c.Name)
	if err != nil {
		return nil, err
	}
	g.metrics = m
	g.cb.Store(g.newCircuitBreaker())

	g.logger.Info("circuit breaker created",
		clog.Int("max_failures", c.MaxFailures),
		clog.Duration("reset_timeout", c.ResetTimeout),
		clog.Int("max_retries", c.MaxRetries),
		clog.Duration("retry_delay", c.RetryDelay),
		clog.Duration("timeout", c.Timeout),
		clog.Bool("fallback_enabled", !c.DisableFallback))
	return g, nil
}

const instrumentationName = "github.com/ceyewan/kmis/breaker"

func (g *Guard) newCircuitBreaker() *gobreaker.TwoStepCircuitBreaker[struct{}] {
	maxFailures := uint32(g.cfg.MaxFailures)
	return gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        g.name,
		MaxRequests: 1,
		Timeout:     g.cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsExcluded:    isExcluded,
		OnStateChange: g.onStateChange,
	})
}

// admit 在调用入口判定一次是否放行，open 且未到 ResetTimeout 时拒绝
func (g *Guard) admit() (string, bool) {
	if g.current().State() == gobreaker.StateOpen {
		return "circuit open", false
	}
	return "", true
}

// current 返回当前熔断器；ResetTimeout 到期进入 half_open 的熔断器被换成清零的 closed 熔断器
func (g *Guard) current() *gobreaker.TwoStepCircuitBreaker[struct{}] {
	cb := g.cb.Load()
	if cb.State() != gobreaker.StateHalfOpen {
		return cb
	}
	fresh := g.newCircuitBreaker()
	if !g.cb.CompareAndSwap(cb, fresh) {
		return g.cb.Load()
	}
	g.mu.Lock()
	g.failures = 0
	g.mu.Unlock()
	g.logger.Info("reset timeout elapsed, circuit breaker closed for retry")
	g.metrics.stateChanged(StateHalfOpen, StateClosed)
	return fresh
}

// closeAfterSuccess 熔断器打开后仍在进行的调用成功时关闭熔断器
func (g *Guard) closeAfterSuccess(cb *gobreaker.TwoStepCircuitBreaker[struct{}]) {
	from := fromGobreaker(cb.State())
	if from == StateClosed || !g.cb.CompareAndSwap(cb, g.newCircuitBreaker()) {
		return
	}
	g.logger.Info("circuit breaker closed", clog.String("from", from.String()))
	g.metrics.stateChanged(from, StateClosed)
}

// Name 返回 Guard 保护的下游服务名
func (g *Guard) Name() string {
	return g.name
}

// State 返回当前熔断状态，open 超过 ResetTimeout 后会在这里转为 half_open
func (g *Guard) State() State {
	return fromGobreaker(g.cb.Load().State())
}

// Snapshot 熔断器的可观测快照
type Snapshot struct {
	Name            string        `json:"name"`
	State           State         `json:"state"`
	IsOpen          bool          `json:"is_open"`
	FailureCount    int           `json:"failure_count"`
	LastFailureTime *time.Time    `json:"last_failure_time,omitempty"`
	MaxFailures     int           `json:"max_failures"`
	ResetTimeout    time.Duration `json:"reset_timeout"`
}

// Snapshot 返回当前状态、失败计数与最近一次失败时间
func (g *Guard) Snapshot() Snapshot {
	// 先读 gobreaker 状态，它可能触发 onStateChange 并获取 g.mu
	state := g.State()

	g.mu.Lock()
	defer g.mu.Unlock()

	s := Snapshot{
		Name:         g.name,
		State:        state,
		IsOpen:       state == StateOpen,
		FailureCount: g.failures,
		MaxFailures:  g.cfg.MaxFailures,
		ResetTimeout: g.cfg.ResetTimeout,
	}
	if !g.lastFailure.IsZero() {
		t := g.lastFailure
		s.LastFailureTime = &t
	}
	return s
}

// Reset 强制关闭熔断器并清空计数，供运维手动恢复
func (g *Guard) Reset() {
	prev := g.State()
	g.cb.Store(g.newCircuitBreaker())

	g.mu.Lock()
	g.failures = 0
	g.lastFailure = time.Time{}
	g.mu.Unlock()

	g.logger.Warn("circuit breaker reset manually", clog.String("from", prev.String()))
	if prev != StateClosed {
		g.metrics.stateChanged(prev, StateClosed)
	}
}

func (g *Guard) recordSuccess() {
	g.mu.Lock()
	g.failures = 0
	g.lastFailure = time.Time{}
	g.mu.Unlock()
}

func (g *Guard) recordFailure() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	g.lastFailure = time.Now()
	return g.failures
}

// onStateChange 在 gobreaker 内部锁中回调，只能获取 g.mu
func (g *Guard) onStateChange(_ string, from, to gobreaker.State) {
	f, t := fromGobreaker(from), fromGobreaker(to)
	switch t {
	case StateOpen:
		g.logger.Warn("circuit breaker opened",
			clog.String("from", f.String()),
			clog.Duration("reset_timeout", g.cfg.ResetTimeout))
	case StateHalfOpen:
		// 到期后以清零的失败计数重新开始
		g.mu.Lock()
		g.failures = 0
		g.mu.Unlock()
		g.logger.Info("circuit breaker reset timeout elapsed")
	case StateClosed:
		g.logger.Info("circuit breaker closed", clog.String("from", f.String()))
	}
	g.metrics.stateChanged(f, t)
}

// isExcluded 永久错误与调用方取消既不算成功也不算失败
func isExcluded(err error) bool {
	if err == nil {
		return false
	}
	if errorsIsCanceled(err) {
		return true
	}
	return KindOf(err).Permanent()
}
