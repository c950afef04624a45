package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/kmis/clog"
	ktrace "github.com/ceyewan/kmis/trace"
)

// Operation 受保护的下游调用，应当遵守 ctx 的取消
type Operation[T any] func(ctx context.Context) (T, error)

// Outcome 是 Call 的结果
//
// 成功：{Result, nil, false}；失败且允许降级：{零值, 最后一次分类错误, true}。
type Outcome[T any] struct {
	Result       T
	Err          *Error
	FallbackUsed bool
}

// Degraded 是 CallWithFallback 的结果，Degraded 为 true 表示结果来自降级路径
type Degraded[T any] struct {
	Result   T
	Degraded bool
	Err      *Error
}

// Call 在 Guard 的保护下执行 op
//
// 熔断器打开时不调用 op，直接返回 API_UNAVAILABLE。否则最多尝试 MaxRetries+1 次，
// 每次尝试受 Timeout 限制并在超时后取消；永久错误立即停止，瞬时错误计入熔断失败数，
// 并在下一次尝试前等待 RetryDelay * 2^i。熔断器在调用过程中被打开不影响剩余尝试，
// 只影响之后的调用。
// 最终失败时，允许降级返回 FallbackUsed 的 Outcome，否则返回 *Error。
func Call[T any](ctx context.Context, g *Guard, op Operation[T], opts ...CallOption) (Outcome[T], error) {
	co := g.callOptions(opts)
	start := time.Now()

	ctx, span := g.tracer.Start(ctx, "breaker.call", trace.WithAttributes(
		attribute.String("breaker.service", g.name),
		attribute.Int("breaker.max_retries", co.MaxRetries),
	))
	defer span.End()

	var (
		attempts int
		rejected bool
		lastErr  *Error
	)

	// 熔断只在调用入口判定一次，放行后的每次尝试都会执行并计数
	if reason, ok := g.admit(); !ok {
		rejected = true
		lastErr = &Error{Kind: KindAPIUnavailable, Message: reason, Cause: ErrCircuitOpen}
	}

	attempt := func(ctx context.Context) (T, error) {
		var zero T
		cb := g.current()
		done, aerr := cb.Allow()
		if aerr != nil {
			// 本次调用期间熔断器已被打开，尝试照常执行，只在 Guard 上计数
			done = func(error) {}
		}

		attempts++
		span.AddEvent("attempt", trace.WithAttributes(attribute.Int("breaker.attempt", attempts)))

		v, err := runAttempt(ctx, co.Timeout, op)
		if err == nil {
			done(nil)
			if aerr != nil {
				g.closeAfterSuccess(cb)
			}
			g.recordSuccess()
			return v, nil
		}

		// 调用方取消不是下游的错，不计入熔断也不再重试
		if ctx.Err() != nil {
			done(context.Canceled)
			lastErr = &Error{Kind: KindTimeout, Message: "call canceled", Cause: ctx.Err()}
			return zero, lastErr
		}

		cerr := Classify(err)
		lastErr = cerr
		g.metrics.failure(ctx, cerr.Kind)
		if cerr.Permanent() {
			done(cerr)
			g.logger.WarnContext(ctx, "permanent error, not retrying",
				clog.Int("attempt", attempts), clog.String("kind", cerr.Kind.String()), clog.Error(err))
			return zero, cerr
		}

		failures := g.recordFailure()
		done(cerr)
		g.logger.DebugContext(ctx, "vendor attempt failed",
			clog.Int("attempt", attempts), clog.Int("failure_count", failures), clog.String("kind", cerr.Kind.String()))
		return zero, retry.RetryableError(cerr)
	}

	var (
		result T
		err    error
	)
	if rejected {
		err = lastErr
	} else {
		result, err = retry.DoValue(ctx, g.backoff(ctx, co, &attempts, &lastErr), attempt)
	}
	if err == nil {
		g.metrics.observe(ctx, ResultSuccess, time.Since(start))
		span.SetAttributes(attribute.Int("breaker.attempts", attempts))
		return Outcome[T]{Result: result}, nil
	}

	// DoValue 在等待退避时被取消会直接返回 ctx.Err()
	if lastErr == nil || (ctx.Err() != nil && !errors.Is(lastErr, ctx.Err())) {
		lastErr = &Error{Kind: KindTimeout, Message: "call canceled", Cause: err}
	}

	span.SetAttributes(
		attribute.Int("breaker.attempts", attempts),
		attribute.String("breaker.error_kind", lastErr.Kind.String()),
	)
	ktrace.MarkSpanError(span, lastErr)

	label := ResultError
	switch {
	case rejected:
		label = ResultRejected
	case co.FallbackEnabled:
		label = ResultFallback
	}
	g.metrics.observe(ctx, label, time.Since(start))

	if !co.FallbackEnabled {
		return Outcome[T]{}, lastErr
	}
	if !rejected {
		g.logger.WarnContext(ctx, "vendor call failed, falling back",
			clog.Int("attempts", attempts), clog.String("kind", lastErr.Kind.String()), clog.Error(lastErr.Cause))
	}
	return Outcome[T]{Err: lastErr, FallbackUsed: true}, nil
}

// CallWithFallback 主调用降级时执行 fallback，并标记结果为 Degraded
//
// fallback 失败时返回 PROCESSING_FAILED 并包装 fallback 的错误；
// 主调用不允许降级时原样返回主调用的 *Error。
func CallWithFallback[T any](ctx context.Context, g *Guard, primary, fallback Operation[T], opts ...CallOption) (Degraded[T], error) {
	out, err := Call(ctx, g, primary, opts...)
	if err != nil {
		return Degraded[T]{}, err
	}
	if !out.FallbackUsed {
		return Degraded[T]{Result: out.Result}, nil
	}

	res, ferr := fallback(ctx)
	if ferr != nil {
		g.logger.ErrorContext(ctx, "fallback operation failed", clog.Error(ferr))
		return Degraded[T]{}, &Error{Kind: KindProcessingFailed, Message: "fallback operation failed", Cause: ferr}
	}
	return Degraded[T]{Result: res, Degraded: true, Err: out.Err}, nil
}

// backoff 构造 RetryDelay * 2^i 的退避序列，最多 MaxRetries 次
func (g *Guard) backoff(ctx context.Context, co CallOptions, attempts *int, lastErr **Error) retry.Backoff {
	var b retry.Backoff
	if co.RetryDelay > 0 {
		b = retry.NewExponential(co.RetryDelay)
	} else {
		b = retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	}
	b = retry.WithMaxRetries(uint64(co.MaxRetries), b)

	return retry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := b.Next()
		if stop {
			return 0, true
		}
		ev := RetryEvent{Service: g.name, Attempt: *attempts, Delay: delay, Err: *lastErr}
		g.metrics.retry(ctx, ev.Err.Kind)
		g.logger.DebugContext(ctx, "retrying vendor call",
			clog.Int("attempt", ev.Attempt), clog.Duration("delay", delay), clog.String("kind", ev.Err.Kind.String()))
		if g.observer != nil {
			g.observer(ev)
		}
		return delay, false
	})
}

// runAttempt 在独立的超时 Context 中执行 op
//
// op 忽略 ctx 时，超时后不再等待其返回，op 的结果被丢弃。
func runAttempt[T any](ctx context.Context, timeout time.Duration, op Operation[T]) (T, error) {
	attemptCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("operation panicked: %v", r)}
			}
		}()
		v, err := op(attemptCtx)
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-attemptCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, &Error{Kind: KindTimeout, Message: fmt.Sprintf("attempt timed out after %s", timeout), Cause: attemptCtx.Err()}
	}
}

func errorsIsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
