package breaker

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryClientInterceptor 让 gRPC 下游的一元调用走同一套重试与熔断策略
//
// 降级在此处总是关闭：最终失败以 gRPC status 错误返回给调用方，
// 保留下游原始的 status，熔断拒绝时为 codes.Unavailable。
func (g *Guard) UnaryClientInterceptor(opts ...CallOption) grpc.UnaryClientInterceptor {
	opts = append(append([]CallOption(nil), opts...), WithFallback(false))
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		_, err := Call(ctx, g, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fromGRPC(invoker(ctx, method, req, reply, cc, callOpts...))
		}, opts...)
		if err != nil {
			return toGRPC(err)
		}
		return nil
	}
}

// fromGRPC 在边界处把 gRPC status 转成 TransportError
func fromGRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	te := &TransportError{Code: st.Code().String(), Err: err}
	switch st.Code() {
	case codes.InvalidArgument, codes.FailedPrecondition:
		// 请求本身有问题，重试无意义
		return &Error{Kind: KindInvalidResponse, Message: st.Message(), Cause: err}
	case codes.Unauthenticated:
		te.StatusCode = http.StatusUnauthorized
	case codes.PermissionDenied:
		te.StatusCode = http.StatusForbidden
	case codes.NotFound:
		te.StatusCode = http.StatusNotFound
	case codes.ResourceExhausted:
		te.StatusCode = http.StatusTooManyRequests
	case codes.Unavailable:
		te.StatusCode = http.StatusServiceUnavailable
	case codes.Internal, codes.Unknown, codes.DataLoss:
		te.StatusCode = http.StatusInternalServerError
	case codes.DeadlineExceeded:
		te.Timeout = true
	}
	return te
}

// toGRPC 把 Guard 的错误还原为 gRPC status 错误
func toGRPC(err error) error {
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return st.Err()
	}

	var e *Error
	if !errors.As(err, &e) {
		return status.Error(codes.Unknown, err.Error())
	}
	code := codes.Unknown
	switch e.Kind {
	case KindAPIUnavailable, KindNetworkError:
		code = codes.Unavailable
	case KindRateLimitExceeded:
		code = codes.ResourceExhausted
	case KindAuthFailed:
		code = codes.Unauthenticated
	case KindDocumentNotFound:
		code = codes.NotFound
	case KindTimeout:
		code = codes.DeadlineExceeded
	case KindInvalidResponse:
		code = codes.InvalidArgument
	case KindProcessingFailed:
		code = codes.Internal
	}
	return status.Error(code, e.Error())
}
