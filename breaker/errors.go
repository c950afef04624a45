package breaker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Kind 是下游调用失败的分类
type Kind string

const (
	KindAPIUnavailable    Kind = "API_UNAVAILABLE"
	KindRateLimitExceeded Kind = "RATE_LIMIT_EXCEEDED"
	KindAuthFailed        Kind = "AUTHENTICATION_FAILED"
	KindProcessingFailed  Kind = "PROCESSING_FAILED"
	KindTimeout           Kind = "TIMEOUT"
	KindInvalidResponse   Kind = "INVALID_RESPONSE"
	KindNetworkError      Kind = "NETWORK_ERROR"
	KindDocumentNotFound  Kind = "DOCUMENT_NOT_FOUND"
)

// Permanent 永久错误重试无意义，也不计入熔断失败数
func (k Kind) Permanent() bool {
	switch k {
	case KindAuthFailed, KindInvalidResponse, KindDocumentNotFound:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	return string(k)
}

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = errors.New("breaker: config is nil")
	// ErrCircuitOpen 熔断器打开（或半开试探名额已满）时拒绝调用
	ErrCircuitOpen = errors.New("breaker: circuit is open")
	// ErrInvalidResponse 由客户端在响应无法解析时包装，分类为 INVALID_RESPONSE
	ErrInvalidResponse = errors.New("breaker: invalid response")
)

// Error 是分类后的下游错误，所有经过 Guard 的失败都以它返回
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Permanent 等价于 e.Kind.Permanent()
func (e *Error) Permanent() bool {
	return e.Kind.Permanent()
}

// KindOf 返回错误链中 *Error 的分类，不存在时返回空串
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind 判断错误链中是否有指定分类的 *Error
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// TransportError 是供应商客户端在边界处构造的结构化传输错误
//
// StatusCode 为 HTTP 状态码（或 gRPC 映射后的等价值），Code 为供应商错误码
// 或网络错误码（ECONNREFUSED、ENOTFOUND），Timeout 表示传输层超时。
type TransportError struct {
	StatusCode int
	Code       string
	Timeout    bool
	Err        error
}

func (e *TransportError) Error() string {
	msg := "transport error"
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s: code %s", msg, e.Code)
	}
	if e.Timeout {
		msg += ": timeout"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// 网络错误码
const (
	CodeConnRefused = "ECONNREFUSED"
	CodeNotFound    = "ENOTFOUND"
)

// KindForStatus 按 HTTP 状态码分类，无法识别时 ok 为 false
func KindForStatus(status int) (kind Kind, ok bool) {
	switch {
	case status == 401 || status == 403:
		return KindAuthFailed, true
	case status == 404:
		return KindDocumentNotFound, true
	case status == 429:
		return KindRateLimitExceeded, true
	case status >= 500:
		return KindAPIUnavailable, true
	default:
		return "", false
	}
}

// Classify 将任意错误映射为 *Error
//
// 优先级：已分类的 *Error > TransportError 的状态码 > 错误码 > 超时标记 >
// 错误链中的 ErrInvalidResponse、超时、拨号与 DNS 错误。都不匹配时为 PROCESSING_FAILED。
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var te *TransportError
	if errors.As(err, &te) {
		if kind, ok := KindForStatus(te.StatusCode); ok {
			return &Error{Kind: kind, StatusCode: te.StatusCode, Message: te.Code, Cause: err}
		}
		switch te.Code {
		case CodeConnRefused, CodeNotFound:
			return &Error{Kind: KindNetworkError, StatusCode: te.StatusCode, Message: te.Code, Cause: err}
		}
		if te.Timeout {
			return &Error{Kind: KindTimeout, StatusCode: te.StatusCode, Cause: err}
		}
	}

	kind := classifyChain(err)
	e := &Error{Kind: kind, Cause: err}
	if te != nil {
		e.StatusCode = te.StatusCode
	}
	return e
}

func classifyChain(err error) Kind {
	if errors.Is(err, ErrInvalidResponse) {
		return KindInvalidResponse
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindNetworkError
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindNetworkError
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindNetworkError
	}
	return KindProcessingFailed
}
