// Package xerrors 提供 kmis 统一的错误处理工具：包装、错误码与通用哨兵错误。
//
// 业务包在自己的 errors.go 中用 Wrap 或 fmt.Errorf("%w") 包装这里的哨兵错误，
// HTTP 层再通过 HTTPStatus 映射状态码、通过 GetCode 取得响应中的错误码。
package xerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// 错误码，出现在 HTTP 错误响应的 error.code 中
const (
	CodeInvalidArgument = "invalid_argument"
	CodeUnauthorized    = "unauthorized"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
)

// 通用哨兵错误，各自带有错误码，包装后仍可通过 GetCode 取得
var (
	ErrNotFound     = WithCode(errors.New("not found"), CodeNotFound)
	ErrInvalidInput = WithCode(errors.New("invalid input"), CodeInvalidArgument)
	ErrUnauthorized = WithCode(errors.New("unauthorized"), CodeUnauthorized)
	ErrForbidden    = WithCode(errors.New("forbidden"), CodeForbidden)
	ErrConflict     = WithCode(errors.New("conflict"), CodeConflict)
	ErrUnavailable  = WithCode(errors.New("service unavailable"), CodeUnavailable)
)

// Wrap 用上下文信息包装错误，保留错误链；err 为 nil 时返回 nil
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 用格式化的上下文信息包装错误
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// WithCode 为错误附加机器可读的错误码
func WithCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Cause: err}
}

// CodedError 带错误码的错误，错误消息与 Cause 相同
type CodedError struct {
	Code  string
	Cause error
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return fmt.Sprintf("[%s]", e.Code)
}

func (e *CodedError) Unwrap() error {
	return e.Cause
}

// GetCode 从错误链中提取最外层的错误码，没有时返回空串
func GetCode(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// HTTPStatus 将错误链中的哨兵错误映射为 HTTP 状态码，未识别的错误返回 500
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Must 在 err 不为 nil 时 panic，只用于示例程序与初始化阶段
func Must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("must: %v", err))
	}
	return v
}

// MultiError 合并多个错误
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	switch len(m.Errors) {
	case 0:
		return "no errors"
	case 1:
		return m.Errors[0].Error()
	default:
		return fmt.Sprintf("%v (and %d more errors)", m.Errors[0], len(m.Errors)-1)
	}
}

func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Combine 合并多个错误，忽略 nil；只有一个时原样返回
func Combine(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &MultiError{Errors: nonNil}
	}
}

// 标准库函数再导出
var (
	New    = errors.New
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)
