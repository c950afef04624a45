package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/kmis/breaker"
	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/xerrors"
)

// 错误码，与 auth、ratelimit 中间件的响应格式一致：
//
//	{"error": {"code": "not_found", "message": "..."}}
const (
	CodeInvalidArgument = xerrors.CodeInvalidArgument
	CodeUnauthorized    = xerrors.CodeUnauthorized
	CodeForbidden       = xerrors.CodeForbidden
	CodeNotFound        = xerrors.CodeNotFound
	CodeConflict        = xerrors.CodeConflict
	CodeUnavailable     = xerrors.CodeUnavailable
	CodeInternal        = xerrors.CodeInternal
)

func errorJSON(code, msg string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": msg}}
}

// writeError 按错误链映射状态码与错误码。
//
// 检索服务的 *breaker.Error 只在降级关闭时到达这里：暂时不可用映射为 503，其余映射为 502，
// 响应只带错误类别，下游的原始错误只写日志。
func (s *Server) writeError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	var cerr *breaker.Error
	if errors.As(err, &cerr) {
		status, msg := http.StatusBadGateway, "document service error"
		switch cerr.Kind {
		case breaker.KindAPIUnavailable, breaker.KindRateLimitExceeded, breaker.KindTimeout, breaker.KindNetworkError:
			status, msg = http.StatusServiceUnavailable, "document service temporarily unavailable"
		}
		s.logger.WarnContext(ctx, "vendor call failed",
			clog.String("path", c.FullPath()), clog.ErrorWithCode(err, cerr.Kind.String()))
		c.JSON(status, errorJSON(cerr.Kind.String(), msg))
		return
	}

	status := xerrors.HTTPStatus(err)
	code := xerrors.GetCode(err)
	msg := err.Error()
	if code == "" || status == http.StatusInternalServerError {
		code, msg = CodeInternal, "internal error"
	}
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(ctx, "request failed",
			clog.String("path", c.FullPath()), clog.ErrorWithCode(err, code))
	}
	c.JSON(status, errorJSON(code, msg))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorJSON(CodeInvalidArgument, err.Error()))
}
