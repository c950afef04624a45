package idem

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/xerrors"
)

// ReplayedHeader 回放的响应带有该响应头
const ReplayedHeader = "Idempotent-Replayed"

// GinMiddleware 创建 Gin 幂等中间件，未携带幂等键的请求直接放行
func (i *idem) GinMiddleware(opts ...MiddlewareOption) gin.HandlerFunc {
	opt := middlewareOptions{header: DefaultHeader}
	for _, o := range opts {
		o(&opt)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(opt.header)
		if key == "" {
			c.Next()
			return
		}
		if opt.scope != nil {
			key = opt.scope(c) + ":" + key
		}
		ctx := c.Request.Context()

		if i.replayCached(c, key) {
			return
		}

		token, locked, err := i.store.Lock(ctx, key, i.cfg.LockTTL)
		if err != nil {
			i.logger.ErrorContext(ctx, "acquire idempotency lock failed", clog.String("key", key), clog.Error(err))
			abort(c, http.StatusInternalServerError, xerrors.CodeInternal, "internal error")
			return
		}
		if !locked {
			abort(c, http.StatusConflict, xerrors.CodeConflict, "a request with the same idempotency key is in progress")
			return
		}

		// 写存储时不再受客户端断开影响
		storeCtx := context.WithoutCancel(ctx)
		lockReleased := false
		defer func() {
			if lockReleased {
				return
			}
			if err := i.store.Unlock(storeCtx, key, token); err != nil {
				i.logger.WarnContext(ctx, "release idempotency lock failed", clog.String("key", key), clog.Error(err))
			}
		}()

		// 读结果与加锁之间另一个请求可能已经完成
		if i.replayCached(c, key) {
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status < 200 || status >= 300 {
			return
		}

		resp := cachedResponse{Status: status, Header: w.Header().Clone(), Body: w.body.Bytes()}
		resp.Header.Del("Content-Length")
		b, err := json.Marshal(resp)
		if err == nil {
			err = i.store.SetResult(storeCtx, key, b, i.cfg.DefaultTTL, token)
		}
		if err != nil {
			i.logger.ErrorContext(ctx, "save idempotent response failed", clog.String("key", key), clog.Error(err))
			return
		}
		lockReleased = true
	}
}

// replayCached 命中已完成的结果时写回响应并中止后续处理，返回 true 表示请求已结束
func (i *idem) replayCached(c *gin.Context, key string) bool {
	ctx := c.Request.Context()
	cached, err := i.store.GetResult(ctx, key)
	switch {
	case err == nil:
		if replay(c, cached) {
			i.logger.DebugContext(ctx, "idempotent response replayed", clog.String("key", key))
			c.Abort()
			return true
		}
		i.logger.ErrorContext(ctx, "corrupted idempotent response", clog.String("key", key))
		abort(c, http.StatusInternalServerError, xerrors.CodeInternal, "internal error")
		return true
	case errors.Is(err, ErrResultNotFound):
		return false
	default:
		i.logger.ErrorContext(ctx, "read idempotent result failed", clog.String("key", key), clog.Error(err))
		abort(c, http.StatusInternalServerError, xerrors.CodeInternal, "internal error")
		return true
	}
}

type cachedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

func replay(c *gin.Context, raw []byte) bool {
	var resp cachedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false
	}
	h := c.Writer.Header()
	for name, values := range resp.Header {
		for _, v := range values {
			h.Add(name, v)
		}
	}
	h.Set(ReplayedHeader, "true")
	c.Status(resp.Status)
	_, _ = c.Writer.Write(resp.Body)
	return true
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": msg}})
}

// captureWriter 记录响应体，供成功后缓存
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
