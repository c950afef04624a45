package api

import (
	"github.com/gin-gonic/gin"

	"github.com/ceyewan/kmis/auth"
	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/idgen"
)

// RequestIDHeader 请求 ID 的请求头与响应头
const RequestIDHeader = "X-Request-ID"

// requestID 沿用调用方的请求 ID，没有时生成一个，并写入 Context 供日志提取
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = idgen.NewUUIDV7()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(clog.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// contextUser 在认证之后把用户 ID 写入 Context
func contextUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := auth.GetClaims(c); ok {
			c.Request = c.Request.WithContext(clog.ContextWithUserID(c.Request.Context(), claims.Subject))
		}
		c.Next()
	}
}
