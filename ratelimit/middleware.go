package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// KeyFunc 从请求中提取限流键，返回空串表示不限流
type KeyFunc func(*gin.Context) string

// LimitFunc 返回当前请求适用的限流规则
type LimitFunc func(*gin.Context) Limit

// ClientIP 以客户端 IP 作为限流键
func ClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// Fixed 对所有请求使用同一规则
func Fixed(limit Limit) LimitFunc {
	return func(*gin.Context) Limit { return limit }
}

// GinMiddleware 创建 Gin 限流中间件。
//
// keyFunc 为 nil 时使用客户端 IP。被限流时返回 429，
// 限流器出错时放行，避免限流组件故障影响业务。
func GinMiddleware(limiter Limiter, keyFunc KeyFunc, limitFunc LimitFunc) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = ClientIP
	}

	return func(c *gin.Context) {
		key := keyFunc(c)
		limit := limitFunc(c)
		if key == "" || !limit.Valid() {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatFloat(limit.Rate, 'f', -1, 64))

		allowed, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			c.Next()
			return
		}
		if !allowed {
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{"code": "rate_limited", "message": "rate limit exceeded"},
			})
			return
		}

		c.Next()
	}
}
