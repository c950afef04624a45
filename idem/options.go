package idem

import (
	"github.com/gin-gonic/gin"

	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/connector"
)

// DefaultHeader 默认的幂等键请求头
const DefaultHeader = "Idempotency-Key"

// Option 组件初始化选项
type Option func(*options)

type options struct {
	logger    clog.Logger
	redisConn connector.RedisConnector
}

// WithLogger 设置 Logger，自动添加 "idem" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("idem")
		}
	}
}

// WithRedisConnector 设置 Redis 连接器（分布式模式必需）
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		o.redisConn = conn
	}
}

func applyOptions(opts []Option) *options {
	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MiddlewareOption 中间件选项
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	header string
	scope  func(c *gin.Context) string
}

// WithHeader 自定义幂等键请求头
func WithHeader(name string) MiddlewareOption {
	return func(o *middlewareOptions) {
		if name != "" {
			o.header = name
		}
	}
}

// WithScope 为幂等键加上调用方作用域，避免不同用户的键互相命中
func WithScope(fn func(c *gin.Context) string) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.scope = fn
	}
}
