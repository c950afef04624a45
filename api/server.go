// Package api 提供 kmis 的 HTTP 接口。
//
// 所有 /api/v1 路由都要求 JWT，调用者身份由 Claims 转换为 document.Actor：
//
//	POST   /api/v1/documents              (Idempotency-Key 可选)
//	GET    /api/v1/documents?unit_id=&owner_id=&status=&tag=&page=&page_size=
//	GET    /api/v1/documents/:id
//	PUT    /api/v1/documents/:id
//	DELETE /api/v1/documents/:id
//	POST   /api/v1/documents/:id/reindex
//	GET    /api/v1/search?q=&top_k=
//	GET    /api/v1/system/vendor          (admin)
//	POST   /api/v1/system/vendor/reset    (admin)
//	POST   /api/v1/system/reprocess       (admin)
//	GET    /healthz
//
// 检索服务降级时 /search 仍返回 200，响应中 degraded 为 true。
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/kmis/auth"
	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/document"
	"github.com/ceyewan/kmis/idem"
	"github.com/ceyewan/kmis/metrics"
	"github.com/ceyewan/kmis/ratelimit"
	"github.com/ceyewan/kmis/trace"
	"github.com/ceyewan/kmis/xerrors"
)

// Server HTTP 接口
type Server struct {
	svc         *document.Service
	authn       auth.Authenticator
	logger      clog.Logger
	httpMetrics *metrics.HTTPServerMetrics
	opts        *options
}

// New 创建 HTTP 接口
func New(svc *document.Service, authn auth.Authenticator, opts ...Option) (*Server, error) {
	if svc == nil || authn == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "api: service and authenticator are required")
	}
	o := &options{
		logger:      clog.Discard(),
		serviceName: "kmis",
		checks:      make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(o)
	}

	s := &Server{svc: svc, authn: authn, logger: o.logger, opts: o}
	if o.meter != nil {
		m, err := metrics.NewHTTPServerMetrics(o.meter, o.serviceName)
		if err != nil {
			return nil, err
		}
		s.httpMetrics = m
	}
	return s, nil
}

// Handler 构建 gin 路由
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestID())
	if s.opts.tracing {
		r.Use(trace.GinMiddleware(s.opts.serviceName))
	}
	r.Use(metrics.GinHTTPMiddleware(s.httpMetrics))

	r.GET("/healthz", s.healthz)

	v1 := r.Group("/api/v1", s.authn.GinMiddleware(), contextUser())

	docs := v1.Group("/documents")
	create := []gin.HandlerFunc{}
	if s.opts.idempotency != nil {
		create = append(create, s.opts.idempotency.GinMiddleware(idem.WithScope(userKey)))
	}
	docs.POST("", append(create, s.createDocument)...)
	docs.GET("", s.listDocuments)
	docs.GET("/:id", s.getDocument)
	docs.PUT("/:id", s.updateDocument)
	docs.DELETE("/:id", s.deleteDocument)
	docs.POST("/:id/reindex", s.reindexDocument)

	search := []gin.HandlerFunc{}
	if s.opts.limiter != nil {
		search = append(search, ratelimit.GinMiddleware(s.opts.limiter, userKey, ratelimit.Fixed(s.opts.searchLimit)))
	}
	v1.GET("/search", append(search, s.search)...)

	system := v1.Group("/system", auth.RequireRoles(document.RoleAdmin))
	system.GET("/vendor", s.vendorStatus)
	system.POST("/vendor/reset", s.resetVendor)
	if s.opts.reprocessor != nil {
		system.POST("/reprocess", s.reprocess)
	}
	return r
}

// actor 由认证中间件写入的 Claims 构造
func actor(c *gin.Context) document.Actor {
	claims, ok := auth.GetClaims(c)
	if !ok {
		return document.Actor{}
	}
	return document.Actor{UserID: claims.Subject, UnitID: claims.UnitID, Roles: claims.Roles}
}

// userKey 检索限流按用户计数，未认证时退回客户端 IP
func userKey(c *gin.Context) string {
	if claims, ok := auth.GetClaims(c); ok && claims.Subject != "" {
		return "user:" + claims.Subject
	}
	return ratelimit.ClientIP(c)
}

func (s *Server) healthz(c *gin.Context) {
	checks := make(gin.H, len(s.opts.checks))
	status := http.StatusOK
	for name, check := range s.opts.checks {
		if err := check(c.Request.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	// 检索服务熔断不影响存活，只作为信息返回
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks, "vendor": s.svc.VendorStatus().State})
}
