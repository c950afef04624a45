package main

import (
	"context"
	"time"

	"github.com/ceyewan/kmis/auth"
	"github.com/ceyewan/kmis/breaker"
	"github.com/ceyewan/kmis/cache"
	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/config"
	"github.com/ceyewan/kmis/connector"
	"github.com/ceyewan/kmis/db"
	"github.com/ceyewan/kmis/dlock"
	"github.com/ceyewan/kmis/docai"
	"github.com/ceyewan/kmis/document"
	"github.com/ceyewan/kmis/idem"
	"github.com/ceyewan/kmis/metrics"
	"github.com/ceyewan/kmis/ratelimit"
	"github.com/ceyewan/kmis/trace"
	"github.com/ceyewan/kmis/xerrors"
)

// AppConfig 服务配置，对应 configs/config.yaml
type AppConfig struct {
	App       AppInfo                  `mapstructure:"app"`
	Log       clog.Config              `mapstructure:"log"`
	Metrics   metrics.Config           `mapstructure:"metrics"`
	Trace     trace.Config             `mapstructure:"trace"`
	Database  DatabaseConfig           `mapstructure:"database"`
	Redis     connector.RedisConfig    `mapstructure:"redis"`
	Cache     CacheConfig              `mapstructure:"cache"`
	Auth      auth.Config              `mapstructure:"auth"`
	DocAI     docai.Config             `mapstructure:"docai"`
	Breaker   breaker.Config           `mapstructure:"breaker"`
	RateLimit RateLimitConfig          `mapstructure:"ratelimit"`
	Document  document.Config          `mapstructure:"document"`
	Reprocess document.ReprocessConfig `mapstructure:"reprocess"`
	Lock      dlock.Config             `mapstructure:"lock"`
	Idem      IdemConfig               `mapstructure:"idempotency"`
}

// IdemConfig 创建文档接口的幂等保护
type IdemConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	idem.Config `mapstructure:",squash"`
}

// AppInfo 服务自身的配置
type AppInfo struct {
	Name            string        `mapstructure:"name"`
	Env             string        `mapstructure:"env"`
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 连接与 GORM 行为共用 database 段
type DatabaseConfig struct {
	connector.DatabaseConfig `mapstructure:",squash"`
	db.Config                `mapstructure:",squash"`
}

// CacheConfig 检索结果缓存，Enabled 为 false 时每次检索都访问检索服务
type CacheConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	cache.Config `mapstructure:",squash"`
}

// RateLimitConfig 限流后端与检索接口的规则
type RateLimitConfig struct {
	ratelimit.Config `mapstructure:",squash"`
	Search           ratelimit.Limit `mapstructure:"search"`
}

var defaults = map[string]any{
	"app.name":             "kmis",
	"app.env":              "dev",
	"app.addr":             ":8080",
	"app.shutdown_timeout": "10s",

	"log.level":  "info",
	"log.format": "json",
	"log.output": "stdout",

	"metrics.enabled":      true,
	"metrics.service_name": "kmis",
	"metrics.path":         "/metrics",

	"trace.enabled":      false,
	"trace.service_name": "kmis",
	"trace.sampler":      1.0,

	"database.driver":       connector.DriverSQLite,
	"database.sqlite.path":  "./data/kmis.db",
	"database.tracing":      true,
	"database.auto_migrate": true,

	"cache.enabled": true,
	"cache.mode":    cache.ModeStandalone,
	"cache.prefix":  "kmis:",

	"breaker.name":          "docai",
	"breaker.max_failures":  breaker.DefaultMaxFailures,
	"breaker.reset_timeout": breaker.DefaultResetTimeout.String(),
	"breaker.max_retries":   breaker.DefaultMaxRetries,
	"breaker.retry_delay":   breaker.DefaultRetryDelay.String(),
	"breaker.timeout":       breaker.DefaultTimeout.String(),

	"ratelimit.mode":         ratelimit.ModeStandalone,
	"ratelimit.search.rate":  5,
	"ratelimit.search.burst": 10,

	"reprocess.enabled": true,

	"lock.mode":   dlock.ModeStandalone,
	"lock.prefix": "kmis:lock:",

	"idempotency.enabled": true,
	"idempotency.mode":    idem.ModeStandalone,
	"idempotency.prefix":  "kmis:idem:",
}

// loadConfig 加载配置，返回的 Loader 用于监听热更新
func loadConfig(ctx context.Context, paths []string) (*AppConfig, config.Loader, error) {
	loader, err := config.New(&config.Config{Name: "config", Paths: paths, Defaults: defaults})
	if err != nil {
		return nil, nil, err
	}
	if err := loader.Load(ctx); err != nil {
		return nil, nil, xerrors.Wrap(err, "load config")
	}

	var cfg AppConfig
	if err := loader.Unmarshal(&cfg); err != nil {
		return nil, nil, xerrors.Wrap(err, "unmarshal config")
	}
	if cfg.Metrics.ServiceName == "" {
		cfg.Metrics.ServiceName = cfg.App.Name
	}
	if cfg.Trace.ServiceName == "" {
		cfg.Trace.ServiceName = cfg.App.Name
	}
	return &cfg, loader, nil
}
