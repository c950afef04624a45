package db

import (
	"time"

	"github.com/ceyewan/kmis/xerrors"
)

// Config DB 组件配置
//
//	database:
//	  slow_threshold: 200ms
//	  log_level: warn      # silent | error | warn | info
//	  tracing: true
//	  auto_migrate: true
type Config struct {
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
	LogLevel      string        `mapstructure:"log_level"`
	Tracing       bool          `mapstructure:"tracing"`
	AutoMigrate   bool          `mapstructure:"auto_migrate"`
}

func (c *Config) setDefaults() {
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = 200 * time.Millisecond
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "silent", "error", "warn", "info":
		return nil
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "db: unsupported log_level %q", c.LogLevel)
	}
}
