package ratelimit

import (
	"time"

	"github.com/ceyewan/kmis/xerrors"
)

// 限流模式
const (
	ModeStandalone  = "standalone"
	ModeDistributed = "distributed"
)

// Config 限流配置
type Config struct {
	// Mode standalone | distributed，默认 standalone
	Mode string `mapstructure:"mode"`

	// Prefix 分布式模式下的 Redis Key 前缀（默认 "ratelimit:"）
	Prefix string `mapstructure:"prefix"`

	// CleanupInterval 单机模式清理空闲限流器的间隔（默认 1 分钟）
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`

	// IdleTimeout 单机模式限流器空闲超时（默认 5 分钟）
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = ModeStandalone
	}
	if c.Prefix == "" {
		c.Prefix = "ratelimit:"
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeStandalone, ModeDistributed:
		return nil
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "ratelimit: unknown mode %q", c.Mode)
	}
}
