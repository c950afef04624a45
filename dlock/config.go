package dlock

import (
	"time"

	"github.com/ceyewan/kmis/xerrors"
)

// 锁模式
const (
	ModeStandalone  = "standalone"
	ModeDistributed = "distributed"
)

// Config 锁组件配置
//
//	lock:
//	  mode: distributed
//	  prefix: "kmis:lock:"
//	  default_ttl: 30s
type Config struct {
	// Mode standalone | distributed，默认 standalone
	Mode string `mapstructure:"mode"`

	// Prefix 锁 Key 前缀，默认 "dlock:"
	Prefix string `mapstructure:"prefix"`

	// DefaultTTL 锁超时时间，分布式模式下 watchdog 按 TTL/3 续期（默认 10s）
	DefaultTTL time.Duration `mapstructure:"default_ttl"`

	// RetryInterval Lock 的重试间隔（默认 100ms）
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = ModeStandalone
	}
	if c.Prefix == "" {
		c.Prefix = "dlock:"
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 10 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 100 * time.Millisecond
	}
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeStandalone, ModeDistributed:
		return nil
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "dlock: unknown mode %q", c.Mode)
	}
}
