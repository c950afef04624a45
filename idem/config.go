package idem

import (
	"time"

	"github.com/ceyewan/kmis/xerrors"
)

// 存储模式
const (
	ModeStandalone  = "standalone"
	ModeDistributed = "distributed"
)

// Config 幂等组件配置
type Config struct {
	// Mode standalone | distributed，默认 standalone
	Mode string `mapstructure:"mode"`

	// Prefix 存储键前缀，默认 "idem:"
	Prefix string `mapstructure:"prefix"`

	// DefaultTTL 响应缓存有效期，默认 24h。过期后同一个键会重新执行
	DefaultTTL time.Duration `mapstructure:"default_ttl"`

	// LockTTL 处理中标记的有效期，默认 30s，防止进程崩溃后键永久占用
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = ModeStandalone
	}
	if c.Prefix == "" {
		c.Prefix = "idem:"
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 24 * time.Hour
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeStandalone, ModeDistributed:
		return nil
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "idem: unknown mode %q", c.Mode)
	}
}
