package cache

import (
	"time"

	"github.com/ceyewan/kmis/xerrors"
)

// 缓存后端
const (
	ModeStandalone  = "standalone"
	ModeDistributed = "distributed"
)

// Config 缓存配置
//
//	cache:
//	  mode: standalone      # standalone | distributed（需要 redis）
//	  prefix: "kmis:"
//	  serializer: msgpack   # json | msgpack
//	  default_ttl: 5m
//	  capacity: 10000       # 仅 standalone
type Config struct {
	Mode       string        `mapstructure:"mode"`
	Prefix     string        `mapstructure:"prefix"`
	Serializer string        `mapstructure:"serializer"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	Capacity   int           `mapstructure:"capacity"`
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = ModeStandalone
	}
	if c.Serializer == "" {
		c.Serializer = "json"
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 5 * time.Minute
	}
	if c.Capacity <= 0 {
		c.Capacity = 10000
	}
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeStandalone, ModeDistributed:
		return nil
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "cache: unsupported mode %q", c.Mode)
	}
}
