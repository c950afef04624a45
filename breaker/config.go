package breaker

import (
	"fmt"
	"time"
)

// Config Guard 配置，零值字段在 validate 中补默认值
//
//	breaker:
//	  name: docai
//	  max_failures: 5       # 连续瞬时失败达到该值后熔断
//	  reset_timeout: 60s    # 熔断后多久放行试探
//	  max_retries: 3        # 单次调用的重试次数，总尝试数为 max_retries+1
//	  retry_delay: 1s       # 第 i 次重试前等待 retry_delay * 2^i
//	  timeout: 30s          # 单次尝试超时，0 表示不限制
//	  disable_fallback: false
type Config struct {
	Name            string        `mapstructure:"name"`
	MaxFailures     int           `mapstructure:"max_failures"`
	ResetTimeout    time.Duration `mapstructure:"reset_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	Timeout         time.Duration `mapstructure:"timeout"`
	DisableFallback bool          `mapstructure:"disable_fallback"`
}

// 默认策略
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 60 * time.Second
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = time.Second
	DefaultTimeout      = 30 * time.Second
)

// DefaultConfig 返回带全部默认值的配置
func DefaultConfig(name string) *Config {
	return &Config{
		Name:         name,
		MaxFailures:  DefaultMaxFailures,
		ResetTimeout: DefaultResetTimeout,
		MaxRetries:   DefaultMaxRetries,
		RetryDelay:   DefaultRetryDelay,
		Timeout:      DefaultTimeout,
	}
}

// validate 只为熔断阈值补默认值；重试相关字段的 0 是合法取值
func (c *Config) validate() error {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = DefaultMaxFailures
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("breaker: max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("breaker: retry_delay must be >= 0, got %s", c.RetryDelay)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("breaker: timeout must be >= 0, got %s", c.Timeout)
	}
	return nil
}
