package docai

import (
	"net/url"
	"time"

	"github.com/ceyewan/kmis/xerrors"
)

// Config 供应商客户端配置
//
//	docai:
//	  base_url: https://api.docai.example.com
//	  api_key: ${KMIS_DOCAI_API_KEY}
//	  timeout: 30s      # HTTP 客户端整体超时，单次尝试超时由 breaker 控制
//	  rate_limit: 10    # 每秒请求数，0 表示不限流
//	  burst: 20
type Config struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
	UserAgent string        `mapstructure:"user_agent"`
}

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "kmis-docai/1.0"
)

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.RateLimit > 0 && c.Burst <= 0 {
		c.Burst = max(1, int(c.RateLimit))
	}
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "docai: base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "docai: invalid base_url %q", c.BaseURL)
	}
	if c.RateLimit < 0 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "docai: rate_limit must be >= 0")
	}
	return nil
}
