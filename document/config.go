package document

import (
	"time"

	"github.com/ceyewan/kmis/xerrors"
)

// Config 文档服务配置
//
//	document:
//	  default_page_size: 20
//	  max_page_size: 100
//	  search_top_k: 10
//	  max_search_top_k: 50
//	  search_cache_ttl: 2m
//	  max_content_bytes: 1048576
type Config struct {
	DefaultPageSize int           `mapstructure:"default_page_size"`
	MaxPageSize     int           `mapstructure:"max_page_size"`
	SearchTopK      int           `mapstructure:"search_top_k"`
	MaxSearchTopK   int           `mapstructure:"max_search_top_k"`
	SearchCacheTTL  time.Duration `mapstructure:"search_cache_ttl"`
	MaxContentBytes int           `mapstructure:"max_content_bytes"`
}

func (c *Config) setDefaults() {
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = 20
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = 100
	}
	if c.SearchTopK <= 0 {
		c.SearchTopK = 10
	}
	if c.MaxSearchTopK <= 0 {
		c.MaxSearchTopK = 50
	}
	if c.SearchCacheTTL <= 0 {
		c.SearchCacheTTL = 2 * time.Minute
	}
	if c.MaxContentBytes <= 0 {
		c.MaxContentBytes = 1 << 20
	}
}

func (c *Config) validate() error {
	if c.DefaultPageSize > c.MaxPageSize {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "document: default_page_size exceeds max_page_size")
	}
	if c.SearchTopK > c.MaxSearchTopK {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "document: search_top_k exceeds max_search_top_k")
	}
	return nil
}

// ReprocessConfig 后台重新提交任务配置
//
//	reprocess:
//	  enabled: true
//	  interval: 1m
//	  batch_size: 20
//	  max_attempts: 5
type ReprocessConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

func (c *ReprocessConfig) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
}
