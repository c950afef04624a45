// Package config 为 kmis 提供统一的配置加载能力，基于 Viper 实现。
//
// 加载优先级（高 -> 低）：
//
//	环境变量（KMIS_ 前缀，"." 替换为 "_"）> .env 文件 > config.<env>.yaml > config.yaml > Config.Defaults
//
// 其中 <env> 取自环境变量 KMIS_ENV。配置文件变化时通过 Watch 推送事件。
//
//	loader, _ := config.New(&config.Config{Name: "config", Paths: []string{"./configs"}})
//	if err := loader.Load(ctx); err != nil { ... }
//	var cfg AppConfig
//	_ = loader.Unmarshal(&cfg)
package config

import (
	"context"
	"time"
)

// Loader 配置加载器
type Loader interface {
	// Load 从所有来源加载配置并开始监听文件变化
	Load(ctx context.Context) error

	Get(key string) any
	Unmarshal(v any) error
	UnmarshalKey(key string, v any) error

	// Watch 监听指定 key 的变化，ctx 取消后通道关闭
	Watch(ctx context.Context, key string) (<-chan Event, error)

	Validate() error
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Source    string // "file"
	Timestamp time.Time
}
