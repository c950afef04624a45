// Package connector 管理 kmis 依赖的外部连接：关系数据库（SQLite、MySQL）与 Redis。
//
// 连接器只负责连接的生命周期与健康检查，业务组件（db、cache）借用连接器的客户端，
// 不调用 Close()。应用层按 LIFO 顺序释放：先关闭组件，再关闭连接器。
//
//	conn, err := connector.NewSQLite(&cfg.Database.SQLite, connector.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	if err := conn.Connect(ctx); err != nil { // 幂等
//		return err
//	}
//	gormDB := conn.GetClient()
package connector

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Connector 所有连接器的通用行为，方法并发安全
type Connector interface {
	// Connect 建立连接，幂等
	Connect(ctx context.Context) error
	// Close 关闭连接，幂等；关闭后 GetClient 返回 nil
	Close() error
	// HealthCheck 发送探测请求并更新缓存的健康状态
	HealthCheck(ctx context.Context) error
	// IsHealthy 返回最后一次检查的结果，不阻塞
	IsHealthy() bool
	// Name 连接实例名称，用于日志
	Name() string
}

// TypedConnector 提供类型安全的客户端访问
type TypedConnector[T any] interface {
	Connector
	// GetClient 在 Connect 之前或 Close 之后返回零值
	GetClient() T
}

// RedisConnector Redis 连接器
type RedisConnector interface {
	TypedConnector[*redis.Client]
}

// DatabaseConnector 基于 GORM 的关系数据库连接器
type DatabaseConnector interface {
	TypedConnector[*gorm.DB]
	// Driver 返回 "sqlite" 或 "mysql"
	Driver() string
}
