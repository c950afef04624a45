package testkit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ceyewan/kmis/connector"
	"github.com/stretchr/testify/require"
)

// RedisAddrEnv 指定测试 Redis 地址的环境变量，未设置时相关测试跳过
const RedisAddrEnv = "KMIS_TEST_REDIS_ADDR"

// GetRedisConfig 返回 Redis 测试配置，未设置 KMIS_TEST_REDIS_ADDR 时跳过测试
func GetRedisConfig(t *testing.T) *connector.RedisConfig {
	t.Helper()
	addr := os.Getenv(RedisAddrEnv)
	if addr == "" {
		t.Skipf("%s not set", RedisAddrEnv)
	}
	return &connector.RedisConfig{
		Name:         "test-redis",
		Addr:         addr,
		DB:           1, // 避开默认的 DB 0
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// GetRedisConnector 获取已连接的 Redis 连接器
func GetRedisConnector(t *testing.T) connector.RedisConnector {
	t.Helper()
	conn, err := connector.NewRedis(GetRedisConfig(t), connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create redis connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to redis")

	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
