package testkit

import (
	"context"
	"testing"

	"github.com/ceyewan/kmis/connector"
	"github.com/stretchr/testify/require"
)

// NewSQLiteConfig 返回独立命名的内存 SQLite 配置。
// 同一测试内的多个连接共享数据，不同测试之间互相隔离
func NewSQLiteConfig(t *testing.T) *connector.SQLiteConfig {
	t.Helper()
	return &connector.SQLiteConfig{
		Name: "test-sqlite",
		Path: "file:kmis_" + NewID() + "?mode=memory&cache=shared",
	}
}

// NewSQLiteConnector 获取已连接的内存 SQLite 连接器，生命周期由 t.Cleanup 管理
func NewSQLiteConnector(t *testing.T) connector.DatabaseConnector {
	t.Helper()
	conn, err := connector.NewSQLite(NewSQLiteConfig(t), connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create sqlite connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to sqlite")

	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// NewPersistentSQLiteConnector 获取文件型 SQLite 连接器，文件位于 t.TempDir()
func NewPersistentSQLiteConnector(t *testing.T) connector.DatabaseConnector {
	t.Helper()
	conn, err := connector.NewSQLite(&connector.SQLiteConfig{
		Name: "test-sqlite",
		Path: t.TempDir() + "/kmis.db",
	}, connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create sqlite connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to sqlite")

	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
