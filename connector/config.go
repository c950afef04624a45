package connector

import (
	"time"

	"github.com/ceyewan/kmis/xerrors"
)

// 支持的数据库驱动
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// DatabaseConfig 按 Driver 选择 SQLite 或 MySQL
//
//	database:
//	  driver: sqlite
//	  sqlite:
//	    path: ./data/kmis.db
//	  mysql:
//	    host: 127.0.0.1
//	    username: kmis
//	    database: kmis
type DatabaseConfig struct {
	Driver string       `mapstructure:"driver"` // 默认: sqlite
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
}

// SQLiteConfig SQLite 连接配置
type SQLiteConfig struct {
	Name         string `mapstructure:"name"`           // 默认: "default"
	Path         string `mapstructure:"path"`           // [必填] 文件路径或 file::memory: 形式的 DSN
	MaxOpenConns int    `mapstructure:"max_open_conns"` // 默认: 1，SQLite 只允许单写
}

func (c *SQLiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 1
	}
}

func (c *SQLiteConfig) validate() error {
	c.setDefaults()
	if c.Path == "" {
		return xerrors.Wrap(ErrConfig, "sqlite path is empty")
	}
	return nil
}

// MySQLConfig MySQL 连接配置
type MySQLConfig struct {
	Name string `mapstructure:"name"` // 默认: "default"

	DSN      string `mapstructure:"dsn"` // 完整 DSN，提供时忽略 Host/Port 等字段
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"` // 默认: 3306
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Charset  string `mapstructure:"charset"` // 默认: utf8mb4

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 默认: 10
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 默认: 100
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 默认: 1h
}

func (c *MySQLConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Port == 0 {
		c.Port = 3306
	}
	if c.Charset == "" {
		c.Charset = "utf8mb4"
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 100
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
}

func (c *MySQLConfig) validate() error {
	c.setDefaults()
	if c.DSN != "" {
		return nil
	}
	switch {
	case c.Host == "":
		return xerrors.Wrap(ErrConfig, "mysql host is empty")
	case c.Port <= 0:
		return xerrors.Wrap(ErrConfig, "mysql port must be > 0")
	case c.Username == "":
		return xerrors.Wrap(ErrConfig, "mysql username is empty")
	case c.Database == "":
		return xerrors.Wrap(ErrConfig, "mysql database is empty")
	}
	return nil
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Name     string `mapstructure:"name"` // 默认: "default"
	Addr     string `mapstructure:"addr"` // [必填] 如 "127.0.0.1:6379"
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	PoolSize     int           `mapstructure:"pool_size"`      // 默认: 10
	MinIdleConns int           `mapstructure:"min_idle_conns"` // 默认: 0
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`   // 默认: 5s
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`   // 默认: 3s
	WriteTimeout time.Duration `mapstructure:"write_timeout"`  // 默认: 3s
}

func (c *RedisConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

func (c *RedisConfig) validate() error {
	c.setDefaults()
	if c.Addr == "" {
		return xerrors.Wrap(ErrConfig, "redis addr is empty")
	}
	if c.DB < 0 {
		return xerrors.Wrap(ErrConfig, "redis db must be >= 0")
	}
	return nil
}
