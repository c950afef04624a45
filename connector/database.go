package connector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/xerrors"
)

// gormConnector 是 SQLite 与 MySQL 共用的实现，Connect 时才打开连接
type gormConnector struct {
	name      string
	driver    string
	dialector func() gorm.Dialector
	pool      func(db *gorm.DB) error
	logger    clog.Logger

	mu      sync.RWMutex
	db      *gorm.DB
	healthy atomic.Bool
}

// NewDatabase 按 cfg.Driver 创建 SQLite 或 MySQL 连接器
func NewDatabase(cfg *DatabaseConfig, opts ...Option) (DatabaseConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "database config is nil")
	}
	switch cfg.Driver {
	case "", DriverSQLite:
		return NewSQLite(&cfg.SQLite, opts...)
	case DriverMySQL:
		return NewMySQL(&cfg.MySQL, opts...)
	default:
		return nil, xerrors.Wrapf(ErrConfig, "unsupported driver %q", cfg.Driver)
	}
}

// NewSQLite 创建 SQLite 连接器
func NewSQLite(cfg *SQLiteConfig, opts ...Option) (DatabaseConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "sqlite config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	path, maxOpen := cfg.Path, cfg.MaxOpenConns

	return &gormConnector{
		name:      cfg.Name,
		driver:    DriverSQLite,
		dialector: func() gorm.Dialector { return sqlite.Open(path) },
		pool: func(db *gorm.DB) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			sqlDB.SetMaxOpenConns(maxOpen)
			return nil
		},
		logger: o.logger.With(clog.String("connector", DriverSQLite), clog.String("name", cfg.Name)),
	}, nil
}

// NewMySQL 创建 MySQL 连接器
func NewMySQL(cfg *MySQLConfig, opts ...Option) (DatabaseConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "mysql config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)

	dsn := cfg.DSN
	if dsn == "" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.Charset)
	}
	c := *cfg

	return &gormConnector{
		name:      cfg.Name,
		driver:    DriverMySQL,
		dialector: func() gorm.Dialector { return mysql.Open(dsn) },
		pool: func(db *gorm.DB) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			sqlDB.SetMaxIdleConns(c.MaxIdleConns)
			sqlDB.SetMaxOpenConns(c.MaxOpenConns)
			sqlDB.SetConnMaxLifetime(c.ConnMaxLifetime)
			return nil
		},
		logger: o.logger.With(clog.String("connector", DriverMySQL), clog.String("name", cfg.Name)),
	}, nil
}

func (c *gormConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}

	c.logger.Info("connecting")
	start := time.Now()

	// SQL 日志由 db 组件接管
	db, err := gorm.Open(c.dialector(), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		c.logger.Error("failed to open database", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: %v", c.driver, c.name, err)
	}
	if err := c.pool(db); err != nil {
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: %v", c.driver, c.name, err)
	}

	sqlDB, _ := db.DB()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		c.logger.Error("failed to ping database", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: ping: %v", c.driver, c.name, err)
	}

	c.db = db
	c.healthy.Store(true)
	c.logger.Info("connected", clog.Duration("duration", time.Since(start)))
	return nil
}

func (c *gormConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.db == nil {
		return nil
	}

	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		c.logger.Error("failed to close database", clog.Error(err))
		return err
	}
	c.db = nil
	c.logger.Info("connection closed")
	return nil
}

func (c *gormConnector) HealthCheck(ctx context.Context) error {
	db := c.GetClient()
	if db == nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrClientNil, "%s connector[%s]", c.driver, c.name)
	}

	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "%s connector[%s]: %v", c.driver, c.name, err)
	}

	c.healthy.Store(true)
	return nil
}

func (c *gormConnector) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *gormConnector) Name() string {
	return c.name
}

func (c *gormConnector) Driver() string {
	return c.driver
}

func (c *gormConnector) GetClient() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}
