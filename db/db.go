// Package db 在数据库连接器之上提供 GORM 封装：clog 日志适配、otelgorm 追踪、
// 事务与自动迁移。
//
// db 借用连接器的连接，不负责其生命周期：
//
//	conn, _ := connector.NewDatabase(&cfg.Database.Connection, connector.WithLogger(logger))
//	defer conn.Close()
//	_ = conn.Connect(ctx)
//
//	database, _ := db.New(conn, &cfg.Database.Options, db.WithLogger(logger))
//	_ = database.AutoMigrate(ctx, &document.Document{})
//
//	err := database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
//		return tx.Create(&doc).Error
//	})
package db

import (
	"context"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/gorm"

	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/connector"
	"github.com/ceyewan/kmis/xerrors"
)

// DB 数据库组件
type DB interface {
	// DB 返回绑定 ctx 的 *gorm.DB，业务查询直接使用
	DB(ctx context.Context) *gorm.DB
	// Transaction 执行事务，tx 仅在 fn 内有效
	Transaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error
	// AutoMigrate 按模型创建或更新表结构
	AutoMigrate(ctx context.Context, models ...any) error
	// Driver 返回底层驱动名
	Driver() string
}

type database struct {
	client *gorm.DB
	driver string
	logger clog.Logger
}

// New 创建数据库组件，conn 必须已经 Connect
func New(conn connector.DatabaseConnector, cfg *Config, opts ...Option) (DB, error) {
	if conn == nil || conn.GetClient() == nil {
		return nil, ErrConnectorNil
	}
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	client := conn.GetClient().Session(&gorm.Session{
		Logger: newGormLogger(o.logger, c.LogLevel, c.SlowThreshold),
	})

	if c.Tracing {
		pluginOpts := []otelgorm.Option{otelgorm.WithDBName(conn.Name()), otelgorm.WithoutQueryVariables()}
		if o.tracerProvider != nil {
			pluginOpts = append(pluginOpts, otelgorm.WithTracerProvider(o.tracerProvider))
		}
		if err := client.Use(otelgorm.NewPlugin(pluginOpts...)); err != nil {
			return nil, xerrors.Wrap(err, "db: register otelgorm plugin")
		}
	}

	o.logger.Info("database ready",
		clog.String("driver", conn.Driver()),
		clog.String("log_level", c.LogLevel),
		clog.Bool("tracing", c.Tracing))

	return &database{client: client, driver: conn.Driver(), logger: o.logger}, nil
}

func (d *database) DB(ctx context.Context) *gorm.DB {
	return d.client.WithContext(ctx)
}

func (d *database) Transaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	return d.client.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx)
	})
}

func (d *database) AutoMigrate(ctx context.Context, models ...any) error {
	if err := d.client.WithContext(ctx).AutoMigrate(models...); err != nil {
		d.logger.ErrorContext(ctx, "auto migrate failed", clog.Error(err))
		return xerrors.Wrap(err, "db: auto migrate")
	}
	return nil
}

func (d *database) Driver() string {
	return d.driver
}
