// Command kmis-server 运行知识库文档服务。
//
// 配置按 config 包的优先级加载：环境变量（KMIS_ 前缀）> .env > config.<KMIS_ENV>.yaml > config.yaml。
//
//	KMIS_AUTH_SECRET_KEY=... KMIS_DOCAI_API_KEY=... kmis-server -config ./configs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/ceyewan/kmis/api"
	"github.com/ceyewan/kmis/auth"
	"github.com/ceyewan/kmis/breaker"
	"github.com/ceyewan/kmis/cache"
	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/config"
	"github.com/ceyewan/kmis/connector"
	"github.com/ceyewan/kmis/db"
	"github.com/ceyewan/kmis/dlock"
	"github.com/ceyewan/kmis/docai"
	"github.com/ceyewan/kmis/document"
	"github.com/ceyewan/kmis/idem"
	"github.com/ceyewan/kmis/metrics"
	"github.com/ceyewan/kmis/ratelimit"
	"github.com/ceyewan/kmis/trace"
	"github.com/ceyewan/kmis/xerrors"
)

func main() {
	configDir := flag.String("config", "./configs", "directory containing config.yaml")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, []string{*configDir, "."}); err != nil {
		fmt.Fprintf(os.Stderr, "kmis-server: %v\n", err)
		os.Exit(1)
	}
}

// closer 按创建的逆序释放
type closers []func(context.Context) error

func (c *closers) add(fn func(context.Context) error) {
	*c = append(*c, fn)
}

func (c closers) close(ctx context.Context) error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return xerrors.Combine(errs...)
}

func run(ctx context.Context, configPaths []string) (err error) {
	cfg, loader, err := loadConfig(ctx, configPaths)
	if err != nil {
		return err
	}

	logger, err := clog.New(&cfg.Log, clog.WithNamespace(cfg.App.Name), clog.WithStandardContext(), clog.WithTraceContext())
	if err != nil {
		return xerrors.Wrap(err, "init logger")
	}
	defer logger.Flush()

	var cleanup closers
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.ShutdownTimeout)
		defer cancel()
		if cerr := cleanup.close(shutdownCtx); cerr != nil {
			logger.Error("shutdown finished with errors", clog.Error(cerr))
			err = errors.Join(err, cerr)
		}
	}()

	// 后台任务先于连接器退出
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	traceShutdown, err := trace.Init(&cfg.Trace)
	if err != nil {
		return xerrors.Wrap(err, "init trace")
	}
	cleanup.add(traceShutdown)

	meter, err := metrics.New(&cfg.Metrics, metrics.WithLogger(logger))
	if err != nil {
		return xerrors.Wrap(err, "init metrics")
	}
	cleanup.add(meter.Shutdown)

	go watchLogLevel(ctx, loader, logger)

	// 连接器
	tp := otel.GetTracerProvider()
	dbConn, err := connector.NewDatabase(&cfg.Database.DatabaseConfig, connector.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := dbConn.Connect(ctx); err != nil {
		return err
	}
	cleanup.add(func(context.Context) error { return dbConn.Close() })

	var redisConn connector.RedisConnector
	if cfg.Redis.Addr != "" {
		redisConn, err = connector.NewRedis(&cfg.Redis, connector.WithLogger(logger), connector.WithInstrumentation(tp))
		if err != nil {
			return err
		}
		if err := redisConn.Connect(ctx); err != nil {
			return err
		}
		cleanup.add(func(context.Context) error { return redisConn.Close() })
	}

	// 组件
	database, err := db.New(dbConn, &cfg.Database.Config, db.WithLogger(logger), db.WithTracerProvider(tp))
	if err != nil {
		return err
	}
	if cfg.Database.AutoMigrate {
		if err := document.Migrate(ctx, database); err != nil {
			return xerrors.Wrap(err, "migrate")
		}
	}

	docOpts := []document.Option{document.WithLogger(logger), document.WithMeter(meter)}
	if cfg.Cache.Enabled {
		cacheOpts := []cache.Option{cache.WithLogger(logger), cache.WithMeter(meter)}
		if redisConn != nil {
			cacheOpts = append(cacheOpts, cache.WithRedisConnector(redisConn))
		}
		c, err := cache.New(&cfg.Cache.Config, cacheOpts...)
		if err != nil {
			return err
		}
		cleanup.add(func(context.Context) error { return c.Close() })
		docOpts = append(docOpts, document.WithCache(c))
	}

	vendor, err := docai.New(&cfg.DocAI, docai.WithLogger(logger))
	if err != nil {
		return err
	}
	guard, err := breaker.New(&cfg.Breaker,
		breaker.WithLogger(logger), breaker.WithMeter(meter), breaker.WithTracerProvider(tp))
	if err != nil {
		return err
	}

	svc, err := document.NewService(document.NewRepository(database), vendor, guard, &cfg.Document, docOpts...)
	if err != nil {
		return err
	}
	lockOpts := []dlock.Option{dlock.WithLogger(logger)}
	if redisConn != nil {
		lockOpts = append(lockOpts, dlock.WithRedisConnector(redisConn))
	}
	locker, err := dlock.New(&cfg.Lock, lockOpts...)
	if err != nil {
		return err
	}
	cleanup.add(func(context.Context) error { return locker.Close() })
	reprocessor := document.NewReprocessor(svc, &cfg.Reprocess, document.WithLocker(locker))

	authn, err := auth.New(&cfg.Auth, auth.WithLogger(logger), auth.WithMeter(meter))
	if err != nil {
		return xerrors.Wrap(err, "init auth")
	}

	limiterOpts := []ratelimit.Option{ratelimit.WithLogger(logger), ratelimit.WithMeter(meter)}
	if redisConn != nil {
		limiterOpts = append(limiterOpts, ratelimit.WithRedisConnector(redisConn))
	}
	limiter, err := ratelimit.New(&cfg.RateLimit.Config, limiterOpts...)
	if err != nil {
		return err
	}
	cleanup.add(func(context.Context) error { return limiter.Close() })

	apiOpts := []api.Option{
		api.WithLogger(logger),
		api.WithMeter(meter),
		api.WithSearchLimit(limiter, cfg.RateLimit.Search),
		api.WithReprocessor(reprocessor),
		api.WithHealthCheck("database", dbConn.HealthCheck),
	}
	if cfg.Idem.Enabled {
		idemOpts := []idem.Option{idem.WithLogger(logger)}
		if redisConn != nil {
			idemOpts = append(idemOpts, idem.WithRedisConnector(redisConn))
		}
		idemGuard, err := idem.New(&cfg.Idem.Config, idemOpts...)
		if err != nil {
			return err
		}
		apiOpts = append(apiOpts, api.WithIdempotency(idemGuard))
	}
	if cfg.Trace.Enabled {
		apiOpts = append(apiOpts, api.WithTracing(cfg.Trace.ServiceName))
	}
	if redisConn != nil {
		apiOpts = append(apiOpts, api.WithHealthCheck("redis", redisConn.HealthCheck))
	}
	server, err := api.New(svc, authn, apiOpts...)
	if err != nil {
		return err
	}

	handler := server.Handler()
	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, meter.Handler())
		mux.Handle("/", handler)
		handler = mux
	}

	// 后台任务
	if cfg.Reprocess.Enabled {
		go reprocessor.Run(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.App.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	cleanup.add(srv.Shutdown)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", clog.String("addr", cfg.App.Addr), clog.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errCh:
		return xerrors.Wrap(err, "http server")
	}
}

// watchLogLevel 配置文件中的 log.level 变化时调整日志级别
func watchLogLevel(ctx context.Context, loader config.Loader, logger clog.Logger) {
	events, err := loader.Watch(ctx, "log.level")
	if err != nil {
		logger.Warn("watch log level failed", clog.Error(err))
		return
	}
	for ev := range events {
		s, _ := ev.Value.(string)
		level, err := clog.ParseLevel(s)
		if err != nil {
			logger.Warn("ignoring invalid log level", clog.String("value", s))
			continue
		}
		if err := logger.SetLevel(level); err != nil {
			logger.Warn("set log level failed", clog.Error(err))
			continue
		}
		logger.Info("log level changed", clog.String("level", level.String()))
	}
}
