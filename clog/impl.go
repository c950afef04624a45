package clog

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"
)

type loggerImpl struct {
	handler  slog.Handler
	levelVar *slog.LevelVar
	options  *options
	attrs    []slog.Attr
}

func newLogger(config *Config, options *options) (Logger, error) {
	level, _ := ParseLevel(config.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level.slogLevel())

	handler, err := newHandler(config, options, levelVar)
	if err != nil {
		return nil, err
	}

	return &loggerImpl{
		handler:  handler,
		levelVar: levelVar,
		options:  options,
	}, nil
}

func (l *loggerImpl) Debug(msg string, fields ...Field) {
	l.log(context.Background(), DebugLevel, msg, fields)
}

func (l *loggerImpl) Info(msg string, fields ...Field) {
	l.log(context.Background(), InfoLevel, msg, fields)
}

func (l *loggerImpl) Warn(msg string, fields ...Field) {
	l.log(context.Background(), WarnLevel, msg, fields)
}

func (l *loggerImpl) Error(msg string, fields ...Field) {
	l.log(context.Background(), ErrorLevel, msg, fields)
}

func (l *loggerImpl) Fatal(msg string, fields ...Field) {
	l.log(context.Background(), FatalLevel, msg, fields)
}

func (l *loggerImpl) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, DebugLevel, msg, fields)
}

func (l *loggerImpl) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, InfoLevel, msg, fields)
}

func (l *loggerImpl) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, WarnLevel, msg, fields)
}

func (l *loggerImpl) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, ErrorLevel, msg, fields)
}

func (l *loggerImpl) FatalContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, FatalLevel, msg, fields)
}

func (l *loggerImpl) With(fields ...Field) Logger {
	attrs := make([]slog.Attr, 0, len(l.attrs)+len(fields))
	attrs = append(attrs, l.attrs...)
	attrs = append(attrs, fields...)
	return &loggerImpl{
		handler:  l.handler,
		levelVar: l.levelVar,
		options:  l.options,
		attrs:    attrs,
	}
}

func (l *loggerImpl) WithNamespace(parts ...string) Logger {
	opts := l.options.clone()
	opts.namespaceParts = append(opts.namespaceParts, parts...)
	return &loggerImpl{
		handler:  l.handler,
		levelVar: l.levelVar,
		options:  opts,
		attrs:    l.attrs,
	}
}

func (l *loggerImpl) SetLevel(level Level) error {
	if _, err := ParseLevel(level.String()); err != nil {
		return err
	}
	l.levelVar.Set(level.slogLevel())
	return nil
}

// Flush slog 的内置 Handler 都是同步写入，无需处理
func (l *loggerImpl) Flush() {}

func (l *loggerImpl) log(ctx context.Context, level Level, msg string, fields []Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	sl := level.slogLevel()
	if !l.handler.Enabled(ctx, sl) {
		return
	}

	// skip: runtime.Callers, log, Info/Error...
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	record := slog.NewRecord(time.Now(), sl, msg, pcs[0])

	if ns := l.options.namespace(); ns != "" {
		record.AddAttrs(slog.String(NamespaceKey, ns))
	}
	record.AddAttrs(l.attrs...)
	record.AddAttrs(fields...)
	record.AddAttrs(extractContextFields(ctx, l.options)...)

	_ = l.handler.Handle(ctx, record)

	if level == FatalLevel {
		os.Exit(1)
	}
}
