package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/gorm"

	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/connector"
	"github.com/ceyewan/kmis/xerrors"
)

type note struct {
	ID    uint   `gorm:"primaryKey"`
	Title string `gorm:"size:100"`
}

func newConnector(t *testing.T, name string) connector.DatabaseConnector {
	t.Helper()
	conn, err := connector.NewSQLite(&connector.SQLiteConfig{Path: "file:" + name + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	require.NoError(t, conn.Connect(context.Background()))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestNew_RequiresConnectedConnector(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrConnectorNil)

	conn, err := connector.NewSQLite(&connector.SQLiteConfig{Path: "file:db_unconnected?mode=memory"})
	require.NoError(t, err)
	_, err = New(conn, nil)
	assert.ErrorIs(t, err, ErrConnectorNil)

	_, err = New(newConnector(t, "db_bad_level"), &Config{LogLevel: "verbose"})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestTransaction(t *testing.T) {
	ctx := context.Background()
	database, err := New(newConnector(t, "db_tx"), nil)
	require.NoError(t, err)
	assert.Equal(t, connector.DriverSQLite, database.Driver())
	require.NoError(t, database.AutoMigrate(ctx, &note{}))

	require.NoError(t, database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		return tx.Create(&note{Title: "kept"}).Error
	}))

	rollback := errors.New("rollback")
	err = database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Create(&note{Title: "discarded"}).Error; err != nil {
			return err
		}
		return rollback
	})
	assert.ErrorIs(t, err, rollback)

	var titles []string
	require.NoError(t, database.DB(ctx).Model(&note{}).Pluck("title", &titles).Error)
	assert.Equal(t, []string{"kept"}, titles)

	var missing note
	err = database.DB(ctx).First(&missing, 999).Error
	assert.True(t, IsNotFound(err))
}

func TestGormLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := clog.New(&clog.Config{Level: "debug", Format: "json", Output: "buffer"}, clog.WithWriter(&buf))
	require.NoError(t, err)

	ctx := context.Background()
	database, err := New(newConnector(t, "db_logger"), &Config{LogLevel: "error"}, WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(ctx, &note{}))

	var missing note
	_ = database.DB(ctx).First(&missing, 1).Error
	assert.NotContains(t, buf.String(), "sql error", "record not found is not an error")

	_ = database.DB(ctx).Exec("SELECT * FROM no_such_table").Error
	assert.Contains(t, buf.String(), "sql error")
	assert.Contains(t, buf.String(), "no_such_table")
}

func TestGormLogger_Slow(t *testing.T) {
	var buf bytes.Buffer
	logger, err := clog.New(&clog.Config{Level: "debug", Format: "json", Output: "buffer"}, clog.WithWriter(&buf))
	require.NoError(t, err)

	l := newGormLogger(logger, "warn", 10*time.Millisecond)
	l.Trace(context.Background(), time.Now().Add(-50*time.Millisecond), func() (string, int64) {
		return "SELECT 1", 1
	}, nil)
	assert.Contains(t, buf.String(), "slow sql")

	buf.Reset()
	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)
	assert.Empty(t, buf.String())
}

func TestTracingPlugin(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx := context.Background()
	database, err := New(newConnector(t, "db_tracing"), &Config{Tracing: true}, WithTracerProvider(tp))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(ctx, &note{}))
	require.NoError(t, database.DB(ctx).Create(&note{Title: "traced"}).Error)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "gorm.Create")
}
