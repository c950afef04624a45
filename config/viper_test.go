package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/kmis/xerrors"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// TestLoaderLoad 测试基础配置、环境配置、环境变量与默认值的优先级
func TestLoaderLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
app:
  name: kmis
  addr: ":8080"
breaker:
  max_failures: 5
docai:
  base_url: "http://vendor.local"
`)
	writeFile(t, dir, "config.test.yaml", `
breaker:
  max_failures: 2
`)

	t.Setenv("KMISTEST_ENV", "test")
	t.Setenv("KMISTEST_APP_ADDR", ":9999")

	loader, err := New(&Config{
		Paths:     []string{dir},
		EnvPrefix: "kmistest",
		Defaults:  map[string]any{"breaker.reset_timeout": "60s"},
	})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	assert.Equal(t, "kmis", loader.Get("app.name"))
	assert.Equal(t, ":9999", loader.Get("app.addr"))
	assert.EqualValues(t, 2, loader.Get("breaker.max_failures"))

	type breakerSection struct {
		MaxFailures  int           `mapstructure:"max_failures"`
		ResetTimeout time.Duration `mapstructure:"reset_timeout"`
	}
	var all struct {
		Breaker breakerSection `mapstructure:"breaker"`
	}
	require.NoError(t, loader.Unmarshal(&all))
	assert.Equal(t, 2, all.Breaker.MaxFailures)
	assert.Equal(t, 60*time.Second, all.Breaker.ResetTimeout)

	var docai struct {
		BaseURL string `mapstructure:"base_url"`
	}
	require.NoError(t, loader.UnmarshalKey("docai", &docai))
	assert.Equal(t, "http://vendor.local", docai.BaseURL)
}

func TestLoaderLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "app:\n  name: kmis\n")
	writeFile(t, dir, ".env", "KMISDOT_APP_NAME=from-dotenv\n")
	t.Cleanup(func() { os.Unsetenv("KMISDOT_APP_NAME") })

	loader, err := New(&Config{Paths: []string{dir}, EnvPrefix: "KMISDOT"})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	assert.Equal(t, "from-dotenv", loader.Get("app.name"))
}

func TestLoaderLoad_NoFileUsesDefaults(t *testing.T) {
	loader, err := New(&Config{
		Paths:     []string{t.TempDir()},
		EnvPrefix: "KMISNOFILE",
		Defaults:  map[string]any{"app.name": "fallback"},
	})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))
	assert.Equal(t, "fallback", loader.Get("app.name"))
}

func TestLoaderLoad_Empty(t *testing.T) {
	loader, err := New(&Config{Paths: []string{t.TempDir()}, EnvPrefix: "KMISEMPTY"})
	require.NoError(t, err)

	err = loader.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestLoaderWatch_ClosesOnCancel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "app:\n  name: kmis\n")

	loader, err := New(&Config{Paths: []string{dir}, EnvPrefix: "KMISWATCH"})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	_, err = loader.Watch(context.Background(), "")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := loader.Watch(ctx, "app.name")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}
