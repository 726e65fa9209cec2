package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsWhenDefaultFileMissing(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, "localhost:6379", cfg.Redis.ConnOptions().Addr())
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := Load("nope.yaml")
	assert.Error(t, err)
}

func TestLoad_YAMLWithExpansion(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("TEST_REDIS_HOST", "redis.internal")

	path := writeFile(t, dir, "config.yaml", `
redis:
  host: ${TEST_REDIS_HOST}
  port: 6380
  dial_timeout: 2s
subscriber:
  max_in_flight: 16
  stop_timeout: 3s
notifications:
  telegram:
    bot_token: abc
    chat_id: 42
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis.internal", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, 2*time.Second, cfg.Redis.DialTimeout)
	assert.Equal(t, 16, cfg.Subscriber.Options().MaxInFlight)
	assert.Equal(t, 3*time.Second, cfg.Subscriber.Options().StopTimeout)
	assert.True(t, cfg.Notifications.Telegram.Enabled())

	// untouched sections keep defaults
	assert.Equal(t, 3, cfg.Notifications.MaxOpen)
	assert.Equal(t, "data/profiles.db", cfg.Database.Path)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := writeFile(t, dir, "config.yaml", "redis:\n  port: 6380\nlogging:\n  level: info\n")

	t.Setenv("REDIS_PORT", "7000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SUBSCRIBER_POLL_INTERVAL", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Redis.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 250*time.Millisecond, cfg.Subscriber.PollInterval)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, dir, ".env", "PROFILES_DB_PATH=/tmp/from-dotenv.db\n")
	t.Cleanup(func() { _ = os.Unsetenv("PROFILES_DB_PATH") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-dotenv.db", cfg.Database.Path)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	t.Run("BadYAML", func(t *testing.T) {
		path := writeFile(t, dir, "bad.yaml", "redis: [")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("BadPort", func(t *testing.T) {
		path := writeFile(t, dir, "port.yaml", "redis:\n  port: 70000\n")
		_, err := Load(path)
		assert.ErrorContains(t, err, "redis.port")
	})

	t.Run("BadEnv", func(t *testing.T) {
		t.Setenv("REDIS_DB", "not-a-number")
		_, err := Load("")
		assert.Error(t, err)
	})
}

func TestTelegramEnabled(t *testing.T) {
	assert.False(t, TelegramConfig{}.Enabled())
	assert.False(t, TelegramConfig{BotToken: "YOUR_BOT_TOKEN_HERE", ChatID: 1}.Enabled())
	assert.False(t, TelegramConfig{BotToken: "t"}.Enabled())
	assert.True(t, TelegramConfig{BotToken: "t", ChatID: -100}.Enabled())
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
