package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stageflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFrameworkConfig(t *testing.T) {
	path := writeConfig(t, `
stageflow:
  general:
    instance_name: "test-flow"
    log_level: "debug"
  storage:
    database:
      type: "postgres"
      dsn: "postgres://u:p@localhost/stageflow"
      max_open_conns: 3
      conn_max_lifetime: "30m"
    cache:
      enabled: true
      default_ttl: "2m"
  notification:
    email:
      enabled: true
      smtp_host: "smtp.example.com"
      from: "noreply@example.com"
      to: ["a@example.com", "b@example.com"]
  monitor:
    enabled: true
    cron: "@every 1m"
  server:
    port: 9090
    mode: "debug"
`)
	cfg, err := LoadFrameworkConfig(path)
	require.NoError(t, err)

	sf := cfg.Stageflow
	assert.Equal(t, "test-flow", sf.General.InstanceName)
	assert.True(t, cfg.IsDebug())
	assert.Equal(t, "postgres", cfg.GetDatabaseType())
	assert.Equal(t, "postgres://u:p@localhost/stageflow", cfg.GetDatabaseDSN())
	assert.Equal(t, 3, sf.Storage.Database.MaxOpenConns)
	assert.Equal(t, 5, sf.Storage.Database.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, sf.Storage.Database.ConnMaxLifetime)
	assert.Equal(t, 2*time.Minute, sf.Storage.Cache.DefaultTTL)
	assert.Equal(t, "@every 1m", sf.Monitor.Cron)
	assert.Equal(t, ":9090", sf.Server.Addr())
	assert.Equal(t, 25, sf.Notification.Email.SMTPPort)
	assert.Equal(t, []string{"stage.handoff", "workflow.completed", "task.overdue"}, sf.Notification.Email.Events)

	params := sf.Notification.Email.PluginParams()
	assert.Equal(t, "a@example.com,b@example.com", params["to"])
	assert.Equal(t, "25", params["smtp_port"])
	assert.Equal(t, "false", params["notify_assignee"])
}

func TestLoadFrameworkConfig_Defaults(t *testing.T) {
	cfg, err := LoadFrameworkConfig("")
	require.NoError(t, err)

	sf := cfg.Stageflow
	assert.Equal(t, "stageflow", sf.General.InstanceName)
	assert.Equal(t, "info", sf.General.LogLevel)
	assert.Equal(t, "sqlite", sf.Storage.Database.Type)
	assert.Equal(t, "./data/stageflow.db", sf.Storage.Database.DSN)
	assert.Equal(t, 8080, sf.Server.Port)
	assert.Equal(t, "release", sf.Server.Mode)
	assert.Equal(t, "0 */5 * * * *", sf.Monitor.Cron)
	assert.Equal(t, int64(64), sf.Notification.EventBuffer)
}

func TestLoadFrameworkConfig_Errors(t *testing.T) {
	_, err := LoadFrameworkConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFrameworkConfig(writeConfig(t, "stageflow: [not, a, map]"))
	assert.Error(t, err)

	cases := map[string]string{
		"unknown database":   "stageflow:\n  storage:\n    database:\n      type: oracle\n",
		"mysql without dsn":  "stageflow:\n  storage:\n    database:\n      type: mysql\n",
		"bad log level":      "stageflow:\n  general:\n    log_level: verbose\n",
		"bad mode":           "stageflow:\n  server:\n    mode: prod\n",
		"email no host":      "stageflow:\n  notification:\n    email:\n      enabled: true\n",
		"watch without seed": "stageflow:\n  directory:\n    watch_seed: true\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFrameworkConfig(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvDatabaseType, "memory")
	t.Setenv(EnvServerPort, "7070")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := LoadFrameworkConfig("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.GetDatabaseType())
	assert.Empty(t, cfg.GetDatabaseDSN())
	assert.Equal(t, 7070, cfg.Stageflow.Server.Port)
	assert.Equal(t, "warn", cfg.Stageflow.General.LogLevel)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("STAGEFLOW_DB_DSN=file::memory:\n"), 0644))

	// godotenv 不覆盖已存在的变量，先清空
	t.Setenv(EnvDatabaseDSN, "")
	require.NoError(t, os.Unsetenv(EnvDatabaseDSN))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "file::memory:", os.Getenv(EnvDatabaseDSN))
	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
