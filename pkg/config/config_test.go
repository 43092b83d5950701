package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arbiterhq/arbiter/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("ARBITER_REPORT_DIR", "")
	t.Setenv("ARBITER_HISTORY_BACKEND", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ARBITER_SQLITE_PATH", "")
	t.Setenv("ARBITER_EVALUATOR_CMD", "")
	t.Setenv("ARBITER_PROFILES_DIR", "")

	cfg := config.Load()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "reports", cfg.ReportDir)
	assert.Equal(t, "none", cfg.HistoryBackend)
	assert.Contains(t, cfg.DatabaseURL, "localhost")
	assert.Equal(t, "arbiter_history.db", cfg.SQLitePath)
	assert.Empty(t, cfg.EvaluatorCmd)
	assert.Equal(t, "profiles", cfg.ProfilesDir)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("ARBITER_REPORT_DIR", "/tmp/ci-reports")
	t.Setenv("ARBITER_HISTORY_BACKEND", "sqlite")
	t.Setenv("DATABASE_URL", "postgres://production:5432/db")
	t.Setenv("ARBITER_SQLITE_PATH", "/var/lib/arbiter/history.db")
	t.Setenv("ARBITER_EVALUATOR_CMD", "cue-eval")
	t.Setenv("ARBITER_PROFILES_DIR", "/etc/arbiter/profiles")

	cfg := config.Load()

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "/tmp/ci-reports", cfg.ReportDir)
	assert.Equal(t, "sqlite", cfg.HistoryBackend)
	assert.Equal(t, "postgres://production:5432/db", cfg.DatabaseURL)
	assert.Equal(t, "/var/lib/arbiter/history.db", cfg.SQLitePath)
	assert.Equal(t, "cue-eval", cfg.EvaluatorCmd)
	assert.Equal(t, "/etc/arbiter/profiles", cfg.ProfilesDir)
}
