// Package config holds process configuration: environment-driven runtime
// settings and YAML gate-requirement profiles.
package config

import "os"

// Config holds runtime configuration.
type Config struct {
	LogLevel       string
	ReportDir      string
	HistoryBackend string // "none" | "memory" | "postgres" | "sqlite"
	DatabaseURL    string
	SQLitePath     string
	EvaluatorCmd   string // empty for the in-process evaluator
	ProfilesDir    string
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	reportDir := os.Getenv("ARBITER_REPORT_DIR")
	if reportDir == "" {
		reportDir = "reports"
	}

	backend := os.Getenv("ARBITER_HISTORY_BACKEND")
	if backend == "" {
		backend = "none"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://arbiter@localhost:5432/arbiter?sslmode=disable"
	}

	sqlitePath := os.Getenv("ARBITER_SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "arbiter_history.db"
	}

	profilesDir := os.Getenv("ARBITER_PROFILES_DIR")
	if profilesDir == "" {
		profilesDir = "profiles"
	}

	return &Config{
		LogLevel:       logLevel,
		ReportDir:      reportDir,
		HistoryBackend: backend,
		DatabaseURL:    dbURL,
		SQLitePath:     sqlitePath,
		EvaluatorCmd:   os.Getenv("ARBITER_EVALUATOR_CMD"),
		ProfilesDir:    profilesDir,
	}
}
