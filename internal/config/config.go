package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kurihiro0119/commit-streaks/internal/achievement"
	"github.com/kurihiro0119/commit-streaks/internal/streak"
)

const (
	SourceLocal  = "local"
	SourceGitHub = "github"
)

// Config holds the application configuration
type Config struct {
	// Source
	Source       string // "local" or "github"
	SearchPaths  []string
	AuthorEmails []string
	GitHubToken  string
	GitHubScope  []string

	// Storage
	StorageType string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint string

	// Goals and limits
	DailyGoal         int
	GoalLinkedStreaks bool
	BackfillBatchSize int
	BackfillMaxDays   int

	// Source call budget
	SourceTimeout time.Duration
	SourceRetries int

	// TrackSchedule is a cron spec; empty disables scheduled tracking
	TrackSchedule string

	// Logging
	LogLevel  string
	LogFormat string

	ThresholdsFile string
	Thresholds     achievement.Thresholds
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Source:         getEnv("SOURCE", SourceLocal),
		SearchPaths:    getEnvList("SEARCH_PATHS", []string{"."}),
		AuthorEmails:   getEnvList("AUTHOR_EMAILS", nil),
		GitHubToken:    getEnv("GITHUB_TOKEN", ""),
		GitHubScope:    getEnvList("GITHUB_SCOPE", nil),
		StorageType:    getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:     getEnv("SQLITE_PATH", "./commits.db"),
		PostgresURL:    getEnv("POSTGRES_URL", ""),
		APIPort:        getEnv("API_PORT", "8080"),
		APIHost:        getEnv("API_HOST", "localhost"),
		APIEndpoint:    getEnv("API_ENDPOINT", "http://localhost:8080"),
		TrackSchedule:  getEnv("TRACK_SCHEDULE", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		ThresholdsFile: getEnv("THRESHOLDS_FILE", ""),
		Thresholds:     achievement.DefaultThresholds(),
	}

	var err error
	if cfg.DailyGoal, err = getEnvInt("DAILY_GOAL", 10); err != nil {
		return nil, err
	}
	if cfg.GoalLinkedStreaks, err = getEnvBool("GOAL_LINKED_STREAKS", false); err != nil {
		return nil, err
	}
	if cfg.BackfillBatchSize, err = getEnvInt("BACKFILL_BATCH_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.BackfillMaxDays, err = getEnvInt("BACKFILL_MAX_DAYS", 365); err != nil {
		return nil, err
	}
	if cfg.SourceTimeout, err = getEnvDuration("SOURCE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SourceRetries, err = getEnvInt("SOURCE_RETRIES", 3); err != nil {
		return nil, err
	}

	if cfg.ThresholdsFile != "" {
		t, err := LoadThresholds(cfg.ThresholdsFile)
		if err != nil {
			return nil, err
		}
		cfg.Thresholds = t
	}

	return cfg, nil
}

// thresholdsFile is the YAML layout of THRESHOLDS_FILE
type thresholdsFile struct {
	Achievements achievement.Thresholds `yaml:"achievements"`
}

// LoadThresholds reads a YAML threshold table and merges it over the defaults
func LoadThresholds(path string) (achievement.Thresholds, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return achievement.Thresholds{}, &ConfigError{Field: "THRESHOLDS_FILE", Message: err.Error()}
	}

	var file thresholdsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return achievement.Thresholds{}, &ConfigError{Field: "THRESHOLDS_FILE", Message: "invalid YAML: " + err.Error()}
	}

	t := achievement.DefaultThresholds().Merge(file.Achievements)
	if err := t.Validate(); err != nil {
		return achievement.Thresholds{}, &ConfigError{Field: "THRESHOLDS_FILE", Message: err.Error()}
	}
	return t, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: fmt.Sprintf("must be an integer, got %q", value)}
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, &ConfigError{Field: key, Message: fmt.Sprintf("must be a boolean, got %q", value)}
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: fmt.Sprintf("must be a duration, got %q", value)}
	}
	return d, nil
}

// getEnvList splits a comma-separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// StreakOptions derives the streak qualification rule
func (c *Config) StreakOptions() streak.Options {
	if c.GoalLinkedStreaks {
		return streak.Options{Threshold: int64(c.DailyGoal)}
	}
	return streak.Options{Threshold: 1}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Source {
	case SourceLocal:
		if len(c.SearchPaths) == 0 {
			return &ConfigError{Field: "SEARCH_PATHS", Message: "at least one search path is required for the local source"}
		}
	case SourceGitHub:
		if c.GitHubToken == "" {
			return &ConfigError{Field: "GITHUB_TOKEN", Message: "GitHub token is required"}
		}
	default:
		return &ConfigError{Field: "SOURCE", Message: "must be 'local' or 'github'"}
	}
	if c.StorageType != "sqlite" && c.StorageType != "postgres" {
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite' or 'postgres'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	if c.DailyGoal < 1 {
		return &ConfigError{Field: "DAILY_GOAL", Message: "must be at least 1"}
	}
	if c.BackfillBatchSize < 1 {
		return &ConfigError{Field: "BACKFILL_BATCH_SIZE", Message: "must be at least 1"}
	}
	if c.BackfillMaxDays < 1 {
		return &ConfigError{Field: "BACKFILL_MAX_DAYS", Message: "must be at least 1"}
	}
	if c.SourceTimeout <= 0 {
		return &ConfigError{Field: "SOURCE_TIMEOUT", Message: "must be positive"}
	}
	if c.SourceRetries < 1 {
		return &ConfigError{Field: "SOURCE_RETRIES", Message: "must be at least 1"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
