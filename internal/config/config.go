// Package config loads service settings from an optional .env file, an
// optional YAML file and the environment, in that order of precedence
// from lowest to highest.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"seedbank/internal/db"
	"seedbank/internal/drafts"
	"seedbank/internal/models"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the server configuration.
type Config struct {
	ListenAddr        string        `yaml:"listen_addr"`
	DataDir           string        `yaml:"data_dir"`
	SnapshotRetention int           `yaml:"snapshot_retention"`
	AutosaveInterval  time.Duration `yaml:"autosave_interval"`

	SessionTTL          time.Duration `yaml:"session_ttl"`
	SessionHistoryLimit int           `yaml:"session_history_limit"`
	HistoryLimit        int           `yaml:"history_limit"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	DatabaseEnabled bool      `yaml:"database_enabled"`
	Database        db.Config `yaml:"database"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		ListenAddr:          ":8080",
		DataDir:             "data",
		SnapshotRetention:   10,
		AutosaveInterval:    30 * time.Second,
		SessionTTL:          drafts.DefaultTTL,
		SessionHistoryLimit: 0,
		HistoryLimit:        models.DefaultHistoryLimit,
		LogLevel:            "info",
		LogFormat:           "json",
		Database: db.Config{
			Host:    "localhost",
			Port:    "5432",
			Name:    "seedbank",
			User:    "postgres",
			SSLMode: "disable",
		},
	}
}

// Load reads .env if present, then the YAML file named by SEEDBANK_CONFIG,
// then environment variables, and validates the result.
func Load() (Config, error) {
	_ = godotenv.Load() // Load .env file if present

	cfg := Default()
	if path := os.Getenv("SEEDBANK_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.ListenAddr, "SEEDBANK_LISTEN_ADDR")
	setString(&c.DataDir, "SEEDBANK_DATA_DIR")
	setString(&c.LogLevel, "SEEDBANK_LOG_LEVEL")
	setString(&c.LogFormat, "SEEDBANK_LOG_FORMAT")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.Port, "DB_PORT")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASS")
	setString(&c.Database.SSLMode, "DB_SSLMODE")

	return errors.Join(
		setInt(&c.SnapshotRetention, "SEEDBANK_SNAPSHOT_RETENTION"),
		setInt(&c.SessionHistoryLimit, "SEEDBANK_SESSION_HISTORY_LIMIT"),
		setInt(&c.HistoryLimit, "SEEDBANK_HISTORY_LIMIT"),
		setDuration(&c.AutosaveInterval, "SEEDBANK_AUTOSAVE_INTERVAL"),
		setDuration(&c.SessionTTL, "SEEDBANK_SESSION_TTL"),
		setBool(&c.DatabaseEnabled, "SEEDBANK_DB_ENABLED"),
	)
}

// Validate checks that every setting is usable.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.ListenAddr) == "" {
		problems = append(problems, "listen address is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		problems = append(problems, "data directory is required")
	}
	if c.SnapshotRetention < 0 {
		problems = append(problems, "snapshot retention must not be negative")
	}
	if c.AutosaveInterval <= 0 {
		problems = append(problems, "autosave interval must be positive")
	}
	if c.SessionTTL <= 0 {
		problems = append(problems, "session TTL must be positive")
	}
	if c.SessionHistoryLimit < 0 || c.HistoryLimit < 0 {
		problems = append(problems, "history limits must not be negative")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if f := strings.ToLower(c.LogFormat); f != "json" && f != "text" {
		problems = append(problems, fmt.Sprintf("log format %q must be json or text", c.LogFormat))
	}
	if c.DatabaseEnabled && (c.Database.Host == "" || c.Database.Name == "") {
		problems = append(problems, "database host and name are required when the database is enabled")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// NewLogger builds the process logger from the log settings.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", raw, err)
	}
	return level, nil
}

func setString(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) error {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	*dst = b
	return nil
}
