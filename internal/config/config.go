package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the playback engine
type Config struct {
	// Server configuration for the local control surface
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	// Logging configuration
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	// Backend configuration for the Tomeshelf platform API
	Backend struct {
		URL        string `yaml:"url"`
		Token      string `yaml:"token"`
		GraphQLURL string `yaml:"graphql_url"`
	} `yaml:"backend"`

	// Playback engine tuning
	Playback struct {
		HeartbeatInterval      time.Duration `yaml:"heartbeat_interval"`
		BackgroundPollInterval time.Duration `yaml:"background_poll_interval"`
		ProgressWriteInterval  time.Duration `yaml:"progress_write_interval"`
		DebounceWindow         time.Duration `yaml:"debounce_window"`
		PreloadCount           int           `yaml:"preload_count"`
		PreloadDelay           time.Duration `yaml:"preload_delay"`
		EndTolerance           time.Duration `yaml:"end_tolerance"`
		BackgroundEndTolerance time.Duration `yaml:"background_end_tolerance"`
		UserRetryLimit         int           `yaml:"user_retry_limit"`
		AutoAdvanceRetryLimit  int           `yaml:"auto_advance_retry_limit"`
		RetryBackoff           time.Duration `yaml:"retry_backoff"`
	} `yaml:"playback"`

	// File paths
	Paths struct {
		JournalFile string `yaml:"journal_file"`
	} `yaml:"paths"`
}

// Load loads configuration from a file (if specified) and environment variables.
// Configuration priority: 1) Environment variables, 2) Config file, 3) Defaults
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	// Defaults first
	cfg.Server.Port = "7575"
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Playback.HeartbeatInterval = 5 * time.Second
	cfg.Playback.BackgroundPollInterval = 1 * time.Second
	cfg.Playback.ProgressWriteInterval = 15 * time.Second
	cfg.Playback.DebounceWindow = 500 * time.Millisecond
	cfg.Playback.PreloadCount = 3
	cfg.Playback.PreloadDelay = 2 * time.Second
	cfg.Playback.EndTolerance = 1500 * time.Millisecond
	cfg.Playback.BackgroundEndTolerance = 3 * time.Second
	cfg.Playback.UserRetryLimit = 1
	cfg.Playback.AutoAdvanceRetryLimit = 3
	cfg.Playback.RetryBackoff = 2 * time.Second
	cfg.Paths.JournalFile = "./playback-journal.db"

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file does not exist: %s", configFile)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromEnv applies environment variable overrides (highest priority)
func loadFromEnv(cfg *Config) {
	if port := getEnv("PORT", ""); port != "" {
		cfg.Server.Port = port
	}
	if timeout := getDurationFromEnv("SHUTDOWN_TIMEOUT", 0); timeout > 0 {
		cfg.Server.ShutdownTimeout = timeout
	}
	if level := getEnv("LOG_LEVEL", ""); level != "" {
		cfg.Logging.Level = level
	}
	if format := getEnv("LOG_FORMAT", ""); format != "" {
		cfg.Logging.Format = format
	}
	if url := getEnv("TOMESHELF_URL", ""); url != "" {
		cfg.Backend.URL = url
	}
	if token := getEnv("TOMESHELF_TOKEN", ""); token != "" {
		cfg.Backend.Token = token
	}
	if gql := getEnv("TOMESHELF_GRAPHQL_URL", ""); gql != "" {
		cfg.Backend.GraphQLURL = gql
	}
	if v := getDurationFromEnv("PROGRESS_WRITE_INTERVAL", 0); v > 0 {
		cfg.Playback.ProgressWriteInterval = v
	}
	if v := getDurationFromEnv("PROGRESS_DEBOUNCE_WINDOW", 0); v > 0 {
		cfg.Playback.DebounceWindow = v
	}
	if v := getIntFromEnv("PRELOAD_COUNT", 0); v > 0 {
		cfg.Playback.PreloadCount = v
	}
	if journal := getEnv("JOURNAL_FILE", ""); journal != "" {
		cfg.Paths.JournalFile = journal
	}
}

func (c *Config) validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend URL is required (set backend.url or TOMESHELF_URL)")
	}
	if c.Playback.ProgressWriteInterval < 15*time.Second {
		return fmt.Errorf("progress write interval must be at least 15s, got %s", c.Playback.ProgressWriteInterval)
	}
	if c.Playback.PreloadCount < 0 {
		return fmt.Errorf("preload count must not be negative")
	}
	return nil
}

// GraphQLEndpoint returns the manifest API endpoint, defaulting to
// <backend URL>/api/graphql when not configured explicitly.
func (c *Config) GraphQLEndpoint() string {
	if c.Backend.GraphQLURL != "" {
		return c.Backend.GraphQLURL
	}
	return strings.TrimRight(c.Backend.URL, "/") + "/api/graphql"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getDurationFromEnv(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntFromEnv(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
