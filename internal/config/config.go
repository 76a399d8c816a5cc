// Package config provides configuration loading and validation for the service and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads "30m" style strings from JSON and YAML files.
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of seconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.set(raw)
}

// UnmarshalYAML accepts a duration string or a number of seconds
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return d.set(raw)
}

func (d *Duration) set(raw any) error {
	switch v := raw.(type) {
	case float64, int:
		*d = Duration(time.Duration(cast.ToFloat64(v) * float64(time.Second)))
		return nil
	}
	parsed, err := cast.ToDurationE(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %v: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON writes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ProgressExpiry returns the Redis progress log expiry. It never falls below
// Retention, so a log outlives the record it describes until the janitor
// purges both.
func (c *Config) ProgressExpiry() time.Duration {
	return max(c.ProgressTTL.Std(), c.Retention.Std())
}

// Config holds the service configuration. Every field is optional; unset values
// fall back to the environment and then to Default().
type Config struct {
	// Server
	Port           int      `json:"port,omitempty" yaml:"port,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
	MaxUploadBytes int64    `json:"max_upload_bytes,omitempty" yaml:"max_upload_bytes,omitempty"`

	// Storage and persistence
	StorageRoot string   `json:"storage_root,omitempty" yaml:"storage_root,omitempty"` // Root directory for source and output objects
	DatabaseURL string   `json:"database_url,omitempty" yaml:"database_url,omitempty"` // PostgreSQL connection URL; empty keeps records in memory
	RedisURL    string   `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`       // Redis URL for the progress store
	RedisPrefix string   `json:"redis_prefix,omitempty" yaml:"redis_prefix,omitempty"`
	ProgressTTL Duration `json:"progress_ttl,omitempty" yaml:"progress_ttl,omitempty"` // Expiry of Redis progress logs

	// Execution
	Workers       int      `json:"workers,omitempty" yaml:"workers,omitempty"`               // Concurrent pipelines
	BatchSize     int      `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`         // Rows per augmentation batch
	EngineWorkers int      `json:"engine_workers,omitempty" yaml:"engine_workers,omitempty"` // Parallel batches inside one pipeline
	JobTimeout    Duration `json:"job_timeout,omitempty" yaml:"job_timeout,omitempty"`       // Deadline of one pipeline run

	// Retention
	Retention       Duration `json:"retention,omitempty" yaml:"retention,omitempty"`               // Age after which finished pipelines are purged
	JanitorSchedule string   `json:"janitor_schedule,omitempty" yaml:"janitor_schedule,omitempty"` // Cron spec for the purge job

	// Logging
	LogLevel  string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty" yaml:"log_format,omitempty"` // json or console
	Verbose   bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Port:            8080,
		AllowedOrigins:  []string{"*"},
		MaxUploadBytes:  64 << 20,
		StorageRoot:     "data",
		RedisPrefix:     "augmenter:progress",
		ProgressTTL:     Duration(24 * time.Hour),
		Workers:         4,
		BatchSize:       1000,
		EngineWorkers:   4,
		JobTimeout:      Duration(30 * time.Minute),
		Retention:       Duration(24 * time.Hour),
		JanitorSchedule: "@every 1h",
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// FromEnv reads the configuration from AUGMENT_* variables plus DATABASE_URL
// and REDIS_URL. Unset or malformed variables leave the field zero.
func FromEnv() Config {
	var c Config
	c.Port = cast.ToInt(os.Getenv("AUGMENT_PORT"))
	if origins := os.Getenv("AUGMENT_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	c.MaxUploadBytes = cast.ToInt64(os.Getenv("AUGMENT_MAX_UPLOAD_BYTES"))
	c.StorageRoot = os.Getenv("AUGMENT_STORAGE_ROOT")
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	c.RedisURL = os.Getenv("REDIS_URL")
	c.RedisPrefix = os.Getenv("AUGMENT_REDIS_PREFIX")
	c.ProgressTTL = envDuration("AUGMENT_PROGRESS_TTL")
	c.Workers = cast.ToInt(os.Getenv("AUGMENT_WORKERS"))
	c.BatchSize = cast.ToInt(os.Getenv("AUGMENT_BATCH_SIZE"))
	c.EngineWorkers = cast.ToInt(os.Getenv("AUGMENT_ENGINE_WORKERS"))
	c.JobTimeout = envDuration("AUGMENT_JOB_TIMEOUT")
	c.Retention = envDuration("AUGMENT_RETENTION")
	c.JanitorSchedule = os.Getenv("AUGMENT_JANITOR_SCHEDULE")
	c.LogLevel = os.Getenv("AUGMENT_LOG_LEVEL")
	c.LogFormat = os.Getenv("AUGMENT_LOG_FORMAT")
	c.Verbose = cast.ToBool(os.Getenv("AUGMENT_VERBOSE"))
	return c
}

func envDuration(key string) Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return Duration(d)
}

// Load resolves the effective configuration: environment first, then the
// optional file at path, then Default(). The result is validated.
func Load(path string) (Config, error) {
	cfg := FromEnv()
	if path != "" {
		file, err := LoadConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg = cfg.MergeWithDefaults(*file)
	}
	cfg = cfg.MergeWithDefaults(Default())
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration has valid values.
// Zero values are accepted; they are filled in by MergeWithDefaults.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535")
	}
	if c.Workers < 0 {
		return fmt.Errorf("config error: 'workers' must be non-negative")
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("config error: 'batch_size' must be non-negative")
	}
	if c.EngineWorkers < 0 {
		return fmt.Errorf("config error: 'engine_workers' must be non-negative")
	}
	if c.MaxUploadBytes < 0 {
		return fmt.Errorf("config error: 'max_upload_bytes' must be non-negative")
	}
	if c.JobTimeout < 0 || c.Retention < 0 || c.ProgressTTL < 0 {
		return fmt.Errorf("config error: durations must be non-negative")
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "json", "console":
	default:
		return fmt.Errorf("config error: 'log_format' must be json or console, got %q", c.LogFormat)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config error: unknown 'log_level' %q", c.LogLevel)
	}

	if c.JanitorSchedule != "" {
		if _, err := cron.ParseStandard(c.JanitorSchedule); err != nil {
			return fmt.Errorf("config error: invalid 'janitor_schedule' %q: %w", c.JanitorSchedule, err)
		}
	}

	if c.StorageRoot != "" {
		if info, err := os.Stat(c.StorageRoot); err == nil && !info.IsDir() {
			return fmt.Errorf("config error: storage root is not a directory: %s", c.StorageRoot)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with zero fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.StorageRoot == "" {
		result.StorageRoot = defaults.StorageRoot
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.RedisURL == "" {
		result.RedisURL = defaults.RedisURL
	}
	if result.RedisPrefix == "" {
		result.RedisPrefix = defaults.RedisPrefix
	}
	if result.JanitorSchedule == "" {
		result.JanitorSchedule = defaults.JanitorSchedule
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}
	if result.LogFormat == "" {
		result.LogFormat = defaults.LogFormat
	}
	if len(result.AllowedOrigins) == 0 {
		result.AllowedOrigins = defaults.AllowedOrigins
	}

	// Numeric fields: use default if zero
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.MaxUploadBytes == 0 {
		result.MaxUploadBytes = defaults.MaxUploadBytes
	}
	if result.Workers == 0 {
		result.Workers = defaults.Workers
	}
	if result.BatchSize == 0 {
		result.BatchSize = defaults.BatchSize
	}
	if result.EngineWorkers == 0 {
		result.EngineWorkers = defaults.EngineWorkers
	}
	if result.ProgressTTL == 0 {
		result.ProgressTTL = defaults.ProgressTTL
	}
	if result.JobTimeout == 0 {
		result.JobTimeout = defaults.JobTimeout
	}
	if result.Retention == 0 {
		result.Retention = defaults.Retention
	}

	// Bool fields: cannot distinguish unset from false, so true wins
	result.Verbose = result.Verbose || defaults.Verbose

	return result
}
