package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// EnvConfigPath overrides the config file location when set.
const EnvConfigPath = "SIPCOMPOSE_CONFIG"

// Config holds everything the engine loads at startup.
type Config struct {
	Composition CompositionConfig `json:"composition"`
	Cache       CacheConfig       `json:"cache"`
	Jobs        JobsConfig        `json:"jobs"`
	Metrics     MetricsConfig     `json:"metrics"`
	Logging     LoggingConfig     `json:"logging"`
	Manifest    ManifestConfig    `json:"manifest"`
}

// CompositionConfig tunes the composer defaults.
type CompositionConfig struct {
	Strategy                 string `json:"strategy"`
	MaxProofs                int    `json:"max_proofs"`
	TimeoutMs                int    `json:"timeout_ms"`
	EnableParallelGeneration bool   `json:"enable_parallel_generation"`
	MaxParallelWorkers       int    `json:"max_parallel_workers"`
	EnableCaching            bool   `json:"enable_caching"`
	CacheTTLSeconds          int    `json:"cache_ttl_seconds"`
}

// CacheConfig selects the proof cache backend.
type CacheConfig struct {
	Driver string      `json:"driver"`
	Redis  RedisConfig `json:"redis"`
}

// RedisConfig describes a Redis connection.
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// JobsConfig wires the async generation pipeline.
type JobsConfig struct {
	Store   JobStoreConfig `json:"store"`
	Queue   JobQueueConfig `json:"queue"`
	Retries int            `json:"retries"`
	Workers int            `json:"workers"`
}

// JobStoreConfig selects the job store backend.
type JobStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// JobQueueConfig selects the job queue backend.
type JobQueueConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RabbitMQConfig describes a RabbitMQ connection.
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// MetricsConfig controls the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// LoggingConfig mirrors pkg/logger options.
type LoggingConfig struct {
	Level       string `json:"level"`
	Format      string `json:"format"`
	Output      string `json:"output"`
	JournalPath string `json:"journal_path"`
}

// ManifestConfig points at the proof-system manifest.
type ManifestConfig struct {
	Path string `json:"path"`
}

// CacheTTL returns the configured cache TTL as a duration.
func (c CompositionConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Timeout returns the configured composition timeout as a duration.
func (c CompositionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Load parses the JSON config file at path. An empty path falls back to the
// SIPCOMPOSE_CONFIG environment variable, then to configs/sipcompose.json.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = filepath.Join("configs", "sipcompose.json")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Cache.Driver {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("unknown cache driver: %s", c.Cache.Driver)
	}
	switch c.Jobs.Store.Driver {
	case "", "memory":
	case "mysql":
		if c.Jobs.Store.DSN == "" {
			return errors.New("mysql job store requires a dsn")
		}
	default:
		return fmt.Errorf("unknown job store driver: %s", c.Jobs.Store.Driver)
	}
	switch c.Jobs.Queue.Driver {
	case "", "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("unknown job queue driver: %s", c.Jobs.Queue.Driver)
	}
	return nil
}

func (c *Config) applyDefaults(baseDir string) {
	if c.Composition.Strategy == "" {
		c.Composition.Strategy = "sequential"
	}
	if c.Composition.MaxProofs <= 0 {
		c.Composition.MaxProofs = 16
	}
	if c.Composition.TimeoutMs <= 0 {
		c.Composition.TimeoutMs = 30_000
	}
	if c.Composition.MaxParallelWorkers <= 0 {
		c.Composition.MaxParallelWorkers = 4
	}
	if c.Composition.CacheTTLSeconds <= 0 {
		c.Composition.CacheTTLSeconds = 300
	}

	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Jobs.Store.Driver == "" {
		c.Jobs.Store.Driver = "memory"
	}
	if c.Jobs.Queue.Driver == "" {
		c.Jobs.Queue.Driver = "memory"
	}
	if c.Jobs.Retries <= 0 {
		c.Jobs.Retries = 3
	}
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 2
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9102"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Manifest.Path == "" {
		c.Manifest.Path = filepath.Join(baseDir, "systems.yaml")
	} else if !filepath.IsAbs(c.Manifest.Path) {
		c.Manifest.Path = filepath.Join(baseDir, c.Manifest.Path)
	}
}
