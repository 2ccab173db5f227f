// Package config provides configuration loading and management for agentflow.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete agentflow configuration
type Config struct {
	Temporal      TemporalConfig      `yaml:"temporal"`
	NATS          NATSConfig          `yaml:"nats"`
	Store         StoreConfig         `yaml:"store"`
	Orchestration OrchestrationConfig `yaml:"orchestration"`
}

// TemporalConfig configures the Temporal connection
type TemporalConfig struct {
	// HostPort is the Temporal frontend address (default: localhost:7233)
	HostPort string `yaml:"host_port"`
	// Namespace is the Temporal namespace (default: "default")
	Namespace string `yaml:"namespace"`
	// TaskQueue is the queue workers poll and workflows run on
	TaskQueue string `yaml:"task_queue"`
}

// NATSConfig configures the NATS connection used for the record store
// and the task event stream
type NATSConfig struct {
	// URL is the NATS server URL
	URL string `yaml:"url"`
	// SubjectPrefix is the root of the task event subject space
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Store backends selectable via StoreConfig.Backend.
const (
	BackendMemory   = "memory"
	BackendNATS     = "nats"
	BackendPostgres = "postgres"
)

// StoreConfig selects and configures the record store backend
type StoreConfig struct {
	// Backend is one of "memory", "nats", or "postgres"
	Backend string `yaml:"backend"`
	// PostgresDSN is the connection string when Backend is "postgres"
	PostgresDSN string `yaml:"postgres_dsn"`
}

// OrchestrationConfig tunes workflow batching
type OrchestrationConfig struct {
	// BatchSize is the number of units per execution batch
	BatchSize int `yaml:"batch_size"`
	// MaxBatchesPerRun bounds one workflow run before continue-as-new
	MaxBatchesPerRun int `yaml:"max_batches_per_run"`
	// BatchPause is the delay between batches
	BatchPause time.Duration `yaml:"batch_pause"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Temporal: TemporalConfig{
			HostPort:  "localhost:7233",
			Namespace: "default",
			TaskQueue: "agentflow-tasks",
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "agentflow",
		},
		Store: StoreConfig{
			Backend: BackendNATS,
		},
		Orchestration: OrchestrationConfig{
			BatchSize:        50,
			MaxBatchesPerRun: 25,
			BatchPause:       time.Second,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Temporal.HostPort == "" {
		return fmt.Errorf("temporal.host_port is required")
	}
	if c.Temporal.Namespace == "" {
		return fmt.Errorf("temporal.namespace is required")
	}
	if c.Temporal.TaskQueue == "" {
		return fmt.Errorf("temporal.task_queue is required")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("nats.url is required for the nats store backend")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required for the postgres store backend")
		}
	default:
		return fmt.Errorf("store.backend must be one of memory, nats, postgres (got %q)", c.Store.Backend)
	}
	if c.Orchestration.BatchSize <= 0 {
		return fmt.Errorf("orchestration.batch_size must be positive")
	}
	if c.Orchestration.MaxBatchesPerRun <= 0 {
		return fmt.Errorf("orchestration.max_batches_per_run must be positive")
	}
	if c.Orchestration.BatchPause < 0 {
		return fmt.Errorf("orchestration.batch_pause must not be negative")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Temporal
	if other.Temporal.HostPort != "" {
		c.Temporal.HostPort = other.Temporal.HostPort
	}
	if other.Temporal.Namespace != "" {
		c.Temporal.Namespace = other.Temporal.Namespace
	}
	if other.Temporal.TaskQueue != "" {
		c.Temporal.TaskQueue = other.Temporal.TaskQueue
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.SubjectPrefix != "" {
		c.NATS.SubjectPrefix = other.NATS.SubjectPrefix
	}

	// Store
	if other.Store.Backend != "" {
		c.Store.Backend = other.Store.Backend
	}
	if other.Store.PostgresDSN != "" {
		c.Store.PostgresDSN = other.Store.PostgresDSN
	}

	// Orchestration
	if other.Orchestration.BatchSize != 0 {
		c.Orchestration.BatchSize = other.Orchestration.BatchSize
	}
	if other.Orchestration.MaxBatchesPerRun != 0 {
		c.Orchestration.MaxBatchesPerRun = other.Orchestration.MaxBatchesPerRun
	}
	if other.Orchestration.BatchPause != 0 {
		c.Orchestration.BatchPause = other.Orchestration.BatchPause
	}
}
