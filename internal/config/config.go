package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultProvider           = "do-v2"
	DefaultSyncInterval       = 24 * time.Hour
	DefaultPollInterval       = 2 * time.Second
	DefaultBatchSize          = 20
	DefaultRecurrenceInterval = time.Minute
	DefaultCatalogTimeout     = 30 * time.Second
	DefaultCatalogRetryCount  = 3
	DefaultBackupInterval     = 24 * time.Hour
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	BigQuery   BigQueryConfig   `yaml:"bigquery"`
	Sync       SyncConfig       `yaml:"sync"`
	Worker     WorkerConfig     `yaml:"worker"`
	Backup     BackupConfig     `yaml:"backup"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	QueueKey string `yaml:"queue_key"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format" validate:"omitempty,oneof=json console"`
	Output   string `yaml:"output" validate:"omitempty,oneof=stdout stderr file"`
	FilePath string `yaml:"file_path" validate:"required_if=Output file"`
}

// CatalogConfig points at the data catalog API holding subscriptions.
type CatalogConfig struct {
	BaseURL    string        `yaml:"base_url" validate:"required,url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count" validate:"gte=0"`
	RPS        float64       `yaml:"rps" validate:"gte=0"`
	Burst      int           `yaml:"burst" validate:"gte=0"`
}

type BigQueryConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	// Endpoint overrides the API base path, used against emulators.
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
}

// SyncConfig carries everything the sync service needs beyond its collaborators.
type SyncConfig struct {
	Provider string        `yaml:"provider" validate:"required"`
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
	// ViewsProject and ViewsDataset locate the subscription views in the warehouse.
	ViewsProject string `yaml:"views_project" validate:"required"`
	ViewsDataset string `yaml:"views_dataset" validate:"required"`
}

type WorkerConfig struct {
	PollInterval       time.Duration `yaml:"poll_interval"`
	BatchSize          int           `yaml:"batch_size" validate:"gte=0"`
	RecurrenceInterval time.Duration `yaml:"recurrence_interval"`
	MaxRetries         int           `yaml:"max_retries" validate:"gte=0"`
	InitialDelay       time.Duration `yaml:"initial_delay"`
	MaxDelay           time.Duration `yaml:"max_delay"`
	BackoffFactor      float64       `yaml:"backoff_factor" validate:"gte=0"`
}

// BackupConfig controls periodic snapshots of the state database.
type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	StoragePath   string        `yaml:"storage_path" validate:"required_if=Enabled true"`
	RetentionDays int           `yaml:"retention_days" validate:"gte=0"`
}

func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", e.Namespace(), e.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "dosync"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Redis.QueueKey == "" {
		c.Redis.QueueKey = "dosync:imports"
	}

	if c.Catalog.Timeout == 0 {
		c.Catalog.Timeout = DefaultCatalogTimeout
	}
	if c.Catalog.RetryCount == 0 {
		c.Catalog.RetryCount = DefaultCatalogRetryCount
	}

	if c.Sync.Provider == "" {
		c.Sync.Provider = DefaultProvider
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = DefaultSyncInterval
	}

	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = DefaultPollInterval
	}
	if c.Worker.BatchSize == 0 {
		c.Worker.BatchSize = DefaultBatchSize
	}
	if c.Worker.RecurrenceInterval == 0 {
		c.Worker.RecurrenceInterval = DefaultRecurrenceInterval
	}

	if c.Backup.Enabled && c.Backup.Interval == 0 {
		c.Backup.Interval = DefaultBackupInterval
	}
}
