// Package config defines the service configuration shared by the aggregator
// and router binaries.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config represents the top-level configuration.
type Config struct {
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Blob      BlobConfig      `yaml:"blob"`
	Search    SearchConfig    `yaml:"search"`
	Worker    WorkerConfig    `yaml:"worker"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// PostgresConfig holds the job queue database connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"required,min=1,max=65535"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	Database string `yaml:"database" validate:"required"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN renders the connection string for pgx.
func (c PostgresConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode)
}

// KafkaConfig holds the submission event bus settings.
type KafkaConfig struct {
	Brokers          []string `yaml:"brokers" validate:"required,min=1"`
	SubmissionsTopic string   `yaml:"submissions_topic" validate:"required"`
	GroupID          string   `yaml:"group_id" validate:"required"`
	ClientID         string   `yaml:"client_id" validate:"required"`
}

// BlobConfig holds the object store settings.
type BlobConfig struct {
	Endpoint  string `yaml:"endpoint" validate:"required"`
	AccessKey string `yaml:"access_key" validate:"required"`
	SecretKey string `yaml:"secret_key" validate:"required"`
	Bucket    string `yaml:"bucket" validate:"required"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// SearchConfig holds the profile search index settings.
type SearchConfig struct {
	Addresses []string `yaml:"addresses" validate:"required,min=1"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	Index     string   `yaml:"index" validate:"required"`
}

// WorkerConfig tunes the aggregation claim loop. Zero values fall back to
// the worker's defaults.
type WorkerConfig struct {
	BatchSize            int      `yaml:"batch_size" validate:"min=0"`
	Parallelism          int      `yaml:"parallelism" validate:"min=0"`
	CycleInterval        Duration `yaml:"cycle_interval"`
	LeaseTimeout         Duration `yaml:"lease_timeout"`
	ReclaimInterval      Duration `yaml:"reclaim_interval"`
	MaxAttempts          int      `yaml:"max_attempts" validate:"min=0"`
	MaxConsecutiveErrors int      `yaml:"max_consecutive_errors" validate:"min=0"`
}

// TelemetryConfig holds the OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Enabled           bool    `yaml:"enabled"`
	ExporterEndpoint  string  `yaml:"exporter_endpoint"`
	SampleProbability float64 `yaml:"sample_probability" validate:"min=0,max=1"`
}

// Validate checks the configuration for missing or out-of-range values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
