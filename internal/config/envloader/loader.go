// Package envloader loads service configuration from STACKFOLIO_-prefixed
// environment variables, with sensible defaults for local development.
package envloader

import (
	"context"
	"strings"

	"github.com/spf13/viper"

	"github.com/stackfolio/stackfolio/internal/config"
)

// EnvLoader loads configuration from the environment. It implements the
// config.Loader interface.
type EnvLoader struct {
	v *viper.Viper
}

// NewEnvLoader creates an EnvLoader. Variables follow the pattern
// STACKFOLIO_<SECTION>_<KEY>, e.g. STACKFOLIO_POSTGRES_HOST.
func NewEnvLoader() *EnvLoader {
	v := viper.New()
	v.SetEnvPrefix("STACKFOLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "stackfolio")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "stackfolio")
	v.SetDefault("postgres.ssl_mode", "disable")

	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.submissions_topic", "report-submissions")
	v.SetDefault("kafka.group_id", "stackfolio-router")
	v.SetDefault("kafka.client_id", "stackfolio")

	v.SetDefault("blob.endpoint", "localhost:9000")
	v.SetDefault("blob.access_key", "minioadmin")
	v.SetDefault("blob.secret_key", "minioadmin")
	v.SetDefault("blob.bucket", "stackfolio")
	v.SetDefault("blob.use_ssl", false)

	v.SetDefault("search.addresses", "http://localhost:9200")
	v.SetDefault("search.index", "dev-profiles")

	v.SetDefault("worker.batch_size", 0)
	v.SetDefault("worker.parallelism", 0)
	v.SetDefault("worker.cycle_interval", "0s")
	v.SetDefault("worker.lease_timeout", "0s")
	v.SetDefault("worker.reclaim_interval", "0s")
	v.SetDefault("worker.max_attempts", 0)
	v.SetDefault("worker.max_consecutive_errors", 0)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sample_probability", 0.05)

	return &EnvLoader{v: v}
}

// Load assembles and validates the configuration from the environment.
func (l *EnvLoader) Load(_ context.Context) (*config.Config, error) {
	cfg := &config.Config{
		Postgres: config.PostgresConfig{
			Host:     l.v.GetString("postgres.host"),
			Port:     l.v.GetInt("postgres.port"),
			User:     l.v.GetString("postgres.user"),
			Password: l.v.GetString("postgres.password"),
			Database: l.v.GetString("postgres.database"),
			SSLMode:  l.v.GetString("postgres.ssl_mode"),
		},
		Kafka: config.KafkaConfig{
			Brokers:          splitList(l.v.GetString("kafka.brokers")),
			SubmissionsTopic: l.v.GetString("kafka.submissions_topic"),
			GroupID:          l.v.GetString("kafka.group_id"),
			ClientID:         l.v.GetString("kafka.client_id"),
		},
		Blob: config.BlobConfig{
			Endpoint:  l.v.GetString("blob.endpoint"),
			AccessKey: l.v.GetString("blob.access_key"),
			SecretKey: l.v.GetString("blob.secret_key"),
			Bucket:    l.v.GetString("blob.bucket"),
			UseSSL:    l.v.GetBool("blob.use_ssl"),
		},
		Search: config.SearchConfig{
			Addresses: splitList(l.v.GetString("search.addresses")),
			Username:  l.v.GetString("search.username"),
			Password:  l.v.GetString("search.password"),
			Index:     l.v.GetString("search.index"),
		},
		Worker: config.WorkerConfig{
			BatchSize:            l.v.GetInt("worker.batch_size"),
			Parallelism:          l.v.GetInt("worker.parallelism"),
			CycleInterval:        config.Duration(l.v.GetDuration("worker.cycle_interval")),
			LeaseTimeout:         config.Duration(l.v.GetDuration("worker.lease_timeout")),
			ReclaimInterval:      config.Duration(l.v.GetDuration("worker.reclaim_interval")),
			MaxAttempts:          l.v.GetInt("worker.max_attempts"),
			MaxConsecutiveErrors: l.v.GetInt("worker.max_consecutive_errors"),
		},
		Telemetry: config.TelemetryConfig{
			Enabled:           l.v.GetBool("telemetry.enabled"),
			ExporterEndpoint:  l.v.GetString("telemetry.exporter_endpoint"),
			SampleProbability: l.v.GetFloat64("telemetry.sample_probability"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
