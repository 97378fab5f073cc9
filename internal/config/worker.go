package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// WorkerConfig configures the background binary. The worker runs in
// containers without a config file, so everything comes from the
// environment.
type WorkerConfig struct {
	DatabaseHost     string        `envconfig:"DB_HOST" default:"localhost"`
	DatabasePort     int           `envconfig:"DB_PORT" default:"5432"`
	DatabaseUser     string        `envconfig:"DB_USER" default:"waitlist"`
	DatabasePassword string        `envconfig:"DB_PASSWORD" default:""`
	DatabaseName     string        `envconfig:"DB_NAME" default:"waitlist"`
	DatabaseSSLMode  string        `envconfig:"DB_SSLMODE" default:"disable"`
	RedisURL         string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	OutboxBatchSize  int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxInterval   time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"2s"`
	OutboxRetries    int           `envconfig:"OUTBOX_RETRY_ATTEMPTS" default:"5"`
	OutboxRetryDelay time.Duration `envconfig:"OUTBOX_RETRY_DELAY" default:"30s"`
	OutboxRetainFor  time.Duration `envconfig:"OUTBOX_RETAIN_FOR" default:"168h"`
	SweepInterval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	SweepBatchSize   int           `envconfig:"SWEEP_BATCH_SIZE" default:"500"`
	MetricsPort      int           `envconfig:"METRICS_PORT" default:"9090"`
}

func LoadWorkerConfig() (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Database converts the env form into the shared DatabaseConfig.
func (c *WorkerConfig) Database() DatabaseConfig {
	return DatabaseConfig{
		Host:     c.DatabaseHost,
		Port:     c.DatabasePort,
		User:     c.DatabaseUser,
		Password: c.DatabasePassword,
		Name:     c.DatabaseName,
		SSLMode:  c.DatabaseSSLMode,
	}
}
