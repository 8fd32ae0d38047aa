package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Secrets     SecretsConfig
	Gateway     GatewayConfig
	Scheduler   SchedulerConfig
	Notifier    NotifierConfig
	Tracing     TracingConfig
	Logger      LoggerConfig
}

// ServerConfig holds HTTP, gRPC and metrics listener configuration
type ServerConfig struct {
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	GRPCPort        int           `env:"GRPC_PORT" envDefault:"50051"`
	MetricsPort     int           `env:"METRICS_PORT" envDefault:"9090"`
	CronSecret      string        `env:"CRON_SECRET"`
	WebhookRPS      float64       `env:"WEBHOOK_RATE_LIMIT_RPS" envDefault:"50"`
	WebhookBurst    int           `env:"WEBHOOK_RATE_LIMIT_BURST" envDefault:"100"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DatabaseConfig holds PostgreSQL configuration.
// Driver "memory" keeps all state in process and is meant for local runs only.
type DatabaseConfig struct {
	Driver   string `env:"STORE_DRIVER" envDefault:"postgres"` // postgres, memory
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD"`
	Database string `env:"DB_NAME" envDefault:"funding_service"`
	SSLMode  string `env:"DB_SSL_MODE" envDefault:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"25"`
	MinConns int32  `env:"DB_MIN_CONNS" envDefault:"5"`
}

// RedisConfig configures the shared gateway idempotency store.
// Empty URL keeps idempotency records in process memory.
type RedisConfig struct {
	URL            string        `env:"REDIS_URL"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"72h"`
}

// KafkaConfig configures the notification publisher.
// No brokers means notifications are only logged.
type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_NOTIFICATION_TOPIC" envDefault:"funding.notifications"`
}

// SecretsConfig selects where provider secrets are read from
type SecretsConfig struct {
	Provider     string        `env:"SECRETS_PROVIDER" envDefault:"local"` // local, aws, vault
	LocalPath    string        `env:"SECRETS_LOCAL_PATH" envDefault:"./secrets"`
	AWSRegion    string        `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSEndpoint  string        `env:"AWS_SECRETS_ENDPOINT"`
	VaultAddress string        `env:"VAULT_ADDR" envDefault:"http://127.0.0.1:8200"`
	VaultToken   string        `env:"VAULT_TOKEN"`
	VaultMount   string        `env:"VAULT_MOUNT" envDefault:"secret"`
	VaultNS      string        `env:"VAULT_NAMESPACE"`
	CacheTTL     time.Duration `env:"SECRETS_CACHE_TTL" envDefault:"5m"`
}

// GatewayConfig holds provider call policy
type GatewayConfig struct {
	ProvidersFile  string        `env:"GATEWAY_PROVIDERS_FILE" envDefault:"./providers.yaml"`
	CallTimeout    time.Duration `env:"GATEWAY_CALL_TIMEOUT" envDefault:"20s"`
	AttemptTimeout time.Duration `env:"GATEWAY_ATTEMPT_TIMEOUT" envDefault:"5s"`
	MaxAttempts    int           `env:"GATEWAY_MAX_ATTEMPTS" envDefault:"3"`
	// WebhookTolerance bounds the age of a signed webhook timestamp; 0 disables the check
	WebhookTolerance time.Duration `env:"WEBHOOK_TOLERANCE" envDefault:"5m"`
}

// SchedulerConfig configures recurring billing sweeps
type SchedulerConfig struct {
	Enabled     bool          `env:"SCHEDULER_ENABLED" envDefault:"true"`
	Interval    time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1h"`
	Workers     int           `env:"SCHEDULER_WORKERS" envDefault:"8"`
	BatchSize   int32         `env:"SCHEDULER_BATCH_SIZE" envDefault:"100"`
	HoldTTL     time.Duration `env:"SCHEDULER_HOLD_TTL" envDefault:"24h"`
	MaxAttempts int           `env:"RECURRING_MAX_ATTEMPTS" envDefault:"3"`

	// MaxTransientSweeps is how many sweeps in a row a charge may fail
	// transiently before it counts toward MaxAttempts
	MaxTransientSweeps int `env:"RECURRING_MAX_TRANSIENT_SWEEPS" envDefault:"3"`
}

// NotifierConfig sizes the asynchronous notification dispatcher
type NotifierConfig struct {
	QueueSize int           `env:"NOTIFIER_QUEUE_SIZE" envDefault:"1024"`
	Workers   int           `env:"NOTIFIER_WORKERS" envDefault:"4"`
	Timeout   time.Duration `env:"NOTIFIER_TIMEOUT" envDefault:"5s"`
}

// TracingConfig configures OpenTelemetry export
type TracingConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" envDefault:"funding-service"`
	SampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Development bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`
}

// LoadFromEnv loads an optional .env file and then parses the environment
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and bounds
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case "memory":
		if c.Environment == "production" {
			return fmt.Errorf("STORE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Database.Driver)
	}
	if c.Server.CronSecret == "" && c.Environment == "production" {
		return fmt.Errorf("CRON_SECRET is required in production")
	}
	switch c.Secrets.Provider {
	case "local", "aws", "vault":
	default:
		return fmt.Errorf("unsupported SECRETS_PROVIDER %q", c.Secrets.Provider)
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("SCHEDULER_WORKERS must be at least 1")
	}
	if c.Scheduler.MaxAttempts < 1 {
		return fmt.Errorf("RECURRING_MAX_ATTEMPTS must be at least 1")
	}
	if c.Scheduler.MaxTransientSweeps < 1 {
		return fmt.Errorf("RECURRING_MAX_TRANSIENT_SWEEPS must be at least 1")
	}
	if c.Scheduler.HoldTTL < c.Gateway.CallTimeout {
		return fmt.Errorf("SCHEDULER_HOLD_TTL must not be below GATEWAY_CALL_TIMEOUT")
	}
	if c.Gateway.AttemptTimeout >= c.Gateway.CallTimeout {
		return fmt.Errorf("GATEWAY_ATTEMPT_TIMEOUT must be below GATEWAY_CALL_TIMEOUT")
	}
	return nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
