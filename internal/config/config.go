package config

import "fmt"

// Config holds all configuration for the search index service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"SEARCH_HTTP_PORT" envDefault:"8010"`

	// PostgreSQL (catalog + index live in the same store)
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"catalog"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"catalog_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"catalog"`
	PostgresSSL  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINS" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINS" envDefault:"30"`
	SlowQueryMS           int   `env:"SLOW_QUERY_MS" envDefault:"500"`

	// Reindex execution mode: "inprocess" runs the index builder on the
	// service's own pool; "worker" spawns WorkerCommand and drives it over
	// the message protocol.
	IndexerMode   string `env:"INDEXER_MODE" envDefault:"inprocess"`
	WorkerCommand string `env:"INDEX_WORKER_COMMAND" envDefault:"indexworker"`

	// Channel/tenant defaults used for reindex request contexts.
	DefaultChannelID    string `env:"DEFAULT_CHANNEL_ID" envDefault:"default"`
	DefaultLanguageCode string `env:"DEFAULT_LANGUAGE_CODE" envDefault:"en"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"search-index-service"`

	// Redis (count cache + consumer idempotency); optional.
	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	CacheTTLSecs  int    `env:"SEARCH_CACHE_TTL_SECS" envDefault:"60"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := Parse(cfg); err != nil {
		return nil, fmt.Errorf("load search index config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.IndexerMode {
	case "inprocess", "worker":
	default:
		return fmt.Errorf("invalid indexer mode: %q (want inprocess or worker)", c.IndexerMode)
	}
	if c.IndexerMode == "worker" && c.WorkerCommand == "" {
		return fmt.Errorf("worker mode requires INDEX_WORKER_COMMAND")
	}
	return nil
}
