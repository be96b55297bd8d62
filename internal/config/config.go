package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"docstream"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"docstream"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	KafkaBroker   string `envconfig:"KAFKA_BROKER" default:"localhost:9092"`
	ConsumerGroup string `envconfig:"CONSUMER_GROUP" default:"ingestion-workers"`

	EnableAPI    bool `envconfig:"ENABLE_API" default:"true"`
	EnableWorker bool `envconfig:"ENABLE_WORKER" default:"false"`

	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Message-level retries before a job is dead-lettered.
	MaxDeliveryAttempts int `envconfig:"MAX_DELIVERY_ATTEMPTS" default:"3"`
	// Call-site retries for the embedding API within one delivery.
	EmbedRetryAttempts int `envconfig:"EMBED_RETRY_ATTEMPTS" default:"2"`
	ConsumerBatchSize  int `envconfig:"CONSUMER_BATCH_SIZE" default:"50"`

	HealthIntervalSeconds    int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"60"`
	ReconcileIntervalSeconds int `envconfig:"RECONCILE_INTERVAL_SECONDS" default:"300"`
	ReconcileMinAgeSeconds   int `envconfig:"RECONCILE_MIN_AGE_SECONDS" default:"600"`

	// Server
	ServerPort int `envconfig:"SERVER_PORT" default:"8081"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may be set in the shell, so .env load errors are ignored.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.KafkaBroker == "" {
		return fmt.Errorf("%w: KAFKA_BROKER", ErrMissingRequired)
	}
	if c.EnableWorker && c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY (required when ENABLE_WORKER=true)", ErrMissingRequired)
	}
	return nil
}
