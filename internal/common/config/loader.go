// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	// Enable ENV override like KAFKA_BROKERS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, e.g. config.production.yaml
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // ignore error if not found

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the working directory or the project root so
// binaries and tests behave the same regardless of where they run.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up directories looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// ApplyDefaults fills unset fields with the reference values. Exported so
// tests can build a complete config from scratch.
func ApplyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "prequal-pipeline"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.Topics.ApplicationsSubmitted == "" {
		cfg.Kafka.Topics.ApplicationsSubmitted = "applications.submitted"
	}
	if cfg.Kafka.Topics.CreditReports == "" {
		cfg.Kafka.Topics.CreditReports = "credit.reports"
	}
	if cfg.Kafka.Topics.DeadLetter == "" {
		cfg.Kafka.Topics.DeadLetter = "processing.deadletter"
	}
	if cfg.Kafka.Groups.Credit == "" {
		cfg.Kafka.Groups.Credit = "credit-service-group"
	}
	if cfg.Kafka.Groups.Decision == "" {
		cfg.Kafka.Groups.Decision = "decision-service-group"
	}
	if cfg.Kafka.Publisher.MaxAttempts <= 0 {
		cfg.Kafka.Publisher.MaxAttempts = 3
	}
	if cfg.Kafka.Publisher.AttemptTimeout <= 0 {
		cfg.Kafka.Publisher.AttemptTimeout = 5 * time.Second
	}
	if cfg.Kafka.Publisher.BackoffStep <= 0 {
		cfg.Kafka.Publisher.BackoffStep = 500 * time.Millisecond
	}

	if cfg.Database.Postgres.Host == "" {
		cfg.Database.Postgres.Host = "localhost"
	}
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.Database == "" {
		cfg.Database.Postgres.Database = "loandb"
	}
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = "postgres"
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 20
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Redis.Address == "" {
		cfg.Database.Redis.Address = "localhost:6379"
	}
	if cfg.Database.Redis.TTL <= 0 {
		cfg.Database.Redis.TTL = time.Hour
	}

	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.Cooldown <= 0 {
		cfg.Breaker.Cooldown = 60 * time.Second
	}

	if cfg.Stages.Credit.OperationTimeout <= 0 {
		cfg.Stages.Credit.OperationTimeout = 10 * time.Second
	}
	if cfg.Stages.Decision.OperationTimeout <= 0 {
		cfg.Stages.Decision.OperationTimeout = 10 * time.Second
	}

	if cfg.API.Address == "" {
		cfg.API.Address = ":8080"
	}
	if cfg.API.ShutdownTimeout <= 0 {
		cfg.API.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9091"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must not be empty")
	}
	if cfg.Kafka.Topics.ApplicationsSubmitted == cfg.Kafka.Topics.DeadLetter ||
		cfg.Kafka.Topics.CreditReports == cfg.Kafka.Topics.DeadLetter {
		return fmt.Errorf("dead letter topic must differ from processing topics")
	}
	if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
		return fmt.Errorf("notifications.sns.topic_arn required when SNS is enabled")
	}
	return nil
}
