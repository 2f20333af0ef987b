// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Kafka         KafkaConfig        `mapstructure:"kafka"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Breaker       BreakerConfig      `mapstructure:"breaker"`
	Stages        StagesConfig       `mapstructure:"stages"`
	Scoring       ScoringConfig      `mapstructure:"scoring"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	API           APIConfig          `mapstructure:"api"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// KafkaConfig covers the broker connection, topic names, and publisher
// delivery policy.
type KafkaConfig struct {
	Brokers   []string        `mapstructure:"brokers"`
	Topics    TopicsConfig    `mapstructure:"topics"`
	Groups    GroupsConfig    `mapstructure:"consumer_groups"`
	Publisher PublisherConfig `mapstructure:"publisher"`
}

type TopicsConfig struct {
	ApplicationsSubmitted string `mapstructure:"applications_submitted"`
	CreditReports         string `mapstructure:"credit_reports"`
	DeadLetter            string `mapstructure:"dead_letter"`
}

type GroupsConfig struct {
	Credit   string `mapstructure:"credit"`
	Decision string `mapstructure:"decision"`
}

// PublisherConfig bounds the publish retry loop: exactly MaxAttempts
// attempts, AttemptTimeout per attempt, linear backoff of
// BackoffStep * attempt between attempts.
type PublisherConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	BackoffStep    time.Duration `mapstructure:"backoff_step"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// BreakerConfig tunes the circuit breaker guarding the record store.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// StagesConfig enables/disables the hosted consumer runtimes.
type StagesConfig struct {
	Credit   StageConfig `mapstructure:"credit"`
	Decision StageConfig `mapstructure:"decision"`
}

type StageConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// ScoringConfig controls the simulated bureau scorer. A zero seed means
// time-based seeding; tests inject a fixed seed for reproducibility.
type ScoringConfig struct {
	Seed int64 `mapstructure:"seed"`
}

// NotificationConfig holds settings for decision notifications.
type NotificationConfig struct {
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

type APIConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
