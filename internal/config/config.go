package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrEmptyEnvironmentVariable = errors.New("empty environment variable")
	ErrInvalidProfile           = errors.New("invalid kafka profile")
	ErrInvalidPartitionKey      = errors.New("invalid partition key strategy")
	ErrNegativeDuration         = errors.New("duration must not be negative")
)

// Kafka client profiles. Both run the same bridge; they only differ in how the
// clients reach the brokers.
const (
	ProfileLocal  = "local"
	ProfileHosted = "hosted"
)

// Partition key strategies for produced records.
const (
	PartitionKeyConstant  = "constant"
	PartitionKeyMessageID = "message_id"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Database    DatabaseConfig
	Kafka       KafkaConfig
	Server      ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL      string
	Host     string
	Username string
	Password string
	Name     string
	SSLMode  string
}

// KafkaConfig holds broker settings shared by the producer and the consumer
type KafkaConfig struct {
	Profile        string
	Brokers        []string
	SASLUsername   string
	SASLPassword   string
	Topic          string
	ConsumerGroup  string
	PartitionKey   string
	PublishTimeout time.Duration
	SessionTimeout time.Duration
	CommitInterval time.Duration
	CreateTopic    bool
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port               int
	CORSAllowedOrigins []string
}

// IsProduction reports whether GO_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	return FromEnv()
}

// FromEnv builds the configuration from the current process environment.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Environment: getEnvWithDefault("GO_ENV", "development"),
	}

	var err error
	if cfg.Database, err = loadDatabase(); err != nil {
		return nil, err
	}
	if cfg.Kafka, err = loadKafka(); err != nil {
		return nil, err
	}

	cfg.Server.Port, err = strconv.Atoi(getEnvWithDefault("SERVER_PORT", "8000"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}
	cfg.Server.CORSAllowedOrigins = splitList(getEnvWithDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000"))

	return cfg, nil
}

func loadDatabase() (DatabaseConfig, error) {
	db := DatabaseConfig{
		URL:     os.Getenv("DATABASE_URL"),
		SSLMode: getEnvWithDefault("DB_SSLMODE", "disable"),
	}
	if db.URL != "" {
		return db, nil
	}

	var err error
	if db.Host, err = requireEnv("DB_HOST"); err != nil {
		return db, err
	}
	if db.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return db, err
	}
	if db.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return db, err
	}
	if db.Name, err = requireEnv("DB_NAME"); err != nil {
		return db, err
	}
	return db, nil
}

func loadKafka() (KafkaConfig, error) {
	k := KafkaConfig{
		Profile:       getEnvWithDefault("KAFKA_PROFILE", ProfileLocal),
		Topic:         getEnvWithDefault("KAFKA_TOPIC", "messages"),
		ConsumerGroup: getEnvWithDefault("KAFKA_CONSUMER_GROUP", "message-bridge"),
		PartitionKey:  getEnvWithDefault("KAFKA_PARTITION_KEY", PartitionKeyConstant),
	}

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = os.Getenv("KAFKA_URL")
	}
	if brokers == "" {
		return k, fmt.Errorf("KAFKA_BROKERS is not set: %w", ErrEmptyEnvironmentVariable)
	}
	k.Brokers = splitList(brokers)

	switch k.Profile {
	case ProfileLocal:
	case ProfileHosted:
		var err error
		if k.SASLUsername, err = requireEnv("KAFKA_SASL_USER"); err != nil {
			return k, err
		}
		if k.SASLPassword, err = requireEnv("KAFKA_SASL_PASS"); err != nil {
			return k, err
		}
	default:
		return k, fmt.Errorf("%w: %q", ErrInvalidProfile, k.Profile)
	}

	switch k.PartitionKey {
	case PartitionKeyConstant, PartitionKeyMessageID:
	default:
		return k, fmt.Errorf("%w: %q", ErrInvalidPartitionKey, k.PartitionKey)
	}

	var err error
	if k.PublishTimeout, err = durationEnv("KAFKA_PUBLISH_TIMEOUT", 5*time.Second); err != nil {
		return k, err
	}
	if k.SessionTimeout, err = durationEnv("KAFKA_SESSION_TIMEOUT", 6*time.Second); err != nil {
		return k, err
	}
	if k.CommitInterval, err = durationEnv("KAFKA_COMMIT_INTERVAL", time.Second); err != nil {
		return k, err
	}
	if k.CreateTopic, err = strconv.ParseBool(getEnvWithDefault("KAFKA_CREATE_TOPIC", "false")); err != nil {
		return k, fmt.Errorf("failed to parse KAFKA_CREATE_TOPIC: %w", err)
	}

	return k, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		url.QueryEscape(c.Username), url.QueryEscape(c.Password), c.Host, c.Name, c.SSLMode)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s=%s: %w", key, value, ErrNegativeDuration)
	}
	return d, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
