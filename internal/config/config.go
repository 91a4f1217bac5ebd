package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/rl1809/slot-inventory/internal/core/domain"
)

const (
	ServiceName    = "slot-inventory"
	ServiceVersion = "0.1.0"
)

const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds everything that changes between environments.
type Config struct {
	HTTPAddr         string
	GRPCAddr         string
	StorageDriver    string
	MySQLDSN         string
	RedisAddr        string
	KafkaBroker      string
	KafkaTopic       string
	OtelEndpoint     string
	Limits           domain.Limits
	PublisherWorkers int
	EventQueueSize   int
	IdempotencyTTL   time.Duration
}

// Load reads a .env file when one exists and then the process environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	cfg := &Config{
		HTTPAddr:      getEnvOrDefault("HTTP_ADDR", ":8080"),
		GRPCAddr:      getEnvOrDefault("GRPC_ADDR", ":50051"),
		StorageDriver: getEnvOrDefault("STORAGE_DRIVER", DriverMySQL),
		MySQLDSN:      os.Getenv("MYSQL_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		KafkaBroker:   os.Getenv("KAFKA_BROKER"),
		KafkaTopic:    getEnvOrDefault("KAFKA_TOPIC", "inventory-events"),
		OtelEndpoint:  os.Getenv("OTEL_ENDPOINT"),
	}

	var err error
	if cfg.Limits.MaxSlots, err = getIntOrDefault("MAX_SLOTS", 100); err != nil {
		return nil, err
	}
	if cfg.Limits.MaxItemsPerSlot, err = getIntOrDefault("MAX_ITEMS_PER_SLOT", 1000); err != nil {
		return nil, err
	}
	if cfg.PublisherWorkers, err = getIntOrDefault("PUBLISHER_WORKERS", 2); err != nil {
		return nil, err
	}
	if cfg.EventQueueSize, err = getIntOrDefault("EVENT_QUEUE_SIZE", 1024); err != nil {
		return nil, err
	}
	ttl := getEnvOrDefault("IDEMPOTENCY_TTL", "24h")
	if cfg.IdempotencyTTL, err = time.ParseDuration(ttl); err != nil {
		return nil, fmt.Errorf("IDEMPOTENCY_TTL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	switch c.StorageDriver {
	case DriverMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("MYSQL_DSN is required when STORAGE_DRIVER=%s", DriverMySQL)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.PublisherWorkers <= 0 {
		return fmt.Errorf("PUBLISHER_WORKERS must be positive, got %d", c.PublisherWorkers)
	}
	if c.EventQueueSize <= 0 {
		return fmt.Errorf("EVENT_QUEUE_SIZE must be positive, got %d", c.EventQueueSize)
	}
	if c.IdempotencyTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL must be positive, got %s", c.IdempotencyTTL)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
