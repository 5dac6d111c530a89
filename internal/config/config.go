package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration. It is built once in main and
// passed by pointer to whatever needs it.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Catalog  CatalogConfig
	Delivery DeliveryConfig
}

type HTTPConfig struct {
	Address     string
	RateLimit   float64 // requests per second per client
	RateBurst   int
	CORSOrigins []string
}

// DatabaseConfig selects the SQL driver. Driver is "mysql" or "sqlite3".
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	Path     string // sqlite3 only
	Retries  int
}

type RedisConfig struct {
	Addr           string // empty disables Idempotency-Key handling
	IdempotencyTTL time.Duration
}

type KafkaConfig struct {
	Brokers       []string // empty disables event publishing
	OrderTopic    string
	DeliveryTopic string
}

type AuthConfig struct {
	JWTSecret string
}

type CatalogConfig struct {
	URL     string
	Timeout time.Duration
}

type DeliveryConfig struct {
	Fee decimal.Decimal
}

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	retries, err := getEnvInt("DB_RETRIES", 10)
	if err != nil {
		return nil, err
	}
	burst, err := getEnvInt("RATE_BURST", 10)
	if err != nil {
		return nil, err
	}
	rps, err := getEnvFloat("RATE_LIMIT", 5)
	if err != nil {
		return nil, err
	}
	ttl, err := getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	catalogTimeout, err := getEnvDuration("CATALOG_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, err
	}
	fee, err := decimal.NewFromString(getEnv("DELIVERY_FEE", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid decimal for DELIVERY_FEE: %w", err)
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			Address:     getEnv("HTTP_ADDRESS", ":8082"),
			RateLimit:   rps,
			RateBurst:   burst,
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "mysql"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "3306"),
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASS", ""),
			Name:     getEnv("DB_NAME", "gawa"),
			Path:     getEnv("DB_PATH", "gawa.db"),
			Retries:  retries,
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			IdempotencyTTL: ttl,
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(getEnv("KAFKA_BROKERS", "")),
			OrderTopic:    getEnv("KAFKA_ORDER_TOPIC", "order-topic"),
			DeliveryTopic: getEnv("KAFKA_DELIVERY_TOPIC", "delivery-topic"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Catalog: CatalogConfig{
			URL:     strings.TrimRight(getEnv("CATALOG_URL", "http://localhost:8081"), "/"),
			Timeout: catalogTimeout,
		},
		Delivery: DeliveryConfig{
			Fee: fee,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is not set")
	}
	switch c.Database.Driver {
	case "mysql", "sqlite3":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Delivery.Fee.IsNegative() {
		return fmt.Errorf("DELIVERY_FEE must not be negative")
	}
	return nil
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	return fmt.Sprintf("Config{HTTP: %s, DB: %s/%s, Redis: %q, Kafka: %v, Auth: *** (masked) ***}",
		c.HTTP.Address, c.Database.Driver, c.Database.Name, c.Redis.Addr, c.Kafka.Brokers)
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	if value, exists := os.LookupEnv(key); exists {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %w", key, err)
		}
		return f, nil
	}
	return defaultVal, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return d, nil
	}
	return defaultVal, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
