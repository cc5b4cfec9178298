// Package config provides configuration management for the wallet watcher.
// It loads configuration from environment variables and .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wallet-watch/internal/types"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Worker   WorkerConfig
	Database DatabaseConfig
	Explorer ExplorerConfig
	Sweep    SweepConfig
	Telegram TelegramConfig
	Payment  PaymentConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// WorkerConfig holds settings for the sweep worker process
type WorkerConfig struct {
	MetricsPort string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver     string
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
	MigrationsPath string
}

// URL returns the connection string used by pgx and golang-migrate
func (p PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		p.User, p.Password, p.Host, p.Port, p.Database)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MigrationsPath string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
	SessionTTL     time.Duration
	DedupTTL       time.Duration
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// ExplorerConfig holds Etherscan API configuration
type ExplorerConfig struct {
	APIKey      string
	BaseURL     string
	ChainID     int
	RPS         float64
	Timeout     time.Duration
	MaxAttempts int
	PageSize    int // txlist records per query, capped at 10000 by Etherscan
}

// SweepConfig holds sweep engine configuration
type SweepConfig struct {
	Interval      time.Duration
	Concurrency   int
	NotifyTimeout time.Duration
	LeaseTTL      time.Duration
}

// TelegramConfig holds bot configuration
type TelegramConfig struct {
	BotToken string
}

// PaymentConfig holds the payment webhook secret and per-plan checkout links
type PaymentConfig struct {
	WebhookSecret string
	Links         map[types.PlanTier]string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional; environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Worker: WorkerConfig{
			MetricsPort: getEnv("WORKER_METRICS_PORT", "9090"),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "wallet_watch"),
				User:           getEnv("POSTGRES_USER", "watcher"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
				MigrationsPath: getEnv("POSTGRES_MIGRATIONS_PATH", "migrations/postgres"),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "wallet_watch"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),

				MigrationsPath: getEnv("CLICKHOUSE_MIGRATIONS_PATH", "migrations/clickhouse"),
			},
			Redis: RedisConfig{
				Enabled:        getEnvAsBool("REDIS_ENABLED", true),
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
				SessionTTL:     getEnvAsDuration("REDIS_SESSION_TTL", 30*time.Minute),
				DedupTTL:       getEnvAsDuration("REDIS_DEDUP_TTL", 7*24*time.Hour),
			},
		},
		Explorer: ExplorerConfig{
			APIKey:      getEnv("ETHERSCAN_API_KEY", ""),
			BaseURL:     getEnv("ETHERSCAN_BASE_URL", "https://api.etherscan.io/v2/api"),
			ChainID:     getEnvAsInt("ETHERSCAN_CHAIN_ID", 1),
			RPS:         getEnvAsFloat("EXPLORER_RPS", 3),
			Timeout:     getEnvAsDuration("EXPLORER_TIMEOUT", 15*time.Second),
			MaxAttempts: getEnvAsInt("EXPLORER_MAX_ATTEMPTS", 3),
			PageSize:    getEnvAsInt("EXPLORER_PAGE_SIZE", 10000),
		},
		Sweep: SweepConfig{
			Interval:      getEnvAsDuration("SWEEP_INTERVAL", 30*time.Second),
			Concurrency:   getEnvAsInt("SWEEP_CONCURRENCY", 4),
			NotifyTimeout: getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),
			LeaseTTL:      getEnvAsDuration("SWEEP_LEASE_TTL", 5*time.Minute),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		},
		Payment: PaymentConfig{
			WebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			Links:         loadPaymentLinks(),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// Validate reports every missing or malformed setting at once
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if strings.TrimSpace(c.Explorer.APIKey) == "" {
		errs = append(errs, errors.New("ETHERSCAN_API_KEY is required"))
	}

	switch c.Database.Driver {
	case StoreDriverPostgres:
		if c.Database.Postgres.Password == "" {
			errs = append(errs, errors.New("POSTGRES_PASSWORD is required when STORE_DRIVER=postgres"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.Database.Driver))
	}

	if c.Sweep.Interval <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.Sweep.Interval))
	}
	if c.Sweep.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("SWEEP_CONCURRENCY must be at least 1, got %d", c.Sweep.Concurrency))
	}
	if c.Explorer.RPS <= 0 {
		errs = append(errs, fmt.Errorf("EXPLORER_RPS must be positive, got %v", c.Explorer.RPS))
	}
	if c.Explorer.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("EXPLORER_MAX_ATTEMPTS must be at least 1, got %d", c.Explorer.MaxAttempts))
	}

	return errors.Join(errs...)
}

// Redacted returns a loggable summary with secrets masked
func (c *Config) Redacted() map[string]interface{} {
	return map[string]interface{}{
		"store_driver":      c.Database.Driver,
		"postgres_host":     c.Database.Postgres.Host,
		"redis_enabled":     c.Database.Redis.Enabled,
		"clickhouse":        c.Database.ClickHouse.Enabled,
		"explorer_url":      c.Explorer.BaseURL,
		"explorer_chain_id": c.Explorer.ChainID,
		"explorer_api_key":  mask(c.Explorer.APIKey),
		"telegram_token":    mask(c.Telegram.BotToken),
		"sweep_interval":    c.Sweep.Interval.String(),
		"sweep_concurrency": c.Sweep.Concurrency,
	}
}

func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// loadPaymentLinks reads PLAN_PAYMENT_LINK_<TAG> for every paid plan
func loadPaymentLinks() map[types.PlanTier]string {
	links := make(map[types.PlanTier]string)
	for _, tier := range []types.PlanTier{
		types.PlanBasic, types.PlanIntermediate, types.PlanAdvanced, types.PlanPro, types.PlanLifetime,
	} {
		if link := getEnv("PLAN_PAYMENT_LINK_"+strings.ToUpper(string(tier)), ""); link != "" {
			links[tier] = link
		}
	}
	return links
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
