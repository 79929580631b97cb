// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/stocktrader/internal/clientdata"
	"github.com/aristath/stocktrader/internal/domain"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir          string // Base directory for all databases (always absolute)
	LedgerDBPath     string // positions ledger (defaults to DataDir/portfolio.db)
	ClientDataDBPath string // quote cache (defaults to DataDir/client_data.db)
	DefaultUserID    string // identity used when a request carries none
	LogLevel         string
	LogPretty        bool
	Port             int
	DevMode          bool
	Price            PriceConfig
	Report           ReportConfig
	// Cron expression for database maintenance; empty disables the scheduler
	MaintenanceSchedule string
}

// PriceConfig configures the price oracle client
type PriceConfig struct {
	APIURL            string
	Timeout           time.Duration
	CacheTTL          time.Duration // 0 disables the quote cache
	RequestsPerSecond float64
	Burst             int
}

// ReportConfig configures portfolio report pricing
type ReportConfig struct {
	Concurrency   int           // parallel oracle lookups per report
	LookupTimeout time.Duration // per-symbol deadline
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TRADER_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		LedgerDBPath:     getEnv("LEDGER_DB_PATH", filepath.Join(absDataDir, "portfolio.db")),
		ClientDataDBPath: getEnv("CLIENT_DATA_DB_PATH", filepath.Join(absDataDir, "client_data.db")),
		DefaultUserID:    strings.TrimSpace(getEnv("DEFAULT_USER_ID", domain.DefaultUserID)),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogPretty:        getEnvAsBool("LOG_PRETTY", true),
		Port:             getEnvAsInt("GO_PORT", 8001),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		Price: PriceConfig{
			APIURL:            getEnv("PRICE_API_URL", "https://query1.finance.yahoo.com"),
			Timeout:           getEnvAsDuration("PRICE_TIMEOUT", 10*time.Second),
			CacheTTL:          getEnvAsDuration("PRICE_CACHE_TTL", clientdata.TTLCurrentPrice),
			RequestsPerSecond: getEnvAsFloat("PRICE_RATE_LIMIT", 5),
			Burst:             getEnvAsInt("PRICE_RATE_BURST", 5),
		},
		Report: ReportConfig{
			Concurrency:   getEnvAsInt("REPORT_CONCURRENCY", 4),
			LookupTimeout: getEnvAsDuration("REPORT_LOOKUP_TIMEOUT", 15*time.Second),
		},
		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "0 3 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DefaultUserID == "" {
		return fmt.Errorf("DEFAULT_USER_ID must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT out of range: %d", c.Port)
	}
	if c.Price.APIURL == "" {
		return fmt.Errorf("PRICE_API_URL must not be empty")
	}
	if c.Price.RequestsPerSecond <= 0 {
		return fmt.Errorf("PRICE_RATE_LIMIT must be positive, got %v", c.Price.RequestsPerSecond)
	}
	if c.Price.Burst < 1 {
		return fmt.Errorf("PRICE_RATE_BURST must be at least 1, got %d", c.Price.Burst)
	}
	if c.Price.CacheTTL < 0 {
		return fmt.Errorf("PRICE_CACHE_TTL must not be negative")
	}
	if c.Report.Concurrency < 1 {
		return fmt.Errorf("REPORT_CONCURRENCY must be at least 1, got %d", c.Report.Concurrency)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
