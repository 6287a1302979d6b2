package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/stockquest/rebalancer/internal/domain"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	LogLevel     string
	Port         int
	DevMode      bool

	// Cost model applied by the rebalancing engine.
	TransactionCostRate decimal.Decimal
	TaxRate             decimal.Decimal
	AssumedGainRate     decimal.Decimal

	// Analytics assumptions.
	RiskFreeRate float64

	// Cron expression for the drift check job.
	DriftCheckSchedule string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	defaults := domain.DefaultCostModel()

	cfg := &Config{
		Port:                getEnvAsInt("PORT", 8001),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		DatabasePath:        getEnv("DATABASE_PATH", "./data/rebalancer.db"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		TransactionCostRate: getEnvAsDecimal("TRANSACTION_COST_RATE", defaults.TransactionCostRate),
		TaxRate:             getEnvAsDecimal("TAX_RATE", defaults.TaxRate),
		AssumedGainRate:     getEnvAsDecimal("ASSUMED_GAIN_RATE", defaults.AssumedGainRate),
		RiskFreeRate:        getEnvAsFloat("RISK_FREE_RATE", 0.02),
		DriftCheckSchedule:  getEnv("DRIFT_CHECK_SCHEDULE", "0 0 18 * * MON-FRI"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.TransactionCostRate.IsNegative() {
		return fmt.Errorf("TRANSACTION_COST_RATE must not be negative")
	}
	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("TAX_RATE must be between 0 and 1")
	}
	return nil
}

// CostModel returns the configured engine cost model
func (c *Config) CostModel() domain.CostModel {
	return domain.CostModel{
		TransactionCostRate: c.TransactionCostRate,
		TaxRate:             c.TaxRate,
		AssumedGainRate:     c.AssumedGainRate,
	}
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if decVal, err := decimal.NewFromString(value); err == nil {
			return decVal
		}
	}
	return defaultValue
}
