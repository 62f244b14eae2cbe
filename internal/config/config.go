// Package config provides environment-aware configuration management
// for the compensation engine.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds all engine configuration, loaded from the environment.
type Config struct {
	Env Environment

	// Logging
	LogLevel  string
	LogFormat string

	// Timezone the session scheduler and fund engine use for dateKey/
	// month/year boundaries (spec.md §6: default "Asia/Kolkata").
	Timezone string

	// Plan percentages (spec.md §6), expressed in whole percent except
	// where noted.
	CarPoolPercent     float64
	HousePoolPercent   float64
	RoyaltyPoolPercent float64
	LevelCount         int
	PairsPerRankStep   int

	// EPINToken, when true, makes epin.Service.Transfer look the code up
	// before transferring it. EPIN consumption does not read it:
	// activation and epin.Service.Consume consume a code whatever its
	// value.
	EPINToken bool

	// Storage
	DatabaseURL      string
	DBMaxConnections int
	RedisAddr        string
	RedisEnabled     bool

	// Feature toggles
	TestMode bool
}

// Load loads configuration based on the ENGINE_ENV environment variable,
// optionally layering a `config/<env>.env` dotenv file first.
func Load() (*Config, error) {
	envStr := os.Getenv("ENGINE_ENV")
	if envStr == "" {
		envStr = string(Development)
	}
	env := Environment(envStr)
	switch env {
	case Development, Testing, Production:
	default:
		return nil, fmt.Errorf("invalid ENGINE_ENV: %s (must be development, testing, or production)", envStr)
	}

	configFile := fmt.Sprintf("config/%s.env", env)
	if err := godotenv.Load(configFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Printf("warning: could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{Env: env}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	c.Timezone = getEnv("ENGINE_TIMEZONE", "Asia/Kolkata")

	carPool, err := getFloatEnv("CAR_POOL_PERCENT", 2.0)
	if err != nil {
		return err
	}
	c.CarPoolPercent = carPool

	housePool, err := getFloatEnv("HOUSE_POOL_PERCENT", 2.0)
	if err != nil {
		return err
	}
	c.HousePoolPercent = housePool

	royaltyPool, err := getFloatEnv("ROYALTY_POOL_PERCENT", 2.0)
	if err != nil {
		return err
	}
	c.RoyaltyPoolPercent = royaltyPool

	c.LevelCount = getIntEnv("LEVEL_COUNT", 10)
	c.PairsPerRankStep = getIntEnv("PAIRS_PER_RANK_STEP", 8)
	c.EPINToken = getBoolEnv("EPIN_TOKEN", true)

	c.DatabaseURL = getEnv("DATABASE_URL", "")
	c.DBMaxConnections = getIntEnv("DB_MAX_CONNECTIONS", 20)
	c.RedisAddr = getEnv("REDIS_ADDR", "")
	c.RedisEnabled = c.RedisAddr != ""

	c.TestMode = getBoolEnv("TEST_MODE", false)

	return nil
}

// IsDevelopment reports whether the engine is running in development mode.
func (c *Config) IsDevelopment() bool { return c.Env == Development }

// IsProduction reports whether the engine is running in production mode.
func (c *Config) IsProduction() bool { return c.Env == Production }

// Validate checks invariants that must hold before the engine starts.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.TestMode {
			return fmt.Errorf("TEST_MODE must be false in production")
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid ENGINE_TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.CarPoolPercent < 0 || c.HousePoolPercent < 0 || c.RoyaltyPoolPercent < 0 {
		return fmt.Errorf("pool percentages must be non-negative")
	}
	if c.LevelCount <= 0 {
		return fmt.Errorf("LEVEL_COUNT must be positive")
	}
	if c.PairsPerRankStep <= 0 {
		return fmt.Errorf("PAIRS_PER_RANK_STEP must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
