// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Blockchain settings
	RPCURL       string
	ChainID      int64
	PrivateKey   string // Hex-encoded, no 0x prefix
	USDCContract string

	// Bet protocol settings
	MinStake        string        // Smallest stake a bet may carry (USDC)
	MaxStake        string        // Largest stake a bet may carry (USDC)
	DefaultOfferTTL time.Duration // How long an open bet stays counterable
	DisputeWindow   time.Duration // How long the counter-party has to dispute a win claim

	// Background sweeps (extension point; both off by default)
	SweepExpiredOffers bool // Auto-cancel and refund expired open bets
	SweepClaimTimeouts bool // Auto-resolve win_claimed bets after the dispute window

	// Rate limiting
	RateLimitRPM     int // HTTP requests per minute per client
	ActionsPerMinute int // Propose/counter actions per agent per minute

	// Security
	AdminSecret string // Admin API secret (X-Admin-Secret header)

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (optional)
}

// Base Sepolia defaults
const (
	DefaultRPCURL       = "https://sepolia.base.org"
	DefaultChainID      = 84532                                        // Base Sepolia
	DefaultUSDCContract = "0x036CbD53842c5426634e7929541eC2318f3dCF7e" // Base Sepolia USDC
	DefaultPort         = "8080"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"
	DefaultMinStake     = "0.01"
	DefaultMaxStake     = "10000"
	DefaultOfferTTL     = 72 * time.Hour
	DefaultDispute      = 48 * time.Hour
	DefaultRateLimit    = 100
	DefaultActionLimit  = 10
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RPCURL:             getEnv("RPC_URL", DefaultRPCURL),
		ChainID:            getEnvInt64("CHAIN_ID", DefaultChainID),
		PrivateKey:         os.Getenv("PRIVATE_KEY"), // Required, no default
		USDCContract:       getEnv("USDC_CONTRACT", DefaultUSDCContract),
		MinStake:           getEnv("MIN_STAKE", DefaultMinStake),
		MaxStake:           getEnv("MAX_STAKE", DefaultMaxStake),
		DefaultOfferTTL:    getEnvDuration("OFFER_TTL", DefaultOfferTTL),
		DisputeWindow:      getEnvDuration("DISPUTE_WINDOW", DefaultDispute),
		SweepExpiredOffers: getEnvBool("SWEEP_EXPIRED_OFFERS", false),
		SweepClaimTimeouts: getEnvBool("SWEEP_CLAIM_TIMEOUTS", false),
		RateLimitRPM:       int(getEnvInt64("RATE_LIMIT_RPM", int64(DefaultRateLimit))),
		ActionsPerMinute:   int(getEnvInt64("ACTIONS_PER_MINUTE", int64(DefaultActionLimit))),
		AdminSecret:        os.Getenv("ADMIN_SECRET"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
// A private key is only required outside development; without one the
// server runs in demo mode with simulated settlement.
func (c *Config) Validate() error {
	if c.PrivateKey == "" && !c.IsDevelopment() {
		return fmt.Errorf("PRIVATE_KEY is required outside development")
	}

	if c.PrivateKey != "" {
		// Allow both with and without 0x prefix
		key := c.PrivateKey
		if len(key) == 66 && key[:2] == "0x" {
			key = key[2:]
		}
		if len(key) != 64 {
			return fmt.Errorf("PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
		}
	}

	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if c.DefaultOfferTTL <= 0 {
		return fmt.Errorf("OFFER_TTL must be positive")
	}
	if c.DisputeWindow <= 0 {
		return fmt.Errorf("DISPUTE_WINDOW must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
