package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port         string
	DatabasePath string
	LogLevel     string

	// Security settings
	JWTSecret         string
	AccessTokenExpiry time.Duration

	// Market data provider (eBay) settings
	EbayClientID     string
	EbayClientSecret string
	EbayTokenURL     string
	EbayBrowseURL    string
	EbayScope        string

	// Quote persistence throttle. A quote for a variant key is only written to
	// price_history if the previous one is older than this window.
	QuoteFreshnessWindow time.Duration

	// Token bucket for outbound market calls during a batch refresh.
	MarketRateInterval time.Duration
	MarketRateBurst    int

	// Frontend URL for reference (e.g., CORS)
	FrontendBaseURL string
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
// It centralizes all configuration logic for the application.
func LoadConfig() {
	// 1. Try loading from the current directory (standard behavior)
	errEnv := godotenv.Load()

	// 2. If not found, try loading from the parent directory (common when running from /backend)
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables (expected in production).")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	jwtSecret := getRequiredEnv("JWT_SECRET")

	Cfg = &AppConfig{
		// Core
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./collectr.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		// Security
		JWTSecret:         jwtSecret,
		AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 24*time.Hour),

		// Market data provider
		EbayClientID:     getEnv("EBAY_CLIENT_ID", ""),
		EbayClientSecret: getEnv("EBAY_CLIENT_SECRET", ""),
		EbayTokenURL:     getEnv("EBAY_TOKEN_URL", "https://api.ebay.com/identity/v1/oauth2/token"),
		EbayBrowseURL:    getEnv("EBAY_BROWSE_URL", "https://api.ebay.com/buy/browse/v1/item_summary/search"),
		EbayScope:        getEnv("EBAY_SCOPE", "https://api.ebay.com/oauth/api_scope"),

		// Quote throttle and provider rate limiting
		QuoteFreshnessWindow: getEnvAsDuration("QUOTE_FRESHNESS_WINDOW", 1*time.Hour),
		MarketRateInterval:   getEnvAsDuration("MARKET_RATE_INTERVAL", 2*time.Second),
		MarketRateBurst:      getEnvAsInt("MARKET_RATE_BURST", 1),

		FrontendBaseURL: getEnv("APP_BASE_URL", "http://localhost:3000"),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, QuoteFreshness=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.QuoteFreshnessWindow)
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getRequiredEnv retrieves an environment variable or terminates the application if not set.
func getRequiredEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set or is empty. Application cannot start securely.", key)
	}
	return value
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
