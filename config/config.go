// Package config loads gateway configuration from environment
// variables, with an optional .env file for local development.
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment
// variables.
type Config struct {
	// HTTP surfaces
	ListenAddr  string
	MetricsAddr string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuditDBPath    string
	ApprovalDBPath string
	RefDataDBPath  string

	// Execution tuning
	DefaultMode      string // live or analyze
	Workers          int    // batch coordinator pool size
	OrdersPerSecond  int    // broker rate budget for batches and the regular queue tier
	SmartDelayMillis int    // gap between smart-order dispatches

	// Angel One credentials (optional; the angel adapter is only
	// registered when set)
	AngelAPIKey     string
	AngelClientCode string
	AngelPassword   string
	AngelTOTPSecret string

	// Gateway API key whose credentials the Angel session refresher
	// maintains (single-tenant deployments)
	GatewayAPIKey      string
	GatewayTradingMode string

	// Notifications (optional)
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string
}

// Load reads configuration with sensible defaults. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env")
	}

	return &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":5000"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		AuditDBPath:    getEnv("AUDIT_DB_PATH", "data/audit.db"),
		ApprovalDBPath: getEnv("APPROVAL_DB_PATH", "data/approval.db"),
		RefDataDBPath:  getEnv("REFDATA_DB_PATH", "data/symbols.db"),

		DefaultMode:      getEnv("DEFAULT_MODE", "live"),
		Workers:          getEnvInt("BATCH_WORKERS", 10),
		OrdersPerSecond:  getEnvInt("ORDERS_PER_SECOND", 10),
		SmartDelayMillis: getEnvInt("SMART_DELAY_MS", 1000),

		AngelAPIKey:     getEnv("ANGEL_API_KEY", ""),
		AngelClientCode: getEnv("ANGEL_CLIENT_CODE", ""),
		AngelPassword:   getEnv("ANGEL_PASSWORD", ""),
		AngelTOTPSecret: getEnv("ANGEL_TOTP_SECRET", ""),

		GatewayAPIKey:      getEnv("GATEWAY_API_KEY", ""),
		GatewayTradingMode: getEnv("GATEWAY_TRADING_MODE", "auto"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
