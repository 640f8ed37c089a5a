package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	EventID         string
	DataDir         string
	StorageDriver   string // memory, sqlite3 or postgres
	DatabaseURL     string
	RedisURL        string
	LockTTL         time.Duration // Redis lock expiry; renewed while held, bounds a crashed holder
	PolicyFile      string
	LogLevel        string
	PrometheusPort  string
	WhatsAppEnabled bool

	WeddingDate     string
	WeddingLocation string
	BrideName       string
	GroomName       string
}

// LoadConfig loads configuration from environment variables, a .env file if
// present, or defaults
func LoadConfig() (*Config, error) {
	// a missing .env file is fine
	_ = godotenv.Load()

	cfg := &Config{
		EventID:         getEnv("EVENT_ID", "wedding"),
		DataDir:         getEnv("DATA_DIR", "data"),
		StorageDriver:   getEnv("STORAGE_DRIVER", "memory"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		RedisURL:        getEnv("REDIS_URL", ""),
		PolicyFile:      getEnv("SEATING_POLICY_FILE", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		PrometheusPort:  getEnv("PROMETHEUS_PORT", ""),
		WeddingDate:     getEnv("WEDDING_DATE", "Saturday, January 1, 2025"),
		WeddingLocation: getEnv("WEDDING_LOCATION", "Venue TBD"),
		BrideName:       getEnv("BRIDE_NAME", "Bride"),
		GroomName:       getEnv("GROOM_NAME", "Groom"),
	}

	var err error
	if cfg.WhatsAppEnabled, err = strconv.ParseBool(getEnv("WHATSAPP_ENABLED", "true")); err != nil {
		return nil, fmt.Errorf("WHATSAPP_ENABLED: %w", err)
	}
	if cfg.LockTTL, err = time.ParseDuration(getEnv("SEATING_LOCK_TTL", "30s")); err != nil {
		return nil, fmt.Errorf("SEATING_LOCK_TTL: %w", err)
	}
	if cfg.LockTTL <= 0 {
		return nil, fmt.Errorf("SEATING_LOCK_TTL must be positive, got %s", cfg.LockTTL)
	}

	switch cfg.StorageDriver {
	case "memory":
	case "sqlite3":
		if cfg.DatabaseURL == "" {
			cfg.DatabaseURL = fmt.Sprintf("file:%s/seating.db?_foreign_keys=on", cfg.DataDir)
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required for postgres storage")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
