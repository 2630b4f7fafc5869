// ===============================
// internal/config/config.go - Bot Configuration
// ===============================

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// R2Config holds Cloudflare R2 configuration for poster storage
type R2Config struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

// Config holds all application configuration
type Config struct {
	// Server configuration
	Environment string
	Port        string

	// Telegram configuration
	BotToken string
	Admins   []int64

	// Database configuration; empty means the in-memory catalog backend
	DatabaseURL string

	// Authoring / delivery tuning
	SessionTimeout     time.Duration
	MessagesPerSecond  float64
	DeliveryPausePoint int // progress-report interval during long deliveries

	// R2 Storage configuration (posters)
	R2Config R2Config

	// CORS configuration for the ops API
	AllowedOrigins []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	config := &Config{
		Environment:        getEnv("GIN_MODE", "debug"),
		Port:               getEnv("PORT", "8080"),
		BotToken:           getEnv("BOT_TOKEN", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		SessionTimeout:     time.Duration(getEnvInt("SESSION_TIMEOUT_MINUTES", 30)) * time.Minute,
		MessagesPerSecond:  getEnvFloat("DELIVERY_MESSAGES_PER_SECOND", 2),
		DeliveryPausePoint: getEnvInt("DELIVERY_PROGRESS_EVERY", 10),
		R2Config: R2Config{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", "seriesposters"),
		},
	}

	// Set public URL for R2
	if config.R2Config.AccountID != "" && config.R2Config.BucketName != "" {
		config.R2Config.PublicURL = fmt.Sprintf("https://%s.%s.r2.cloudflarestorage.com",
			config.R2Config.BucketName, config.R2Config.AccountID)
	}

	// Parse admin IDs (space or comma separated Telegram user IDs)
	adminsStr := strings.NewReplacer(",", " ").Replace(getEnv("ADMINS", ""))
	for _, field := range strings.Fields(adminsStr) {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, ConfigError{Message: fmt.Sprintf("ADMINS contains a non-numeric ID: %q", field)}
		}
		config.Admins = append(config.Admins, id)
	}

	// Parse allowed origins
	originsStr := getEnv("ALLOWED_ORIGINS", "http://localhost:3000")
	config.AllowedOrigins = strings.Split(originsStr, ",")
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	// Validate required configuration
	if config.BotToken == "" {
		return nil, ErrMissingBotToken
	}

	if len(config.Admins) == 0 {
		return nil, ErrMissingAdmins
	}

	if config.MessagesPerSecond <= 0 {
		return nil, ConfigError{Message: "DELIVERY_MESSAGES_PER_SECOND must be positive"}
	}

	return config, nil
}

// PosterStorageEnabled reports whether R2 credentials were supplied. Posters
// are optional; the bot runs without them.
func (c *Config) PosterStorageEnabled() bool {
	return c.R2Config.AccountID != "" && c.R2Config.AccessKey != "" && c.R2Config.SecretKey != ""
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// Configuration errors
var (
	ErrMissingBotToken = ConfigError{Message: "BOT_TOKEN environment variable is required"}
	ErrMissingAdmins   = ConfigError{Message: "ADMINS environment variable is required (space separated Telegram user IDs)"}
)

// ConfigError represents a configuration error
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
