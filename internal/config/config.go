package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Mongo   MongoConfig
	Session SessionConfig
	Broker  BrokerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI      string
	Database string
}

// SessionConfig holds session token configuration
type SessionConfig struct {
	SigningSecret    string
	TokenValidity    time.Duration
	RefreshThreshold time.Duration
	Issuer           string
}

// BrokerConfig holds external credential broker configuration
type BrokerConfig struct {
	Enabled  bool
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DB", "stylopay"),
		},
		Session: SessionConfig{
			SigningSecret:    getEnv("SESSION_SIGNING_SECRET", ""),
			TokenValidity:    getDurationEnv("SESSION_TOKEN_VALIDITY", 30*time.Minute),
			RefreshThreshold: getDurationEnv("SESSION_REFRESH_THRESHOLD", 5*time.Minute),
			Issuer:           getEnv("SESSION_ISSUER", "stylopay"),
		},
		Broker: BrokerConfig{
			Enabled:  getBoolEnv("BROKER_ENABLED", false),
			Endpoint: getEnv("BROKER_ENDPOINT", ""),
			APIKey:   getEnv("BROKER_API_KEY", ""),
			Timeout:  getDurationEnv("BROKER_TIMEOUT", 10*time.Second),
		},
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv returns duration from environment variable or default.
// Accepts Go duration strings ("30m") or plain integers (minutes).
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

// getBoolEnv returns a boolean from environment variable or default
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
