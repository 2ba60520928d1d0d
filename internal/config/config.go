// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the relay server configuration.
type Config struct {
	Port            string
	AllowedOrigin   string
	ShutdownTimeout time.Duration
}

// Load reads server configuration from environment variables.
func Load() (*Config, error) {
	shutdownSecs := getEnvInt("SHUTDOWN_TIMEOUT", 10)
	if shutdownSecs <= 0 {
		shutdownSecs = 10
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		AllowedOrigin:   getEnv("ALLOWED_ORIGIN", ""),
		ShutdownTimeout: time.Duration(shutdownSecs) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AllowedOrigin == "" ||
		strings.Contains(c.AllowedOrigin, "localhost") ||
		strings.Contains(c.AllowedOrigin, "127.0.0.1")
}

// ClientConfig holds the terminal client configuration.
type ClientConfig struct {
	ServerURL   string
	HistoryDB   string
	UserID      string
	DisplayName string
	Email       string
	Bio         string
	AvatarColor string
}

// LoadClient reads client configuration from environment variables.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		ServerURL:   getEnv("CHAT_SERVER_URL", "ws://localhost:8080/ws/chat"),
		HistoryDB:   getEnv("CHAT_HISTORY_DB", "./data/history.db"),
		UserID:      getEnv("CHAT_USER_ID", ""),
		DisplayName: getEnv("CHAT_DISPLAY_NAME", ""),
		Email:       getEnv("CHAT_EMAIL", ""),
		Bio:         getEnv("CHAT_BIO", ""),
		AvatarColor: getEnv("CHAT_AVATAR_COLOR", ""),
	}

	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("invalid configuration: CHAT_SERVER_URL cannot be empty")
	}
	if cfg.HistoryDB == "" {
		return nil, fmt.Errorf("invalid configuration: CHAT_HISTORY_DB cannot be empty")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
