package config

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for chatlink.
type Config struct {
	// WebSocket endpoint of the chat server. Required.
	ServerURL string `env:"CHAT_SERVER_URL"`

	// Identity used to start a session when none is persisted yet.
	// All three must be set together, or all left empty to rely on
	// the identity saved from a previous run.
	UserID      string `env:"CHAT_USER_ID"`
	DisplayName string `env:"CHAT_DISPLAY_NAME"`
	AuthToken   string `env:"CHAT_AUTH_TOKEN"`

	// Path of the bbolt state database. Defaults to ~/.chatlink/state.db.
	StateDBPath string `env:"STATE_DB_PATH"`

	// Device name this client identifies as. Defaults to system hostname.
	DeviceName string `env:"DEVICE_NAME"`

	// Keep-alive interval while connected.
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`

	// How long a backgrounded session stays resumable before the
	// transport is closed.
	BackgroundTimeout time.Duration `env:"BACKGROUND_TIMEOUT" envDefault:"5m"`

	// Time budget for resolving a notification avatar before falling
	// back to the default icon.
	AvatarFetchTimeout time.Duration `env:"AVATAR_FETCH_TIMEOUT" envDefault:"3s"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the auth token to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DeviceName == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "chatlink"
		}

		cfg.DeviceName = hostname
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("CHAT_SERVER_URL is required")
	}

	if !strings.HasPrefix(c.ServerURL, "ws://") && !strings.HasPrefix(c.ServerURL, "wss://") {
		return fmt.Errorf("CHAT_SERVER_URL must use ws:// or wss://")
	}

	// A partial identity is almost certainly a misconfiguration; either
	// provide the full identity or none (and rely on the persisted one).
	hasAny := c.UserID != "" || c.DisplayName != "" || c.AuthToken != ""
	hasAll := c.UserID != "" && c.DisplayName != "" && c.AuthToken != ""

	if hasAny && !hasAll {
		return fmt.Errorf("CHAT_USER_ID, CHAT_DISPLAY_NAME and CHAT_AUTH_TOKEN must be set together")
	}

	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive")
	}

	if c.BackgroundTimeout <= 0 {
		return fmt.Errorf("BACKGROUND_TIMEOUT must be positive")
	}

	return nil
}

// HasIdentity reports whether the config carries a complete identity.
func (c *Config) HasIdentity() bool {
	return c.UserID != "" && c.DisplayName != "" && c.AuthToken != ""
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
