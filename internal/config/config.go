package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	// File paths
	OPMLPath string
	DBPath   string

	// Server settings
	ServerHost string
	ServerPort int

	// Bcrypt hash of the password protecting the admin surface.
	// When empty, the admin routes are disabled entirely.
	AdminPasswordHash string

	// Username half of the legacy sync credential.
	FeverUsername string

	// Fetch settings
	WorkerCount int
	Interval    time.Duration

	// Log settings
	LogLevel zerolog.Level
}

// DefaultConfig returns an initial configuration with hardcoded defaults.
func DefaultConfig() *Config {
	logLevel, _ := zerolog.ParseLevel(DefaultLogLevel)

	return &Config{
		OPMLPath:          DefaultOPMLPath,
		DBPath:            DefaultDBPath,
		ServerHost:        DefaultServerHost,
		ServerPort:        DefaultServerPort,
		AdminPasswordHash: GetEnvString("READER_ADMIN_PASSWORD_HASH", ""),
		FeverUsername:     GetEnvString("READER_FEVER_USERNAME", DefaultFeverUsername),
		WorkerCount:       DefaultWorkerCount,
		Interval:          time.Duration(DefaultInterval) * time.Minute,
		LogLevel:          logLevel,
	}
}

// ListenAddr returns the formatted listen address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}
