// Package config loads server settings from the environment (optionally
// seeded from a .env file) and builds the shared logger.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	defaultPort                = "8080"
	defaultDBPath              = "folio.db"
	defaultLogLevel            = "info"
	defaultLockTTL             = "10s"
	defaultTransferMaxAttempts = "3"
	defaultAuditInterval       = "1h"
	defaultCORSOrigins         = "*"
)

type Config struct {
	Port                string
	DBPath              string
	LogLevel            logrus.Level
	RedisAddr           string
	LockTTL             time.Duration
	TransferMaxAttempts int
	AuditInterval       time.Duration
	CORSOrigins         []string
}

// Load reads .env files (when present) and then the process environment.
// Values already set in the environment win over .env.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("load %s: %w", f, err)
			}
		}
	}

	cfg := &Config{
		Port:      strings.TrimSpace(getEnv("PORT", defaultPort)),
		DBPath:    strings.TrimSpace(getEnv("DB_PATH", defaultDBPath)),
		RedisAddr: strings.TrimSpace(os.Getenv("REDIS_ADDR")),
	}

	var err error
	cfg.LogLevel, err = logrus.ParseLevel(strings.TrimSpace(getEnv("LOG_LEVEL", defaultLogLevel)))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg.LockTTL, err = parseDurationEnv("LOCK_TTL", defaultLockTTL)
	if err != nil {
		return nil, err
	}

	cfg.AuditInterval, err = parseDurationEnv("AUDIT_INTERVAL", defaultAuditInterval)
	if err != nil {
		return nil, err
	}

	cfg.TransferMaxAttempts, err = parseIntEnv("TRANSFER_MAX_ATTEMPTS", defaultTransferMaxAttempts)
	if err != nil {
		return nil, err
	}

	cfg.CORSOrigins = splitList(getEnv("CORS_ORIGINS", defaultCORSOrigins))

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if cfg.DBPath == "" {
		return fmt.Errorf("DB_PATH must not be empty")
	}
	if cfg.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be > 0")
	}
	if cfg.AuditInterval < 0 {
		return fmt.Errorf("AUDIT_INTERVAL must be >= 0")
	}
	if cfg.TransferMaxAttempts < 1 {
		return fmt.Errorf("TRANSFER_MAX_ATTEMPTS must be >= 1")
	}
	if len(cfg.CORSOrigins) == 0 {
		return fmt.Errorf("CORS_ORIGINS must list at least one origin")
	}
	return nil
}

// NewLogger returns a JSON logrus logger at the configured level.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(c.LogLevel)
	return logger
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
