package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configVars = []string{
	"PORT", "DB_PATH", "LOG_LEVEL", "REDIS_ADDR", "LOCK_TTL",
	"TRANSFER_MAX_ATTEMPTS", "AUDIT_INTERVAL", "CORS_ORIGINS",
}

// clearEnv unsets every variable Load reads. t.Setenv registers the restore;
// the unset matters because godotenv never overrides a variable that exists.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range configVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "folio.db", cfg.DBPath)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.Equal(t, 3, cfg.TransferMaxAttempts)
	assert.Equal(t, time.Hour, cfg.AuditInterval)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOCK_TTL", "3s")
	t.Setenv("TRANSFER_MAX_ATTEMPTS", "5")
	t.Setenv("AUDIT_INTERVAL", "0")
	t.Setenv("CORS_ORIGINS", "https://pms.example.com, https://ops.example.com")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 3*time.Second, cfg.LockTTL)
	assert.Equal(t, 5, cfg.TransferMaxAttempts)
	assert.Equal(t, time.Duration(0), cfg.AuditInterval)
	assert.Equal(t, []string{"https://pms.example.com", "https://ops.example.com"}, cfg.CORSOrigins)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PORT=6000\nDB_PATH=/tmp/ledger.db\n"), 0o600))

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "/tmp/ledger.db", cfg.DBPath)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "LOCK_TTL", "soon"},
		{"zero lock ttl", "LOCK_TTL", "0s"},
		{"negative audit interval", "AUDIT_INTERVAL", "-1m"},
		{"non numeric attempts", "TRANSFER_MAX_ATTEMPTS", "many"},
		{"zero attempts", "TRANSFER_MAX_ATTEMPTS", "0"},
		{"unknown log level", "LOG_LEVEL", "loud"},
		{"empty origin list", "CORS_ORIGINS", " , "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogLevel: logrus.WarnLevel}

	logger := cfg.NewLogger()

	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}
