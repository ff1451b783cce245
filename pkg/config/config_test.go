package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/spendgate/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("LEDGER_SLOTS", "")
	t.Setenv("LOCK_BACKEND", "")
	t.Setenv("LOCK_TTL_MS", "")
	t.Setenv("RATE_LIMIT_RPS", "")
	t.Setenv("RATE_LIMIT_BURST", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, "spendgate.db", cfg.SQLitePath)
	assert.Contains(t, cfg.DatabaseURL, "localhost")
	assert.Equal(t, uint8(8), cfg.LedgerSlots)
	assert.True(t, cfg.RequireApproval)
	assert.Equal(t, "", cfg.LockBackend)
	assert.Equal(t, 30000, cfg.LockTTLMillis)
	assert.Equal(t, 10.0, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://production:5432/spendgate")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SIGNER_SECRET", "s3cr3t")
	t.Setenv("LEDGER_SLOTS", "32")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("LOCK_TTL_MS", "60000")
	t.Setenv("RATE_LIMIT_RPS", "100")
	t.Setenv("RATE_LIMIT_BURST", "200")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "postgres://production:5432/spendgate", cfg.DatabaseURL)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "s3cr3t", cfg.SignerSecret)
	assert.Equal(t, uint8(32), cfg.LedgerSlots)
	assert.Equal(t, "redis", cfg.LockBackend)
	assert.Equal(t, 60000, cfg.LockTTLMillis)
	assert.Equal(t, 100.0, cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.RateLimitBurst)
}

// TestLoad_IgnoresMalformedNumbers verifies parse failures fall back to the
// defaults rather than aborting startup.
func TestLoad_IgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("LEDGER_SLOTS", "many")
	t.Setenv("RATE_LIMIT_RPS", "-5")
	t.Setenv("RATE_LIMIT_BURST", "0")

	cfg := config.Load()

	assert.Equal(t, uint8(8), cfg.LedgerSlots)
	assert.Equal(t, 10.0, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
}
