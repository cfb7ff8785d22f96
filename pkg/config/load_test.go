package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, 10*time.Second, cfg.Messaging.Timeout)
	assert.Equal(t, "caller-runs", cfg.SettlementPool.Policy)
	assert.Equal(t, "0.86", cfg.Rates.USDEUR.String())
	assert.Equal(t, "1.16", cfg.Rates.EURUSD.String())
	assert.False(t, cfg.Sweep.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Sweep.StaleAfter)
	assert.Equal(t, 3, cfg.Settlement.MaxAttempts)
	assert.Equal(t, 5, cfg.Settlement.ResolveAttempts)
	assert.Equal(t, time.Hour, cfg.Settlement.IdempotencyTTL)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("POOL_SETTLEMENT_POLICY", "reject")
	t.Setenv("POOL_SETTLEMENT_WORKERS", "2")
	t.Setenv("RATES_USD_EUR", "0.9")
	t.Setenv("MESSAGING_TIMEOUT", "250ms")
	t.Setenv("SWEEP_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "localhost:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "reject", cfg.SettlementPool.Policy)
	assert.Equal(t, 2, cfg.SettlementPool.Workers)
	assert.Equal(t, "0.9", cfg.Rates.USDEUR.String())
	assert.Equal(t, 250*time.Millisecond, cfg.Messaging.Timeout)
	assert.True(t, cfg.Sweep.Enabled)
	assert.Equal(t, "localhost:9092", cfg.Kafka.Brokers)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ledger.env"), []byte("LOG_PREFIX=[from-file]\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("LOG_PREFIX")
	})

	cfg, err := Load("ledger.env")
	require.NoError(t, err)
	assert.Equal(t, "[from-file]", cfg.Log.Prefix)
}

func TestFindEnvFile_Missing(t *testing.T) {
	_, err := FindEnvFile("definitely-not-here.env")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "****", maskValue("short"))
	assert.Equal(t, "po****able", maskValue("postgres://u:p@h/db?sslmode=disable"))
}
