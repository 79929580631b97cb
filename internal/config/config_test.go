package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRADER_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "portfolio.db"), cfg.LedgerDBPath)
	assert.Equal(t, filepath.Join(dir, "client_data.db"), cfg.ClientDataDBPath)
	assert.Equal(t, "local_user", cfg.DefaultUserID)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Price.CacheTTL)
	assert.Equal(t, 4, cfg.Report.Concurrency)
}

func TestLoad_Overrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRADER_DATA_DIR", dir)
	t.Setenv("LEDGER_DB_PATH", filepath.Join(dir, "custom.db"))
	t.Setenv("DEFAULT_USER_ID", "desk")
	t.Setenv("GO_PORT", "9100")
	t.Setenv("PRICE_CACHE_TTL", "0s")
	t.Setenv("PRICE_RATE_LIMIT", "2.5")
	t.Setenv("REPORT_CONCURRENCY", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "custom.db"), cfg.LedgerDBPath)
	assert.Equal(t, "desk", cfg.DefaultUserID)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, time.Duration(0), cfg.Price.CacheTTL)
	assert.Equal(t, 2.5, cfg.Price.RequestsPerSecond)
	assert.Equal(t, 8, cfg.Report.Concurrency)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("TRADER_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "not-a-number")
	t.Setenv("PRICE_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.Price.Timeout)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DefaultUserID: "local_user",
			Port:          8001,
			Price:         PriceConfig{APIURL: "http://localhost", RequestsPerSecond: 1, Burst: 1},
			Report:        ReportConfig{Concurrency: 1},
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.DefaultUserID = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Report.Concurrency = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Price.RequestsPerSecond = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Port = 70000
	assert.Error(t, cfg.Validate())
}
