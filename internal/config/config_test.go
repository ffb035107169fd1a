package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	viper.Reset()

	dir := t.TempDir()
	content := `
server:
  port: 9090
database:
  dsn: "test.db"
logger:
  level: "debug"
  format: "json"
marketdata:
  provider: "static"
  static_prices:
    AAPL: 175.5
ledger:
  starting_balance: 5000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(content), 0o644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "test.db", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "static", cfg.MarketData.Provider)
	assert.Equal(t, 175.5, cfg.MarketData.StaticPrices["aapl"]) // viper lowercases keys
	assert.Equal(t, float64(5000), cfg.Ledger.StartingBalance)

	// Values absent from the file fall back to defaults.
	assert.Equal(t, "demo", cfg.Ledger.AccountType)
	assert.Equal(t, float64(5), cfg.MarketData.RateLimit)
	assert.Equal(t, 15, cfg.MarketData.CacheTTL)
}

func TestLoadConfigMissingFile(t *testing.T) {
	viper.Reset()

	_, err := LoadConfig(t.TempDir())
	assert.Error(t, err)
}
