package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
	Logger     Logger     `mapstructure:"logger"`
	MarketData MarketData `mapstructure:"marketdata"`
	Ledger     Ledger     `mapstructure:"ledger"`
}

// Server holds the configuration for the HTTP API server.
type Server struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// Database holds the configuration for the embedded store.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MarketData holds the configuration for the price oracle.
// Provider selects between the real HTTP quote client ("yahoo")
// and a fixed price table for offline runs ("static").
type MarketData struct {
	Provider       string             `mapstructure:"provider"`
	BaseURL        string             `mapstructure:"base_url"`
	RateLimit      float64            `mapstructure:"rate_limit"`
	RateLimitBurst int                `mapstructure:"rate_limit_burst"`
	CacheTTL       int                `mapstructure:"cache_ttl_seconds"`
	StaticPrices   map[string]float64 `mapstructure:"static_prices"`
}

// Ledger holds the configuration for new-account defaults.
type Ledger struct {
	StartingBalance float64 `mapstructure:"starting_balance"`
	AccountType     string  `mapstructure:"account_type"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 10)
	viper.SetDefault("server.write_timeout", 10)
	viper.SetDefault("database.dsn", "paper_trader.db")
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("marketdata.provider", "yahoo")
	viper.SetDefault("marketdata.base_url", "https://query1.finance.yahoo.com")
	viper.SetDefault("marketdata.rate_limit", 5) // requests per second
	viper.SetDefault("marketdata.rate_limit_burst", 2)
	viper.SetDefault("marketdata.cache_ttl_seconds", 15)
	viper.SetDefault("ledger.starting_balance", 20000)
	viper.SetDefault("ledger.account_type", "demo")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
