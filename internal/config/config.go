package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Binance   Binance   `mapstructure:"binance"`
	Portfolio Portfolio `mapstructure:"portfolio"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
}

// Binance holds the configuration for the Binance API.
type Binance struct {
	ApiKey          string        `mapstructure:"apiKey"`
	SecretKey       string        `mapstructure:"secretKey"`
	Testnet         bool          `mapstructure:"testnet"`
	BaseURL         string        `mapstructure:"base_url"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
	RecvWindow      int           `mapstructure:"recv_window"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	HistoryPageSize int           `mapstructure:"history_page_size"`
}

// Portfolio holds the settings used when deriving position metrics.
type Portfolio struct {
	// QuoteAsset is stripped from a pair symbol to find the base asset.
	QuoteAsset string `mapstructure:"quote_asset"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Database holds the configuration for the snapshot database.
// An empty DSN disables snapshot recording.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const maxHistoryPageSize = 1000

// LoadConfig reads configuration from an optional .env file, the config file
// in path and environment variables, in increasing order of precedence.
func LoadConfig(path string) (Config, error) {
	var config Config

	// A missing .env is fine; plain environment variables still apply.
	_ = godotenv.Load(filepath.Join(path, ".env"))

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// A set-but-empty variable still overrides, so DATABASE_DSN= disables snapshots.
	v.AllowEmptyEnv(true)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	// AutomaticEnv only resolves keys viper already knows about, so the
	// credentials get empty defaults to make BINANCE_APIKEY etc. visible.
	v.SetDefault("binance.apiKey", "")
	v.SetDefault("binance.secretKey", "")
	v.SetDefault("binance.testnet", false)
	v.SetDefault("binance.base_url", "")
	v.SetDefault("binance.rate_limit", 20)      // requests per second
	v.SetDefault("binance.rate_limit_burst", 5) // burst size
	v.SetDefault("binance.recv_window", 5000)   // milliseconds
	v.SetDefault("binance.timeout", 10*time.Second)
	v.SetDefault("binance.max_attempts", 1)
	v.SetDefault("binance.history_page_size", maxHistoryPageSize)

	v.SetDefault("portfolio.quote_asset", "USDT")

	v.SetDefault("server.port", 3000)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("database.dsn", "portfolio.db")
}

// Validate reports every problem with the loaded configuration at once.
func (c Config) Validate() error {
	var errs []error
	if c.Binance.ApiKey == "" {
		errs = append(errs, errors.New("binance.apiKey must be set"))
	}
	if c.Binance.SecretKey == "" {
		errs = append(errs, errors.New("binance.secretKey must be set"))
	}
	if c.Binance.HistoryPageSize < 1 || c.Binance.HistoryPageSize > maxHistoryPageSize {
		errs = append(errs, fmt.Errorf("binance.history_page_size must be between 1 and %d", maxHistoryPageSize))
	}
	if c.Binance.MaxAttempts < 1 {
		errs = append(errs, errors.New("binance.max_attempts must be at least 1"))
	}
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be positive"))
	}
	if c.Logger.Level == "" {
		errs = append(errs, errors.New("logger.level must be set"))
	}
	return errors.Join(errs...)
}
