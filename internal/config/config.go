package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"arbitron/internal/model"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Log       LogConfig
	Arbitrage ArbitrageConfig
	Risk      RiskConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Metrics   MetricsConfig
	Backtest  BacktestConfig
	Exchanges map[string]ExchangeConfig
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level string
}

// ArbitrageConfig defines the scanning and execution settings.
type ArbitrageConfig struct {
	MinProfitPercent  float64       `mapstructure:"min_profit_percent"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	Pairs             []string      `mapstructure:"pairs"`
	Venues            []string      `mapstructure:"venues"`
	Mode              string        `mapstructure:"mode"`
	TradeVolume       float64       `mapstructure:"trade_volume"`
	CollapseRotations bool          `mapstructure:"collapse_rotations"`
}

// RiskConfig defines the daily limits. A limit of 0 means unlimited.
type RiskConfig struct {
	DailyProfitLimit    float64 `mapstructure:"daily_profit_limit"`
	DailyLossLimit      float64 `mapstructure:"daily_loss_limit"`
	FailureLossEstimate float64 `mapstructure:"failure_loss_estimate"`
	LedgerBackend       string  `mapstructure:"ledger_backend"`
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	port := d.Port
	if port == 0 {
		port = 5432
	}
	ssl := d.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, port, d.DBName, ssl)
}

// RedisConfig defines the Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MetricsConfig defines the Prometheus endpoint.
type MetricsConfig struct {
	Addr string
}

// BacktestConfig defines the synthetic series and report archive.
type BacktestConfig struct {
	Interval      time.Duration      `mapstructure:"interval"`
	BasePrice     float64            `mapstructure:"base_price"`
	BasePrices    map[string]float64 `mapstructure:"base_prices"`
	Volatility    float64            `mapstructure:"volatility"`
	SpreadPercent float64            `mapstructure:"spread_percent"`
	Seed          int64              `mapstructure:"seed"`
	ArchiveBucket string             `mapstructure:"archive_bucket"`
	ArchivePrefix string             `mapstructure:"archive_prefix"`
	ArchiveRegion string             `mapstructure:"archive_region"`
}

// ExchangeConfig defines settings for a specific exchange.
type ExchangeConfig struct {
	TakerFeePercent float64 `mapstructure:"taker_fee_percent"`
	MakerFeePercent float64 `mapstructure:"maker_fee_percent"`
	GasCost         float64 `mapstructure:"gas_cost"`
	APIKey          string  `mapstructure:"api_key"`
	APISecret       string  `mapstructure:"api_secret"`
	BaseURL         string  `mapstructure:"base_url"`
	WSURL           string  `mapstructure:"ws_url"`
}

// defaultFees is the reference fee table, in percent, with DEX gas in quote
// currency.
var defaultFees = map[string]ExchangeConfig{
	"binance":     {TakerFeePercent: 0.1, MakerFeePercent: 0.1},
	"kraken":      {TakerFeePercent: 0.26, MakerFeePercent: 0.16},
	"coinbase":    {TakerFeePercent: 0.6, MakerFeePercent: 0.4},
	"kucoin":      {TakerFeePercent: 0.1, MakerFeePercent: 0.1},
	"bybit":       {TakerFeePercent: 0.1, MakerFeePercent: 0.1},
	"okx":         {TakerFeePercent: 0.1, MakerFeePercent: 0.08},
	"uniswap":     {TakerFeePercent: 0.3, MakerFeePercent: 0.3, GasCost: 15},
	"pancakeswap": {TakerFeePercent: 0.25, MakerFeePercent: 0.25, GasCost: 1},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("arbitrage.min_profit_percent", 0.5)
	v.SetDefault("arbitrage.poll_interval", 5*time.Second)
	v.SetDefault("arbitrage.fetch_timeout", 3*time.Second)
	v.SetDefault("arbitrage.pairs", []string{"BTC/USDT", "ETH/USDT", "ETH/BTC"})
	v.SetDefault("arbitrage.venues", []string{"binance", "kraken"})
	v.SetDefault("arbitrage.mode", string(model.ModeSimulation))
	v.SetDefault("arbitrage.trade_volume", 1.0)
	v.SetDefault("risk.daily_profit_limit", 0.0)
	v.SetDefault("risk.daily_loss_limit", 0.0)
	v.SetDefault("risk.failure_loss_estimate", 0.0)
	v.SetDefault("risk.ledger_backend", "memory")
	// Empty defaults make the keys visible to AutomaticEnv during Unmarshal.
	for _, key := range []string{
		"database.host", "database.user", "database.password", "database.dbname", "database.sslmode",
		"redis.addr", "redis.password", "metrics.addr",
		"backtest.archive_bucket", "backtest.archive_region",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("database.port", 5432)
	v.SetDefault("redis.db", 0)
	v.SetDefault("backtest.interval", time.Hour)
	v.SetDefault("backtest.base_price", 50000.0)
	v.SetDefault("backtest.base_prices", map[string]float64{"ETH/USDT": 2500, "ETH/BTC": 0.05})
	v.SetDefault("backtest.volatility", 1000.0)
	v.SetDefault("backtest.spread_percent", 0.1)
	v.SetDefault("backtest.seed", 1)
	v.SetDefault("backtest.archive_prefix", "backtests/")
	for name, fee := range defaultFees {
		v.SetDefault("exchanges."+name+".taker_fee_percent", fee.TakerFeePercent)
		v.SetDefault("exchanges."+name+".maker_fee_percent", fee.MakerFeePercent)
		v.SetDefault("exchanges."+name+".gas_cost", fee.GasCost)
		for _, key := range []string{"api_key", "api_secret", "base_url", "ws_url"} {
			v.SetDefault("exchanges."+name+"."+key, "")
		}
	}
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and environment apply.
func LoadConfig(path string) (config Config, err error) {
	// .env is optional.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("config: read: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("config: unmarshal: %w", err)
	}
	return config, config.Validate()
}

// Validate rejects settings the engine cannot run with. Every configured
// venue needs a fee schedule entry.
func (c Config) Validate() error {
	if c.Arbitrage.PollInterval <= 0 {
		return fmt.Errorf("%w: arbitrage.poll_interval must be positive", model.ErrConfiguration)
	}
	if c.Arbitrage.MinProfitPercent < 0 {
		return fmt.Errorf("%w: arbitrage.min_profit_percent must not be negative", model.ErrConfiguration)
	}
	if c.Arbitrage.TradeVolume <= 0 {
		return fmt.Errorf("%w: arbitrage.trade_volume must be positive", model.ErrConfiguration)
	}
	mode, ok := model.ParseMode(c.Arbitrage.Mode)
	if !ok {
		return fmt.Errorf("%w: unknown arbitrage.mode %q", model.ErrConfiguration, c.Arbitrage.Mode)
	}
	if c.Risk.DailyProfitLimit < 0 || c.Risk.DailyLossLimit < 0 || c.Risk.FailureLossEstimate < 0 {
		return fmt.Errorf("%w: risk limits must not be negative", model.ErrConfiguration)
	}
	switch c.Risk.LedgerBackend {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("%w: unknown risk.ledger_backend %q", model.ErrConfiguration, c.Risk.LedgerBackend)
	}
	// the memory ledger forgets the day's losses on restart
	if mode == model.ModeLive && c.Risk.LedgerBackend == "memory" {
		return fmt.Errorf("%w: live mode needs a durable risk.ledger_backend", model.ErrConfiguration)
	}
	for _, pair := range c.Arbitrage.Pairs {
		if _, _, ok := model.SplitPair(pair); !ok {
			return fmt.Errorf("%w: malformed pair %q", model.ErrConfiguration, pair)
		}
	}
	for _, venue := range c.Arbitrage.Venues {
		if _, ok := c.Exchanges[venue]; !ok {
			return fmt.Errorf("%w: venue %q has no fee schedule", model.ErrConfiguration, venue)
		}
	}
	return nil
}
