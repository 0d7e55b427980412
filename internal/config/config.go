package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
	Market      MarketConfig    `mapstructure:"market"`
	Strategy    StrategyConfig  `mapstructure:"strategy"`
	Collector   CollectorConfig `mapstructure:"collector"`
	Alerts      AlertsConfig    `mapstructure:"alerts"`
	Security    SecurityConfig  `mapstructure:"security"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	ReadTimeout    string   `mapstructure:"read_timeout"`
	WriteTimeout   string   `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	DatabaseURL string `mapstructure:"database_url"`
	MaxConns    int32  `mapstructure:"max_conns"`
}

// DSN returns DatabaseURL when set, otherwise a keyword/value connection string.
func (c DatabaseConfig) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TelegramConfig struct {
	BotToken     string  `mapstructure:"bot_token"`
	AlertChatIDs []int64 `mapstructure:"alert_chat_ids"`
}

// MarketConfig holds every upstream URL, denom and on-chain identifier the
// rate fetchers and reports need.
type MarketConfig struct {
	HelixDataURL          string            `mapstructure:"helix_data_url"`
	NeptuneBorrowURL      string            `mapstructure:"neptune_borrow_url"`
	NeptuneLendURL        string            `mapstructure:"neptune_lend_url"`
	WhitelistPairs        []string          `mapstructure:"whitelist_pairs"`
	Denoms                map[string]string `mapstructure:"denoms"`
	PerpMarketID          string            `mapstructure:"perp_market_id"`
	NeptuneMarketContract string            `mapstructure:"neptune_market_contract"`
	HelixMarketContract   string            `mapstructure:"helix_market_contract"`
	Timeout               string            `mapstructure:"timeout"`
	RequestsPerSecond     float64           `mapstructure:"requests_per_second"`
	Burst                 int               `mapstructure:"burst"`
	BreakerFailures       uint32            `mapstructure:"breaker_failures"`
	BreakerTimeout        string            `mapstructure:"breaker_timeout"`
}

type StrategyConfig struct {
	NotionalAmount  float64 `mapstructure:"notional_amount"`
	AverageLTV      float64 `mapstructure:"average_ltv"`
	BaseAsset       string  `mapstructure:"base_asset"`
	QuoteAsset      string  `mapstructure:"quote_asset"`
	RecommendMargin float64 `mapstructure:"recommend_margin"`
}

type CollectorConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Interval        string `mapstructure:"interval"`
	SnapshotTTL     string `mapstructure:"snapshot_ttl"`
	Retention       string `mapstructure:"retention"`
	CleanupInterval string `mapstructure:"cleanup_interval"`
}

type AlertsConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	MinSpreadPct float64 `mapstructure:"min_spread_pct"`
	Cooldown     string  `mapstructure:"cooldown"`
}

type SecurityConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret" json:"-" yaml:"-"`
	JWTExpiry       string `mapstructure:"jwt_expiry"`
	AdminAPIKeyHash string `mapstructure:"admin_api_key_hash" json:"-" yaml:"-"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Bind the variable names the bot has always used
	bindings := map[string]string{
		"telegram.bot_token":          "TELEGRAM_BOT_TOKEN",
		"market.helix_data_url":       "HELIX_DATA_URL",
		"market.neptune_borrow_url":   "NEPTUNE_BORROW_URL",
		"market.neptune_lend_url":     "NEPTUNE_LEND_URL",
		"security.jwt_secret":         "JWT_SECRET",
		"security.admin_api_key_hash": "ADMIN_API_KEY_HASH",
		"database.database_url":       "DATABASE_URL",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s environment variable: %w", env, err)
		}
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks values that would otherwise fail deep inside a service.
func (c *Config) Validate() error {
	if c.Environment != "development" && c.Security.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required in non-development environments")
	}

	if c.Security.AdminAPIKeyHash != "" {
		if _, err := bcrypt.Cost([]byte(c.Security.AdminAPIKeyHash)); err != nil {
			return fmt.Errorf("admin api key hash is not a bcrypt hash: %w", err)
		}
	}

	durations := map[string]string{
		"security.jwt_expiry":        c.Security.JWTExpiry,
		"server.read_timeout":        c.Server.ReadTimeout,
		"server.write_timeout":       c.Server.WriteTimeout,
		"market.timeout":             c.Market.Timeout,
		"market.breaker_timeout":     c.Market.BreakerTimeout,
		"collector.interval":         c.Collector.Interval,
		"collector.snapshot_ttl":     c.Collector.SnapshotTTL,
		"collector.retention":        c.Collector.Retention,
		"collector.cleanup_interval": c.Collector.CleanupInterval,
		"alerts.cooldown":            c.Alerts.Cooldown,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s duration: %w", key, err)
		}
	}

	floats := []struct {
		key   string
		value float64
	}{
		{"strategy.notional_amount", c.Strategy.NotionalAmount},
		{"strategy.average_ltv", c.Strategy.AverageLTV},
		{"strategy.recommend_margin", c.Strategy.RecommendMargin},
		{"alerts.min_spread_pct", c.Alerts.MinSpreadPct},
		{"market.requests_per_second", c.Market.RequestsPerSecond},
		{"telemetry.sample_ratio", c.Telemetry.SampleRatio},
	}
	for _, f := range floats {
		if !isFinite(f.value) {
			return fmt.Errorf("%s must be a finite number, got %v", f.key, f.value)
		}
	}

	if c.Strategy.NotionalAmount <= 0 {
		return fmt.Errorf("strategy.notional_amount must be positive, got %v", c.Strategy.NotionalAmount)
	}
	if c.Strategy.AverageLTV <= 0 || c.Strategy.AverageLTV > 1 {
		return fmt.Errorf("strategy.average_ltv must be in (0, 1], got %v", c.Strategy.AverageLTV)
	}
	if c.Strategy.RecommendMargin < 0 {
		return fmt.Errorf("strategy.recommend_margin must not be negative, got %v", c.Strategy.RecommendMargin)
	}
	if c.Strategy.BaseAsset == "" || c.Strategy.QuoteAsset == "" {
		return errors.New("strategy.base_asset and strategy.quote_asset are required")
	}

	if c.Market.RequestsPerSecond <= 0 {
		return fmt.Errorf("market.requests_per_second must be positive, got %v", c.Market.RequestsPerSecond)
	}

	return nil
}

// StrategyDecimals converts the strategy section into decimal parameters.
// NaN and infinities are rejected rather than handed to decimal.NewFromFloat.
func (c StrategyConfig) StrategyDecimals() (notional, ltv, margin decimal.Decimal, err error) {
	values := []struct {
		key   string
		value float64
	}{
		{"strategy.notional_amount", c.NotionalAmount},
		{"strategy.average_ltv", c.AverageLTV},
		{"strategy.recommend_margin", c.RecommendMargin},
	}
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		if !isFinite(v.value) {
			return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("%s must be a finite number, got %v", v.key, v.value)
		}
		out[i] = decimal.NewFromFloat(v.value)
	}
	return out[0], out[1], out[2], nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Duration parses value, falling back when it is empty or malformed.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.file", "")
	viper.SetDefault("logging.max_size_mb", 100)
	viper.SetDefault("logging.max_backups", 5)
	viper.SetDefault("logging.max_age_days", 30)
	viper.SetDefault("logging.compress", true)

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "15s")

	// Database
	viper.SetDefault("database.enabled", true)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "perp_prophet")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_conns", 10)

	// Redis
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.alert_chat_ids", []int64{})

	// Market
	viper.SetDefault("market.helix_data_url", "")
	viper.SetDefault("market.neptune_borrow_url", "")
	viper.SetDefault("market.neptune_lend_url", "")
	viper.SetDefault("market.whitelist_pairs", []string{"INJ/USDT PERP", "ETH/USDT PERP"})
	viper.SetDefault("market.denoms", map[string]string{
		"inj": "INJ",
		"peggy0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2": "ETH",
		"peggy0xdAC17F958D2ee523a2206206994597C13D831ec7": "USDT",
	})
	viper.SetDefault("market.perp_market_id", "0x9b9980167ecc3645ff1a5517886652d94a0825e54a77d2057cbbe3ebee015963")
	viper.SetDefault("market.neptune_market_contract", "inj1nc7gjkf2mhp34a6gquhurg8qahnw5kxs5u3s4u")
	viper.SetDefault("market.helix_market_contract", "inj1q8qk6c7n44gf4e6jlhpvpwujdz0qm5hc4vuwhs")
	viper.SetDefault("market.timeout", "15s")
	viper.SetDefault("market.requests_per_second", 2.0)
	viper.SetDefault("market.burst", 3)
	viper.SetDefault("market.breaker_failures", 5)
	viper.SetDefault("market.breaker_timeout", "60s")

	// Strategy
	viper.SetDefault("strategy.notional_amount", 1000.0)
	viper.SetDefault("strategy.average_ltv", 0.5)
	viper.SetDefault("strategy.base_asset", "INJ")
	viper.SetDefault("strategy.quote_asset", "USDT")
	viper.SetDefault("strategy.recommend_margin", 0.0)

	// Collector
	viper.SetDefault("collector.enabled", true)
	viper.SetDefault("collector.interval", "5m")
	viper.SetDefault("collector.snapshot_ttl", "2m")
	viper.SetDefault("collector.retention", "720h")
	viper.SetDefault("collector.cleanup_interval", "1h")

	// Alerts
	viper.SetDefault("alerts.enabled", true)
	viper.SetDefault("alerts.min_spread_pct", 5.0)
	viper.SetDefault("alerts.cooldown", "1h")

	// Security
	viper.SetDefault("security.jwt_secret", "")
	viper.SetDefault("security.jwt_expiry", "24h")
	viper.SetDefault("security.admin_api_key_hash", "")

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.exporter", "stdout")
	viper.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	viper.SetDefault("telemetry.service_name", "perp-prophet")
	viper.SetDefault("telemetry.sample_ratio", 1.0)
}
