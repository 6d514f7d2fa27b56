package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/irfndi/celebrum-inr-arb/internal/models"
	"github.com/irfndi/celebrum-inr-arb/internal/utils"
)

type Config struct {
	Environment string             `mapstructure:"environment"`
	LogLevel    string             `mapstructure:"log_level"`
	Server      ServerConfig       `mapstructure:"server"`
	Database    DatabaseConfig     `mapstructure:"database"`
	Redis       RedisConfig        `mapstructure:"redis"`
	Telegram    TelegramConfig     `mapstructure:"telegram"`
	Telemetry   TelemetryConfig    `mapstructure:"telemetry"`
	Venues      VenuesConfig       `mapstructure:"venues"`
	FX          FXConfig           `mapstructure:"fx"`
	Arbitrage   ArbitrageConfig    `mapstructure:"arbitrage"`
	Symbols     models.SymbolTable `mapstructure:"symbols"`
}

type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
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
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// LatestTTLSeconds bounds how long the latest batch stays readable in redis.
	LatestTTLSeconds int `mapstructure:"latest_ttl_seconds"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" json:"-" yaml:"-"`
	ChatID   int64  `mapstructure:"chat_id"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"` // "stdout" or "otlp"
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// VenueConfig describes one exchange's public ticker endpoint.
type VenueConfig struct {
	Name     string `mapstructure:"name"`
	Currency string `mapstructure:"currency"`
	URL      string `mapstructure:"url"`
	// TimeoutSeconds is the per-request HTTP timeout.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// MinCallIntervalMs is the minimum spacing between two requests to the venue.
	MinCallIntervalMs int `mapstructure:"min_call_interval_ms"`
	MaxAttempts       int `mapstructure:"max_attempts"`
	BaseDelayMs       int `mapstructure:"base_delay_ms"`
}

type VenuesConfig struct {
	CoinDCX VenueConfig `mapstructure:"coindcx"`
	Binance VenueConfig `mapstructure:"binance"`
}

type FXConfig struct {
	URL            string  `mapstructure:"url"`
	Base           string  `mapstructure:"base"`
	Quote          string  `mapstructure:"quote"`
	TTLSeconds     int     `mapstructure:"ttl_seconds"`
	FallbackRate   float64 `mapstructure:"fallback_rate"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

type ArbitrageConfig struct {
	IntervalSeconds  int     `mapstructure:"interval_seconds"`
	CooldownSeconds  int     `mapstructure:"cooldown_seconds"`
	MinSpreadPercent float64 `mapstructure:"min_spread_percent"`
	MaxSpreadPercent float64 `mapstructure:"max_spread_percent"`
	// StatsEvery logs a run summary every N iterations; 0 disables it.
	StatsEvery int `mapstructure:"stats_every"`
	// BreakerFailures opens a venue's circuit after this many consecutive failed fetches.
	BreakerFailures       int `mapstructure:"breaker_failures"`
	BreakerTimeoutSeconds int `mapstructure:"breaker_timeout_seconds"`
}

// Interval returns the polling interval as a duration.
func (a ArbitrageConfig) Interval() time.Duration {
	return time.Duration(a.IntervalSeconds) * time.Second
}

// Cooldown returns the pause after a failed iteration.
func (a ArbitrageConfig) Cooldown() time.Duration {
	return time.Duration(a.CooldownSeconds) * time.Second
}

// Timeout returns the HTTP timeout for the venue.
func (v VenueConfig) Timeout() time.Duration {
	return time.Duration(v.TimeoutSeconds) * time.Second
}

// MinCallInterval returns the minimum spacing between two requests.
func (v VenueConfig) MinCallInterval() time.Duration {
	return time.Duration(v.MinCallIntervalMs) * time.Millisecond
}

// BaseDelay returns the first backoff delay.
func (v VenueConfig) BaseDelay() time.Duration {
	return time.Duration(v.BaseDelayMs) * time.Millisecond
}

// TTL returns how long a fetched rate stays fresh.
func (f FXConfig) TTL() time.Duration {
	return time.Duration(f.TTLSeconds) * time.Second
}

// Timeout returns the HTTP timeout for the rate endpoint.
func (f FXConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// Load reads configuration from defaults, an optional config.yaml, the
// environment and, when given, command line flags. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind TELEGRAM_BOT_TOKEN environment variable: %w", err)
	}

	if flags != nil {
		if f := flags.Lookup("interval"); f != nil {
			if err := v.BindPFlag("arbitrage.interval_seconds", f); err != nil {
				return nil, fmt.Errorf("failed to bind interval flag: %w", err)
			}
		}
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)
	// A configured table replaces the default one instead of merging into it.
	if !v.IsSet("symbols") {
		config.Symbols = models.DefaultSymbolTable()
	}
	config.Symbols = config.Symbols.Normalize()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the values the pipeline relies on.
func (c *Config) Validate() error {
	if c.Arbitrage.IntervalSeconds < 1 {
		return utils.NewValidationErrorf("arbitrage.interval_seconds", "must be at least 1, got %d", c.Arbitrage.IntervalSeconds)
	}
	if c.Arbitrage.CooldownSeconds < 0 {
		return utils.NewValidationErrorf("arbitrage.cooldown_seconds", "must not be negative, got %d", c.Arbitrage.CooldownSeconds)
	}
	if c.Arbitrage.MinSpreadPercent <= 0 {
		return utils.NewValidationErrorf("arbitrage.min_spread_percent", "must be positive, got %v", c.Arbitrage.MinSpreadPercent)
	}
	if c.Arbitrage.MaxSpreadPercent <= c.Arbitrage.MinSpreadPercent {
		return utils.NewValidationErrorf("arbitrage.max_spread_percent", "must exceed min spread %v, got %v",
			c.Arbitrage.MinSpreadPercent, c.Arbitrage.MaxSpreadPercent)
	}
	if c.FX.FallbackRate <= 0 {
		return utils.NewValidationErrorf("fx.fallback_rate", "must be positive, got %v", c.FX.FallbackRate)
	}
	if c.FX.TTLSeconds <= 0 {
		return utils.NewValidationErrorf("fx.ttl_seconds", "must be positive, got %d", c.FX.TTLSeconds)
	}
	if c.FX.TimeoutSeconds <= 0 || c.FX.TimeoutSeconds > 30 {
		return utils.NewValidationErrorf("fx.timeout_seconds", "must be between 1 and 30, got %d", c.FX.TimeoutSeconds)
	}
	for key, venue := range map[string]VenueConfig{"venues.coindcx": c.Venues.CoinDCX, "venues.binance": c.Venues.Binance} {
		if venue.URL == "" {
			return utils.NewValidationError(key+".url", "is required")
		}
		if venue.TimeoutSeconds <= 0 || venue.TimeoutSeconds > 30 {
			return utils.NewValidationErrorf(key+".timeout_seconds", "must be between 1 and 30, got %d", venue.TimeoutSeconds)
		}
		if venue.MaxAttempts < 1 {
			return utils.NewValidationErrorf(key+".max_attempts", "must be at least 1, got %d", venue.MaxAttempts)
		}
	}
	if len(c.Symbols) == 0 {
		return utils.NewValidationError("symbols", "at least one symbol is required")
	}
	for _, symbol := range c.Symbols.Symbols() {
		markets := c.Symbols[symbol]
		if markets[c.Venues.CoinDCX.Name] == "" || markets[c.Venues.Binance.Name] == "" {
			return utils.NewValidationErrorf("symbols."+strings.ToLower(symbol), "needs a market on both %s and %s",
				c.Venues.CoinDCX.Name, c.Venues.Binance.Name)
		}
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return utils.NewValidationErrorf("server.port", "out of range: %d", c.Server.Port)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)

	// Database
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "celebrum_arb")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.database_url", "")

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.latest_ttl_seconds", 300)

	// Telegram
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "stdout")
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "celebrum-inr-arb")
	v.SetDefault("telemetry.sample_rate", 1.0)

	// Venues
	v.SetDefault("venues.coindcx.name", models.VenueCoinDCX)
	v.SetDefault("venues.coindcx.currency", "INR")
	v.SetDefault("venues.coindcx.url", "https://api.coindcx.com/exchange/ticker")
	v.SetDefault("venues.coindcx.timeout_seconds", 10)
	v.SetDefault("venues.coindcx.min_call_interval_ms", 1000)
	v.SetDefault("venues.coindcx.max_attempts", 3)
	v.SetDefault("venues.coindcx.base_delay_ms", 1000)
	v.SetDefault("venues.binance.name", models.VenueBinance)
	v.SetDefault("venues.binance.currency", "USDT")
	v.SetDefault("venues.binance.url", "https://api.binance.com/api/v3/ticker/24hr")
	v.SetDefault("venues.binance.timeout_seconds", 10)
	v.SetDefault("venues.binance.min_call_interval_ms", 1000)
	v.SetDefault("venues.binance.max_attempts", 3)
	v.SetDefault("venues.binance.base_delay_ms", 1000)

	// FX
	v.SetDefault("fx.url", "https://api.exchangerate-api.com/v4/latest/USD")
	v.SetDefault("fx.base", "USD")
	v.SetDefault("fx.quote", "INR")
	v.SetDefault("fx.ttl_seconds", 300)
	v.SetDefault("fx.fallback_rate", 83.0)
	v.SetDefault("fx.timeout_seconds", 10)

	// Arbitrage
	v.SetDefault("arbitrage.interval_seconds", 10)
	v.SetDefault("arbitrage.cooldown_seconds", 5)
	v.SetDefault("arbitrage.min_spread_percent", 0.5)
	v.SetDefault("arbitrage.max_spread_percent", 10.0)
	v.SetDefault("arbitrage.stats_every", 20)
	v.SetDefault("arbitrage.breaker_failures", 5)
	v.SetDefault("arbitrage.breaker_timeout_seconds", 60)
}
