// Package config loads application configuration from config.yaml and
// the environment, initializes logging and resolves secrets.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/stockfunk/internal/agents"
	"github.com/ajitpratap0/stockfunk/internal/regime"
	"github.com/ajitpratap0/stockfunk/internal/risk"
)

// Config holds all application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Agents   AgentsConfig   `mapstructure:"agents"`
	Regime   RegimeConfig   `mapstructure:"regime"`
	Weights  WeightsConfig  `mapstructure:"weights"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Provider ProviderConfig `mapstructure:"provider"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	LLM      LLMConfig      `mapstructure:"llm"`
	API      APIConfig      `mapstructure:"api"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Vault    VaultConfig    `mapstructure:"vault"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
}

// CacheConfig tunes the score cache.
type CacheConfig struct {
	MaxSize    int `mapstructure:"max_size"`
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// AgentsConfig tunes the executor.
type AgentsConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxRetries     int `mapstructure:"max_retries"`
}

// Timeout returns the per-agent attempt timeout.
func (c AgentsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RegimeConfig tunes the market regime service.
type RegimeConfig struct {
	Benchmark    string  `mapstructure:"benchmark"`
	LookbackDays int     `mapstructure:"lookback_days"`
	TrendCutoff  float64 `mapstructure:"trend_cutoff"`
	VolLow       float64 `mapstructure:"vol_low"`
	VolHigh      float64 `mapstructure:"vol_high"`
	TTLSeconds   int     `mapstructure:"ttl_seconds"`
}

// TTL returns the regime memoization window.
func (c RegimeConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// WeightsConfig selects static or regime-adaptive agent weights.
type WeightsConfig struct {
	Adaptive      bool    `mapstructure:"adaptive"`
	Fundamentals  float64 `mapstructure:"fundamentals"`
	Momentum      float64 `mapstructure:"momentum"`
	Quality       float64 `mapstructure:"quality"`
	Sentiment     float64 `mapstructure:"sentiment"`
	Institutional float64 `mapstructure:"institutional"`
}

// Static returns the configured static weight vector.
func (c WeightsConfig) Static() regime.Weights {
	return regime.Weights{
		agents.NameFundamentals: c.Fundamentals,
		agents.NameMomentum:     c.Momentum,
		agents.NameQuality:      c.Quality,
		agents.NameSentiment:    c.Sentiment,
		agents.NameFlow:         c.Institutional,
	}
}

// RiskConfig mirrors the risk manager policy knobs.
type RiskConfig struct {
	MaxDrawdown            float64 `mapstructure:"max_drawdown"`
	DefensiveCashBuffer    float64 `mapstructure:"defensive_cash_buffer"`
	VolCeiling             float64 `mapstructure:"vol_ceiling"`
	VolScaleFactor         float64 `mapstructure:"vol_scale_factor"`
	MaxPositionSize        float64 `mapstructure:"max_position_size"`
	MaxSectorConcentration float64 `mapstructure:"max_sector_concentration"`
}

// Policy converts to the risk package config.
func (c RiskConfig) Policy() risk.Config {
	return risk.Config{
		MaxDrawdown:            c.MaxDrawdown,
		DefensiveCashBuffer:    c.DefensiveCashBuffer,
		VolCeiling:             c.VolCeiling,
		VolScaleFactor:         c.VolScaleFactor,
		MaxPositionSize:        c.MaxPositionSize,
		MaxSectorConcentration: c.MaxSectorConcentration,
	}
}

// ProviderConfig points at the market data vendor.
type ProviderConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RatePerSecond  int    `mapstructure:"rate_per_second"`
}

// RedisConfig locates the optional Redis read-through cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig locates the optional Postgres run store.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// NATSConfig locates the optional risk-event bus.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// TelegramConfig configures risk alerting.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// LLMConfig configures the optional news-sentiment enrichment.
type LLMConfig struct {
	Provider       string `mapstructure:"provider"` // "" disables enrichment
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Enabled reports whether news enrichment is configured.
func (c LLMConfig) Enabled() bool {
	return c.Provider != ""
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RatePerSecond  float64  `mapstructure:"rate_per_second"`
	RateBurst      int      `mapstructure:"rate_burst"`
}

// Addr returns host:port for the listener.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BacktestConfig configures run persistence.
type BacktestConfig struct {
	StoreDir string `mapstructure:"store_dir"`
	MaxRuns  int    `mapstructure:"max_runs"`
}

// VaultConfig locates the optional secret store.
type VaultConfig struct {
	Addr  string `mapstructure:"addr"`
	Token string `mapstructure:"token"`
}

// Load reads config.yaml (if present), applies environment overrides
// and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file; defaults and environment carry the load.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets every default value.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "StockFunk")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("cache.max_size", 2000)
	v.SetDefault("cache.ttl_seconds", 1200)

	v.SetDefault("agents.timeout_seconds", 30)
	v.SetDefault("agents.max_retries", 3)

	v.SetDefault("regime.benchmark", "SPY")
	v.SetDefault("regime.lookback_days", 90)
	v.SetDefault("regime.trend_cutoff", 0.02)
	v.SetDefault("regime.vol_low", 0.12)
	v.SetDefault("regime.vol_high", 0.22)
	v.SetDefault("regime.ttl_seconds", 21600)

	v.SetDefault("weights.adaptive", false)
	v.SetDefault("weights.fundamentals", 0.30)
	v.SetDefault("weights.momentum", 0.25)
	v.SetDefault("weights.quality", 0.20)
	v.SetDefault("weights.sentiment", 0.15)
	v.SetDefault("weights.institutional", 0.10)

	v.SetDefault("risk.max_drawdown", 0.15)
	v.SetDefault("risk.defensive_cash_buffer", 0.50)
	v.SetDefault("risk.vol_ceiling", 0.28)
	v.SetDefault("risk.vol_scale_factor", 0.75)
	v.SetDefault("risk.max_position_size", 0.10)
	v.SetDefault("risk.max_sector_concentration", 0.40)

	v.SetDefault("provider.timeout_seconds", 15)
	v.SetDefault("provider.rate_per_second", 5)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.allowed_origins", []string{"*"})
	v.SetDefault("api.rate_per_second", 10.0)
	v.SetDefault("api.rate_burst", 20)

	v.SetDefault("backtest.store_dir", "./data/backtests")
	v.SetDefault("backtest.max_runs", 100)
}

// bindEnv maps the flat deployment environment variables onto config
// keys. Env always wins over the file.
func bindEnv(v *viper.Viper) {
	bindings := map[string]string{
		"app.environment":        "ENVIRONMENT",
		"app.log_level":          "LOG_LEVEL",
		"cache.max_size":         "CACHE_MAX_SIZE",
		"cache.ttl_seconds":      "CACHE_TTL_SECONDS",
		"agents.timeout_seconds": "AGENT_TIMEOUT_SECONDS",
		"agents.max_retries":     "AGENT_MAX_RETRIES",
		"regime.ttl_seconds":     "REGIME_TTL_SECONDS",
		"weights.adaptive":       "ENABLE_ADAPTIVE_WEIGHTS",
		"provider.base_url":      "PROVIDER_BASE_URL",
		"provider.api_key":       "PROVIDER_API_KEY",
		"redis.addr":             "REDIS_ADDR",
		"redis.password":         "REDIS_PASSWORD",
		"database.url":           "DATABASE_URL",
		"nats.url":               "NATS_URL",
		"telegram.bot_token":     "TELEGRAM_BOT_TOKEN",
		"telegram.chat_id":       "TELEGRAM_CHAT_ID",
		"llm.provider":           "LLM_PROVIDER",
		"llm.api_key":            "LLM_API_KEY",
		"api.host":               "API_HOST",
		"api.port":               "API_PORT",
		"api.allowed_origins":    "ALLOWED_ORIGINS",
		"backtest.store_dir":     "BACKTEST_STORE_DIR",
		"backtest.max_runs":      "BACKTEST_MAX_RUNS",
		"vault.addr":             "VAULT_ADDR",
		"vault.token":            "VAULT_TOKEN",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}
