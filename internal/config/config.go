package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Providers  []ProviderConfig `yaml:"providers" mapstructure:"providers"`
	Pool       PoolConfig       `yaml:"pool" mapstructure:"pool"`
	Registry   RegistryConfig   `yaml:"registry" mapstructure:"registry"`
	Identities []IdentityConfig `yaml:"identities" mapstructure:"identities"`
	Scan       ScanConfig       `yaml:"scan" mapstructure:"scan"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Round      RoundConfig      `yaml:"round" mapstructure:"round"`
	Market     MarketConfig     `yaml:"market" mapstructure:"market"`
	Gas        GasConfig        `yaml:"gas" mapstructure:"gas"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Alerts     AlertsConfig     `yaml:"alerts" mapstructure:"alerts"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ProviderConfig describes one RPC endpoint in the provider pool.
type ProviderConfig struct {
	Name     string `yaml:"name" mapstructure:"name"`
	URL      string `yaml:"url" mapstructure:"url"`
	Priority int    `yaml:"priority" mapstructure:"priority"`
}

// PoolConfig configures provider health bookkeeping.
type PoolConfig struct {
	MaxFailures    int `yaml:"max_failures" mapstructure:"max_failures"`
	RateLimitMs    int `yaml:"rate_limit_ms" mapstructure:"rate_limit_ms"`
	OutboundPaceMs int `yaml:"outbound_pace_ms" mapstructure:"outbound_pace_ms"`
}

// RegistryConfig holds the governance registry contract settings.
type RegistryConfig struct {
	Contract string `yaml:"contract" mapstructure:"contract"`
}

// IdentityConfig is one voting identity entry.
type IdentityConfig struct {
	Address string `yaml:"address" mapstructure:"address"`
	KeyRef  string `yaml:"key_ref" mapstructure:"key_ref"`
}

// ScanConfig configures proposal discovery throttling.
type ScanConfig struct {
	WindowSize       int `yaml:"window_size" mapstructure:"window_size"`
	MaxWindow        int `yaml:"max_window" mapstructure:"max_window"`
	BaseDelayMs      int `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	ChunkSize        int `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkDelayStepMs int `yaml:"chunk_delay_step_ms" mapstructure:"chunk_delay_step_ms"`
	ChunkPauseMs     int `yaml:"chunk_pause_ms" mapstructure:"chunk_pause_ms"`
	RateLimitPauseMs int `yaml:"rate_limit_pause_ms" mapstructure:"rate_limit_pause_ms"`
}

// EngineConfig configures the decision engine.
type EngineConfig struct {
	Policy            string            `yaml:"policy" mapstructure:"policy"`
	MinDescriptionLen int               `yaml:"min_description_len" mapstructure:"min_description_len"`
	StableIdentifiers []string          `yaml:"stable_identifiers" mapstructure:"stable_identifiers"`
	AssetSymbols      map[string]string `yaml:"asset_symbols" mapstructure:"asset_symbols"`
}

// RoundConfig configures voting-round pacing and limits.
type RoundConfig struct {
	MaxProposals        int    `yaml:"max_proposals" mapstructure:"max_proposals"`
	BudgetSecs          int    `yaml:"budget_secs" mapstructure:"budget_secs"`
	IdentityDelayMs     int    `yaml:"identity_delay_ms" mapstructure:"identity_delay_ms"`
	IdentityDelayStepMs int    `yaml:"identity_delay_step_ms" mapstructure:"identity_delay_step_ms"`
	ProposalDelayMs     int    `yaml:"proposal_delay_ms" mapstructure:"proposal_delay_ms"`
	PriorityAsset       string `yaml:"priority_asset" mapstructure:"priority_asset"`
	IntervalSecs        int    `yaml:"interval_secs" mapstructure:"interval_secs"`
}

// MarketConfig holds market data API settings.
type MarketConfig struct {
	Key     string   `yaml:"key" mapstructure:"key"`
	BaseURL string   `yaml:"base_url" mapstructure:"base_url"`
	Symbols []string `yaml:"symbols" mapstructure:"symbols"`
}

// GasConfig configures vote transaction gas parameters.
type GasConfig struct {
	Limit          uint64 `yaml:"limit" mapstructure:"limit"`
	StaticPriceWei uint64 `yaml:"static_price_wei" mapstructure:"static_price_wei"`
}

// StoreConfig configures the report database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AlertsConfig configures Kafka alert publishing and its thresholds.
type AlertsConfig struct {
	Enabled             bool     `yaml:"enabled" mapstructure:"enabled"`
	Brokers             []string `yaml:"brokers" mapstructure:"brokers"`
	Topic               string   `yaml:"topic" mapstructure:"topic"`
	MinHealthyProviders int      `yaml:"min_healthy_providers" mapstructure:"min_healthy_providers"`
	MaxFailureRate      float64  `yaml:"max_failure_rate" mapstructure:"max_failure_rate"`
	CheckIntervalSecs   int      `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackHours       int      `yaml:"lookback_hours" mapstructure:"lookback_hours"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GOVPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("pool.max_failures", 3)
	v.SetDefault("pool.rate_limit_ms", 2000)
	v.SetDefault("pool.outbound_pace_ms", 200)
	v.SetDefault("scan.window_size", 20)
	v.SetDefault("scan.max_window", 50)
	v.SetDefault("scan.base_delay_ms", 500)
	v.SetDefault("scan.chunk_size", 5)
	v.SetDefault("scan.chunk_delay_step_ms", 200)
	v.SetDefault("scan.chunk_pause_ms", 2000)
	v.SetDefault("scan.rate_limit_pause_ms", 5000)
	v.SetDefault("engine.policy", "conservative")
	v.SetDefault("engine.min_description_len", 10)
	v.SetDefault("round.max_proposals", 10)
	v.SetDefault("round.budget_secs", 45)
	v.SetDefault("round.identity_delay_ms", 1000)
	v.SetDefault("round.identity_delay_step_ms", 200)
	v.SetDefault("round.proposal_delay_ms", 2000)
	v.SetDefault("round.interval_secs", 300)
	v.SetDefault("market.base_url", "https://api.marketsentinel.io/v1")
	v.SetDefault("gas.limit", 300_000)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "govpilot.db")
	v.SetDefault("alerts.topic", "govpilot.alerts")
	v.SetDefault("alerts.min_healthy_providers", 1)
	v.SetDefault("alerts.max_failure_rate", 0.5)
	v.SetDefault("alerts.check_interval_secs", 300)
	v.SetDefault("alerts.lookback_hours", 24)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required for the given run mode: "round" casts
// votes, "discover" only reads, "serve" runs rounds on a schedule behind the
// status server.
func (c *Config) Validate(mode string) error {
	var problems []string

	requireProviders := func() {
		if len(c.Providers) == 0 {
			problems = append(problems, "at least one provider endpoint is required")
		}
		for i, p := range c.Providers {
			if p.URL == "" {
				problems = append(problems, fmt.Sprintf("providers[%d].url is required", i))
			}
		}
	}
	requireVoting := func() {
		requireProviders()
		if len(c.Identities) == 0 {
			problems = append(problems, "at least one voting identity is required")
		}
		if c.Registry.Contract == "" {
			problems = append(problems, "registry.contract is required")
		}
	}

	switch mode {
	case "discover":
		requireProviders()
	case "round":
		requireVoting()
	case "serve":
		requireVoting()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Round.IntervalSecs <= 0 {
			problems = append(problems, "round.interval_secs must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required for postgres")
	}
	if c.Alerts.Enabled && len(c.Alerts.Brokers) == 0 {
		problems = append(problems, "alerts.brokers is required when alerts are enabled")
	}
	if c.Alerts.MaxFailureRate < 0 || c.Alerts.MaxFailureRate > 1 {
		problems = append(problems, "alerts.max_failure_rate must be between 0 and 1")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
