package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"xrate-oracle/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig covers the ingress HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// EngineConfig tunes the rate-resolution engine.
type EngineConfig struct {
	BaseFeeCycles         uint64   `mapstructure:"base_fee_cycles"`
	OutcallFeeCycles      uint64   `mapstructure:"outcall_fee_cycles"`
	MinimumFeeCycles      uint64   `mapstructure:"minimum_fee_cycles"`
	RequestLimit          int      `mapstructure:"request_limit"`
	CacheCapacity         int      `mapstructure:"cache_capacity"`
	CacheBackend          string   `mapstructure:"cache_backend"`
	PrivilegedCallers     []string `mapstructure:"privileged_callers"`
	ForexRetainDays       uint64   `mapstructure:"forex_retain_days"`
	DisableWeekendRetreat bool     `mapstructure:"disable_weekend_retreat"`
}

// UpstreamConfig covers outbound HTTP behaviour.
type UpstreamConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// RedisConfig connects the optional Redis rate cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the monitor.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MonitorConfig drives the recording poller.
type MonitorConfig struct {
	OracleURL string        `mapstructure:"oracle_url"`
	Caller    string        `mapstructure:"caller"`
	Cycles    uint64        `mapstructure:"cycles"`
	Pairs     []string      `mapstructure:"pairs"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// SchedulerConfig governs tick cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("XRATEORACLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "xrate-oracle")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("engine.base_fee_cycles", uint64(200_000_000))
	v.SetDefault("engine.outcall_fee_cycles", uint64(2_000_000_000))
	v.SetDefault("engine.minimum_fee_cycles", uint64(100_000_000))
	v.SetDefault("engine.request_limit", 56)
	v.SetDefault("engine.cache_capacity", 100)
	v.SetDefault("engine.cache_backend", "memory")
	v.SetDefault("engine.privileged_callers", []string{"rkp4c-7iaaa-aaaaa-aaaca-cai"})
	v.SetDefault("engine.forex_retain_days", uint64(14))
	v.SetDefault("engine.disable_weekend_retreat", false)

	v.SetDefault("upstream.request_timeout", "10s")
	v.SetDefault("upstream.user_agent", "xrate-oracle/1.0")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("monitor.oracle_url", "http://localhost:8080")
	v.SetDefault("monitor.caller", "xrate-monitor")
	v.SetDefault("monitor.cycles", uint64(20_000_000_000))
	v.SetDefault("monitor.pairs", []string{"BTC/USDT", "ICP/USDT"})
	v.SetDefault("monitor.timeout", "30s")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Engine.RequestLimit <= 0 {
		return fmt.Errorf("engine.request_limit must be greater than zero")
	}
	if c.Engine.CacheCapacity <= 0 {
		return fmt.Errorf("engine.cache_capacity must be greater than zero")
	}
	switch c.Engine.CacheBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("engine.cache_backend must be memory or redis")
	}
	if c.Engine.CacheBackend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required with the redis cache backend")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	for _, pair := range c.Monitor.Pairs {
		if !strings.Contains(pair, "/") {
			return fmt.Errorf("monitor.pairs entries must look like BASE/QUOTE, got %q", pair)
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
