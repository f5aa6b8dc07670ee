package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Funding      FundingConfig      `mapstructure:"funding"`
	Notification NotificationConfig `mapstructure:"notification"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// FundingConfig holds funding provider configuration
type FundingConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NotificationConfig holds notification sink and dispatcher configuration
type NotificationConfig struct {
	SinkURL          string        `mapstructure:"sink_url"`
	SinkToken        string        `mapstructure:"sink_token"`
	SinkTimeout      time.Duration `mapstructure:"sink_timeout"`
	DispatchInterval time.Duration `mapstructure:"dispatch_interval"`
	DispatchBatch    int           `mapstructure:"dispatch_batch"`
}

// CacheConfig holds the optional redis read-through cache configuration
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("database.path", "data/approvalflow.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	viper.SetDefault("funding.timeout", 15*time.Second)

	viper.SetDefault("notification.sink_timeout", 10*time.Second)
	viper.SetDefault("notification.dispatch_interval", 15*time.Second)
	viper.SetDefault("notification.dispatch_batch", 50)

	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.addr", "localhost:6379")
	viper.SetDefault("cache.db", 0)
	viper.SetDefault("cache.ttl", 5*time.Minute)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	viper.BindEnv("funding.base_url", "FUNDING_BASE_URL")
	viper.BindEnv("funding.api_key", "FUNDING_API_KEY")
	viper.BindEnv("notification.sink_url", "NOTIFICATION_SINK_URL")
	viper.BindEnv("notification.sink_token", "NOTIFICATION_SINK_TOKEN")
	viper.BindEnv("cache.addr", "REDIS_ADDR")
	viper.BindEnv("cache.password", "REDIS_PASSWORD")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Funding.BaseURL == "" {
		return fmt.Errorf("funding.base_url is required")
	}
	if c.Funding.APIKey == "" {
		return fmt.Errorf("funding.api_key is required")
	}
	if c.Notification.SinkURL == "" {
		return fmt.Errorf("notification.sink_url is required")
	}
	if c.Notification.DispatchBatch <= 0 {
		return fmt.Errorf("notification.dispatch_batch must be positive")
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when cache is enabled")
	}
	return nil
}
