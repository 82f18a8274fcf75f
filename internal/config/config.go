package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all Cloud Budget Guardian configuration.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StorageConfig defines database settings.
type StorageConfig struct {
	Path         string        `mapstructure:"path"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// ServerConfig defines the REST listener.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AlertsConfig defines notification delivery settings.
type AlertsConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	DashboardURL string        `mapstructure:"dashboard_url"`
	SMTP         SMTPConfig    `mapstructure:"smtp"`
	Webhook      WebhookConfig `mapstructure:"webhook"`
	Breaker      BreakerConfig `mapstructure:"breaker"`
}

// SMTPConfig defines mail submission. An empty host leaves email unavailable.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	StartTLS bool   `mapstructure:"starttls"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
}

// BreakerConfig defines the per-endpoint circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// SchedulerConfig defines the periodic check-all sweep.
type SchedulerConfig struct {
	Schedule string   `mapstructure:"schedule"`
	Tenants  []string `mapstructure:"tenants"`
}

// EngineConfig defines evaluation settings.
type EngineConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".cbg"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("storage.path", filepath.Join(home, ".cbg", "guardian.db"))
	v.SetDefault("storage.query_timeout", "30s")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("alerts.timeout", "10s")
	v.SetDefault("alerts.dashboard_url", "http://localhost:3000")
	v.SetDefault("alerts.smtp.host", "")
	v.SetDefault("alerts.smtp.port", 587)
	v.SetDefault("alerts.smtp.username", "")
	v.SetDefault("alerts.smtp.password", "")
	v.SetDefault("alerts.smtp.from", "noreply@cloudbudget.local")
	v.SetDefault("alerts.smtp.starttls", true)
	v.SetDefault("alerts.webhook.secret", "")
	v.SetDefault("alerts.breaker.max_failures", 5)
	v.SetDefault("alerts.breaker.open_timeout", "60s")
	v.SetDefault("scheduler.schedule", "")
	v.SetDefault("scheduler.tenants", []string{})
	v.SetDefault("engine.max_concurrency", 4)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Environment variables
	v.SetEnvPrefix("CBG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format %q: want json or text", c.Logging.Format)
	}
	if c.Engine.MaxConcurrency < 1 {
		return fmt.Errorf("invalid engine.max_concurrency %d: must be at least 1", c.Engine.MaxConcurrency)
	}
	if c.Storage.QueryTimeout <= 0 {
		return fmt.Errorf("invalid storage.query_timeout %s: must be positive", c.Storage.QueryTimeout)
	}
	if c.Alerts.Timeout <= 0 {
		return fmt.Errorf("invalid alerts.timeout %s: must be positive", c.Alerts.Timeout)
	}
	if c.Scheduler.Schedule != "" && len(c.Scheduler.Tenants) == 0 {
		return fmt.Errorf("scheduler.schedule is set but scheduler.tenants is empty")
	}
	return nil
}
