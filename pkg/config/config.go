package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Client   ClientConfig
	Session  SessionConfig
	Expiry   ExpiryConfig
	RabbitMQ RabbitMQConfig
	Agent    AgentConfig
}

// ClientConfig holds API client configuration
type ClientConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
	Environment   string        `mapstructure:"environment"`
	LogLevel      string        `mapstructure:"log_level"`
}

// Validate checks that the client configuration is usable in the given environment.
// Outside development the API must be reached over TLS.
func (c *ClientConfig) Validate(environment string) error {
	if c.BaseURL == "" {
		return errors.New("LABTRACK_CLIENT_BASE_URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid base url %q", c.BaseURL)
	}
	if environment == EnvProduction || environment == EnvStaging {
		if u.Scheme != "https" {
			return errors.New("LABTRACK_CLIENT_BASE_URL must use https in " + environment)
		}
	}
	if c.Timeout <= 0 || c.UploadTimeout <= 0 {
		return errors.New("client timeouts must be positive")
	}
	return nil
}

// SessionConfig holds where the token and user snapshot are persisted
type SessionConfig struct {
	Path string `mapstructure:"path"`
}

// ExpiryConfig holds expiry classification defaults
type ExpiryConfig struct {
	DefaultAlertDays int `mapstructure:"default_alert_days"`
}

// RabbitMQConfig holds RabbitMQ connection configuration.
// An empty URL disables change notifications.
type RabbitMQConfig struct {
	URL            string        `mapstructure:"url"`
	Exchange       string        `mapstructure:"exchange"`
	Queue          string        `mapstructure:"queue"`
	MaxRetries     int           `mapstructure:"max_retries"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	PrefetchCount  int           `mapstructure:"prefetch_count"`
}

// Enabled reports whether a broker is configured
func (c *RabbitMQConfig) Enabled() bool {
	return c.URL != ""
}

// AgentConfig holds sync agent configuration
type AgentConfig struct {
	Addr            string        `mapstructure:"addr"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	PageSize        int           `mapstructure:"page_size"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// Load loads configuration from environment and config files.
// This function applies development defaults and is suitable for local development.
// For production use, prefer LoadWithValidation which enforces required configuration.
func Load(appName string) (*Config, error) {
	return loadConfig(appName)
}

// LoadWithValidation loads configuration and validates it for the current environment.
// Use this function in main() for fail-fast behavior.
func LoadWithValidation(appName string) (*Config, error) {
	cfg, err := loadConfig(appName)
	if err != nil {
		return nil, err
	}

	if err := cfg.Client.Validate(cfg.Client.Environment); err != nil {
		return nil, fmt.Errorf("client configuration error: %w", err)
	}

	if cfg.Expiry.DefaultAlertDays < 0 {
		return nil, errors.New("LABTRACK_EXPIRY_DEFAULT_ALERT_DAYS must not be negative")
	}

	// Validate RabbitMQ URL in production
	if cfg.Client.Environment == EnvProduction && cfg.RabbitMQ.Enabled() {
		if strings.Contains(cfg.RabbitMQ.URL, "localhost") {
			return nil, errors.New("LABTRACK_RABBITMQ_URL must be set to a non-localhost value in " + cfg.Client.Environment)
		}
	}

	return cfg, nil
}

// loadConfig is the internal configuration loader
func loadConfig(appName string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("LABTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName(appName)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.labtrack")
	v.AddConfigPath("/etc/labtrack")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Client.Environment = strings.ToLower(cfg.Client.Environment)
	cfg.Client.BaseURL = strings.TrimRight(cfg.Client.BaseURL, "/")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Client defaults
	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.timeout", 10*time.Second)
	v.SetDefault("client.upload_timeout", 30*time.Second)
	v.SetDefault("client.environment", EnvDevelopment)
	v.SetDefault("client.log_level", "info")

	// Session defaults
	v.SetDefault("session.path", DefaultSessionPath())

	// Expiry defaults
	v.SetDefault("expiry.default_alert_days", 60)

	// RabbitMQ defaults (disabled unless a URL is given)
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "labtrack.events")
	v.SetDefault("rabbitmq.queue", "labtrack.agent")
	v.SetDefault("rabbitmq.max_retries", 5)
	v.SetDefault("rabbitmq.reconnect_delay", 5*time.Second)
	v.SetDefault("rabbitmq.prefetch_count", 10)

	// Agent defaults
	v.SetDefault("agent.addr", ":9310")
	v.SetDefault("agent.refresh_interval", time.Minute)
	v.SetDefault("agent.page_size", 100)
	v.SetDefault("agent.allowed_origins", []string{"http://localhost:5173"})
}
