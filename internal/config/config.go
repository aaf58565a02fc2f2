package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mealcart/commerce-router/internal/middleware"
	"github.com/mealcart/commerce-router/internal/providers/doordash"
	"github.com/mealcart/commerce-router/internal/providers/instacart"
	"github.com/mealcart/commerce-router/internal/scoring"
	"github.com/mealcart/commerce-router/internal/security"
	"github.com/mealcart/commerce-router/internal/server"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Router    RouterConfig    `yaml:"router"`
	Providers ProvidersConfig `yaml:"providers"`
	Storage   StorageConfig   `yaml:"storage"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// RouterConfig holds routing engine configuration
type RouterConfig struct {
	DefaultWeightPreset string        `yaml:"default_weight_preset"`
	ProviderTimeout     time.Duration `yaml:"provider_timeout"`
	TokenTTL            time.Duration `yaml:"token_ttl"`
	WarmReliability     bool          `yaml:"warm_reliability"`
}

// ProvidersConfig holds configuration for all fulfillment providers
type ProvidersConfig struct {
	Instacart *instacart.InstacartConfig `yaml:"instacart"`
	DoorDash  *doordash.DoorDashConfig   `yaml:"doordash"`
	Mock      *MockProviderConfig        `yaml:"mock"`
}

// MockProviderConfig enables the deterministic in-process provider,
// mainly for development and load testing.
type MockProviderConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Name           string        `yaml:"name"`
	Latency        time.Duration `yaml:"latency"`
	CommissionRate float64       `yaml:"commission_rate"`
}

// StorageConfig selects the metrics store backend.
type StorageConfig struct {
	Backend     string `yaml:"backend"` // "memory", "postgres", or "redis"
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
}

// KafkaConfig configures the outcome event consumer.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
	Topic   string   `yaml:"topic"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	Output string `yaml:"output"` // "stdout", "stderr", or file path
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	APIKeys      []string        `yaml:"api_keys"`
	JWTSecret    string          `yaml:"jwt_secret"`
	RateLimiting RateLimitConfig `yaml:"rate_limiting"`
	Validation   ValidationConfig `yaml:"validation"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool          `yaml:"enabled"`
	RequestsPerMin int           `yaml:"requests_per_minute"`
	BurstSize      int           `yaml:"burst_size"`
	WindowDuration time.Duration `yaml:"window_duration"`
}

// ValidationConfig holds OpenAPI request validation configuration
type ValidationConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SpecPath string `yaml:"spec_path"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	config.setDefaults()

	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	config.loadFromEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() {
	c.Server = ServerConfig{
		Port:           "8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	c.Router = RouterConfig{
		DefaultWeightPreset: scoring.DefaultPreset,
		ProviderTimeout:     10 * time.Second,
		TokenTTL:            15 * time.Minute,
		WarmReliability:     true,
	}

	c.Storage = StorageConfig{
		Backend: "memory",
	}

	c.Kafka = KafkaConfig{
		Enabled: false,
		Brokers: []string{"localhost:9092"},
		GroupID: "commerce-router",
		Topic:   "orders.outcomes",
	}

	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}

	c.Security = SecurityConfig{
		APIKeys: []string{},
		RateLimiting: RateLimitConfig{
			Enabled:        false,
			RequestsPerMin: 60,
			BurstSize:      10,
			WindowDuration: time.Minute,
		},
		Validation: ValidationConfig{
			Enabled:  false,
			SpecPath: "docs/openapi.yaml",
		},
	}

	c.Providers = ProvidersConfig{
		Mock: &MockProviderConfig{
			Enabled:        true,
			Name:           "mock",
			CommissionRate: 0.12,
		},
	}
}

// loadFromFile loads configuration from YAML file
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if port := os.Getenv("COMMERCE_ROUTER_PORT"); port != "" {
		c.Server.Port = port
	}

	if key := os.Getenv("INSTACART_API_KEY"); key != "" {
		if c.Providers.Instacart == nil {
			c.Providers.Instacart = &instacart.InstacartConfig{}
		}
		c.Providers.Instacart.APIKey = key
	}

	if key := os.Getenv("DOORDASH_API_KEY"); key != "" {
		if c.Providers.DoorDash == nil {
			c.Providers.DoorDash = &doordash.DoorDashConfig{}
		}
		c.Providers.DoorDash.APIKey = key
	}

	if dsn := os.Getenv("COMMERCE_ROUTER_POSTGRES_DSN"); dsn != "" {
		c.Storage.Backend = "postgres"
		c.Storage.PostgresDSN = dsn
	}

	if addr := os.Getenv("COMMERCE_ROUTER_REDIS_ADDR"); addr != "" {
		c.Storage.Backend = "redis"
		c.Storage.RedisAddr = addr
	}

	if brokers := os.Getenv("COMMERCE_ROUTER_KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Enabled = true
		c.Kafka.Brokers = strings.Split(brokers, ",")
	}

	if secret := os.Getenv("COMMERCE_ROUTER_JWT_SECRET"); secret != "" {
		c.Security.JWTSecret = secret
	}

	if level := os.Getenv("COMMERCE_ROUTER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if format := os.Getenv("COMMERCE_ROUTER_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}

	if preset := os.Getenv("COMMERCE_ROUTER_DEFAULT_PRESET"); preset != "" {
		c.Router.DefaultWeightPreset = preset
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if _, err := scoring.LookupPreset(c.Router.DefaultWeightPreset); err != nil {
		return fmt.Errorf("invalid default weight preset: %s (valid: %s)",
			c.Router.DefaultWeightPreset, strings.Join(scoring.PresetNames(), ", "))
	}

	if c.Router.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}

	if c.Router.ProviderTimeout <= 0 {
		return fmt.Errorf("provider timeout must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("postgres_dsn is required for the postgres backend")
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required when kafka is enabled")
		}
	}

	if c.Providers.Instacart != nil && c.Providers.Instacart.APIKey == "" && !c.Providers.Instacart.MockFallback {
		return fmt.Errorf("instacart API key is required when the instacart provider is enabled")
	}
	if c.Providers.DoorDash != nil && c.Providers.DoorDash.APIKey == "" && !c.Providers.DoorDash.MockFallback {
		return fmt.Errorf("doordash API key is required when the doordash provider is enabled")
	}

	if len(c.GetEnabledProviders()) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	return nil
}

// ToServerConfig converts to server.ServerConfig
func (c *Config) ToServerConfig() *server.ServerConfig {
	return &server.ServerConfig{
		Port:           c.Server.Port,
		ReadTimeout:    c.Server.ReadTimeout,
		WriteTimeout:   c.Server.WriteTimeout,
		MaxHeaderBytes: c.Server.MaxHeaderBytes,
		Security:       c.ToSecurityMiddlewareConfig(),
	}
}

// ToSecurityMiddlewareConfig converts to middleware.SecurityMiddlewareConfig
func (c *Config) ToSecurityMiddlewareConfig() *middleware.SecurityMiddlewareConfig {
	return &middleware.SecurityMiddlewareConfig{
		Auth: &security.Config{
			APIKeys:     c.Security.APIKeys,
			JWTSecret:   c.Security.JWTSecret,
			RequireAuth: len(c.Security.APIKeys) > 0 || c.Security.JWTSecret != "",
		},
		RateLimit: &security.RateLimitConfig{
			Enabled:           c.Security.RateLimiting.Enabled,
			RequestsPerMinute: c.Security.RateLimiting.RequestsPerMin,
			BurstSize:         c.Security.RateLimiting.BurstSize,
			WindowDuration:    c.Security.RateLimiting.WindowDuration,
			CleanupInterval:   5 * time.Minute,
		},
		Validation: &middleware.ValidationConfig{
			Enabled:  c.Security.Validation.Enabled,
			SpecPath: c.Security.Validation.SpecPath,
		},
	}
}

// SaveToFile saves the current configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetEnabledProviders returns a list of enabled provider names
func (c *Config) GetEnabledProviders() []string {
	var names []string

	if c.Providers.Instacart != nil {
		names = append(names, "instacart")
	}
	if c.Providers.DoorDash != nil {
		names = append(names, "doordash")
	}
	if c.Providers.Mock != nil && c.Providers.Mock.Enabled {
		name := c.Providers.Mock.Name
		if name == "" {
			name = "mock"
		}
		names = append(names, name)
	}

	return names
}
