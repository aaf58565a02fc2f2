package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Expected default port '8080', got %s", cfg.Server.Port)
	}

	if cfg.Router.DefaultWeightPreset != "balanced" {
		t.Errorf("Expected default preset 'balanced', got %s", cfg.Router.DefaultWeightPreset)
	}

	if cfg.Router.TokenTTL != 15*time.Minute {
		t.Errorf("Expected default token TTL 15m, got %v", cfg.Router.TokenTTL)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Expected default log level 'info', got %s", cfg.Logging.Level)
	}

	if cfg.Storage.Backend != "memory" {
		t.Errorf("Expected default storage backend 'memory', got %s", cfg.Storage.Backend)
	}

	// The mock provider is enabled by default so the service starts
	// without credentials.
	providers := cfg.GetEnabledProviders()
	if len(providers) != 1 || providers[0] != "mock" {
		t.Errorf("Expected default providers [mock], got %v", providers)
	}
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	os.Setenv("COMMERCE_ROUTER_PORT", "9090")
	os.Setenv("COMMERCE_ROUTER_LOG_LEVEL", "debug")
	os.Setenv("COMMERCE_ROUTER_DEFAULT_PRESET", "price-optimized")
	os.Setenv("INSTACART_API_KEY", "ic-test-key")

	defer func() {
		os.Unsetenv("COMMERCE_ROUTER_PORT")
		os.Unsetenv("COMMERCE_ROUTER_LOG_LEVEL")
		os.Unsetenv("COMMERCE_ROUTER_DEFAULT_PRESET")
		os.Unsetenv("INSTACART_API_KEY")
	}()

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Expected port '9090', got %s", cfg.Server.Port)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level 'debug', got %s", cfg.Logging.Level)
	}

	if cfg.Router.DefaultWeightPreset != "price-optimized" {
		t.Errorf("Expected preset 'price-optimized', got %s", cfg.Router.DefaultWeightPreset)
	}

	if cfg.Providers.Instacart == nil || cfg.Providers.Instacart.APIKey != "ic-test-key" {
		t.Errorf("Expected instacart provider enabled from env")
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	content := `
server:
  port: "9191"
router:
  default_weight_preset: speed-optimized
storage:
  backend: redis
  redis_addr: localhost:6379
kafka:
  enabled: true
  brokers: [localhost:9092]
  group_id: test-group
  topic: orders.outcomes
providers:
  doordash:
    api_key: dd-test
    developer_id: dev-1
    commission_rate: 0.18
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != "9191" {
		t.Errorf("Expected port '9191', got %s", cfg.Server.Port)
	}

	if cfg.Router.DefaultWeightPreset != "speed-optimized" {
		t.Errorf("Expected preset 'speed-optimized', got %s", cfg.Router.DefaultWeightPreset)
	}

	if cfg.Storage.Backend != "redis" || cfg.Storage.RedisAddr != "localhost:6379" {
		t.Errorf("Expected redis storage, got %+v", cfg.Storage)
	}

	if !cfg.Kafka.Enabled || cfg.Kafka.Topic != "orders.outcomes" {
		t.Errorf("Expected kafka enabled on orders.outcomes, got %+v", cfg.Kafka)
	}

	if cfg.Providers.DoorDash == nil || cfg.Providers.DoorDash.CommissionRate != 0.18 {
		t.Errorf("Expected doordash provider from file")
	}
}

func TestLoadConfig_InvalidPreset(t *testing.T) {
	os.Setenv("COMMERCE_ROUTER_DEFAULT_PRESET", "nonsense")
	defer os.Unsetenv("COMMERCE_ROUTER_DEFAULT_PRESET")

	if _, err := LoadConfig(""); err == nil {
		t.Error("Expected error for invalid weight preset")
	}
}

func TestLoadConfig_InvalidStorageBackend(t *testing.T) {
	content := `
storage:
  backend: cassandra
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for invalid storage backend")
	}
}

func TestLoadConfig_PostgresRequiresDSN(t *testing.T) {
	content := `
storage:
  backend: postgres
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error when postgres DSN is missing")
	}
}

func TestToSecurityMiddlewareConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	cfg.Security.APIKeys = []string{"key-1"}
	cfg.Security.RateLimiting.Enabled = true

	sec := cfg.ToSecurityMiddlewareConfig()
	if !sec.Auth.RequireAuth {
		t.Error("Expected RequireAuth when API keys are configured")
	}
	if !sec.RateLimit.Enabled {
		t.Error("Expected rate limiting enabled")
	}
}
