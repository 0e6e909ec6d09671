package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const minimalConfig = `
services:
  task_definitions:
    base_url: http://taskdefs.local
  audience:
    base_url: http://crm.local
  lookup:
    base_url: http://lookup.local
  render:
    base_url: http://notify.local
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("Expected default listen :8080, got %q", cfg.Listen)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Expected default redis addr, got %q", cfg.Redis.Addr)
	}
	if cfg.Redis.FlowTTL.Std() != 2*time.Hour {
		t.Errorf("Expected default flow TTL 2h, got %v", cfg.Redis.FlowTTL.Std())
	}
	if cfg.Services.Audience.Timeout.Std() != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", cfg.Services.Audience.Timeout.Std())
	}
	if cfg.Services.Audience.MaxRetries != 3 {
		t.Errorf("Expected default retries 3, got %d", cfg.Services.Audience.MaxRetries)
	}
}

func TestLoadInterpolatesEnv(t *testing.T) {
	t.Setenv("NOTIFY_REDIS_ADDR", "redis.internal:6380")

	cfg, err := Load(writeConfig(t, minimalConfig+`
redis:
  addr: ${NOTIFY_REDIS_ADDR}
  namespace: ${NOTIFY_NAMESPACE:notify}
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("Expected env-substituted addr, got %q", cfg.Redis.Addr)
	}
	if cfg.Redis.Namespace != "notify" {
		t.Errorf("Expected default-substituted namespace, got %q", cfg.Redis.Namespace)
	}
}

func TestLoadParsesDurations(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
redis:
  flow_ttl: 45m
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Redis.FlowTTL.Std() != 45*time.Minute {
		t.Errorf("Expected 45m flow TTL, got %v", cfg.Redis.FlowTTL.Std())
	}

	_, err = Load(writeConfig(t, minimalConfig+`
redis:
  flow_ttl: soon
`))
	if err == nil {
		t.Fatal("Expected failure for malformed duration")
	}
}

func TestLoadRejectsMissingServiceURL(t *testing.T) {
	_, err := Load(writeConfig(t, `
services:
  task_definitions:
    base_url: http://taskdefs.local
`))
	if err == nil {
		t.Fatal("Expected validation failure for missing service URLs")
	}
	if !strings.Contains(err.Error(), "config validation failed") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoadRejectsBadURL(t *testing.T) {
	_, err := Load(writeConfig(t, strings.Replace(minimalConfig, "http://crm.local", "not-a-url", 1)))
	if err == nil {
		t.Fatal("Expected validation failure for malformed base URL")
	}
}
