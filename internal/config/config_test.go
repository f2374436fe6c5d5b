package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.SSDPAddress != "239.255.255.250" {
		t.Errorf("SSDPAddress = %q, want default multicast group", cfg.SSDPAddress)
	}
	if cfg.SSDPPort != 1900 {
		t.Errorf("SSDPPort = %d, want 1900", cfg.SSDPPort)
	}
	if cfg.SearchInterval != 10*time.Second {
		t.Errorf("SearchInterval = %v, want 10s", cfg.SearchInterval)
	}
	if cfg.StoreBackend != "memory" {
		t.Errorf("StoreBackend = %q, want memory", cfg.StoreBackend)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CASTLINK_LOG_LEVEL", "debug")
	t.Setenv("CASTLINK_SSDP_PORT", "1901")
	t.Setenv("CASTLINK_SEARCH_INTERVAL", "30s")
	t.Setenv("CASTLINK_PAIRING_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.SSDPPort != 1901 {
		t.Errorf("SSDPPort = %d, want 1901", cfg.SSDPPort)
	}
	if cfg.SearchInterval != 30*time.Second {
		t.Errorf("SearchInterval = %v, want 30s", cfg.SearchInterval)
	}
	if cfg.PairingEnabled {
		t.Error("PairingEnabled = true, want false")
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castlink.yaml")
	data := []byte("log_level: warn\nsearch_interval: 15s\nstore_backend: redis\nredis_addr: localhost:6379\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CASTLINK_CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.SearchInterval != 15*time.Second {
		t.Errorf("SearchInterval = %v, want 15s", cfg.SearchInterval)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
}

func TestLoadEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castlink.yaml")
	if err := os.WriteFile(path, []byte("log_level: warn\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CASTLINK_CONFIG_FILE", path)
	t.Setenv("CASTLINK_LOG_LEVEL", "error")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (env beats file)", cfg.LogLevel)
	}
}

func TestLoadRejectsBadBackend(t *testing.T) {
	t.Setenv("CASTLINK_STORE_BACKEND", "postgres")
	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted unknown store backend")
	}
}

func TestLoadRedisBackendRequiresAddr(t *testing.T) {
	t.Setenv("CASTLINK_STORE_BACKEND", "redis")
	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted redis backend without an address")
	}
}
