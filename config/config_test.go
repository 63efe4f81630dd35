package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMergesFileWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: ":9090"
backend:
  base_url: "http://segment:8000/api/"
segment:
  model: 1
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != ":9090" || cfg.Backend.BaseURL != "http://segment:8000/api/" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Segment.Model != 1 || cfg.Segment.ContourFidelity != 2 {
		t.Errorf("unexpected segment config: %+v", cfg.Segment)
	}
	if cfg.Canvas.EraseDelay != 300*time.Millisecond {
		t.Errorf("expected default erase delay, got %s", cfg.Canvas.EraseDelay)
	}
	if cfg.Upload.MaxSize != 20*1024*1024 || len(cfg.Upload.AllowedTypes) != 3 {
		t.Errorf("unexpected upload defaults: %+v", cfg.Upload)
	}
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("MASKKIT_BACKEND_BASE_URL", "http://env:8000/api/")
	t.Setenv("MASKKIT_REDIS_ADDR", "redis:6380")

	cfg := getDefaultConfig()
	if cfg.Backend.BaseURL != "http://env:8000/api/" {
		t.Errorf("expected env base url, got %s", cfg.Backend.BaseURL)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Errorf("expected env redis addr, got %s", cfg.Redis.Addr)
	}
	if cfg.Backend.Timeout != 120*time.Second {
		t.Errorf("expected default timeout, got %s", cfg.Backend.Timeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteTimeoutCoversBackendTimeout(t *testing.T) {
	cfg := getDefaultConfig()
	if cfg.Server.WriteTimeout < cfg.Backend.Timeout {
		t.Errorf("default write timeout %s shorter than backend timeout %s", cfg.Server.WriteTimeout, cfg.Backend.Timeout)
	}

	t.Setenv("MASKKIT_SERVER_WRITE_TIMEOUT", "30s")
	t.Setenv("MASKKIT_BACKEND_TIMEOUT", "5m")
	cfg = getDefaultConfig()
	if cfg.Server.WriteTimeout != 5*time.Minute+writeTimeoutMargin {
		t.Errorf("expected write timeout raised, got %s", cfg.Server.WriteTimeout)
	}
}
