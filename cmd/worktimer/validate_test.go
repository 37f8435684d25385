package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/worktimer/internal/config"
	"github.com/goodtune/worktimer/internal/storage/memory"
)

func TestFindUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
backend:
  base_url: https://hr.example.com
  user_id: "7"
  tokn: typo
timer:
  tick_interval: 1s
roster:
  enabled: true
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	unknown, err := findUnknownKeys(path)
	if err != nil {
		t.Fatalf("findUnknownKeys failed: %v", err)
	}
	if len(unknown) != 1 || unknown[0] != "backend.tokn" {
		t.Errorf("Expected [backend.tokn], got %v", unknown)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := getDefaultConfig()
	if cfg.Timer.ReconcileInterval != "10s" {
		t.Errorf("Expected default reconcile interval 10s, got %s", cfg.Timer.ReconcileInterval)
	}
	if cfg.Storage.Redis.Port != 6379 {
		t.Errorf("Expected default redis port 6379, got %d", cfg.Storage.Redis.Port)
	}
}

func TestOpenStorage(t *testing.T) {
	store, err := openStorage(config.StorageConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("openStorage failed: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Errorf("Expected memory store, got %T", store)
	}

	if _, err := openStorage(config.StorageConfig{Type: "sqlite"}); err == nil {
		t.Error("Expected error for unsupported storage type")
	}
}

func TestParseDuration(t *testing.T) {
	if got := parseDuration("15s", time.Minute); got != 15*time.Second {
		t.Errorf("Expected 15s, got %v", got)
	}
	if got := parseDuration("nope", time.Minute); got != time.Minute {
		t.Errorf("Expected fallback 1m, got %v", got)
	}
}
