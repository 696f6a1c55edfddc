package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected an error when GEMINI_API_KEY is unset")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("DATABASE_URL", "")
	os.Unsetenv("DATABASE_URL")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.GeminiAPIKey != "test-key" {
		t.Errorf("expected api key test-key, got %q", cfg.GeminiAPIKey)
	}
	if cfg.DatabaseURL != "file:orbis.db" {
		t.Errorf("expected default database url, got %q", cfg.DatabaseURL)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %q", cfg.Addr)
	}
}

func TestLoadTuningOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := "retry_budget: 4\nworld_tick_every: 5\ntext_gen_timeout: 10s\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	tun, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning failed: %v", err)
	}
	if tun.RetryBudget != 4 {
		t.Errorf("expected retry budget 4, got %d", tun.RetryBudget)
	}
	if tun.WorldTickEvery != 5 {
		t.Errorf("expected world tick every 5, got %d", tun.WorldTickEvery)
	}
	if tun.TextGenTimeout != 10*time.Second {
		t.Errorf("expected 10s timeout, got %v", tun.TextGenTimeout)
	}
	if tun.SessionRing != 20 {
		t.Errorf("expected untouched session ring 20, got %d", tun.SessionRing)
	}
}

func TestLoadTuningRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("world_tick_every: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuning(path); err == nil {
		t.Fatal("expected validation error for world_tick_every: 0")
	}
}
