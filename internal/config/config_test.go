package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(databasePathEnv, "")
	t.Setenv(llmAPIKeyEnv, "")

	cfg := Load()

	if cfg.Database.Path != "events.db" {
		t.Errorf("database path = %s", cfg.Database.Path)
	}
	if cfg.LLM.Model != "Qwen/Qwen3-8B" {
		t.Errorf("model = %s", cfg.LLM.Model)
	}
	if cfg.Fetcher.MaxPages != 10 {
		t.Errorf("max pages = %d", cfg.Fetcher.MaxPages)
	}
	if len(cfg.Sites) != 3 {
		t.Errorf("default sites = %d, want 3", len(cfg.Sites))
	}
	if cfg.Scheduler.Location().String() != "Asia/Shanghai" {
		t.Errorf("timezone = %s", cfg.Scheduler.Location())
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
database:
  path: /tmp/test.db
llm:
  model: custom-model
  rateMaxCalls: 5
fetcher:
  targetMonth: "2026-08"
sites:
  - name: custom
    scanner: listpage
    baseUrl: https://example.com
    pageUrls: ["https://example.com/list_%d.htm"]
    contentType: 政策
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(configPathEnv, path)

	cfg := Load()

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("database path = %s", cfg.Database.Path)
	}
	if cfg.LLM.Model != "custom-model" {
		t.Errorf("model = %s", cfg.LLM.Model)
	}
	if cfg.LLM.RateMaxCalls != 5 {
		t.Errorf("rate max calls = %d", cfg.LLM.RateMaxCalls)
	}
	// Untouched values keep their defaults.
	if cfg.LLM.Temperature != 0.3 {
		t.Errorf("temperature = %v", cfg.LLM.Temperature)
	}
	if cfg.Fetcher.TargetMonth != "2026-08" {
		t.Errorf("target month = %s", cfg.Fetcher.TargetMonth)
	}
	if len(cfg.Sites) != 1 || cfg.Sites[0].Name != "custom" {
		t.Errorf("sites = %+v", cfg.Sites)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(databasePathEnv, "/var/lib/radar/events.db")
	t.Setenv(llmAPIKeyEnv, "sk-test")
	t.Setenv(llmModelEnv, "env-model")

	cfg := Load()

	if cfg.Database.Path != "/var/lib/radar/events.db" {
		t.Errorf("database path = %s", cfg.Database.Path)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("api key = %s", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "env-model" {
		t.Errorf("model = %s", cfg.LLM.Model)
	}
}

func TestLoadBadConfigFileFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("{not yaml:::"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(configPathEnv, path)

	cfg := Load()
	if cfg.Database.Path != "events.db" {
		t.Errorf("broken config should fall back to defaults, got %s", cfg.Database.Path)
	}
	if cfg.Scheduler.Interval != 24*time.Hour {
		t.Errorf("interval = %v", cfg.Scheduler.Interval)
	}
}
