package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DB_PATH", "")
	t.Setenv("API_HOST", "")
	t.Setenv("API_PORT", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("port: expected 8000, got %d", cfg.Server.Port)
	}
	if cfg.Search.MaxSize != 10000 {
		t.Errorf("max_size: expected 10000, got %d", cfg.Search.MaxSize)
	}
	if cfg.Export.MaxLimit != 50000 {
		t.Errorf("max_limit: expected 50000, got %d", cfg.Export.MaxLimit)
	}
	if cfg.Classifier.DefaultLevel != "UNCLASSIFIED" {
		t.Errorf("default_level: expected UNCLASSIFIED, got %q", cfg.Classifier.DefaultLevel)
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("DB_PATH", "")
	t.Setenv("API_HOST", "")
	t.Setenv("API_PORT", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
db_path = "/data/reports.db"

[server]
port = 9090
read_timeout = "5s"

[classifier]
levels = ["PUBLIC", "INTERNAL", "RESTRICTED"]
free_text_min_length = 80
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DBPath != "/data/reports.db" {
		t.Errorf("db_path: expected /data/reports.db, got %q", cfg.DBPath)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port: expected 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout.Duration != 5*time.Second {
		t.Errorf("read_timeout: expected 5s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("host default not applied, got %q", cfg.Server.Host)
	}
	if len(cfg.Classifier.Levels) != 3 || cfg.Classifier.Levels[2] != "RESTRICTED" {
		t.Errorf("levels: got %v", cfg.Classifier.Levels)
	}
	if cfg.Classifier.FreeTextMinLength != 80 {
		t.Errorf("free_text_min_length: expected 80, got %d", cfg.Classifier.FreeTextMinLength)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/env.db")
	t.Setenv("API_HOST", "0.0.0.0")
	t.Setenv("API_PORT", "8123")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Errorf("DB_PATH override: got %q", cfg.DBPath)
	}
	if cfg.Server.Addr() != "0.0.0.0:8123" {
		t.Errorf("Addr: got %q", cfg.Server.Addr())
	}

	t.Setenv("API_PORT", "eighty")
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "none.toml")); err == nil {
		t.Errorf("expected error for non-numeric API_PORT")
	}
}

func TestValidate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Search.DefaultSize = cfg.Search.MaxSize + 1
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected default_size > max_size to fail")
	}

	cfg = GetDefaultConfig()
	cfg.Server.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected invalid port to fail")
	}
}

func TestSaveTemplateConfig(t *testing.T) {
	t.Setenv("DB_PATH", "")
	t.Setenv("API_PORT", "")
	t.Setenv("API_HOST", "")

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := SaveTemplateConfig(path, "/srv/intel.db"); err != nil {
		t.Fatalf("SaveTemplateConfig: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `db_path = "/srv/intel.db"`) {
		t.Fatalf("template does not contain db_path, got:\n%s", data)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig(template): %v", err)
	}
	if cfg.DBPath != "/srv/intel.db" {
		t.Errorf("db_path: got %q", cfg.DBPath)
	}
	if len(cfg.Classifier.Levels) != 4 {
		t.Errorf("levels: expected 4 from template, got %v", cfg.Classifier.Levels)
	}
}
