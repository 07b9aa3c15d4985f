package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigDir, dir)
	t.Setenv("DCJ_TOKEN", "")
	t.Setenv("DCJ_API_TOKEN", "")

	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.URL != DefaultAPIURL {
		t.Fatalf("url: want %q, got %q", DefaultAPIURL, cfg.API.URL)
	}
	if cfg.API.Timeout != DefaultTimeout {
		t.Fatalf("timeout: want %s, got %s", DefaultTimeout, cfg.API.Timeout)
	}
	if cfg.DataDir != dir {
		t.Fatalf("data dir: want %q, got %q", dir, cfg.DataDir)
	}
	if cfg.PageSize != DefaultPage || cfg.OutputFormat != "json" || cfg.File != "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Level() != slog.LevelWarn {
		t.Fatalf("level: want warn, got %s", cfg.Level())
	}
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigDir, dir)
	body := strings.Join([]string{
		"api:",
		"  url: https://flow.example.com/api/v1/",
		"  timeout: 3s",
		"records:",
		"  page_size: 25",
		"log:",
		"  level: debug",
		"",
	}, "\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DCJ_RECORDS_PAGE_SIZE", "50")
	t.Setenv("DCJ_TOKEN", "secret")

	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.URL != "https://flow.example.com/api/v1" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.API.URL)
	}
	if cfg.API.Timeout != 3*time.Second {
		t.Fatalf("timeout: got %s", cfg.API.Timeout)
	}
	if cfg.PageSize != 50 {
		t.Fatalf("env should override file page size, got %d", cfg.PageSize)
	}
	if cfg.API.Token != "secret" {
		t.Fatalf("expected DCJ_TOKEN to bind api.token, got %q", cfg.API.Token)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Fatalf("level: got %s", cfg.Level())
	}
	if cfg.File == "" {
		t.Fatalf("expected config file to be reported")
	}
}

func TestLoad_BrokenFileIsAnError(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envConfigDir, dir)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("api: [unclosed\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := Load(v); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	good := Config{
		API:          API{URL: "http://localhost:1/api/v1", Timeout: time.Second},
		PageSize:     10,
		LogLevel:     "info",
		OutputFormat: "yaml",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}

	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"bad scheme", func(c *Config) { c.API.URL = "ftp://x" }},
		{"no host", func(c *Config) { c.API.URL = "http://" }},
		{"zero timeout", func(c *Config) { c.API.Timeout = 0 }},
		{"page size zero", func(c *Config) { c.PageSize = 0 }},
		{"page size huge", func(c *Config) { c.PageSize = 5000 }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad format", func(c *Config) { c.OutputFormat = "edn" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := good
			tc.mut(&c)
			if err := c.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
