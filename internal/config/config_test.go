package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
debug: true
server:
  host: "0.0.0.0"
  port: 8050
database:
  host: "localhost"
  port: 5432
  user: "testuser"
  password: "testpass"
  dbname: "testdb"
worker:
  concurrency: 5
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if !cfg.Debug {
		t.Error("Load() cfg.Debug = false, want true")
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Load() cfg.Server.Host = %v, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8050 {
		t.Errorf("Load() cfg.Server.Port = %v, want 8050", cfg.Server.Port)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Load() cfg.Database.Host = %v, want localhost", cfg.Database.Host)
	}
	if cfg.Worker.Concurrency != 5 {
		t.Errorf("Load() cfg.Worker.Concurrency = %v, want 5", cfg.Worker.Concurrency)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
database:
  host: "localhost"
  user: "user"
  password: "pass"
  dbname: "db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.Server.Port != defaultServerPort {
		t.Errorf("Load() cfg.Server.Port = %v, want %v", cfg.Server.Port, defaultServerPort)
	}
	if cfg.Database.Port != defaultDatabasePort {
		t.Errorf("Load() cfg.Database.Port = %v, want %v", cfg.Database.Port, defaultDatabasePort)
	}
	if cfg.Database.SSLMode != "disable" {
		t.Errorf("Load() cfg.Database.SSLMode = %v, want disable", cfg.Database.SSLMode)
	}
	if cfg.Redis.Address != defaultRedisAddress {
		t.Errorf("Load() cfg.Redis.Address = %v, want %v", cfg.Redis.Address, defaultRedisAddress)
	}
	if cfg.Worker.Concurrency != defaultConcurrency {
		t.Errorf("Load() cfg.Worker.Concurrency = %v, want %v", cfg.Worker.Concurrency, defaultConcurrency)
	}
	if cfg.Worker.MaxAttempts != defaultMaxAttempts {
		t.Errorf("Load() cfg.Worker.MaxAttempts = %v, want %v", cfg.Worker.MaxAttempts, defaultMaxAttempts)
	}
	if cfg.Scheduler.ScrapeInterval != defaultScrapeInterval {
		t.Errorf("Load() cfg.Scheduler.ScrapeInterval = %v, want %v", cfg.Scheduler.ScrapeInterval, defaultScrapeInterval)
	}
	if cfg.Anthropic.Model != defaultAnthropicModel {
		t.Errorf("Load() cfg.Anthropic.Model = %v, want %v", cfg.Anthropic.Model, defaultAnthropicModel)
	}
	if cfg.Scraper.AnalysisCacheTTL != defaultAnalysisCacheTTL {
		t.Errorf("Load() cfg.Scraper.AnalysisCacheTTL = %v, want %v", cfg.Scraper.AnalysisCacheTTL, defaultAnalysisCacheTTL)
	}
	if cfg.Server.ReadTimeout != defaultServerTimeout {
		t.Errorf("Load() cfg.Server.ReadTimeout = %v, want %v", cfg.Server.ReadTimeout, defaultServerTimeout)
	}
}

func TestLoad_MissingFileUsesDefaultsAndEnv(t *testing.T) {
	// A missing config file is not fatal, but validation still requires the
	// database settings from somewhere.
	t.Setenv("DB_HOST", "env-host")
	t.Setenv("DB_USER", "env-user")
	t.Setenv("DB_NAME", "env-db")

	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yml"))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if cfg.Database.Host != "env-host" {
		t.Errorf("Load() cfg.Database.Host = %v, want env-host", cfg.Database.Host)
	}
}

func TestLoad_MissingFileFailsValidation(t *testing.T) {
	for _, key := range []string{"DB_HOST", "DB_USER", "DB_NAME"} {
		t.Setenv(key, "")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "nonexistent.yml")); err == nil {
		t.Error("Load() error = nil, want validation error without database settings")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: yaml: content: [")

	if _, err := Load(configPath); err == nil {
		t.Error("Load() error = nil, want error for invalid YAML")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{Host: "0.0.0.0", Port: 8055},
			Database: DatabaseConfig{Host: "localhost", Port: 5432, User: "user", DBName: "db"},
			Redis:    RedisConfig{Address: "localhost:6379"},
			Worker:   WorkerConfig{Concurrency: 3, MaxAttempts: 3},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"zero server port", func(c *Config) { c.Server.Port = 0 }, true},
		{"empty database host", func(c *Config) { c.Database.Host = "" }, true},
		{"empty database user", func(c *Config) { c.Database.User = "" }, true},
		{"empty database name", func(c *Config) { c.Database.DBName = "" }, true},
		{"empty redis address", func(c *Config) { c.Redis.Address = "" }, true},
		{"zero worker concurrency", func(c *Config) { c.Worker.Concurrency = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "env-host")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_USER", "env-user")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("APP_DEBUG", "true")
	t.Setenv("WORKER_CONCURRENCY", "7")
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	configPath := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 8050
database:
  host: "localhost"
  port: 5432
  user: "user"
  password: "pass"
  dbname: "db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.Database.Host != "env-host" {
		t.Errorf("Load() cfg.Database.Host = %v, want env-host", cfg.Database.Host)
	}
	if cfg.Database.Port != 5433 {
		t.Errorf("Load() cfg.Database.Port = %v, want 5433", cfg.Database.Port)
	}
	if cfg.Database.User != "env-user" {
		t.Errorf("Load() cfg.Database.User = %v, want env-user", cfg.Database.User)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Load() cfg.Server.Port = %v, want 9000", cfg.Server.Port)
	}
	if !cfg.Debug {
		t.Error("Load() cfg.Debug = false, want true")
	}
	if cfg.Worker.Concurrency != 7 {
		t.Errorf("Load() cfg.Worker.Concurrency = %v, want 7", cfg.Worker.Concurrency)
	}
	if cfg.Anthropic.APIKey != "env-key" {
		t.Errorf("Load() cfg.Anthropic.APIKey = %v, want env-key", cfg.Anthropic.APIKey)
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		name string
		s    string
		want bool
	}{
		{"true", "true", true},
		{"True", "True", true},
		{"1", "1", true},
		{"yes", "yes", true},
		{"false", "false", false},
		{"0", "0", false},
		{"no", "no", false},
		{"empty", "", false},
		{"with spaces", "  true  ", true},
		{"invalid", "invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseBool(tt.s); got != tt.want {
				t.Errorf("parseBool(%q) = %v, want %v", tt.s, got, tt.want)
			}
		})
	}
}
