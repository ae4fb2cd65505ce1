// Package config loads and validates service configuration from YAML files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	defaultServerPort       = 8055
	defaultServerTimeout    = 30 * time.Second
	defaultDatabasePort     = 5432
	defaultMaxOpenConns     = 25
	defaultMaxIdleConns     = 5
	defaultConnMaxLifetime  = 5 * time.Minute
	defaultRedisAddress     = "localhost:6379"
	defaultConcurrency      = 3
	defaultMaxAttempts      = 3
	defaultScrapeInterval   = 12 * time.Hour
	defaultAnalyzeInterval  = 12 * time.Hour
	defaultAnthropicModel   = "claude-sonnet-4-5"
	defaultUserAgent        = "promptops-insight-pipeline/0.1.0"
	defaultAnalysisCacheTTL = 6 * time.Hour
)

// Config holds all configuration for the insight pipeline service.
type Config struct {
	Debug     bool            `env:"APP_DEBUG" yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Worker    WorkerConfig    `yaml:"worker"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the operational HTTP server configuration.
type ServerConfig struct {
	Host         string        `env:"SERVER_HOST" yaml:"host"`
	Port         int           `env:"SERVER_PORT" yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `env:"DB_HOST"     yaml:"host"`
	Port            int           `env:"DB_PORT"     yaml:"port"`
	User            string        `env:"DB_USER"     yaml:"user"`
	Password        string        `env:"DB_PASSWORD" yaml:"password"`
	DBName          string        `env:"DB_NAME"     yaml:"dbname"`
	SSLMode         string        `env:"DB_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds Redis connection configuration for the job queue and the
// analysis cache.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
}

// WorkerConfig holds job worker pool configuration.
type WorkerConfig struct {
	Concurrency int `env:"WORKER_CONCURRENCY" yaml:"concurrency"`
	MaxAttempts int `yaml:"max_attempts"`
}

// SchedulerConfig holds the recurring trigger intervals.
type SchedulerConfig struct {
	ScrapeInterval  time.Duration `yaml:"scrape_interval"`
	AnalyzeInterval time.Duration `yaml:"analyze_interval"`
}

// AnthropicConfig holds LLM client configuration.
type AnthropicConfig struct {
	APIKey string `env:"ANTHROPIC_API_KEY" yaml:"api_key"`
	Model  string `env:"ANTHROPIC_MODEL"   yaml:"model"`
}

// ScraperConfig holds platform API credentials and shared scraper settings.
type ScraperConfig struct {
	GitHubToken       string        `env:"GITHUB_TOKEN"        yaml:"github_token"`
	ProductHuntAPIKey string        `env:"PRODUCTHUNT_API_KEY" yaml:"producthunt_api_key"`
	UserAgent         string        `yaml:"user_agent"`
	AnalysisCacheTTL  time.Duration `yaml:"analysis_cache_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" yaml:"level"`
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be positive")
	}
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Redis.Address == "" {
		return errors.New("redis.address is required")
	}
	if c.Worker.Concurrency <= 0 {
		return errors.New("worker.concurrency must be positive")
	}
	return nil
}

// Load reads the config file at path, applies defaults and env overrides,
// and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := load(path, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultServerTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultServerTimeout
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = defaultDatabasePort
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = defaultMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = defaultMaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = defaultConnMaxLifetime
	}
	if cfg.Redis.Address == "" {
		cfg.Redis.Address = defaultRedisAddress
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = defaultConcurrency
	}
	if cfg.Worker.MaxAttempts == 0 {
		cfg.Worker.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Scheduler.ScrapeInterval == 0 {
		cfg.Scheduler.ScrapeInterval = defaultScrapeInterval
	}
	if cfg.Scheduler.AnalyzeInterval == 0 {
		cfg.Scheduler.AnalyzeInterval = defaultAnalyzeInterval
	}
	if cfg.Anthropic.Model == "" {
		cfg.Anthropic.Model = defaultAnthropicModel
	}
	if cfg.Scraper.UserAgent == "" {
		cfg.Scraper.UserAgent = defaultUserAgent
	}
	if cfg.Scraper.AnalysisCacheTTL == 0 {
		cfg.Scraper.AnalysisCacheTTL = defaultAnalysisCacheTTL
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
