package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the analyzr server.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JobStore  JobStoreConfig
	RateLimit RateLimitConfig
	Analyzer  AnalyzerConfig
	Realtime  RealtimeConfig
}

type ServerConfig struct {
	Port         int
	Env          string
	DrainTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type JobStoreConfig struct {
	Driver     string
	SQLitePath string
	TTL        time.Duration
}

type RateLimitConfig struct {
	Window time.Duration
	Max    int
}

type AnalyzerConfig struct {
	Provider string
	Core     CoreServiceConfig
}

type CoreServiceConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type RealtimeConfig struct {
	AllowedOrigins []string
}

var validEnvs = map[string]bool{
	"development": true,
	"staging":     true,
	"production":  true,
}

var validDrivers = map[string]bool{
	"redis":    true,
	"postgres": true,
	"sqlite":   true,
}

var validProviders = map[string]bool{
	"core": true,
	"mock": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         envInt("ANALYZR_PORT", 8080),
			Env:          envString("ANALYZR_ENV", "development"),
			DrainTimeout: envDuration("JOB_DRAIN_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		JobStore: JobStoreConfig{
			Driver:     envString("JOB_STORE_DRIVER", "redis"),
			SQLitePath: envString("SQLITE_PATH", "analyzr.db"),
			TTL:        envDuration("JOB_TTL", 0),
		},
		RateLimit: RateLimitConfig{
			Window: envMillis("RATE_LIMIT_WINDOW_MS", 60*time.Second),
			Max:    envInt("RATE_LIMIT_MAX", 100),
		},
		Analyzer: AnalyzerConfig{
			Provider: envString("ANALYZER_PROVIDER", "core"),
			Core: CoreServiceConfig{
				BaseURL: strings.TrimRight(os.Getenv("CORE_SERVICE_URL"), "/"),
				APIKey:  os.Getenv("CORE_SERVICE_API_KEY"),
				Timeout: envDuration("CORE_SERVICE_TIMEOUT", 30*time.Second),
			},
		},
		Realtime: RealtimeConfig{
			AllowedOrigins: envList("WS_ALLOWED_ORIGINS"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !validEnvs[c.Server.Env] {
		return fmt.Errorf("ANALYZR_ENV must be one of development, staging, production; got %q", c.Server.Env)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("ANALYZR_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validDrivers[c.JobStore.Driver] {
		return fmt.Errorf("JOB_STORE_DRIVER must be one of redis, postgres, sqlite; got %q", c.JobStore.Driver)
	}
	if c.JobStore.Driver == "sqlite" && c.JobStore.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required when JOB_STORE_DRIVER is sqlite")
	}

	if c.RateLimit.Window < time.Second {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MS must be at least 1000, got %d", c.RateLimit.Window.Milliseconds())
	}
	if c.RateLimit.Max < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX must be at least 1, got %d", c.RateLimit.Max)
	}

	if !validProviders[c.Analyzer.Provider] {
		return fmt.Errorf("ANALYZER_PROVIDER must be one of core, mock; got %q", c.Analyzer.Provider)
	}
	if c.Analyzer.Provider == "core" {
		if c.Analyzer.Core.BaseURL == "" {
			return fmt.Errorf("CORE_SERVICE_URL is required when ANALYZER_PROVIDER is core")
		}
		if !strings.HasPrefix(c.Analyzer.Core.BaseURL, "http://") && !strings.HasPrefix(c.Analyzer.Core.BaseURL, "https://") {
			return fmt.Errorf("CORE_SERVICE_URL must start with http:// or https://, got %q", c.Analyzer.Core.BaseURL)
		}
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envMillis(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(ms) * time.Millisecond
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
