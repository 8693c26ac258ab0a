// Package config loads the service configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default Nitter mirrors tried in order when fetching a page.
var defaultMirrors = []string{
	"https://nitter.net",
	"https://nitter.poast.org",
	"https://nitter.privacydev.net",
	"https://nitter.l5.ca",
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ReadTimeoutSec  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSec int    `yaml:"write_timeout_seconds"`
}

// LoggingConfig controls structured logging output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver    string `yaml:"driver"` // memory, file, postgres, redis
	DSN       string `yaml:"dsn"`
	DataDir   string `yaml:"data_dir"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
}

// TelegramConfig carries the bot credentials and webhook target.
type TelegramConfig struct {
	BotToken      string `yaml:"bot_token"`
	PublicURL     string `yaml:"public_url"`
	DefaultChatID int64  `yaml:"default_chat_id"`
}

// WatcherConfig tunes the periodic poster check.
type WatcherConfig struct {
	Schedule        string   `yaml:"schedule"`
	PostsToCheck    int      `yaml:"posts_to_check"`
	Mirrors         []string `yaml:"mirrors"`
	FetchTimeoutSec int      `yaml:"fetch_timeout_seconds"`
}

// RateLimitConfig tunes per-client HTTP rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads config.yaml from the working directory when present, applies
// environment overrides, and validates the result.
func Load() (*Config, error) {
	return LoadFromPath("config.yaml")
}

// LoadFromPath behaves like Load for an explicit file path. A missing file is
// not an error; environment variables alone can configure the service.
func LoadFromPath(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// env-only configuration
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeoutSec:  15,
			WriteTimeoutSec: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Storage: StorageConfig{
			Driver:  "memory",
			DataDir: "data",
		},
		Watcher: WatcherConfig{
			Schedule:        "@every 5m",
			PostsToCheck:    20,
			Mirrors:         append([]string(nil), defaultMirrors...),
			FetchTimeoutSec: 15,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Storage.RedisAddr = v
	}
	if v := os.Getenv("TG_TOKEN"); v != "" {
		cfg.Telegram.BotToken = strings.TrimSpace(v)
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		cfg.Telegram.PublicURL = strings.TrimRight(strings.TrimSpace(v), "/")
	}
	if v := os.Getenv("DEFAULT_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.DefaultChatID = id
		}
	}
	if v := os.Getenv("CHECK_SCHEDULE"); v != "" {
		cfg.Watcher.Schedule = v
	}
	if v := os.Getenv("POSTS_TO_CHECK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Watcher.PostsToCheck = n
		}
	}
	if v := os.Getenv("NITTER_MIRRORS"); v != "" {
		var mirrors []string
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				mirrors = append(mirrors, strings.TrimRight(m, "/"))
			}
		}
		if len(mirrors) > 0 {
			cfg.Watcher.Mirrors = mirrors
		}
	}
}

// Validate checks invariants that would otherwise surface as runtime faults.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	switch strings.ToLower(c.Storage.Driver) {
	case "memory", "file", "postgres", "redis":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if strings.EqualFold(c.Storage.Driver, "postgres") && c.Storage.DSN == "" {
		return fmt.Errorf("postgres storage requires a dsn")
	}
	if strings.EqualFold(c.Storage.Driver, "redis") && c.Storage.RedisAddr == "" {
		return fmt.Errorf("redis storage requires an address")
	}
	if c.Telegram.BotToken != "" && c.Telegram.PublicURL == "" {
		return fmt.Errorf("telegram bot token requires a public url for webhook registration")
	}
	if c.Watcher.PostsToCheck <= 0 {
		return fmt.Errorf("posts_to_check must be positive")
	}
	if len(c.Watcher.Mirrors) == 0 {
		return fmt.Errorf("at least one mirror is required")
	}
	return nil
}

// WebhookEnabled reports whether Telegram webhook mode is fully configured.
func (c *Config) WebhookEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.PublicURL != ""
}
