// Package config loads pipeline settings from config.yaml with environment
// overrides. Secrets (API keys, tokens) are expected from the environment in
// deployments; the file form exists for local runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type StoreConfig struct {
	Backend     string `yaml:"backend"`
	DatabaseURL string `yaml:"database_url"`
	Path        string `yaml:"path"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	BaseURL  string `yaml:"base_url"`
}

type Config struct {
	Store        StoreConfig    `yaml:"store"`
	OpenAI       OpenAIConfig   `yaml:"openai"`
	Telegram     TelegramConfig `yaml:"telegram"`
	DownloadsDir string         `yaml:"downloads_dir"`
	LogsDir      string         `yaml:"logs_dir"`
	Timezone     string         `yaml:"timezone"`
	MaxPerRun    int            `yaml:"max_per_run"`
}

const envPrefix = "RESINTAKE"

// Load reads config.yaml from configDir, writing a default file on first
// run. Environment variables prefixed RESINTAKE_ override file values, e.g.
// RESINTAKE_OPENAI_API_KEY, RESINTAKE_STORE_DATABASE_URL.
func Load(configDir string) (Config, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfig(filepath.Join(configDir, "config.yaml")); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.path", "tracking.db")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("downloads_dir", "downloads")
	v.SetDefault("logs_dir", "logs")
	v.SetDefault("timezone", "Asia/Jerusalem")
	v.SetDefault("max_per_run", 20)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Store: StoreConfig{
			Backend:     v.GetString("store.backend"),
			DatabaseURL: v.GetString("store.database_url"),
			Path:        v.GetString("store.path"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  v.GetString("openai.api_key"),
			Model:   v.GetString("openai.model"),
			BaseURL: v.GetString("openai.base_url"),
		},
		Telegram: TelegramConfig{
			BotToken: v.GetString("telegram.bot_token"),
			ChatID:   v.GetString("telegram.chat_id"),
			BaseURL:  v.GetString("telegram.base_url"),
		},
		DownloadsDir: v.GetString("downloads_dir"),
		LogsDir:      v.GetString("logs_dir"),
		Timezone:     v.GetString("timezone"),
		MaxPerRun:    v.GetInt("max_per_run"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store.database_url is required for the postgres backend")
		}
	case BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.MaxPerRun < 0 {
		return fmt.Errorf("max_per_run must not be negative")
	}
	return nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ensureDefaultConfig writes a starter config.yaml if none exists yet.
// Idempotent: an existing file is never touched.
func ensureDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	defaults := Config{
		Store:        StoreConfig{Backend: BackendSQLite, Path: "tracking.db"},
		OpenAI:       OpenAIConfig{Model: "gpt-4o-mini"},
		DownloadsDir: "downloads",
		LogsDir:      "logs",
		Timezone:     "Asia/Jerusalem",
		MaxPerRun:    20,
	}
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
