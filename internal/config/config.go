// Package config provides configuration management for the option analyzer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"option-analyzer/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	AI          AIConfig          `mapstructure:"ai"`
	Server      ServerConfig      `mapstructure:"server"`
	Store       StoreConfig       `mapstructure:"store"`
	Watchlist   WatchlistConfig   `mapstructure:"watchlist"`
	Log         logging.LogConfig `mapstructure:"log"`
	Credentials Credentials       `mapstructure:"-"` // Loaded separately
}

// AIConfig holds generative-text backend configuration.
type AIConfig struct {
	Provider   string        `mapstructure:"provider"` // chatgpt, claude, gemini, gemini-2.5, gemini-3, qwen, kimi
	Model      string        `mapstructure:"model"`    // overrides the provider default when set
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`

	// Consecutive failed analyses that pause backend calls for
	// BreakerCooldown. Zero disables the breaker.
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// ServerConfig holds the local intake server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	CORS bool   `mapstructure:"cors"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// WatchlistConfig holds watchlist limits.
type WatchlistConfig struct {
	MaxItems int `mapstructure:"max_items"`
}

// Credentials holds API keys per provider.
type Credentials struct {
	OpenAI    APIKey `mapstructure:"openai"`
	Anthropic APIKey `mapstructure:"anthropic"`
	Gemini    APIKey `mapstructure:"gemini"`
	DashScope APIKey `mapstructure:"dashscope"`
	Moonshot  APIKey `mapstructure:"moonshot"`
}

// APIKey holds a single API key.
type APIKey struct {
	APIKey string `mapstructure:"api_key"`
}

// KeyFor returns the API key used by provider.
func (c Credentials) KeyFor(provider string) string {
	switch {
	case provider == "claude":
		return c.Anthropic.APIKey
	case strings.HasPrefix(provider, "gemini"):
		return c.Gemini.APIKey
	case provider == "qwen":
		return c.DashScope.APIKey
	case provider == "kimi":
		return c.Moonshot.APIKey
	default:
		return c.OpenAI.APIKey
	}
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/option-analyzer"
	}
	return filepath.Join(home, ".config", "option-analyzer")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files
// are created from templates and defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// A .env next to the binary or in the config dir may carry API keys.
	_ = godotenv.Load()
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(configDir, "analyzer.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := logging.DefaultLogConfig()

	v.SetDefault("ai.provider", "chatgpt")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.max_retries", 2)
	v.SetDefault("ai.breaker_failures", 5)
	v.SetDefault("ai.breaker_cooldown", 30*time.Second)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8765)
	v.SetDefault("server.cors", true)
	v.SetDefault("store.path", "")
	v.SetDefault("watchlist.max_items", 50)
	v.SetDefault("log.level", def.Level)
	v.SetDefault("log.format", def.Format)
	v.SetDefault("log.file", def.File)
	v.SetDefault("log.file_path", def.FilePath)
	v.SetDefault("log.max_size", def.MaxSize)
	v.SetDefault("log.max_backups", def.MaxBackups)
	v.SetDefault("log.max_age", def.MaxAge)
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// First run: leave a template behind and continue on defaults.
		if err := createTemplate(configDir, "config.toml", configTemplate, 0644); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		return createTemplate(configDir, "credentials.toml", credentialsTemplate, 0600)
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Credentials.Anthropic.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Credentials.Gemini.APIKey = v
	}
	if v := os.Getenv("DASHSCOPE_API_KEY"); v != "" {
		cfg.Credentials.DashScope.APIKey = v
	}
	if v := os.Getenv("MOONSHOT_API_KEY"); v != "" {
		cfg.Credentials.Moonshot.APIKey = v
	}
	if v := os.Getenv("AI_PROVIDER"); v != "" {
		cfg.AI.Provider = v
	}
}

// Providers lists the supported AI providers.
var Providers = []string{"chatgpt", "claude", "gemini", "gemini-2.5", "gemini-3", "qwen", "kimi"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	known := false
	for _, p := range Providers {
		if c.AI.Provider == p {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("invalid ai provider: %s (must be one of %s)", c.AI.Provider, strings.Join(Providers, ", "))
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("ai timeout must be positive")
	}
	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("ai max_retries must be non-negative")
	}
	if c.AI.BreakerFailures < 0 {
		return fmt.Errorf("ai breaker_failures must be non-negative")
	}
	if c.AI.BreakerFailures > 0 && c.AI.BreakerCooldown <= 0 {
		return fmt.Errorf("ai breaker_cooldown must be positive when the breaker is enabled")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Watchlist.MaxItems <= 0 {
		return fmt.Errorf("watchlist max_items must be positive")
	}
	return nil
}

// APIKey returns the key for the configured provider.
func (c *Config) APIKey() string {
	return c.Credentials.KeyFor(c.AI.Provider)
}
