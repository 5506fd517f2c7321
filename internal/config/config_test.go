package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "DASHSCOPE_API_KEY", "MOONSHOT_API_KEY", "AI_PROVIDER"} {
		t.Setenv(k, "")
	}
}

func TestLoadCreatesTemplates(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for _, name := range []string{"config.toml", "credentials.toml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
	if cfg.AI.Provider != "chatgpt" || cfg.Watchlist.MaxItems != 50 || cfg.AI.BreakerFailures != 5 || cfg.AI.BreakerCooldown != 30*time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Store.Path != filepath.Join(dir, "analyzer.db") {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
}

func TestLoadReadsFiles(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	conf := `
[ai]
provider = "kimi"
timeout = "15s"
max_retries = 0

[server]
port = 9000

[watchlist]
max_items = 10
`
	creds := `
[moonshot]
api_key = "sk-moon"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(creds), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.Provider != "kimi" || cfg.AI.Timeout != 15*time.Second {
		t.Errorf("ai = %+v", cfg.AI)
	}
	if cfg.Server.Port != 9000 || cfg.Server.Host != "127.0.0.1" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.APIKey() != "sk-moon" {
		t.Errorf("APIKey() = %q, want sk-moon", cfg.APIKey())
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("AI_PROVIDER", "claude")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.Provider != "claude" || cfg.APIKey() != "sk-ant" {
		t.Errorf("provider=%q key=%q", cfg.AI.Provider, cfg.APIKey())
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AI:        AIConfig{Provider: "gemini", Timeout: time.Second, MaxRetries: 1},
			Server:    ServerConfig{Port: 8765},
			Watchlist: WatchlistConfig{MaxItems: 50},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"unknown provider", func(c *Config) { c.AI.Provider = "bard" }, true},
		{"zero timeout", func(c *Config) { c.AI.Timeout = 0 }, true},
		{"negative retries", func(c *Config) { c.AI.MaxRetries = -1 }, true},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"empty watchlist", func(c *Config) { c.Watchlist.MaxItems = 0 }, true},
		{"breaker without cooldown", func(c *Config) { c.AI.BreakerFailures = 3 }, true},
		{"breaker enabled", func(c *Config) { c.AI.BreakerFailures = 3; c.AI.BreakerCooldown = time.Minute }, false},
		{"negative breaker", func(c *Config) { c.AI.BreakerFailures = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKeyFor(t *testing.T) {
	creds := Credentials{
		OpenAI:    APIKey{"o"},
		Anthropic: APIKey{"a"},
		Gemini:    APIKey{"g"},
		DashScope: APIKey{"d"},
		Moonshot:  APIKey{"m"},
	}
	want := map[string]string{
		"chatgpt": "o", "claude": "a", "gemini": "g", "gemini-2.5": "g", "gemini-3": "g", "qwen": "d", "kimi": "m",
	}
	for provider, key := range want {
		if got := creds.KeyFor(provider); got != key {
			t.Errorf("KeyFor(%q) = %q, want %q", provider, got, key)
		}
	}
}
