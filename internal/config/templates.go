package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Option Analyzer Configuration

[ai]
# Provider: chatgpt, claude, gemini, gemini-2.5, gemini-3, qwen, kimi
provider = "chatgpt"
# Model override (empty uses the provider default)
model = ""
# Request timeout
timeout = "60s"
# Retries after a failed backend call
max_retries = 2
# Pause backend calls after this many failed analyses in a row (0 disables)
breaker_failures = 5
breaker_cooldown = "30s"

[server]
# Local intake server for the browser extension
host = "127.0.0.1"
port = 8765
cors = true

[store]
# SQLite database (empty: analyzer.db in the config directory)
path = ""

[watchlist]
# Oldest entries are dropped beyond this many
max_items = 50

[log]
# debug, info, warn, error
level = "info"
# console or json
format = "console"
file = false
`

const credentialsTemplate = `# Option Analyzer Credentials
# WARNING: Keep this file secure! Do not commit to version control.
# Environment variables (OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY,
# DASHSCOPE_API_KEY, MOONSHOT_API_KEY) override these.

[openai]
api_key = ""

[anthropic]
api_key = ""

[gemini]
api_key = ""

[dashscope]
api_key = ""

[moonshot]
api_key = ""
`

func createTemplate(configDir, name, content string, perm os.FileMode) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name)
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("writing %s template: %w", name, err)
	}
	return nil
}
