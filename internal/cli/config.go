package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"option-analyzer/internal/config"
	"option-analyzer/internal/security"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			view := configView(app.Config)
			if output.IsJSON() {
				return output.JSON(view)
			}
			showConfig(output, view)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir := configDir(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": dir})
			} else {
				output.Println(dir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			if app.Config.APIKey() == "" {
				output.Warning("No API key for provider %s; add one to %s", app.Config.AI.Provider,
					filepath.Join(configDir(cmd), "credentials.toml"))
			}
			return nil
		},
	})

	return cmd
}

func configDir(cmd *cobra.Command) string {
	if dir, _ := cmd.Flags().GetString("config"); dir != "" {
		return dir
	}
	return config.DefaultConfigDir()
}

type configDisplay struct {
	Provider        string            `json:"provider"`
	Model           string            `json:"model,omitempty"`
	Timeout         string            `json:"timeout"`
	MaxRetries      int               `json:"maxRetries"`
	BreakerFailures int               `json:"breakerFailures"`
	BreakerCooldown string            `json:"breakerCooldown"`
	Server          string            `json:"server"`
	StorePath       string            `json:"storePath"`
	WatchlistMax    int               `json:"watchlistMaxItems"`
	LogLevel        string            `json:"logLevel"`
	Credentials     map[string]string `json:"credentials"`
}

// configView flattens cfg for display with every API key masked.
func configView(cfg *config.Config) configDisplay {
	creds := map[string]string{
		"openai":    cfg.Credentials.OpenAI.APIKey,
		"anthropic": cfg.Credentials.Anthropic.APIKey,
		"gemini":    cfg.Credentials.Gemini.APIKey,
		"dashscope": cfg.Credentials.DashScope.APIKey,
		"moonshot":  cfg.Credentials.Moonshot.APIKey,
	}
	for name, key := range creds {
		if key == "" {
			creds[name] = "(not set)"
		} else {
			creds[name] = security.MaskCredential(key)
		}
	}

	return configDisplay{
		Provider:        cfg.AI.Provider,
		Model:           cfg.AI.Model,
		Timeout:         cfg.AI.Timeout.String(),
		MaxRetries:      cfg.AI.MaxRetries,
		BreakerFailures: cfg.AI.BreakerFailures,
		BreakerCooldown: cfg.AI.BreakerCooldown.String(),
		Server:          fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		StorePath:       cfg.Store.Path,
		WatchlistMax:    cfg.Watchlist.MaxItems,
		LogLevel:        cfg.Log.Level,
		Credentials:     creds,
	}
}

func showConfig(output *Output, v configDisplay) {
	output.Bold("AI")
	output.Printf("  Provider:         %s\n", v.Provider)
	if v.Model != "" {
		output.Printf("  Model:            %s\n", v.Model)
	}
	output.Printf("  Timeout:          %s\n", v.Timeout)
	output.Printf("  Max retries:      %d\n", v.MaxRetries)
	if v.BreakerFailures > 0 {
		output.Printf("  Circuit breaker:  %d failures, %s cooldown\n", v.BreakerFailures, v.BreakerCooldown)
	} else {
		output.Printf("  Circuit breaker:  %s\n", output.DimText("disabled"))
	}
	output.Println()

	output.Bold("Storage")
	output.Printf("  Database:         %s\n", v.StorePath)
	output.Printf("  Watchlist limit:  %d\n", v.WatchlistMax)
	output.Println()

	output.Bold("Server")
	output.Printf("  Listen:           %s\n", v.Server)
	output.Println()

	output.Bold("Credentials")
	for _, name := range []string{"openai", "anthropic", "gemini", "dashscope", "moonshot"} {
		output.Printf("  %-17s %s\n", name+":", v.Credentials[name])
	}
}
