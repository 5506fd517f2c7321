package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"option-analyzer/internal/agents"
	"option-analyzer/internal/analysis/chain"
	"option-analyzer/internal/config"
	apperrors "option-analyzer/internal/errors"
	"option-analyzer/internal/ingest"
	"option-analyzer/internal/logging"
	"option-analyzer/internal/models"
	"option-analyzer/internal/resilience"
	"option-analyzer/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-12-01"
)

// App holds the application dependencies. Fields left nil are built from
// the loaded configuration on first use.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Engine *chain.Engine
	Store  store.DataStore

	// Completer replaces the configured backend client.
	Completer agents.Completer
	Breaker   *resilience.CircuitBreaker

	ownsStore bool
}

// NewApp creates an App that logs to logger until the configuration is loaded.
func NewApp(logger zerolog.Logger) *App {
	return &App{Logger: logger}
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "analyzer",
		Short: "Option chain analyzer",
		Long: `Option Analyzer turns scraped option chain snapshots into per-strike
analytics: merged call/put volume and open interest, approximate deltas,
annualized premium yield and chain-wide put/call statistics.

Chains can be analysed from JSON files, sent to a generative-text backend for
a structured read, saved to a watchlist, or received live from the page
scraper through 'analyzer serve'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/option-analyzer)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("now", "", "evaluate days to expiration as of this date (e.g. 2024-12-01)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newChainCmd(app))
	rootCmd.AddCommand(newWatchlistCmd(app))
	rootCmd.AddCommand(newCandidatesCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newConfigCmd(app))

	return rootCmd
}

func (a *App) setup(cmd *cobra.Command) error {
	if a.Config == nil {
		dir, _ := cmd.Flags().GetString("config")
		if dir == "" {
			dir = config.DefaultConfigDir()
		}
		cfg, err := config.Load(dir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		a.Config = cfg
		a.Logger = logging.NewLoggerWithConfig(cfg.Log)
	}

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logging.SetDebugLevel()
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}

	now, _ := cmd.Flags().GetString("now")
	switch {
	case now != "":
		t, ok := chain.ParseExpiration(now, time.Local)
		if !ok {
			return fmt.Errorf("invalid --now date %q", now)
		}
		a.Engine = chain.NewEngineWithClock(chain.FixedClock(t))
	case a.Engine == nil:
		a.Engine = chain.NewEngine()
	}
	return nil
}

// DataStore returns the store, opening the configured SQLite database on
// first use.
func (a *App) DataStore() (store.DataStore, error) {
	if a.Store != nil {
		return a.Store, nil
	}
	s, err := store.NewSQLiteStore(a.Config.Store.Path, store.WithMaxWatchlistItems(a.Config.Watchlist.MaxItems))
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("path", a.Config.Store.Path).Msg("SQLite store initialized")
	a.Store = s
	a.ownsStore = true
	return s, nil
}

// Analyst builds the backend analyst from the configured provider.
func (a *App) Analyst() (*agents.OptionAnalyst, error) {
	client := a.Completer
	if client == nil {
		c, err := agents.NewOpenAIClient(a.Config.AI.Provider, a.Config.APIKey(), a.Config.AI.Model)
		if err != nil {
			return nil, apperrors.Wrapf(err, "configuring %s client", a.Config.AI.Provider)
		}
		a.Logger.Debug().Str("provider", a.Config.AI.Provider).Str("model", c.GetModel()).Msg("LLM client initialized")
		client = c
	}

	if a.Breaker == nil && a.Config.AI.BreakerFailures > 0 {
		cfg := resilience.DefaultCircuitBreakerConfig()
		cfg.FailureThreshold = a.Config.AI.BreakerFailures
		cfg.Cooldown = a.Config.AI.BreakerCooldown
		a.Breaker = resilience.NewCircuitBreaker(a.Config.AI.Provider, cfg)
	}

	retry := agents.DefaultAnalystRetry()
	retry.MaxAttempts = a.Config.AI.MaxRetries + 1
	return agents.NewOptionAnalyst(client, a.Config.AI.Provider,
		agents.WithEngine(a.Engine),
		agents.WithRetry(retry),
		agents.WithTimeout(a.Config.AI.Timeout),
		agents.WithBreaker(a.Breaker),
	), nil
}

// Close releases the store if the App opened it.
func (a *App) Close() error {
	if a.ownsStore && a.Store != nil {
		err := a.Store.Close()
		a.Store = nil
		a.ownsStore = false
		return err
	}
	return nil
}

// readChain decodes a chain from path, or from stdin when path is "-".
func readChain(cmd *cobra.Command, path string) (*models.OptionChain, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return ingest.Decode(r)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Option Analyzer v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}
