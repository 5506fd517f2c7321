package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"option-analyzer/internal/agents"
	"option-analyzer/internal/analysis/chain"
	"option-analyzer/internal/logging"
	"option-analyzer/internal/models"
	"option-analyzer/pkg/utils"
)

func newChainCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Analyze option chain snapshots",
		Long: `Analyze an option chain snapshot stored as JSON. Pass "-" to read the
chain from stdin.`,
	}

	cmd.AddCommand(newChainShowCmd(app))
	cmd.AddCommand(newChainStatsCmd(app))
	cmd.AddCommand(newChainPayloadCmd(app))
	cmd.AddCommand(newChainAICmd(app))
	return cmd
}

func newChainShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <file>",
		Short: "Per-strike volume, open interest, delta and yield",
		Example: `  analyzer chain show aapl.json
  analyzer chain show aapl.json --min-volume 100
  cat aapl.json | analyzer chain show - --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			oc, err := readChain(cmd, args[0])
			if err != nil {
				return err
			}
			minVolume, _ := cmd.Flags().GetInt64("min-volume")

			report := app.Engine.Analyze(oc)
			strikes := report.Strikes
			if minVolume > 0 {
				filtered := strikes[:0:0]
				for _, s := range strikes {
					if s.Volume >= minVolume {
						filtered = append(filtered, s)
					}
				}
				strikes = filtered
			}

			if output.IsJSON() {
				return output.JSON(strikes)
			}

			printChainHeader(output, report)
			table := NewTable(output, "STRIKE", "VOLUME", "OI", "PRICE", "CHG", "IV", "CALL Δ", "PUT Δ", "YIELD", "")
			for _, s := range strikes {
				table.AddRow(
					fmt.Sprintf("%.2f", s.Strike),
					utils.FormatNumber(s.Volume),
					utils.FormatNumber(s.OpenInterest),
					fmt.Sprintf("%.2f", s.Price),
					output.Signed(s.PercentChange, utils.FormatPercent(s.PercentChange)),
					utils.FormatIV(s.IV),
					utils.FormatDelta(s.CallDelta, s.HasCall),
					utils.FormatDelta(s.PutDelta, s.HasPut),
					fmt.Sprintf("%.1f%%", s.Yield),
					output.ITM(s.InTheMoney),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().Int64("min-volume", 0, "hide strikes with less combined volume")
	return cmd
}

func printChainHeader(output *Output, report chain.Report) {
	output.Bold("%s  %s", report.Symbol, utils.FormatPrice(report.Spot))
	exp := report.Expiration
	if exp == "" {
		exp = "unknown expiration"
	}
	stats := report.Statistics
	output.Dim("%s · %d DTE · vol %s · OI %s", exp, stats.DTE,
		utils.FormatCompact(stats.TotalVolume), utils.FormatCompact(stats.TotalOI))
	output.Println()
}

func newChainStatsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file>",
		Short: "Chain-wide volume, open interest and put/call ratio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			oc, err := readChain(cmd, args[0])
			if err != nil {
				return err
			}

			report := app.Engine.Analyze(oc)
			stats := report.Statistics
			if output.IsJSON() {
				return output.JSON(stats)
			}

			printChainHeader(output, report)
			output.Printf("  Total Volume:   %s\n", utils.FormatNumber(stats.TotalVolume))
			output.Printf("  Total OI:       %s\n", utils.FormatNumber(stats.TotalOI))
			output.Printf("  Call Volume:    %s\n", utils.FormatNumber(stats.CallVolume))
			output.Printf("  Put Volume:     %s\n", utils.FormatNumber(stats.PutVolume))
			output.Printf("  Put/Call Ratio: %s\n", pcrText(output, stats.PCR))
			output.Printf("  Days to Exp:    %d\n", stats.DTE)
			return nil
		},
	}
}

// pcrText colors the ratio: above 1 reads bearish, below 0.7 bullish.
func pcrText(output *Output, pcr float64) string {
	text := chain.FormatRatio(pcr)
	switch {
	case pcr > 1:
		return output.Red(text)
	case pcr > 0 && pcr < 0.7:
		return output.Green(text)
	default:
		return text
	}
}

func newChainPayloadCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "payload <file>",
		Short: "Print the bounded summary sent to the AI backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			oc, err := readChain(cmd, args[0])
			if err != nil {
				return err
			}
			payload, err := app.Engine.FormatForAnalysis(oc)
			if err != nil {
				return err
			}
			output.Println(payload)
			return nil
		},
	}
}

func newChainAICmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ai <file>",
		Short: "Ask the configured AI backend for a structured analysis",
		Example: `  analyzer chain ai aapl.json
  analyzer chain ai aapl.json --prompt "Where are the put walls?"
  analyzer chain ai aapl.json --save --url https://finance.yahoo.com/quote/AAPL/options`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			oc, err := readChain(cmd, args[0])
			if err != nil {
				return err
			}
			prompt, _ := cmd.Flags().GetString("prompt")
			save, _ := cmd.Flags().GetBool("save")
			url, _ := cmd.Flags().GetString("url")

			analyst, err := app.Analyst()
			if err != nil {
				return err
			}

			if !output.IsJSON() {
				output.Info("Analyzing %s with %s...", oc.Symbol, app.Config.AI.Provider)
			}
			ctx := logging.WithLogger(cmd.Context(), app.Logger)
			analysis, err := analyst.AnalyzeWithPrompt(ctx, oc, prompt)
			if err != nil {
				return err
			}

			var savedID string
			if save {
				st, err := app.DataStore()
				if err != nil {
					return err
				}
				item := &models.WatchlistItem{
					Symbol:         oc.Symbol,
					ExpirationDate: oc.ExpirationDate,
					Price:          oc.Price,
					Valuation:      oc.Valuation,
					Analysis:       analysis,
					Chain:          oc,
					URL:            url,
				}
				if err := st.SaveWatchlistItem(cmd.Context(), item); err != nil {
					return err
				}
				savedID = item.ID
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"analysis":    analysis,
					"watchlistId": savedID,
				})
			}
			printAnalysis(output, analysis)
			if savedID != "" {
				output.Success("✓ Saved to watchlist (%s)", shortID(savedID))
			}
			return nil
		},
	}
	cmd.Flags().String("prompt", agents.DefaultPrompt, "instruction placed before the chain payload")
	cmd.Flags().Bool("save", false, "save the chain and analysis to the watchlist")
	cmd.Flags().String("url", "", "source page URL stored with the watchlist item")
	return cmd
}

func printAnalysis(output *Output, a *models.OptionAnalysis) {
	output.Println()
	output.Printf("Sentiment: %s\n", output.Sentiment(a.Sentiment))
	output.Println()
	output.Println(a.Summary)

	if len(a.KeyObservations) > 0 {
		output.Println()
		output.Bold("Key Observations")
		for _, o := range a.KeyObservations {
			output.Printf("  • %s\n", o)
		}
	}
	if len(a.TradingSuggestions) > 0 {
		output.Println()
		output.Bold("Trading Suggestions")
		for _, s := range a.TradingSuggestions {
			output.Printf("  • %s\n", s)
		}
	}

	sr := a.SupportResistance
	if sr.Support != 0 || sr.Resistance != 0 {
		output.Println()
		output.Bold("Support / Resistance")
		output.Printf("  Support:    %s\n", output.Green(utils.FormatPrice(sr.Support)))
		output.Printf("  Resistance: %s\n", output.Red(utils.FormatPrice(sr.Resistance)))
		if strings.TrimSpace(sr.Reason) != "" {
			output.Dim("  %s", sr.Reason)
		}
	}
}

// shortID abbreviates a UUID for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
