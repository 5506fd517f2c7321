package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"option-analyzer/internal/models"
	"option-analyzer/pkg/utils"
)

func newWatchlistCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watchlist",
		Aliases: []string{"wl"},
		Short:   "Manage saved chain snapshots",
		Long:    "Saved snapshots are kept newest first, one per symbol and expiration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.DataStore()
			if err != nil {
				return err
			}
			items, err := st.GetWatchlist(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(items)
			}
			if len(items) == 0 {
				output.Dim("Watchlist is empty")
				return nil
			}

			table := NewTable(output, "ID", "SYMBOL", "EXPIRATION", "PRICE", "VALUATION", "SENTIMENT", "SAVED")
			for _, item := range items {
				valuation := "-"
				if item.Valuation != nil {
					valuation = utils.FormatPrice(*item.Valuation)
				}
				sentiment := "-"
				if item.Analysis != nil {
					sentiment = output.Sentiment(item.Analysis.Sentiment)
				}
				table.AddRow(
					shortID(item.ID),
					item.Symbol,
					item.ExpirationDate,
					utils.FormatPrice(item.Price),
					valuation,
					sentiment,
					item.Timestamp.Local().Format("Jan 02 15:04"),
				)
			}
			table.Render()
			return nil
		},
	})

	addCmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Save a chain snapshot without analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			oc, err := readChain(cmd, args[0])
			if err != nil {
				return err
			}
			url, _ := cmd.Flags().GetString("url")

			item := &models.WatchlistItem{
				Symbol:         oc.Symbol,
				ExpirationDate: oc.ExpirationDate,
				Price:          oc.Price,
				Valuation:      oc.Valuation,
				Chain:          oc,
				URL:            url,
			}
			if cmd.Flags().Changed("valuation") {
				v, _ := cmd.Flags().GetFloat64("valuation")
				item.Valuation = &v
			}

			st, err := app.DataStore()
			if err != nil {
				return err
			}
			if err := st.SaveWatchlistItem(cmd.Context(), item); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(item)
			}
			output.Success("✓ Saved %s %s (%s)", item.Symbol, item.ExpirationDate, shortID(item.ID))
			return nil
		},
	}
	addCmd.Flags().String("url", "", "source page URL")
	addCmd.Flags().Float64("valuation", 0, "your fair value for the underlying")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a saved snapshot (id prefix accepted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.DataStore()
			if err != nil {
				return err
			}
			items, err := st.GetWatchlist(cmd.Context())
			if err != nil {
				return err
			}
			id := resolveID(args[0], watchlistIDs(items))
			if err := st.DeleteWatchlistItem(cmd.Context(), id); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"removed": id})
			}
			output.Success("✓ Removed %s", shortID(id))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every saved snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.DataStore()
			if err != nil {
				return err
			}
			if err := st.ClearWatchlist(cmd.Context()); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"cleared": true})
			}
			output.Success("✓ Watchlist cleared")
			return nil
		},
	})

	return cmd
}

func watchlistIDs(items []models.WatchlistItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

// resolveID expands a unique id prefix; anything else is returned as typed
// and left for the store to reject.
func resolveID(prefix string, ids []string) string {
	match := ""
	for _, id := range ids {
		if id == prefix {
			return id
		}
		if strings.HasPrefix(id, prefix) {
			if match != "" {
				return prefix
			}
			match = id
		}
	}
	if match == "" {
		return prefix
	}
	return match
}
