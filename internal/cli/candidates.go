package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	apperrors "option-analyzer/internal/errors"
	"option-analyzer/internal/models"
	"option-analyzer/pkg/utils"
)

func newCandidatesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "candidates",
		Aliases: []string{"pool"},
		Short:   "Manage the candidate pool of pinned contracts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pinned contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.DataStore()
			if err != nil {
				return err
			}
			cands, err := st.GetCandidates(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(cands)
			}
			if len(cands) == 0 {
				output.Dim("Candidate pool is empty")
				return nil
			}

			table := NewTable(output, "ID", "SYMBOL", "EXPIRATION", "STRIKE", "TYPE", "DELTA", "PREMIUM", "SPOT", "YIELD")
			for _, c := range cands {
				table.AddRow(
					shortID(c.ID),
					c.Symbol,
					c.ExpirationDate,
					fmt.Sprintf("%.2f", c.Strike),
					strings.ToUpper(string(c.Type)),
					fmt.Sprintf("%.3f", c.Delta),
					fmt.Sprintf("%.2f", c.OptionPrice),
					utils.FormatPrice(c.UnderlyingPrice),
					output.Signed(c.AnnualizedYield, fmt.Sprintf("%.1f%%", c.AnnualizedYield)),
				)
			}
			table.Render()
			return nil
		},
	})

	addCmd := &cobra.Command{
		Use:     "add <file>",
		Short:   "Pin one side of a strike from a chain",
		Example: `  analyzer candidates add aapl.json --strike 225 --type put`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			oc, err := readChain(cmd, args[0])
			if err != nil {
				return err
			}
			strike, _ := cmd.Flags().GetFloat64("strike")
			typeFlag, _ := cmd.Flags().GetString("type")
			url, _ := cmd.Flags().GetString("url")

			typ := models.ContractType(strings.ToLower(typeFlag))
			if !typ.Valid() {
				return apperrors.NewValidationError("type", typeFlag, "must be one of: call, put")
			}

			cand, err := app.Engine.Pin(oc, strike, typ)
			if err != nil {
				return err
			}
			cand.URL = url

			st, err := app.DataStore()
			if err != nil {
				return err
			}
			added, err := st.SaveCandidate(cmd.Context(), &cand)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"added": added, "candidate": cand})
			}
			if !added {
				output.Warning("%s %.2f %s is already pinned", cand.Symbol, cand.Strike, cand.Type)
				return nil
			}
			output.Success("✓ Pinned %s %.2f %s (Δ %.3f, yield %.1f%%)",
				cand.Symbol, cand.Strike, cand.Type, cand.Delta, cand.AnnualizedYield)
			return nil
		},
	}
	addCmd.Flags().Float64("strike", 0, "strike to pin")
	addCmd.Flags().String("type", "put", "side to pin: call or put")
	addCmd.Flags().String("url", "", "source page URL")
	_ = addCmd.MarkFlagRequired("strike")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a pinned contract (id prefix accepted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.DataStore()
			if err != nil {
				return err
			}
			cands, err := st.GetCandidates(cmd.Context())
			if err != nil {
				return err
			}
			ids := make([]string, len(cands))
			for i, c := range cands {
				ids[i] = c.ID
			}
			id := resolveID(args[0], ids)
			if err := st.RemoveCandidate(cmd.Context(), id); err != nil {
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
		Short: "Empty the candidate pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.DataStore()
			if err != nil {
				return err
			}
			if err := st.ClearCandidates(cmd.Context()); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"cleared": true})
			}
			output.Success("✓ Candidate pool cleared")
			return nil
		},
	})

	return cmd
}
