package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"xrate-oracle/internal/app"
)

var (
	rateBase      string
	rateQuote     string
	rateTimestamp uint64
	rateCaller    string
	rateCycles    uint64
)

var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Resolve a single pair against live sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		if rateBase == "" || rateQuote == "" {
			return fmt.Errorf("--base and --quote are required")
		}

		opts := app.RateOptions{
			Base:   rateBase,
			Quote:  rateQuote,
			Caller: rateCaller,
			Cycles: rateCycles,
		}
		if rateTimestamp > 0 {
			ts := rateTimestamp
			opts.Timestamp = &ts
		}

		result, err := getApp().Rate(cmd.Context(), opts)
		if err != nil {
			return err
		}

		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
		return nil
	},
}

func init() {
	rateCmd.Flags().StringVar(&rateBase, "base", "", "Base asset symbol")
	rateCmd.Flags().StringVar(&rateQuote, "quote", "", "Quote asset symbol")
	rateCmd.Flags().Uint64Var(&rateTimestamp, "timestamp", 0, "UNIX timestamp (defaults to now)")
	rateCmd.Flags().StringVar(&rateCaller, "caller", "local-cli", "Caller principal to present")
	rateCmd.Flags().Uint64Var(&rateCycles, "cycles", 20_000_000_000, "Cycles to attach")
}
