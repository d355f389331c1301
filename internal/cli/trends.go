package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ratchet/internal/report"
	"github.com/ppiankov/ratchet/internal/trends"
)

var trendsWindow string

// trendsCmd represents the trends command
var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Test parallel pre-trends for one control",
	Long: `Trends regresses the bucket means of one window on treat, time and
treat:time and reports PASS when the differential trend is not significant
at the configured threshold. Too few rows give INSUFFICIENT_DATA.

The window is a period label (its buckets are the pre-period of the event
that closes it) or "pre" for every bucket before the intervention.

Example:
  ratchet trends --items items.csv --control CHINA --window P1
  ratchet trends --items items.csv --control RUSSIA --window pre`,
	RunE: runTrends,
}

func init() {
	rootCmd.AddCommand(trendsCmd)

	trendsCmd.Flags().StringVar(&itemsPath, "items", "", "item table (CSV or XLSX)")
	trendsCmd.Flags().StringVar(&control, "control", "", "control group")
	trendsCmd.Flags().StringVar(&trendsWindow, "window", "pre", "period label or \"pre\"")
	trendsCmd.Flags().StringVar(&outFormat, "format", "text", "output format (text, json)")
	_ = trendsCmd.MarkFlagRequired("items")
	_ = trendsCmd.MarkFlagRequired("control")
}

func runTrends(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	if control, err = resolveControl(cfg, control); err != nil {
		return err
	}
	p, ds, err := prepareDataset(cmd, cfg)
	if err != nil {
		return err
	}

	res, err := p.Engine().Trends(ds, control, trendsWindow)
	// an INSUFFICIENT_DATA verdict is still a result
	if err != nil && !errors.Is(err, trends.ErrInsufficientData) {
		return fmt.Errorf("parallel trends %s vs %s: %w", cfg.Treatment, control, err)
	}

	out := cmd.OutOrStdout()
	if outFormat == "json" {
		return report.WriteJSON(out, res)
	}
	fmt.Fprintln(out, report.TrendsDetail(res))
	return nil
}
