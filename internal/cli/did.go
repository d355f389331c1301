package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ratchet/internal/regress"
	"github.com/ppiankov/ratchet/internal/report"
)

var (
	control   string
	didSpec   string
	outFormat string
)

// didCmd represents the did command
var didCmd = &cobra.Command{
	Use:   "did",
	Short: "Estimate one DiD specification for one control",
	Long: `Did fits the level (treat:post) or slope (treat:time:post) model for the
treatment group against a single control and prints the full coefficient
table.

Example:
  ratchet did --items items.csv --control CHINA
  ratchet did --items items.csv --control IRAN --spec slope --cov hc3`,
	RunE: runDiD,
}

func init() {
	rootCmd.AddCommand(didCmd)

	didCmd.Flags().StringVar(&itemsPath, "items", "", "item table (CSV or XLSX)")
	didCmd.Flags().StringVar(&control, "control", "", "control group")
	didCmd.Flags().StringVar(&didSpec, "spec", "level", "specification (level, slope)")
	didCmd.Flags().StringVar(&outFormat, "format", "text", "output format (text, json)")
	didCmd.Flags().String("cov", "", "covariance (nonrobust, hc1, hc3, cluster, auto)")
	_ = didCmd.MarkFlagRequired("items")
	_ = didCmd.MarkFlagRequired("control")
}

func runDiD(cmd *cobra.Command, args []string) error {
	spec, err := regress.DiDSpec(didSpec)
	if err != nil {
		return err
	}
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

	res, fit, err := p.Engine().DiD(ds, control, spec)
	if err != nil {
		return fmt.Errorf("%s DiD %s vs %s: %w", spec.Name, cfg.Treatment, control, err)
	}

	out := cmd.OutOrStdout()
	if outFormat == "json" {
		return report.WriteJSON(out, res)
	}
	fmt.Fprintln(out, report.DiDDetail(res, cfg.Significance.Alpha))
	if spec.Name == regress.SlopeSpec.Name {
		if d, err := regress.Decompose(fit); err == nil {
			fmt.Fprintf(out, "  slopes pre/post: treatment %.4f / %.4f  control %.4f / %.4f\n",
				d.TreatmentPre, d.TreatmentPost, d.ControlPre, d.ControlPost)
		}
		cum := regress.Cumulative(res, cfg.HorizonMonths)
		fmt.Fprintf(out, "  cumulative x%d: %.4f (se %.4f, p %.4f)\n",
			cum.Horizon, cum.Effect, cum.StandardError, cum.PValue)
	}
	return nil
}
