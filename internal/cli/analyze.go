package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ratchet/internal/pipeline"
)

var (
	itemsPath  string
	outJSON    string
	outXLSX    string
	outMD      string
	storeRun   bool
	classifyOn bool
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run every comparison of the configured study",
	Long: `Analyze loads an item table and, for the treatment group against each
control group:
- estimates level and slope DiD with the configured covariance
- tests pre-period parallel trends for every period window
- runs the event study and the period-to-period transitions
- bootstraps the recovery ratio

Example:
  ratchet analyze --items items.csv
  ratchet analyze --items items.xlsx --json run.json --xlsx run.xlsx --store
  ratchet analyze --items raw.csv --classify --iterations 5000`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&itemsPath, "items", "", "item table (CSV or XLSX)")
	analyzeCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (optional)")
	analyzeCmd.Flags().StringVar(&outXLSX, "xlsx", "", "output XLSX workbook path (optional)")
	analyzeCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	analyzeCmd.Flags().BoolVar(&storeRun, "store", false, "save the run to the run store")
	analyzeCmd.Flags().BoolVar(&classifyOn, "classify", false, "label items that have text but no label before analysis")
	analyzeCmd.Flags().String("cov", "", "covariance (nonrobust, hc1, hc3, cluster, auto)")
	analyzeCmd.Flags().Int("iterations", 0, "bootstrap iterations")
	analyzeCmd.Flags().Uint64("seed", 0, "bootstrap seed")
	analyzeCmd.Flags().Int("workers", 0, "bootstrap workers (0 = all CPUs)")
	_ = analyzeCmd.MarkFlagRequired("items")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	p, err := newPipeline(cmd, cfg)
	if err != nil {
		return err
	}

	if storeRun {
		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		p.WithStore(s)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Items: %s\n", itemsPath)
		fmt.Fprintf(os.Stderr, "Treatment: %s  Controls: %v\n", cfg.Treatment, cfg.Controls)
		fmt.Fprintf(os.Stderr, "Covariance: %s  Bootstrap: %d iterations (seed %d)\n",
			cfg.Covariance, cfg.Bootstrap.Iterations, cfg.Bootstrap.Seed)
		fmt.Fprintln(os.Stderr)
	}

	// one ratio per control plus the single-group ratio
	bar := newProgressBar(p.Engine().BootstrapIterations()*(len(cfg.Controls)+1), "Bootstrapping...")
	p.Engine().SetProgress(func(delta int) { addProgress(bar, delta) })

	opts := pipeline.AnalyzeOptions{Classify: classifyOn}
	if classifyOn {
		opts.ClassifyProgress = progressFunc("Classifying items...")
	}

	run, err := p.Analyze(ctx, itemsPath, opts)
	if err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}
	_ = bar.Finish()

	if verbose && storeRun {
		fmt.Fprintf(os.Stderr, "✓ Saved run %s\n", run.ID)
	}

	outputs := pipeline.Outputs{JSON: outJSON, XLSX: outXLSX, Markdown: outMD}
	if err := p.RenderReport(run, outputs, verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	return nil
}
