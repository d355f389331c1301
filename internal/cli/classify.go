package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ratchet/internal/dataset"
)

var classifyOut string

// classifyCmd represents the classify command
var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Label unlabelled items with the configured LLM",
	Long: `Classify sends the text of every item without a label to an
OpenAI-compatible chat endpoint and writes the table back with the label
column filled in. Labels outside the closed frame set are rejected, and
results are cached by text so reruns are cheap.

Example:
  ratchet classify --items raw.csv --out labelled.csv
  RATCHET_LLM_BASE_URL=http://localhost:11434/v1 ratchet classify --items raw.csv --out labelled.xlsx`,
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringVar(&itemsPath, "items", "", "item table (CSV or XLSX)")
	classifyCmd.Flags().StringVar(&classifyOut, "out", "", "output table (CSV or XLSX)")
	_ = classifyCmd.MarkFlagRequired("items")
	_ = classifyCmd.MarkFlagRequired("out")
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	p, err := newPipeline(cmd, cfg)
	if err != nil {
		return err
	}

	items, err := p.LoadItems(itemsPath)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Model: %s at %s\n", cfg.LLM.Model, cfg.LLM.BaseURL)
		fmt.Fprintf(os.Stderr, "✓ Loaded %d items\n", len(items))
	}

	labelled, stats, err := p.Classify(cmd.Context(), items, progressFunc("Classifying items..."))
	if err != nil {
		return fmt.Errorf("classify failed: %w", err)
	}
	if err := dataset.Save(classifyOut, labelled, cfg.Input.Columns); err != nil {
		return fmt.Errorf("write %s: %w", classifyOut, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Wrote %s\n", classifyOut)
	fmt.Fprintf(out, "  Pending:   %d\n", stats.Pending)
	fmt.Fprintf(out, "  Labelled:  %d\n", stats.Labelled)
	fmt.Fprintf(out, "  Failures:  %d\n", stats.Failed)
	fmt.Fprintf(out, "  Cached:    %d\n", stats.CacheHits)
	return nil
}
