package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ratchet/internal/report"
)

var runsLimit int

// runsCmd represents the runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect runs saved with analyze --store",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		runs, err := s.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.RunList(runs))
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		run, err := s.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return report.WriteJSON(cmd.OutOrStdout(), run)
		}
		report.NewRenderer(cmd.OutOrStdout()).RenderSummary(run, cfg.Significance.Alpha)
		return nil
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		if err := s.DeleteRun(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted run %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)

	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list (0 = all)")
	runsShowCmd.Flags().StringVar(&outFormat, "format", "text", "output format (text, json)")
}
