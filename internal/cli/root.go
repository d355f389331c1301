package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ppiankov/ratchet/internal/analysis"
	"github.com/ppiankov/ratchet/internal/config"
	"github.com/ppiankov/ratchet/internal/model"
	"github.com/ppiankov/ratchet/internal/pipeline"
	"github.com/ppiankov/ratchet/internal/report"
	"github.com/ppiankov/ratchet/internal/store"
	"github.com/ppiankov/ratchet/internal/util"
)

// skipConfigFile marks commands that must run without reading --config
const skipConfigFile = "skip-config-file"

// Version is set at build time
var Version = "v0.1.0"

var (
	cfgFile    string
	verbose    bool
	noProgress bool

	// v holds defaults, env overrides, the config file and bound flags
	v = config.New()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ratchet",
	Short: "Ratchet - difference-in-differences tests for framing recovery",
	Long: `Ratchet measures whether a group's framing shift after an event is
reversed when the event is undone.

It aggregates labelled items into a group x time panel, estimates level
and slope difference-in-differences against each control group, checks
pre-period parallel trends, and bootstraps the recovery ratio
|P3 - P2| / |P2 - P1| with a percentile confidence interval.

A ratio CI entirely below 1 supports an asymmetric (ratchet) effect.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipConfigFile] == "" {
			if err := config.ReadFile(v, cfgFile); err != nil {
				return err
			}
		}
		if err := util.SetupLogger(v.GetString("logging.level"), v.GetString("logging.format")); err != nil {
			return err
		}
		if verbose && v.ConfigFileUsed() != "" {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", v.ConfigFileUsed())
		}
		return nil
	},
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ratchet %s\n", Version)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.ratchet/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bars")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("db", "", "run store path (default: $HOME/.ratchet/runs.db)")

	// Bind flags to viper
	_ = v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = v.BindPFlag("storage.db_path", rootCmd.PersistentFlags().Lookup("db"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// loadConfig decodes and validates the merged configuration
func loadConfig() (model.Config, error) {
	return config.FromViper(v)
}

// commandConfig loads the configuration and applies the analysis overrides
// a command may define (--cov, --iterations, --seed, --workers).
func commandConfig(cmd *cobra.Command) (model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("cov") {
		cov, _ := flags.GetString("cov")
		cfg.Covariance = strings.ToLower(strings.TrimSpace(cov))
	}
	if flags.Changed("iterations") {
		cfg.Bootstrap.Iterations, _ = flags.GetInt("iterations")
	}
	if flags.Changed("seed") {
		cfg.Bootstrap.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("workers") {
		cfg.Bootstrap.Workers, _ = flags.GetInt("workers")
	}
	if err := config.Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newPipeline builds a pipeline for cfg writing to the command's output
func newPipeline(cmd *cobra.Command, cfg model.Config) (*pipeline.Pipeline, error) {
	return pipeline.NewPipeline(cfg, report.NewRenderer(cmd.OutOrStdout()), slog.Default())
}

// prepareDataset loads itemsPath and aggregates it for single-step commands
func prepareDataset(cmd *cobra.Command, cfg model.Config) (*pipeline.Pipeline, *analysis.Dataset, error) {
	p, err := newPipeline(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	items, err := p.LoadItems(itemsPath)
	if err != nil {
		return nil, nil, err
	}
	ds, err := p.Engine().Prepare(items)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare panel: %w", err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Kept %d of %d items\n", ds.Drops.Kept, ds.Drops.Total)
	}
	return p, ds, nil
}

// resolveControl matches control against the configured controls ignoring
// case and returns the configured name
func resolveControl(cfg model.Config, control string) (string, error) {
	want := strings.ToUpper(strings.TrimSpace(control))
	for _, c := range cfg.Controls {
		if c == want {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown control %q (configured: %v)", control, cfg.Controls)
}

func openStore(ctx context.Context, cfg model.Config) (*store.Store, error) {
	s, err := store.Open(ctx, config.ExpandPath(cfg.Storage.DBPath))
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	return s, nil
}

// newProgressBar returns a bar on stderr, or a silent one when progress
// output is disabled.
func newProgressBar(total int, description string) *progressbar.ProgressBar {
	var w io.Writer = os.Stderr
	if noProgress || total <= 0 {
		w = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)
}

// addProgress advances bar, logging rather than failing on write errors
func addProgress(bar *progressbar.ProgressBar, n int) {
	if err := bar.Add(n); err != nil {
		slog.Debug("progress bar update failed", "error", err)
	}
}

// progressFunc adapts a (done, total) callback to a bar created on the
// first report, once the total is known.
func progressFunc(description string) func(done, total int) {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = newProgressBar(total, description)
		}
		if err := bar.Set(done); err != nil {
			slog.Debug("progress bar update failed", "error", err)
		}
	}
}
