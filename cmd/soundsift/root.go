package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/soundsift/soundsift/internal/cli"
	"github.com/soundsift/soundsift/internal/cli/config"
	"github.com/soundsift/soundsift/pkg/analysis"
	"github.com/soundsift/soundsift/pkg/analysis/state"
)

var (
	// Set during build time using -ldflags.
	version = "dev"
	commit  = "none"
	date    = "unknown"

	cfgFile     string
	profileName string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "soundsift -i <inputDir>",
	Short: "Batch acoustic analysis for directories of audio recordings.",
	Long: `soundsift scans a directory of audio recordings, runs a configurable
set of acoustic metrics over every channel of every file, and produces a
structured result tree.

It features:
  - Parallel processing across files and channels.
  - Resumable runs: completed files are recorded and skipped on re-run.
  - Per-file and per-channel failure isolation.
  - Per-recording calibration to absolute sound pressure levels.
  - An interactive Terminal UI (TUI) for monitoring progress.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		settings, logger, err := config.LoadAndValidate(cfgFile, profileName, version, verbose, cmd.Flags())
		if err != nil {
			return err
		}

		// Give the terminal a moment to settle before the TUI takes over the
		// alternate screen.
		if term.IsTerminal(int(os.Stderr.Fd())) && settings.TuiEnabled {
			time.Sleep(100 * time.Millisecond)
		}

		return cli.Run(ctx, settings, logger)
	},
}

// Execute runs the root command. Cobra prints the error and exits non-zero
// if RunE returns an error.
func Execute() {
	rootCmd.SetVersionTemplate(`{{.Use}} version {{.Version}}` + "\n")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init registers flags for the root command. Flag names align with the viper
// keys bound in internal/cli/config.
func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default is search ., $HOME/.config/soundsift/)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Name of configuration profile to use")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging output (disables TUI)")

	rootCmd.PersistentFlags().StringP("input", "i", "", "Required. Directory of audio recordings to analyze.")
	_ = rootCmd.MarkPersistentFlagRequired("input")

	// Scanning flags
	rootCmd.Flags().BoolP("recursive", "r", false, "Descend into subdirectories of the input directory")
	rootCmd.Flags().String("extension", analysis.DefaultExtension, "File extension to analyze (case-insensitive)")
	rootCmd.Flags().StringSlice("ignore", []string{}, "Glob patterns for files to ignore (matched against base name and relative path)")

	// Processing flags
	rootCmd.Flags().Int("workers", analysis.DefaultConcurrency, "Number of parallel file workers (0 for auto-detect CPU cores)")
	rootCmd.Flags().Bool("parallel-channels", true, "Analyze the channels of each file concurrently")
	rootCmd.Flags().Int("channel-concurrency", analysis.DefaultChannelConcurrency, "Concurrent channels per file when --parallel-channels is set")
	rootCmd.Flags().StringArray("metric", nil, "Metric to run with default options (repeatable; replaces the configured metric list)")
	rootCmd.Flags().String("calibration", "", "Path to a JSON calibration table mapping recording stems to target levels in dB")

	// Resume flags
	rootCmd.Flags().Bool("resume", true, "Skip files recorded as complete in the state file")
	rootCmd.Flags().BoolP("force", "f", false, "Reprocess files even if recorded as complete")
	rootCmd.Flags().String("state-file", "", "State file path (default is "+state.StateFileName+" inside the input directory)")
	rootCmd.Flags().String("state-format", state.DefaultFormat, `State file encoding ("gob", "json")`)

	// Output flags
	rootCmd.Flags().StringP("output", "o", "", "Write the final report to this file instead of the terminal")
	rootCmd.Flags().String("output-format", "text", `Final report format ("text", "json")`)
	rootCmd.Flags().Bool("no-tui", false, "Disable interactive Terminal UI even if in a TTY")
}
