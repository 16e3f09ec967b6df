package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nabu-speech/nabu-ctl/internal/dispatch"
	"github.com/nabu-speech/nabu-ctl/internal/logging"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var (
	settingsPath string
	dataConfig   string
	overlays     []string
	rootDir      string
	verbose      bool
	quiet        bool
	logLevel     string
	logFormat    string
)

var rootCmd = &cobra.Command{
	Use:   "nabu",
	Short: "Drive nabu recipes: data configs, pipeline scripts and cluster jobs",
	Long: `nabu validates and inspects the data configuration of a recipe, runs the
pipeline scripts (train, train2, test, data, sweep) with the arguments given,
renders and submits batch jobs for them, and inspects the record files the
data preparation step writes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logLevel
		if !cmd.Flags().Changed("log-level") {
			switch {
			case verbose:
				level = "debug"
			case quiet:
				level = "error"
			}
		}
		_, err := logging.Setup(level, logFormat, os.Stderr)
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info("nabu %s", version)
		info("  commit:   %s", commit)
		info("  built:    %s", date)
		info("  commands: %s", strings.Join(dispatch.Commands, ", "))
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&settingsPath, "settings", "", "path to the project settings file (default: nabu.yaml in the working directory)")
	pf.StringVarP(&dataConfig, "config", "c", "", "data configuration, relative to the project root (default: data_config from settings)")
	pf.StringArrayVar(&overlays, "overlay", nil, "data configuration overlay applied after the settings overlays (repeatable)")
	pf.StringVar(&rootDir, "root", "", "directory relative paths are resolved against (default: root from settings)")
	pf.BoolVar(&verbose, "verbose", false, "detailed output")
	pf.BoolVar(&quiet, "quiet", false, "minimal output (errors only)")
	pf.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", logging.FormatText, "log format: text, json")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command. Errors are printed except a script's own
// non-zero exit, which the script has already reported.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exitErr *dispatch.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	return nil
}
