package cmd

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nabu-speech/nabu-ctl/internal/dispatch"
	"github.com/nabu-speech/nabu-ctl/internal/system"
)

// runStdio is where dispatched scripts are attached; tests replace it.
var runStdio = system.ProcessStdio

var runCmd = &cobra.Command{
	Use:   "run <command> [args...]",
	Short: "Run a pipeline script with the given arguments",
	Long: `Runs the script behind one of the pipeline commands (` + strings.Join(dispatch.Commands, ", ") + `)
and passes every following argument to it unchanged. The exit status is the
script's own.

Set NABU_DRY_RUN=1 to print the command line instead of running it.`,
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := loadSettings()
		if err != nil {
			return err
		}

		d := s.Dispatcher()
		d.Stdio = runStdio()
		d.Logger = slog.Default()

		if dryRun() {
			inv, err := d.Resolve(args)
			if err != nil {
				return err
			}
			info("%s", inv)
			return nil
		}

		// An interrupt reaches the script through the terminal; the script
		// decides how to stop and its status is reported.
		return d.Run(context.WithoutCancel(cmd.Context()), args)
	},
}

func dryRun() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("NABU_DRY_RUN")))
	return v == "1" || v == "true"
}

func init() {
	rootCmd.AddCommand(runCmd)
}
