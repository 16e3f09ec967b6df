package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/nabu-speech/nabu-ctl/internal/dispatch"
	"github.com/nabu-speech/nabu-ctl/internal/settings"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the settings chain and what each command runs",
	Long: `Displays the nabu version, the settings files consulted and whether they were
loaded, the data configuration with its overlays, and the script every
pipeline command dispatches to.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, layers, err := loadSettings()
		if err != nil {
			return err
		}

		info("nabu %s", version)
		info("  settings chain:")
		for _, l := range layers {
			status := "not found"
			if l.Loaded {
				status = "loaded"
			}
			info("    %-9s %s (%s)", string(l.Level)+":", l.Path, status)
		}
		if settings.EnvNoInherit() {
			info("    (NABU_NO_INHERIT set: system and user settings skipped)")
		}

		info("  data config:   %s", dataConfigPath(s))
		if ov := overlayPaths(s); len(ov) > 0 {
			info("  overlays:      %s", strings.Join(ov, ", "))
		}
		root, err := projectRoot(s)
		if err != nil {
			return err
		}
		info("  project root:  %s", root)

		interp := s.InterpreterCommand()
		if interp == "" {
			interp = "(scripts run directly)"
		}
		info("  interpreter:   %s", interp)

		d := s.Dispatcher()
		info("\nCommands:")
		for _, c := range dispatch.Commands {
			info("  %-7s → %s", c, d.Script(c))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
