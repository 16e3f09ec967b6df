package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nabu-speech/nabu-ctl/internal/dataconf"
	"github.com/nabu-speech/nabu-ctl/internal/manifest"
)

var checkWatch bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the data configuration and its manifests",
	Long: `Loads the data configuration with its overlays, validates every spec and
the dependency graph, then reads the manifest each spec lists and compares it
with the manifest of its dependency.

Exit 0 when no errors are found; warnings do not fail the check. With --watch
the check reruns whenever the data configuration changes, until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := loadSettings()
		if err != nil {
			return err
		}
		root, err := projectRoot(s)
		if err != nil {
			return err
		}

		if checkWatch {
			return watchCheck(cmd.Context(), dataConfigPath(s), overlayPaths(s), root)
		}

		cfg, err := loadDataConfig(s)
		if err != nil {
			return err
		}
		return runCheck(cmd.Context(), cfg, root)
	},
}

func runCheck(ctx context.Context, cfg *dataconf.Config, root string) error {
	result, err := manifest.Check(ctx, cfg, root)
	if err != nil {
		return err
	}

	for _, st := range result.Specs {
		switch {
		case st.Err != nil:
			info("  error     %s", st.Spec)
		case st.Missing:
			info("  missing   %s (optional)", st.Spec)
		default:
			info("  ok        %s (%d entries)", st.Spec, st.Entries)
		}
		detail("manifest: %s", st.Path)
	}
	for _, w := range result.Warnings {
		info("warning: %s", w)
	}
	for _, e := range result.Errors {
		errorf("%s", e)
	}

	if !result.OK() {
		return fmt.Errorf("check failed: %d error(s) in %s", len(result.Errors), cfg.Path)
	}
	info("%s: %d spec(s) ok", cfg.Path, len(result.Specs))
	return nil
}

func watchCheck(ctx context.Context, path string, overlayFiles []string, root string) error {
	run := func(cfg *dataconf.Config) {
		if err := runCheck(ctx, cfg, root); err != nil && ctx.Err() == nil {
			errorf("%v", err)
		}
	}

	cfg, err := dataconf.Load(path, overlayFiles...)
	if err != nil {
		errorf("%v", err)
	} else {
		run(cfg)
	}

	info("watching %s for changes", path)
	err = dataconf.Watch(ctx, path, run, func(err error) {
		errorf("%v", err)
	}, overlayFiles...)
	if err != nil {
		return err
	}
	slog.Debug("watch stopped", "path", path)
	return nil
}

func init() {
	checkCmd.Flags().BoolVarP(&checkWatch, "watch", "w", false, "rerun the check whenever the data configuration changes")
	rootCmd.AddCommand(checkCmd)
}
