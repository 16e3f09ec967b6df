package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nabu-speech/nabu-ctl/internal/sandbox"
	"github.com/nabu-speech/nabu-ctl/internal/settings"
)

var initForce bool

// dataConfigTemplate is the starter data configuration: a spectrogram spec
// and a mask spec computed from the same audio.
const dataConfigTemplate = `# Data configuration: one section per data spec.
# Values of the form 'globalvars' or 'globalvars.<key>' are taken from the
# [globalvars] section.

[globalvars]
segment_lengths = 100 full

[trainspec]
datafiles = data/train/wav.scp
preprocess = True
writer_style = numpy_float_array_as_tfrecord
store_dir = store/train/spec
processor_config = config/processors/spec.cfg
segment_lengths = globalvars
meta_info = False
optional = False
dependencies = None

[trainusedbins]
datafiles = data/train/wav.scp
preprocess = True
writer_style = numpy_bool_array_as_tfrecord
store_dir = store/train/usedbins
processor_config = config/processors/usedbins.cfg
segment_lengths = globalvars
meta_info = True
optional = False
dependencies = trainspec
`

// settingsTemplate is the starter nabu.yaml.
const settingsTemplate = `# nabu settings
version: 1

# Interpreter the pipeline scripts run with ('none' runs them directly).
interpreter: python
script_dir: nabu/scripts

# Per-command script overrides.
# scripts:
#   sweep: tools/sweep.sh

data_config: database.conf
# overlays:
#   - config/local.conf

job:
  universe: vanilla
  cpus: 1
  memory: "2000"
  # gpus: 1
  # excluded_machines: [node1, node2]
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter data configuration and nabu.yaml",
	Long: `Creates a commented data configuration and a nabu.yaml settings file in
the project root. The data configuration goes to --config when set.

Use --force to overwrite existing files.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root := rootDir
		if root == "" {
			root = "."
		}
		root, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolving project root: %w", err)
		}

		confPath := dataConfig
		if confPath == "" {
			confPath = settings.DefaultDataConfig
		}
		settingsFile := settingsPath
		if settingsFile == "" {
			settingsFile = settings.FileNames[0]
		}

		files := []struct {
			path    string
			content string
		}{
			{confPath, dataConfigTemplate},
			{settingsFile, settingsTemplate},
		}

		for _, f := range files {
			rel, err := relToRoot(root, f.path)
			if err != nil {
				return err
			}
			if !initForce {
				exists, err := sandbox.Exists(root, rel)
				if err != nil {
					return err
				}
				if exists {
					return fmt.Errorf("%s already exists (use --force to overwrite)", filepath.Join(root, rel))
				}
			}
		}

		for _, f := range files {
			rel, _ := relToRoot(root, f.path)
			if err := sandbox.SafeWrite(root, rel, []byte(f.content), 0644); err != nil {
				return fmt.Errorf("writing %s: %w", f.path, err)
			}
			info("Created %s", filepath.Join(root, rel))
		}

		info("")
		info("Next steps:")
		info("  1. Point the datafiles of each spec at your manifests")
		info("  2. Run 'nabu check' to validate the configuration")
		info("  3. Run 'nabu run data --expdir=<dir>' to prepare the data")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing files")
	rootCmd.AddCommand(initCmd)
}

// relToRoot makes an absolute path relative to root so the sandbox can
// confine it; a path outside root comes back with a leading "..".
func relToRoot(root, p string) (string, error) {
	if !filepath.IsAbs(p) {
		return p, nil
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p, sandbox.ErrEscape)
	}
	return rel, nil
}
