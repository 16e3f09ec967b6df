package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nabu-speech/nabu-ctl/internal/jobfile"
	"github.com/nabu-speech/nabu-ctl/internal/sandbox"
	"github.com/nabu-speech/nabu-ctl/internal/settings"
	"github.com/nabu-speech/nabu-ctl/internal/system"
)

// Job flags.
var (
	jobExpdir  string
	jobOut     string
	jobQueue   int
	jobCPUs    int
	jobGPUs    int
	jobMemory  string
	jobExclude []string
	jobParams  []string
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Render, check and submit batch jobs for pipeline commands",
}

var jobRenderCmd = &cobra.Command{
	Use:   "render <command>",
	Short: "Write the submit description for a pipeline command",
	Long: `Builds a submit description that runs the script of <command> for the
experiment directory given by --expdir, from the job defaults in the settings
and the flags. Writes it to --out (atomically, inside the project root) or to
stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := loadSettings()
		if err != nil {
			return err
		}
		d, err := buildJob(cmd, s, args[0])
		if err != nil {
			return err
		}

		if jobOut == "" || jobOut == "-" {
			_, err := fmt.Fprint(stdout, d.String())
			return err
		}

		root, err := projectRoot(s)
		if err != nil {
			return err
		}
		path, err := writeJob(root, jobOut, d)
		if err != nil {
			return err
		}
		info("Wrote %s", path)
		detail("submit with: %s %s", jobfile.SubmitCommand, strings.Join(append([]string{path}, d.SubmitArgs()...), " "))
		return nil
	},
}

var jobCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a submit description",
	Long: `Parses a submit description and validates it. Macros must be bound with
--expdir or --param name=value, or be scheduler builtins such as $(Process).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := jobfile.Load(args[0])
		if err != nil {
			return err
		}
		if d.Params, err = jobParamMap(); err != nil {
			return err
		}
		if err := jobfile.Check(d); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		info("%s: ok", args[0])
		return nil
	},
}

var jobSubmitCmd = &cobra.Command{
	Use:   "submit <command>",
	Short: "Render the submit description for a command and queue it",
	Long: `Renders the submit description like 'job render', writes it (by default
to <expdir>/outputs/<command>.condor), creates the log directory and hands the
file to ` + jobfile.SubmitCommand + `.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := loadSettings()
		if err != nil {
			return err
		}
		root, err := projectRoot(s)
		if err != nil {
			return err
		}
		d, err := buildJob(cmd, s, args[0])
		if err != nil {
			return err
		}

		out := jobOut
		if out == "" || out == "-" {
			out = filepath.Join(jobExpdir, "outputs", args[0]+".condor")
		}
		path, err := writeJob(root, out, d)
		if err != nil {
			return err
		}

		expanded, err := d.Expanded()
		if err != nil {
			return err
		}
		for _, f := range []string{expanded.Log, expanded.Output, expanded.Error} {
			if err := ensureDir(root, filepath.Dir(f)); err != nil {
				return err
			}
		}

		cluster, err := jobfile.Submit(cmd.Context(), system.DefaultExecutor(), path, d)
		if err != nil {
			return err
		}
		info("Submitted %s as cluster %s", args[0], cluster)
		detail("description: %s", path)
		return nil
	},
}

// buildJob applies the job flags on top of the settings defaults and
// validates the result.
func buildJob(cmd *cobra.Command, s *settings.Settings, command string) (*jobfile.Descriptor, error) {
	if jobExpdir == "" {
		return nil, fmt.Errorf("--expdir is required")
	}
	d, err := s.JobFor(command, jobExpdir)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("queue") {
		d.Queue = jobQueue
	}
	if flags.Changed("cpus") {
		d.RequestCPUs = jobCPUs
	}
	if flags.Changed("gpus") {
		d.RequestGPUs = jobGPUs
	}
	if flags.Changed("memory") {
		if d.RequestMemory, err = jobfile.ParseMemory(jobMemory); err != nil {
			return nil, err
		}
	}
	for _, m := range jobExclude {
		if !contains(d.ExcludedMachines, m) {
			d.ExcludedMachines = append(d.ExcludedMachines, m)
		}
	}

	extra, err := parseParams(jobParams)
	if err != nil {
		return nil, err
	}
	for k, v := range extra {
		if k == "expdir" || k == "script" {
			return nil, fmt.Errorf("--param %s is set from the command and --expdir", k)
		}
		d.Params[k] = v
	}

	if err := jobfile.Check(d); err != nil {
		return nil, err
	}
	return d, nil
}

// jobParamMap collects --expdir and --param name=value bindings.
func jobParamMap() (map[string]string, error) {
	params, err := parseParams(jobParams)
	if err != nil {
		return nil, err
	}
	if jobExpdir != "" {
		params["expdir"] = jobExpdir
	}
	return params, nil
}

// parseParams parses name=value bindings.
func parseParams(list []string) (map[string]string, error) {
	params := make(map[string]string, len(list))
	for _, p := range list {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param '%s' — expected name=value", p)
		}
		params[k] = v
	}
	return params, nil
}

// writeJob writes d and returns the path written. Relative paths stay
// inside root; absolute ones, such as an expdir on shared storage, do not.
func writeJob(root, out string, d *jobfile.Descriptor) (string, error) {
	path, err := sandbox.WriteFile(root, out, []byte(d.String()), 0644)
	if err != nil {
		return "", fmt.Errorf("writing job file: %w", err)
	}
	return path, nil
}

func ensureDir(root, dir string) error {
	if dir == "" || strings.Contains(dir, "$(") {
		return nil
	}
	return sandbox.MkdirAll(root, dir, 0755)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func init() {
	for _, c := range []*cobra.Command{jobRenderCmd, jobSubmitCmd} {
		f := c.Flags()
		f.StringVarP(&jobOut, "out", "o", "", "file to write, relative to the project root")
		f.IntVar(&jobQueue, "queue", 1, "number of job instances to queue")
		f.IntVar(&jobCPUs, "cpus", 1, "CPUs to request")
		f.IntVar(&jobGPUs, "gpus", 0, "GPUs to request")
		f.StringVar(&jobMemory, "memory", "", "memory to request, e.g. 4000 or 8G")
		f.StringSliceVar(&jobExclude, "exclude", nil, "machines the job must not run on (repeatable)")
	}
	for _, c := range []*cobra.Command{jobRenderCmd, jobCheckCmd, jobSubmitCmd} {
		c.Flags().StringVar(&jobExpdir, "expdir", "", "experiment directory")
		c.Flags().StringArrayVar(&jobParams, "param", nil, "extra macro binding name=value (repeatable)")
	}

	jobCmd.AddCommand(jobRenderCmd, jobCheckCmd, jobSubmitCmd)
	rootCmd.AddCommand(jobCmd)
}
