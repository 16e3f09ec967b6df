// Package nabu provides the Go library API behind the nabu command line tool.
//
// # Basic Usage
//
//	client, err := nabu.New(nabu.Options{ProjectRoot: "/path/to/recipe"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Validate the data configuration and its manifests
//	result, err := client.Check(ctx)
//
//	// Run a pipeline script
//	err = client.Run(ctx, []string{"train", "--expdir=exp/run1"}, nabu.Stdio{})
//	os.Exit(nabu.ExitCode(err))
package nabu

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nabu-speech/nabu-ctl/internal/dataconf"
	"github.com/nabu-speech/nabu-ctl/internal/jobfile"
	"github.com/nabu-speech/nabu-ctl/internal/manifest"
	"github.com/nabu-speech/nabu-ctl/internal/sandbox"
	"github.com/nabu-speech/nabu-ctl/internal/settings"
	"github.com/nabu-speech/nabu-ctl/internal/system"
	"github.com/nabu-speech/nabu-ctl/internal/tfrecord"
)

// Options configures a Client.
type Options struct {
	// ProjectRoot is the recipe directory relative paths are resolved
	// against. Default: the root from the settings, else the working
	// directory.
	ProjectRoot string

	// SettingsPath is the project settings file. Default: nabu.yaml in
	// ProjectRoot.
	SettingsPath string

	// NoInherit skips the system and user settings.
	NoInherit bool

	// Executor runs scripts and the scheduler. Default: the OS.
	Executor CommandExecutor
}

// Client loads a recipe's settings once and runs operations against it.
type Client struct {
	settings *settings.Settings
	root     string
	executor CommandExecutor
}

// New loads the settings and creates a Client.
func New(opts Options) (*Client, error) {
	settingsPath := opts.SettingsPath
	if settingsPath == "" && opts.ProjectRoot != "" {
		settingsPath = settings.FindInDir(opts.ProjectRoot)
	}
	s, _, err := settings.LoadHierarchical(settings.DiscoverOptions{
		ProjectPath: settingsPath,
		NoInherit:   opts.NoInherit,
	})
	if err != nil {
		return nil, err
	}

	root := opts.ProjectRoot
	if root == "" {
		root = s.Root
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	executor := opts.Executor
	if executor == nil {
		executor = system.DefaultExecutor()
	}
	return &Client{settings: s, root: root, executor: executor}, nil
}

// Settings returns the merged settings the client uses.
func (c *Client) Settings() *Settings {
	return c.settings
}

func (c *Client) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.root, p)
}

// LoadConfig reads the data configuration with the settings overlays.
func (c *Client) LoadConfig() (*Config, error) {
	overlays := make([]string, len(c.settings.Overlays))
	for i, o := range c.settings.Overlays {
		overlays[i] = c.path(o)
	}
	return dataconf.Load(c.path(c.settings.DataConfig), overlays...)
}

// Specs returns the named specs and their dependencies, or every spec when
// no name is given, in dependency order.
func (c *Client) Specs(names ...string) ([]Spec, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return dataconf.Order(cfg)
	}
	return dataconf.Select(cfg, names)
}

// Check validates the data configuration and the manifests of its specs.
func (c *Client) Check(ctx context.Context) (*CheckResult, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}
	return manifest.Check(ctx, cfg, c.root)
}

// Run dispatches args to a pipeline script. args[0] is the command.
func (c *Client) Run(ctx context.Context, args []string, stdio Stdio) error {
	d := c.settings.Dispatcher()
	d.Executor = c.executor
	d.Stdio = stdio
	return d.Run(ctx, args)
}

// Job builds and validates the batch job description for command.
func (c *Client) Job(command, expdir string) (*Job, error) {
	job, err := c.settings.JobFor(command, expdir)
	if err != nil {
		return nil, err
	}
	if err := jobfile.Check(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Submit writes the job description for command to
// <expdir>/outputs/<command>.condor, creates the log directories and queues
// it. It returns the cluster id. A relative expdir lives under the project
// root; an absolute one, such as shared cluster storage, is used as given.
func (c *Client) Submit(ctx context.Context, command, expdir string) (string, error) {
	job, err := c.Job(command, expdir)
	if err != nil {
		return "", err
	}
	out := filepath.Join(expdir, "outputs", command+".condor")
	path, err := sandbox.WriteFile(c.root, out, []byte(job.String()), 0644)
	if err != nil {
		return "", fmt.Errorf("writing job file: %w", err)
	}

	expanded, err := job.Expanded()
	if err != nil {
		return "", err
	}
	for _, f := range []string{expanded.Log, expanded.Output, expanded.Error} {
		dir := filepath.Dir(f)
		if strings.Contains(dir, "$(") {
			continue
		}
		if err := sandbox.MkdirAll(c.root, dir, 0755); err != nil {
			return "", err
		}
	}
	return jobfile.Submit(ctx, c.executor, path, job)
}

// storeSpec returns the spec name with its store directory resolved against
// the project root and its writer style.
func (c *Client) storeSpec(name string) (string, tfrecord.Style, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return "", nil, err
	}
	spec, ok := cfg.Lookup(name)
	if !ok {
		return "", nil, fmt.Errorf("unknown spec '%s'", name)
	}
	if !spec.Preprocess {
		return "", nil, fmt.Errorf("spec '%s' is not preprocessed", name)
	}
	style, err := tfrecord.Lookup(spec.WriterStyle)
	if err != nil {
		return "", nil, fmt.Errorf("spec '%s': %w", name, err)
	}
	return c.path(spec.StoreDir), style, nil
}

// RecordWriter opens a record file called file in the store directory of
// the named spec, encoding arrays in the spec's writer style. The file
// appears when the writer is closed.
func (c *Client) RecordWriter(spec, file string) (*RecordWriter, error) {
	dir, style, err := c.storeSpec(spec)
	if err != nil {
		return nil, err
	}
	return tfrecord.Create(dir, file, style)
}

// ReadRecords decodes the record file called file from the store directory
// of the named spec.
func (c *Client) ReadRecords(spec, file string) ([]Array, error) {
	dir, style, err := c.storeSpec(spec)
	if err != nil {
		return nil, err
	}
	path, err := sandbox.ValidatePath(dir, file)
	if err != nil {
		return nil, err
	}
	return tfrecord.ReadFile(path, style)
}
