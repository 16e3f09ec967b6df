// Package settings loads the tool's own nabu.yaml (or nabu.toml) settings,
// layered system, user and project.
package settings

import (
	"github.com/nabu-speech/nabu-ctl/internal/dispatch"
	"github.com/nabu-speech/nabu-ctl/internal/jobfile"
)

// Settings configures how pipeline scripts are located, run and queued.
type Settings struct {
	Version     int               `yaml:"version" toml:"version" json:"version"`
	Interpreter string            `yaml:"interpreter,omitempty" toml:"interpreter" json:"interpreter,omitempty"`
	ScriptDir   string            `yaml:"script_dir,omitempty" toml:"script_dir" json:"script_dir,omitempty"`
	Scripts     map[string]string `yaml:"scripts,omitempty" toml:"scripts" json:"scripts,omitempty"`

	// DataConfig is the data configuration file; Overlays are applied on
	// top of it in order.
	DataConfig string   `yaml:"data_config,omitempty" toml:"data_config" json:"data_config,omitempty"`
	Overlays   []string `yaml:"overlays,omitempty" toml:"overlays" json:"overlays,omitempty"`

	// Root is the directory data file manifests are resolved against.
	Root string `yaml:"root,omitempty" toml:"root" json:"root,omitempty"`

	Job JobDefaults `yaml:"job,omitempty" toml:"job" json:"job,omitempty"`
}

// JobDefaults seed the batch job descriptors `nabu job` renders.
type JobDefaults struct {
	Universe         string   `yaml:"universe,omitempty" toml:"universe" json:"universe,omitempty"`
	Executable       string   `yaml:"executable,omitempty" toml:"executable" json:"executable,omitempty"`
	CPUs             int      `yaml:"cpus,omitempty" toml:"cpus" json:"cpus,omitempty"`
	GPUs             int      `yaml:"gpus,omitempty" toml:"gpus" json:"gpus,omitempty"`
	Memory           string   `yaml:"memory,omitempty" toml:"memory" json:"memory,omitempty"`
	ExcludedMachines []string `yaml:"excluded_machines,omitempty" toml:"excluded_machines" json:"excluded_machines,omitempty"`
	LogDir           string   `yaml:"log_dir,omitempty" toml:"log_dir" json:"log_dir,omitempty"`
}

// Defaults for values no layer sets.
const (
	DefaultVersion    = 1
	DefaultDataConfig = "database.conf"
)

// Default returns the settings used when no file is found. They form the
// lowest layer of every merge.
func Default() *Settings {
	return &Settings{
		Version:     DefaultVersion,
		Interpreter: dispatch.DefaultInterpreter,
		ScriptDir:   dispatch.DefaultScriptDir,
		DataConfig:  DefaultDataConfig,
		Root:        ".",
		Job: JobDefaults{
			Universe:   jobfile.DefaultUniverse,
			Executable: jobfile.DefaultExecutable,
			CPUs:       1,
			Memory:     "2000",
			LogDir:     jobfile.DefaultLogDir,
		},
	}
}
