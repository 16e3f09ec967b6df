package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/nabu-speech/nabu-ctl/internal/dispatch"
	"github.com/nabu-speech/nabu-ctl/internal/jobfile"
)

// Format is a settings file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf picks the encoding from the file extension; anything but .toml
// is read as YAML.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Load reads a single settings file. Layers may be partial, so the result
// is not validated; LoadHierarchical validates the merged settings.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings %s: %w", path, err)
	}
	s, err := Parse(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes settings in the given format.
func Parse(data []byte, format Format) (*Settings, error) {
	var s Settings
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), &s)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown key '%s'", undecoded[0])
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported settings format '%s'", format)
	}
	return &s, nil
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("settings validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks Settings for semantic correctness.
// Returns a list of validation error messages (empty if valid).
func Validate(s *Settings) []string {
	var errs []string

	if s.Version != DefaultVersion {
		errs = append(errs, fmt.Sprintf("unsupported version %d — only version %d is supported", s.Version, DefaultVersion))
	}

	commands := make([]string, 0, len(s.Scripts))
	for c := range s.Scripts {
		commands = append(commands, c)
	}
	sort.Strings(commands)
	for _, c := range commands {
		if !dispatch.IsCommand(c) {
			errs = append(errs, fmt.Sprintf("scripts: unknown command '%s' — must be one of: %s", c, strings.Join(dispatch.Commands, ", ")))
		} else if strings.TrimSpace(s.Scripts[c]) == "" {
			errs = append(errs, fmt.Sprintf("scripts: command '%s' has an empty script path", c))
		}
	}

	if s.DataConfig == "" {
		errs = append(errs, "'data_config' is required")
	}

	if s.Job.CPUs < 0 {
		errs = append(errs, fmt.Sprintf("job: cpus must not be negative, got %d", s.Job.CPUs))
	}
	if s.Job.GPUs < 0 {
		errs = append(errs, fmt.Sprintf("job: gpus must not be negative, got %d", s.Job.GPUs))
	}
	if s.Job.Memory != "" {
		if _, err := jobfile.ParseMemory(s.Job.Memory); err != nil {
			errs = append(errs, fmt.Sprintf("job: %v", err))
		}
	}

	return errs
}

// InterpreterCommand returns the interpreter to run scripts with, or "" when
// scripts are executed directly (interpreter: none).
func (s *Settings) InterpreterCommand() string {
	if strings.EqualFold(s.Interpreter, "none") {
		return ""
	}
	return s.Interpreter
}

// Dispatcher returns a dispatcher configured from s.
func (s *Settings) Dispatcher() *dispatch.Dispatcher {
	d := dispatch.New()
	d.Interpreter = s.InterpreterCommand()
	if s.ScriptDir != "" {
		d.ScriptDir = s.ScriptDir
	}
	d.Scripts = s.Scripts
	return d
}

// JobFor builds the descriptor that queues command for expdir with the job
// defaults applied.
func (s *Settings) JobFor(command, expdir string) (*jobfile.Descriptor, error) {
	if !dispatch.IsCommand(command) {
		return nil, &dispatch.UnknownCommandError{Command: command}
	}
	d := s.Dispatcher()
	job := jobfile.New(d.Interpreter, d.Script(command), expdir)
	if d.Interpreter == "" {
		// Drop the interpreter and its -u flag.
		job.Arguments = job.Arguments[2:]
	}
	j := s.Job
	if j.Universe != "" {
		job.Universe = j.Universe
	}
	if j.Executable != "" {
		job.Executable = j.Executable
	}
	if j.CPUs > 0 {
		job.RequestCPUs = j.CPUs
	}
	job.RequestGPUs = j.GPUs
	if j.Memory != "" {
		mb, err := jobfile.ParseMemory(j.Memory)
		if err != nil {
			return nil, fmt.Errorf("job memory: %w", err)
		}
		job.RequestMemory = mb
	}
	job.ExcludedMachines = append([]string(nil), j.ExcludedMachines...)
	if j.LogDir != "" {
		job.Log = j.LogDir + "/" + command + ".log"
		job.Output = j.LogDir + "/" + command + ".out"
		job.Error = j.LogDir + "/" + command + ".err"
	}
	return job, nil
}
