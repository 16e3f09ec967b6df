// Package jobfile renders and parses HTCondor-style submit descriptors used
// to queue pipeline scripts on a batch cluster.
package jobfile

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Defaults applied by New.
const (
	DefaultUniverse   = "vanilla"
	DefaultExecutable = "nabu/computing/condor/create_environment.sh"
	DefaultLogDir     = "$(expdir)/outputs"
)

// Builtins are macros the scheduler defines for every job.
var Builtins = []string{"Process", "Cluster"}

// Descriptor is one submit description.
type Descriptor struct {
	Universe         string            `yaml:"universe" json:"universe"`
	Executable       string            `yaml:"executable" json:"executable"`
	Arguments        []string          `yaml:"arguments" json:"arguments"`
	RequestCPUs      int               `yaml:"request_cpus" json:"request_cpus"`
	RequestGPUs      int               `yaml:"request_gpus,omitempty" json:"request_gpus,omitempty"`
	RequestMemory    int               `yaml:"request_memory" json:"request_memory"`
	ExcludedMachines []string          `yaml:"excluded_machines,omitempty" json:"excluded_machines,omitempty"`
	Log              string            `yaml:"log" json:"log"`
	Output           string            `yaml:"output" json:"output"`
	Error            string            `yaml:"error" json:"error"`
	Params           map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
	Queue            int               `yaml:"queue" json:"queue"`

	// Constraints are further Requirements clauses, joined after the exclusions.
	Constraints []string `yaml:"constraints,omitempty" json:"constraints,omitempty"`

	// Extra holds directives with no dedicated field, keyed as written.
	Extra map[string]string `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// New returns a descriptor that runs script through interpreter inside the
// recipe environment, logging under expdir.
func New(interpreter, script, expdir string) *Descriptor {
	return &Descriptor{
		Universe:      DefaultUniverse,
		Executable:    DefaultExecutable,
		Arguments:     []string{interpreter, "-u", "$(script)", "--expdir=$(expdir)"},
		RequestCPUs:   1,
		RequestMemory: 2000,
		Log:           DefaultLogDir + "/main.log",
		Output:        DefaultLogDir + "/main.out",
		Error:         DefaultLogDir + "/main.err",
		Params:        map[string]string{"expdir": expdir, "script": script},
		Queue:         1,
	}
}

// Requirements builds the Requirements expression, or "" when there is
// nothing to require.
func (d *Descriptor) Requirements() string {
	clauses := make([]string, 0, len(d.ExcludedMachines)+len(d.Constraints))
	for _, m := range d.ExcludedMachines {
		clauses = append(clauses, fmt.Sprintf("(Machine =!= %s)", strconv.Quote(m)))
	}
	for _, c := range d.Constraints {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !enclosed(c) {
			c = "(" + c + ")"
		}
		clauses = append(clauses, c)
	}
	return strings.Join(clauses, " && ")
}

// ArgumentString renders Arguments in the scheduler's quoted form: the list
// is wrapped in double quotes, arguments holding whitespace or a single quote
// are single-quoted, and embedded quotes are doubled.
func (d *Descriptor) ArgumentString() string {
	quoted := make([]string, len(d.Arguments))
	for i, a := range d.Arguments {
		if a == "" || strings.ContainsAny(a, " \t'") {
			a = "'" + strings.ReplaceAll(a, "'", "''") + "'"
		}
		quoted[i] = a
	}
	return `"` + strings.ReplaceAll(strings.Join(quoted, " "), `"`, `""`) + `"`
}

// Render writes the descriptor. Macros are written unexpanded; parameters
// are bound when the file is submitted.
func (d *Descriptor) Render(w io.Writer) error {
	bw := bufio.NewWriter(w)

	line := func(key, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(bw, "%s = %s\n", key, value)
	}

	line("Universe", d.Universe)
	line("Executable", d.Executable)
	if len(d.Arguments) > 0 {
		line("Arguments", d.ArgumentString())
	}
	line("Requirements", d.Requirements())
	line("request_cpus", strconv.Itoa(d.RequestCPUs))
	if d.RequestGPUs > 0 {
		line("request_gpus", strconv.Itoa(d.RequestGPUs))
	}
	if d.RequestMemory > 0 {
		line("request_memory", strconv.Itoa(d.RequestMemory))
	}
	line("Log", d.Log)
	line("Output", d.Output)
	line("Error", d.Error)

	keys := make([]string, 0, len(d.Extra))
	for k := range d.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line(k, d.Extra[k])
	}

	if d.Queue > 1 {
		fmt.Fprintf(bw, "\nQueue %d\n", d.Queue)
	} else {
		fmt.Fprint(bw, "\nQueue\n")
	}
	return bw.Flush()
}

// String returns the rendered descriptor.
func (d *Descriptor) String() string {
	var b strings.Builder
	_ = d.Render(&b)
	return b.String()
}

// SubmitArgs returns the parameter bindings in the form condor_submit
// accepts on its command line, sorted by name.
func (d *Descriptor) SubmitArgs() []string {
	names := make([]string, 0, len(d.Params))
	for k := range d.Params {
		names = append(names, k)
	}
	sort.Strings(names)
	args := make([]string, 0, len(names))
	for _, k := range names {
		args = append(args, k+"="+d.Params[k])
	}
	return args
}
