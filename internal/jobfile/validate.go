package jobfile

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var macroPattern = regexp.MustCompile(`\$\(([A-Za-z_][A-Za-z0-9_.]*)\)`)

func isBuiltin(name string) bool {
	for _, b := range Builtins {
		if strings.EqualFold(b, name) {
			return true
		}
	}
	return false
}

// Macros returns the distinct macro names referenced in s, in order of
// first use.
func Macros(s string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range macroPattern.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Expand substitutes $(name) macros from params. Scheduler builtins are left
// in place; any other unbound macro is an error.
func Expand(s string, params map[string]string) (string, error) {
	var missing []string
	out := macroPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := m[2 : len(m)-1]
		if v, ok := params[name]; ok {
			return v
		}
		if !isBuiltin(name) {
			missing = append(missing, name)
		}
		return m
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("undefined macro $(%s)", missing[0])
	}
	return out, nil
}

// Expanded returns a copy of d with every path and argument expanded from
// d.Params.
func (d *Descriptor) Expanded() (*Descriptor, error) {
	out := *d
	out.Arguments = make([]string, len(d.Arguments))

	var err error
	for i, a := range d.Arguments {
		if out.Arguments[i], err = Expand(a, d.Params); err != nil {
			return nil, fmt.Errorf("arguments: %w", err)
		}
	}
	for _, f := range pathFields(&out) {
		if *f.value, err = Expand(*f.value, d.Params); err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return &out, nil
}

type pathField struct {
	name  string
	value *string
}

func pathFields(target *Descriptor) []pathField {
	return []pathField{
		{"executable", &target.Executable},
		{"log", &target.Log},
		{"output", &target.Output},
		{"error", &target.Error},
	}
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("job file validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks a descriptor for semantic correctness.
// Returns a list of validation error messages (empty if valid).
func Validate(d *Descriptor) []string {
	var errs []string

	if d.Executable == "" {
		errs = append(errs, "executable is required")
	}
	if d.RequestCPUs < 1 {
		errs = append(errs, fmt.Sprintf("request_cpus must be at least 1, got %d", d.RequestCPUs))
	}
	if d.RequestGPUs < 0 {
		errs = append(errs, fmt.Sprintf("request_gpus must not be negative, got %d", d.RequestGPUs))
	}
	if d.RequestMemory <= 0 {
		errs = append(errs, "request_memory must be positive")
	}
	for _, f := range []struct{ name, value string }{
		{"log", d.Log}, {"output", d.Output}, {"error", d.Error},
	} {
		if f.value == "" {
			errs = append(errs, fmt.Sprintf("%s is required", f.name))
		}
	}
	if d.Queue < 1 {
		errs = append(errs, fmt.Sprintf("queue count must be at least 1, got %d", d.Queue))
	}
	for _, m := range d.ExcludedMachines {
		if strings.TrimSpace(m) == "" {
			errs = append(errs, "excluded machine names must not be empty")
			break
		}
	}

	for _, name := range d.UnboundMacros() {
		errs = append(errs, fmt.Sprintf("macro $(%s) is not bound to a parameter", name))
	}

	return errs
}

// UnboundMacros lists macros in the arguments and paths that are neither
// parameters nor scheduler builtins, sorted.
func (d *Descriptor) UnboundMacros() []string {
	fields := append([]string{d.Executable, d.Log, d.Output, d.Error}, d.Arguments...)

	set := make(map[string]bool)
	for _, f := range fields {
		for _, name := range Macros(f) {
			if _, ok := d.Params[name]; !ok && !isBuiltin(name) {
				set[name] = true
			}
		}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Check validates d and wraps any failures in a *ValidationError.
func Check(d *Descriptor) error {
	if errs := Validate(d); len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
