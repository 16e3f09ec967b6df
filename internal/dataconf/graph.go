package dataconf

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle between specs. Path starts and ends
// with the same spec.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// Order returns the specs of cfg with every spec placed after the spec it
// depends on. Independent specs keep their file order.
func Order(cfg *Config) ([]Spec, error) {
	return walk(cfg.Specs, true)
}

// Select returns the named specs together with everything they depend on,
// in dependency order.
func Select(cfg *Config, names []string) ([]Spec, error) {
	ordered, err := Order(cfg)
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		s, ok := cfg.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown spec '%s' — known specs: %s", n, strings.Join(cfg.Names(), ", "))
		}
		for {
			want[s.Name] = true
			if s.Dependency == "" || want[s.Dependency] {
				break
			}
			s, _ = cfg.Lookup(s.Dependency)
		}
	}

	var out []Spec
	for _, s := range ordered {
		if want[s.Name] {
			out = append(out, s)
		}
	}
	return out, nil
}

// walk orders specs depth-first, dependencies before dependents. With strict
// unset, dependencies on unknown specs are ignored so cycles can still be
// found in an otherwise invalid config.
func walk(specs []Spec, strict bool) ([]Spec, error) {
	const (
		unvisited = iota
		visiting
		visited
	)

	index := make(map[string]int, len(specs))
	for i, s := range specs {
		if _, dup := index[s.Name]; !dup {
			index[s.Name] = i
		}
	}

	state := make([]int, len(specs))
	out := make([]Spec, 0, len(specs))
	var stack []string

	var visit func(i int) error
	visit = func(i int) error {
		name := specs[i].Name
		switch state[i] {
		case visited:
			return nil
		case visiting:
			start := 0
			for j, n := range stack {
				if n == name {
					start = j
					break
				}
			}
			path := append(append([]string{}, stack[start:]...), name)
			return &CycleError{Path: path}
		}

		state[i] = visiting
		stack = append(stack, name)

		if dep := specs[i].Dependency; dep != "" {
			j, ok := index[dep]
			switch {
			case ok:
				if err := visit(j); err != nil {
					return err
				}
			case strict:
				return fmt.Errorf("spec '%s': depends on undefined spec '%s'", name, dep)
			}
		}

		stack = stack[:len(stack)-1]
		state[i] = visited
		out = append(out, specs[i])
		return nil
	}

	for i := range specs {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return out, nil
}
