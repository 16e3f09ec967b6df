package manifest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/nabu-speech/nabu-ctl/internal/dataconf"
)

// SpecStatus is the manifest state of one spec.
type SpecStatus struct {
	Spec    string
	Path    string
	Entries int
	Missing bool
	Err     error
}

// CheckResult holds the outcome of checking every manifest of a data config.
type CheckResult struct {
	Specs    []SpecStatus
	Warnings []string
	Errors   []string
}

// OK reports whether the check found no errors. Warnings do not count.
func (r *CheckResult) OK() bool {
	return len(r.Errors) == 0
}

// Check loads the manifest of every spec in cfg, in dependency order.
// Relative datafiles paths are resolved against root. A missing manifest is
// an error unless the spec is optional. A dependent spec listing keys its
// dependency lacks produces a warning.
func Check(ctx context.Context, cfg *dataconf.Config, root string) (*CheckResult, error) {
	ordered, err := dataconf.Order(cfg)
	if err != nil {
		return nil, err
	}

	result := &CheckResult{}
	loaded := make(map[string]*Manifest, len(ordered))

	for _, spec := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := spec.DataFiles
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		status := SpecStatus{Spec: spec.Name, Path: path}

		m, err := Load(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			status.Missing = true
			if spec.Optional {
				result.Warnings = append(result.Warnings, fmt.Sprintf("spec '%s': optional manifest %s not found", spec.Name, path))
			} else {
				status.Err = err
				result.Errors = append(result.Errors, fmt.Sprintf("spec '%s': manifest %s not found", spec.Name, path))
			}
		case err != nil:
			status.Err = err
			result.Errors = append(result.Errors, fmt.Sprintf("spec '%s': %s", spec.Name, err))
		default:
			status.Entries = m.Len()
			loaded[spec.Name] = m
			if m.Len() == 0 {
				result.Warnings = append(result.Warnings, fmt.Sprintf("spec '%s': manifest %s is empty", spec.Name, path))
			}
		}

		if m != nil && spec.Dependency != "" {
			if dep, ok := loaded[spec.Dependency]; ok {
				if missing := m.Missing(dep); len(missing) > 0 {
					result.Warnings = append(result.Warnings, fmt.Sprintf("spec '%s': %d key(s) not in dependency '%s' (first: %s)", spec.Name, len(missing), spec.Dependency, missing[0]))
				}
			}
		}

		result.Specs = append(result.Specs, status)
	}

	return result, nil
}
