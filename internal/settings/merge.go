package settings

import "fmt"

// Merge combines two settings layers where overlay takes precedence:
//   - version: must agree if both declare it (non-zero)
//   - scalars: a non-empty overlay value wins
//   - scripts: merged per command, overlay wins
//   - overlays: concatenated, base first
//   - job.excluded_machines: union, base order first
func Merge(base, overlay *Settings) (*Settings, error) {
	if base == nil {
		return overlay, nil
	}
	if overlay == nil {
		return base, nil
	}

	result := &Settings{}

	if err := mergeVersion(base.Version, overlay.Version, &result.Version); err != nil {
		return nil, err
	}

	result.Interpreter = pick(base.Interpreter, overlay.Interpreter)
	result.ScriptDir = pick(base.ScriptDir, overlay.ScriptDir)
	result.DataConfig = pick(base.DataConfig, overlay.DataConfig)
	result.Root = pick(base.Root, overlay.Root)
	result.Scripts = mergeScripts(base.Scripts, overlay.Scripts)

	result.Overlays = append(result.Overlays, base.Overlays...)
	result.Overlays = append(result.Overlays, overlay.Overlays...)

	result.Job = mergeJob(base.Job, overlay.Job)

	return result, nil
}

// MergeAll merges multiple layers in order (lowest precedence first).
// Returns an error if any version mismatch is found.
func MergeAll(layers []*Settings) (*Settings, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("no settings to merge")
	}

	result := layers[0]
	for i := 1; i < len(layers); i++ {
		var err error
		result, err = Merge(result, layers[i])
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func mergeVersion(base, overlay int, out *int) error {
	switch {
	case base == 0:
		*out = overlay
	case overlay == 0, base == overlay:
		*out = base
	default:
		return fmt.Errorf("settings version mismatch: one layer declares version %d, another declares version %d — all layers must agree on version", base, overlay)
	}
	return nil
}

func pick(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func mergeScripts(base, overlay map[string]string) map[string]string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}

	result := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range overlay {
		result[k] = v
	}
	return result
}

func mergeJob(base, overlay JobDefaults) JobDefaults {
	out := JobDefaults{
		Universe:   pick(base.Universe, overlay.Universe),
		Executable: pick(base.Executable, overlay.Executable),
		Memory:     pick(base.Memory, overlay.Memory),
		LogDir:     pick(base.LogDir, overlay.LogDir),
		CPUs:       base.CPUs,
		GPUs:       base.GPUs,
	}
	if overlay.CPUs != 0 {
		out.CPUs = overlay.CPUs
	}
	if overlay.GPUs != 0 {
		out.GPUs = overlay.GPUs
	}

	seen := make(map[string]bool)
	for _, m := range append(append([]string(nil), base.ExcludedMachines...), overlay.ExcludedMachines...) {
		if !seen[m] {
			seen[m] = true
			out.ExcludedMachines = append(out.ExcludedMachines, m)
		}
	}
	return out
}
