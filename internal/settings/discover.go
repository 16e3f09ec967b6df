package settings

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	settingsBaseName = "nabu"
	settingsDirName  = "nabu"
)

// FileNames are the settings file names looked for in a directory, in
// order of preference.
var FileNames = []string{settingsBaseName + ".yaml", settingsBaseName + ".yml", settingsBaseName + ".toml"}

// Level is the precedence level of a settings file.
type Level string

const (
	LevelSystem  Level = "system"
	LevelUser    Level = "user"
	LevelProject Level = "project"
)

// LayerInfo describes a discovered settings file and its load status.
type LayerInfo struct {
	Err    error // non-nil if the file exists but failed to load
	Path   string
	Level  Level
	Loaded bool
}

// DiscoverOptions controls where settings files are looked for.
type DiscoverOptions struct {
	// ProjectPath is the project settings file. Empty means the first of
	// FileNames found in the working directory.
	ProjectPath string

	// SystemPath and UserPath override the OS defaults. Set to a
	// nonexistent path to skip.
	SystemPath string
	UserPath   string

	// NoInherit loads only the project layer.
	NoInherit bool
}

// DiscoverPaths returns the settings files to check, from lowest
// precedence (system) to highest (project). Paths are deduplicated by
// absolute path.
func DiscoverPaths(opts DiscoverOptions) []LayerInfo {
	var layers []LayerInfo
	seen := make(map[string]bool)

	addLayer := func(level Level, path string) {
		if path == "" {
			return
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if seen[abs] {
			return
		}
		seen[abs] = true
		layers = append(layers, LayerInfo{Path: path, Level: level})
	}

	if !opts.NoInherit && !EnvNoInherit() {
		sysPath := opts.SystemPath
		if sysPath == "" {
			sysPath = defaultSystemPath()
		}
		addLayer(LevelSystem, sysPath)

		userPath := opts.UserPath
		if userPath == "" {
			userPath = defaultUserPath()
		}
		addLayer(LevelUser, userPath)
	}

	projectPath := opts.ProjectPath
	if projectPath == "" {
		projectPath = FindInDir(".")
	}
	addLayer(LevelProject, projectPath)

	return layers
}

// FindInDir returns the first of FileNames present in dir, or the YAML name
// when none exists.
func FindInDir(dir string) string {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dir, FileNames[0])
}

func defaultSystemPath() string {
	switch runtime.GOOS {
	case "windows":
		pd := os.Getenv("ProgramData")
		if pd == "" {
			pd = `C:\ProgramData`
		}
		return FindInDir(filepath.Join(pd, settingsDirName))
	default:
		return FindInDir(filepath.Join("/etc", settingsDirName))
	}
}

func defaultUserPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return FindInDir(filepath.Join(dir, settingsDirName))
}

// EnvNoInherit returns true if NABU_NO_INHERIT is set to "1" or "true".
func EnvNoInherit() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("NABU_NO_INHERIT")))
	return v == "1" || v == "true"
}

// LoadHierarchical loads every discovered layer that exists and merges them
// over Default. Missing files are skipped. The merged result is validated.
// The returned layers report what was found, even on error.
func LoadHierarchical(opts DiscoverOptions) (*Settings, []LayerInfo, error) {
	layers := DiscoverPaths(opts)
	stack := []*Settings{Default()}

	for i := range layers {
		l := &layers[i]
		s, err := Load(l.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("settings layer not found", "level", l.Level, "path", l.Path)
				continue
			}
			l.Err = err
			return nil, layers, err
		}
		l.Loaded = true
		slog.Debug("settings layer loaded", "level", l.Level, "path", l.Path)
		stack = append(stack, s)
	}

	merged, err := MergeAll(stack)
	if err != nil {
		return nil, layers, err
	}
	if errs := Validate(merged); len(errs) > 0 {
		return nil, layers, &ValidationError{Errors: errs}
	}
	return merged, layers, nil
}
