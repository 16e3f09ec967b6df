package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nabu-speech/nabu-ctl/internal/dataconf"
	"github.com/nabu-speech/nabu-ctl/internal/settings"
)

// stdout receives command output; tests replace it.
var stdout io.Writer = os.Stdout

// loadSettings reads the layered settings. An explicitly named settings
// file must exist.
func loadSettings() (*settings.Settings, []settings.LayerInfo, error) {
	if settingsPath != "" {
		if _, err := os.Stat(settingsPath); err != nil {
			return nil, nil, fmt.Errorf("loading settings %s: %w", settingsPath, err)
		}
	}
	s, layers, err := settings.LoadHierarchical(settings.DiscoverOptions{ProjectPath: settingsPath})
	if err != nil {
		return nil, layers, fmt.Errorf("loading settings: %w", err)
	}
	return s, layers, nil
}

// dataConfigPath returns the data configuration to load. Relative paths
// are resolved against the project root.
func dataConfigPath(s *settings.Settings) string {
	path := dataConfig
	if path == "" {
		path = s.DataConfig
	}
	return underRoot(s, path)
}

// overlayPaths returns the settings overlays followed by the --overlay flags.
func overlayPaths(s *settings.Settings) []string {
	var out []string
	for _, p := range append(append([]string(nil), s.Overlays...), overlays...) {
		out = append(out, underRoot(s, p))
	}
	return out
}

func underRoot(s *settings.Settings, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	root, err := projectRoot(s)
	if err != nil {
		return path
	}
	return filepath.Join(root, path)
}

// loadDataConfig reads and validates the data configuration with its
// overlays applied.
func loadDataConfig(s *settings.Settings) (*dataconf.Config, error) {
	path := dataConfigPath(s)
	cfg, err := dataconf.Load(path, overlayPaths(s)...)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("data config %s not found (run 'nabu init' to create one): %w", path, err)
		}
		return nil, err
	}
	return cfg, nil
}

// projectRoot returns the directory relative paths are resolved against.
func projectRoot(s *settings.Settings) (string, error) {
	root := rootDir
	if root == "" {
		root = s.Root
	}
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving project root: %w", err)
	}
	return abs, nil
}

// info prints a line unless quiet mode is active.
func info(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(stdout, format+"\n", args...)
	}
}

// detail prints a line only in verbose mode.
func detail(format string, args ...any) {
	if verbose {
		fmt.Fprintf(stdout, "  "+format+"\n", args...)
	}
}

// errorf prints an error message to stderr.
func errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
