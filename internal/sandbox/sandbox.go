// Package sandbox confines the files the tool writes to a project root.
package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// ErrEscape is returned for paths that leave the project root.
var ErrEscape = errors.New("path escapes the project root")

// ValidatePath resolves relPath inside projectRoot. Absolute paths and paths
// that climb out of the root are rejected; symlinks are resolved as if
// projectRoot were the filesystem root, so a link cannot lead outside it.
func ValidatePath(projectRoot, relPath string) (string, error) {
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", fmt.Errorf("resolving project root: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolving project root symlinks: %w", err)
	}

	clean := filepath.Clean(relPath)
	if clean != "." && !filepath.IsLocal(clean) {
		return "", fmt.Errorf("'%s': %w", relPath, ErrEscape)
	}

	resolved, err := securejoin.SecureJoin(realRoot, clean)
	if err != nil {
		return "", fmt.Errorf("resolving '%s': %w", relPath, err)
	}
	return resolved, nil
}

// Exists reports whether relPath exists inside projectRoot.
func Exists(projectRoot, relPath string) (bool, error) {
	resolved, err := ValidatePath(projectRoot, relPath)
	if err != nil {
		return false, err
	}
	_, err = os.Lstat(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// SafeWrite atomically writes content to relPath inside projectRoot,
// creating parent directories as needed.
func SafeWrite(projectRoot, relPath string, content []byte, perm os.FileMode) error {
	resolved, err := ValidatePath(projectRoot, relPath)
	if err != nil {
		return err
	}
	return writeAtomic(resolved, content, perm)
}

// WriteFile writes content atomically and returns the path written. A
// relative path is confined to projectRoot like SafeWrite; an absolute path,
// such as an experiment directory on shared storage, is written as given.
func WriteFile(projectRoot, path string, content []byte, perm os.FileMode) (string, error) {
	if filepath.IsAbs(path) {
		path = filepath.Clean(path)
		return path, writeAtomic(path, content, perm)
	}
	resolved, err := ValidatePath(projectRoot, path)
	if err != nil {
		return "", err
	}
	return filepath.Join(projectRoot, filepath.Clean(path)), writeAtomic(resolved, content, perm)
}

func writeAtomic(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	// Same directory as the target so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(dir, ".nabu-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}

	success = true
	return nil
}

// SafeMkdirAll creates relPath and its parents inside projectRoot.
func SafeMkdirAll(projectRoot, relPath string, perm os.FileMode) error {
	resolved, err := ValidatePath(projectRoot, relPath)
	if err != nil {
		return err
	}
	return os.MkdirAll(resolved, perm)
}

// MkdirAll creates dir and its parents. Like WriteFile, a relative dir is
// confined to projectRoot and an absolute one is created as given.
func MkdirAll(projectRoot, dir string, perm os.FileMode) error {
	if filepath.IsAbs(dir) {
		return os.MkdirAll(dir, perm)
	}
	return SafeMkdirAll(projectRoot, dir, perm)
}
