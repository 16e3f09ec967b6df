package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func realRoot(t *testing.T, root string) string {
	t.Helper()
	r, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestValidatePathWithinRoot(t *testing.T) {
	root := t.TempDir()

	resolved, err := ValidatePath(root, "exp/run1/job.condor")
	if err != nil {
		t.Fatalf("ValidatePath: %v", err)
	}
	if want := filepath.Join(realRoot(t, root), "exp/run1/job.condor"); resolved != want {
		t.Errorf("got %q, want %q", resolved, want)
	}
}

func TestValidatePathRootItself(t *testing.T) {
	root := t.TempDir()
	resolved, err := ValidatePath(root, ".")
	if err != nil {
		t.Fatalf("ValidatePath: %v", err)
	}
	if resolved != realRoot(t, root) {
		t.Errorf("got %q, want %q", resolved, realRoot(t, root))
	}
}

func TestValidatePathRejectsEscapes(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"../escape.txt", "exp/../../escape.txt", "a/b/c/../../../../escape.txt", "/etc/passwd"} {
		_, err := ValidatePath(root, p)
		if !errors.Is(err, ErrEscape) {
			t.Errorf("ValidatePath(%q): expected ErrEscape, got %v", p, err)
		}
	}
}

func TestValidatePathAllowsInnerDotDot(t *testing.T) {
	root := t.TempDir()
	resolved, err := ValidatePath(root, "exp/a/../b/file")
	if err != nil {
		t.Fatalf("ValidatePath: %v", err)
	}
	if want := filepath.Join(realRoot(t, root), "exp/b/file"); resolved != want {
		t.Errorf("got %q, want %q", resolved, want)
	}
}

func TestValidatePathSymlinkStaysInside(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test not reliable on Windows")
	}

	root := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "escape-link")); err != nil {
		t.Fatalf("creating symlink: %v", err)
	}

	resolved, err := ValidatePath(root, "escape-link/file.txt")
	if err != nil {
		t.Fatalf("ValidatePath: %v", err)
	}
	if !strings.HasPrefix(resolved, realRoot(t, root)+string(filepath.Separator)) {
		t.Errorf("symlink resolved outside the root: %s", resolved)
	}
}

func TestValidatePathAllowsInternalSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test not reliable on Windows")
	}

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "real"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("real", filepath.Join(root, "link")); err != nil {
		t.Fatal(err)
	}

	resolved, err := ValidatePath(root, "link/file.txt")
	if err != nil {
		t.Fatalf("ValidatePath: %v", err)
	}
	if want := filepath.Join(realRoot(t, root), "real", "file.txt"); resolved != want {
		t.Errorf("got %q, want %q", resolved, want)
	}
}

func TestValidatePathInvalidRoot(t *testing.T) {
	if _, err := ValidatePath("/nonexistent-root-dir-12345", "file.txt"); err == nil {
		t.Fatal("expected error for non-existent root")
	}
}

func TestSafeWrite(t *testing.T) {
	root := t.TempDir()

	if err := SafeWrite(root, "config/database.conf", []byte("original"), 0644); err != nil {
		t.Fatalf("SafeWrite: %v", err)
	}
	if err := SafeWrite(root, "config/database.conf", []byte("updated"), 0644); err != nil {
		t.Fatalf("SafeWrite: %v", err)
	}

	path := filepath.Join(realRoot(t, root), "config/database.conf")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "updated" {
		t.Errorf("content = %q, want %q", data, "updated")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestSafeWritePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission test not reliable on Windows")
	}

	root := t.TempDir()
	if err := SafeWrite(root, "job.condor", []byte("Queue\n"), 0600); err != nil {
		t.Fatalf("SafeWrite: %v", err)
	}
	info, err := os.Stat(filepath.Join(realRoot(t, root), "job.condor"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected permission 0600, got %04o", perm)
	}
}

func TestSafeWriteRejectsEscape(t *testing.T) {
	root := t.TempDir()
	if err := SafeWrite(root, "../escape.txt", []byte("bad"), 0644); !errors.Is(err, ErrEscape) {
		t.Fatalf("expected ErrEscape, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "escape.txt")); !os.IsNotExist(err) {
		t.Error("file written outside the root")
	}
}

func TestExists(t *testing.T) {
	root := t.TempDir()
	ok, err := Exists(root, "nabu.yaml")
	if err != nil || ok {
		t.Fatalf("Exists before write = %v, %v", ok, err)
	}
	if err := SafeWrite(root, "nabu.yaml", []byte("version: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	ok, err = Exists(root, "nabu.yaml")
	if err != nil || !ok {
		t.Fatalf("Exists after write = %v, %v", ok, err)
	}
	if _, err := Exists(root, "../x"); !errors.Is(err, ErrEscape) {
		t.Errorf("expected ErrEscape, got %v", err)
	}
}

func TestSafeMkdirAll(t *testing.T) {
	root := t.TempDir()
	if err := SafeMkdirAll(root, "exp/run1/outputs", 0755); err != nil {
		t.Fatalf("SafeMkdirAll: %v", err)
	}
	info, err := os.Stat(filepath.Join(realRoot(t, root), "exp/run1/outputs"))
	if err != nil || !info.IsDir() {
		t.Fatalf("directory should exist: %v", err)
	}
	if err := SafeMkdirAll(root, "../escape", 0755); !errors.Is(err, ErrEscape) {
		t.Errorf("expected ErrEscape, got %v", err)
	}
}

func TestWriteFileAbsoluteOutsideRoot(t *testing.T) {
	root := t.TempDir()
	shared := filepath.Join(t.TempDir(), "exp", "run1", "outputs", "train.condor")

	got, err := WriteFile(root, shared, []byte("Queue\n"), 0644)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if got != shared {
		t.Errorf("path = %q, want %q", got, shared)
	}
	data, err := os.ReadFile(shared)
	if err != nil || string(data) != "Queue\n" {
		t.Fatalf("read back = %q, %v", data, err)
	}
}

func TestWriteFileRelativeStaysConfined(t *testing.T) {
	root := t.TempDir()

	got, err := WriteFile(root, "exp/a/train.condor", []byte("Queue\n"), 0644)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if want := filepath.Join(root, "exp/a/train.condor"); got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
	if _, err := WriteFile(root, "../escape.condor", []byte("x"), 0644); !errors.Is(err, ErrEscape) {
		t.Errorf("expected ErrEscape, got %v", err)
	}
}

func TestMkdirAllAbsolute(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(t.TempDir(), "shared", "outputs")
	if err := MkdirAll(root, dir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("directory should exist: %v", err)
	}
	if err := MkdirAll(root, "../escape", 0755); !errors.Is(err, ErrEscape) {
		t.Errorf("expected ErrEscape, got %v", err)
	}
}
