package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nabu-speech/nabu-ctl/internal/dispatch"
	"github.com/nabu-speech/nabu-ctl/internal/system"
	"github.com/nabu-speech/nabu-ctl/internal/tfrecord"
)

// resetFlags restores every flag of c and its subcommands to its default so
// runs do not leak into each other.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("NABU_NO_INHERIT", "1")

	var buf bytes.Buffer
	oldOut := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = oldOut })

	resetFlags(rootCmd)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// newProject runs init in a fresh directory and returns it.
func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if _, err := execute(t, "init", "--root", root, "--settings", filepath.Join(root, "nabu.yaml")); err != nil {
		t.Fatalf("init: %v", err)
	}
	return root
}

func projectArgs(root string, args ...string) []string {
	return append(args, "--root", root, "--settings", filepath.Join(root, "nabu.yaml"))
}

func writeProjectFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	root := newProject(t)

	for _, name := range []string{"database.conf", "nabu.yaml"} {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if len(data) == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestInitRefusesOverwrite(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "database.conf", "existing")

	_, err := execute(t, "init", "--root", root)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected 'already exists' error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "nabu.yaml")); !os.IsNotExist(err) {
		t.Error("nothing should be written when a file exists")
	}

	if _, err := execute(t, "init", "--root", root, "--force"); err != nil {
		t.Fatalf("init --force: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(root, "database.conf"))
	if string(data) == "existing" {
		t.Error("file was not overwritten")
	}
}

func TestInitTemplatesAreValid(t *testing.T) {
	var out map[string]any
	if err := yaml.Unmarshal([]byte(settingsTemplate), &out); err != nil {
		t.Fatalf("settings template is not valid YAML: %v", err)
	}

	root := newProject(t)
	out2, err := execute(t, projectArgs(root, "specs", "-o", "json")...)
	if err != nil {
		t.Fatalf("specs: %v", err)
	}
	var specs []struct {
		Name       string `json:"name"`
		Dependency string `json:"dependencies"`
	}
	if err := json.Unmarshal([]byte(out2), &specs); err != nil {
		t.Fatalf("specs output is not JSON: %v\n%s", err, out2)
	}
	if len(specs) != 2 || specs[0].Name != "trainspec" || specs[1].Dependency != "trainspec" {
		t.Errorf("specs = %+v", specs)
	}
}

func TestSpecsSelectAndText(t *testing.T) {
	root := newProject(t)

	out, err := execute(t, projectArgs(root, "specs", "trainspec")...)
	if err != nil {
		t.Fatalf("specs: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "trainspec ") {
		t.Errorf("expected header and trainspec only:\n%s", out)
	}
	if !strings.Contains(lines[0], "USED BY") || !strings.HasSuffix(strings.TrimSpace(lines[len(lines)-1]), "trainusedbins") {
		t.Errorf("dependents should be listed:\n%s", out)
	}
	if !strings.Contains(out, "100 full") {
		t.Errorf("globalvars should be resolved:\n%s", out)
	}

	if _, err := execute(t, projectArgs(root, "specs", "nope")...); err == nil || !strings.Contains(err.Error(), "unknown spec 'nope'") {
		t.Errorf("expected unknown spec error, got %v", err)
	}
	if _, err := execute(t, projectArgs(root, "specs", "-o", "xml")...); err == nil {
		t.Error("expected error for unknown output format")
	}
}

func TestSpecsWithOverlay(t *testing.T) {
	root := newProject(t)
	writeProjectFile(t, root, "local.conf", "[trainspec]\ndatafiles = /data/train/wav.scp\n")

	out, err := execute(t, projectArgs(root, "specs", "-o", "yaml", "--overlay", "local.conf", "trainspec")...)
	if err != nil {
		t.Fatalf("specs: %v", err)
	}
	if !strings.Contains(out, "datafiles: /data/train/wav.scp") {
		t.Errorf("overlay not applied:\n%s", out)
	}
}

func TestCheck(t *testing.T) {
	root := newProject(t)

	if _, err := execute(t, projectArgs(root, "check")...); err == nil || !strings.Contains(err.Error(), "check failed") {
		t.Fatalf("expected failure with missing manifests, got %v", err)
	}

	writeProjectFile(t, root, "data/train/wav.scp", "utt1 /audio/utt1.wav\nutt2 /audio/utt2.wav\n")
	out, err := execute(t, projectArgs(root, "check")...)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok        trainspec (2 entries)") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestCheckMissingDataConfig(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "nabu.yaml", "version: 1\n")

	_, err := execute(t, projectArgs(root, "check")...)
	if err == nil || !strings.Contains(err.Error(), "nabu init") {
		t.Errorf("expected hint to run init, got %v", err)
	}
}

func TestRunForwardsVerbatim(t *testing.T) {
	root := newProject(t)
	mock := system.NewMockExecutor()
	system.SetDefaultExecutor(mock)
	t.Cleanup(system.ResetDefaults)

	// Flag parsing is off, so nabu's own flags reach the script too; the
	// settings come from the working directory.
	oldWD, _ := os.Getwd()
	if err := os.Chdir(root); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWD) })

	args := []string{"run", "train", "--expdir=exp/a", "--verbose", "--settings", "x"}
	if _, err := execute(t, args...); err != nil {
		t.Fatalf("run: %v", err)
	}
	call, ok := mock.LastCall()
	if !ok {
		t.Fatal("no process started")
	}
	want := []string{"nabu/scripts/prepare_train.py", "--expdir=exp/a", "--verbose", "--settings", "x"}
	if call.Name != "python" || !cmp.Equal(want, call.Args) {
		t.Errorf("ran %s %v", call.Name, call.Args)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	mock := system.NewMockExecutor()
	system.SetDefaultExecutor(mock)
	t.Cleanup(system.ResetDefaults)

	_, err := execute(t, "run", "decode", "--expdir=x")
	var unknown *dispatch.UnknownCommandError
	if !errors.As(err, &unknown) || dispatch.ExitCode(err) != 1 {
		t.Fatalf("expected UnknownCommandError with exit 1, got %v", err)
	}
	if len(mock.Calls) != 0 {
		t.Error("no process should start")
	}
}

func TestRunExitCode(t *testing.T) {
	mock := system.NewMockExecutor()
	mock.ExitCodes["python"] = 9
	system.SetDefaultExecutor(mock)
	t.Cleanup(system.ResetDefaults)

	_, err := execute(t, "run", "test")
	if dispatch.ExitCode(err) != 9 {
		t.Errorf("exit code = %d, want 9 (err %v)", dispatch.ExitCode(err), err)
	}
}

func TestRunDryRun(t *testing.T) {
	mock := system.NewMockExecutor()
	system.SetDefaultExecutor(mock)
	t.Cleanup(system.ResetDefaults)
	t.Setenv("NABU_DRY_RUN", "1")

	out, err := execute(t, "run", "data", "--expdir", "exp/run 1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if want := "python nabu/scripts/prepare_data.py --expdir 'exp/run 1'\n"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
	if len(mock.Calls) != 0 {
		t.Error("dry run should not start a process")
	}
}

func TestJobRender(t *testing.T) {
	root := newProject(t)

	out, err := execute(t, projectArgs(root, "job", "render", "train", "--expdir", "exp/a", "--gpus", "2", "--exclude", "ctx1,ctx2")...)
	if err != nil {
		t.Fatalf("job render: %v", err)
	}
	for _, want := range []string{
		"request_gpus = 2\n",
		`Requirements = (Machine =!= "ctx1") && (Machine =!= "ctx2")`,
		`Arguments = "python -u $(script) --expdir=$(expdir)"`,
		"\nQueue\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := execute(t, projectArgs(root, "job", "render", "train", "--expdir", "exp/a", "-o", "exp/a/train.condor", "--queue", "2")...); err != nil {
		t.Fatalf("job render -o: %v", err)
	}
	if _, err := execute(t, projectArgs(root, "job", "check", filepath.Join(root, "exp/a/train.condor"), "--expdir", "exp/a", "--param", "script=s.py")...); err != nil {
		t.Errorf("job check: %v", err)
	}
	if _, err := execute(t, projectArgs(root, "job", "check", filepath.Join(root, "exp/a/train.condor"))...); err == nil {
		t.Error("job check without bindings should fail")
	}
}

func TestJobRenderErrors(t *testing.T) {
	root := newProject(t)
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"job", "render", "train"}, "--expdir is required"},
		{[]string{"job", "render", "decode", "--expdir", "e"}, "unknown command"},
		{[]string{"job", "render", "train", "--expdir", "e", "--cpus", "0"}, "request_cpus"},
		{[]string{"job", "render", "train", "--expdir", "e", "--param", "expdir=x"}, "--param expdir"},
		{[]string{"job", "render", "train", "--expdir", "e", "-o", "../escape.condor"}, "escapes"},
	}
	for _, tt := range tests {
		_, err := execute(t, projectArgs(root, tt.args...)...)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%v: expected error containing %q, got %v", tt.args, tt.want, err)
		}
	}
}

func TestJobSubmit(t *testing.T) {
	root := newProject(t)
	mock := system.NewMockExecutor()
	mock.Output["condor_submit"] = []byte("1 job(s) submitted to cluster 12.\n")
	system.SetDefaultExecutor(mock)
	t.Cleanup(system.ResetDefaults)

	out, err := execute(t, projectArgs(root, "job", "submit", "test", "--expdir", "exp/b")...)
	if err != nil {
		t.Fatalf("job submit: %v", err)
	}
	if !strings.Contains(out, "cluster 12") {
		t.Errorf("unexpected output: %s", out)
	}

	jobPath := filepath.Join(root, "exp/b/outputs/test.condor")
	if _, err := os.Stat(jobPath); err != nil {
		t.Errorf("job file not written: %v", err)
	}
	if info, err := os.Stat(filepath.Join(root, "exp/b/outputs")); err != nil || !info.IsDir() {
		t.Errorf("log directory not created: %v", err)
	}

	call, _ := mock.LastCall()
	want := []string{jobPath, "expdir=exp/b", "script=nabu/scripts/prepare_test.py"}
	if diff := cmp.Diff(want, call.Args); diff != "" {
		t.Errorf("condor_submit args (-want +got):\n%s", diff)
	}
}

func TestRecordsInspect(t *testing.T) {
	root := newProject(t)

	style, err := tfrecord.Lookup(tfrecord.BoolArrayStyle)
	if err != nil {
		t.Fatal(err)
	}
	fw, err := tfrecord.Create(filepath.Join(root, "store/train/usedbins"), "utt.tfrecord", style)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range []tfrecord.Array{
		{Shape: []int{2, 3}, Bool: []bool{true, false, true, false, true, false}},
		{Shape: []int{1, 3}, Bool: []bool{true, true, true}},
		{Shape: []int{2, 3}, Bool: make([]bool, 6)},
	} {
		if err := fw.Write(a); err != nil {
			t.Fatal(err)
		}
	}
	if err := fw.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, projectArgs(root, "records", "inspect", fw.Path(), "--spec", "trainusedbins")...)
	if err != nil {
		t.Fatalf("records inspect: %v", err)
	}
	for _, want := range []string{"records: 3", "values:  15", "[2 3]", "style:   " + tfrecord.BoolArrayStyle} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := execute(t, projectArgs(root, "records", "inspect", fw.Path(), "--style", tfrecord.FloatArrayStyle)...); err == nil {
		t.Error("decoding with the wrong style should fail")
	}
	if _, err := execute(t, projectArgs(root, "records", "inspect", fw.Path())...); err == nil {
		t.Error("expected error without --style or --spec")
	}
}

func TestInfo(t *testing.T) {
	root := newProject(t)
	out, err := execute(t, projectArgs(root, "info")...)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	for _, want := range []string{"project:", "(loaded)", "sweep   → nabu/scripts/prepare_sweep.py"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	for _, want := range []string{"nabu dev", "train, train2, test, data, sweep"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestJobSubmitSharedExpdir(t *testing.T) {
	root := newProject(t)
	mock := system.NewMockExecutor()
	mock.Output["condor_submit"] = []byte("1 job(s) submitted to cluster 3.\n")
	system.SetDefaultExecutor(mock)
	t.Cleanup(system.ResetDefaults)

	expdir := filepath.Join(t.TempDir(), "exp", "run1")
	if _, err := execute(t, projectArgs(root, "job", "submit", "train", "--expdir", expdir, "--param", "seed=3")...); err != nil {
		t.Fatalf("job submit: %v", err)
	}

	jobPath := filepath.Join(expdir, "outputs", "train.condor")
	if _, err := os.Stat(jobPath); err != nil {
		t.Errorf("job file not written: %v", err)
	}
	call, _ := mock.LastCall()
	want := []string{jobPath, "expdir=" + expdir, "script=nabu/scripts/prepare_train.py", "seed=3"}
	if diff := cmp.Diff(want, call.Args); diff != "" {
		t.Errorf("condor_submit args (-want +got):\n%s", diff)
	}
}
