// Package dispatch maps pipeline sub-commands onto the scripts that
// implement them and runs those scripts with the caller's arguments.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/nabu-speech/nabu-ctl/internal/system"
)

// Commands is the fixed set of sub-commands, in display order.
var Commands = []string{"train", "train2", "test", "data", "sweep"}

// Defaults for the script layout of a recipe checkout.
const (
	DefaultInterpreter = "python"
	DefaultScriptDir   = "nabu/scripts"
)

// IsCommand reports whether name is one of Commands.
func IsCommand(name string) bool {
	for _, c := range Commands {
		if c == name {
			return true
		}
	}
	return false
}

// DefaultScript returns the script path command runs when nothing overrides it.
func DefaultScript(scriptDir, command string) string {
	return path.Join(scriptDir, "prepare_"+command+".py")
}

// UnknownCommandError is returned when the first argument is not one of
// Commands. No process is started.
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string {
	expected := strings.Join(Commands, ", ")
	if e.Command == "" {
		return fmt.Sprintf("missing command (expected one of %s)", expected)
	}
	return fmt.Sprintf("unknown command: %q (expected one of %s)", e.Command, expected)
}

// ExitCode is always 1.
func (e *UnknownCommandError) ExitCode() int {
	return 1
}

// ExitError reports that the dispatched script exited with a non-zero status.
type ExitError struct {
	Command string
	Code    int
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: script exited with status %d", e.Command, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the script's exit status.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// ExitCode maps an error returned by Run to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coder system.ExitCoder
	if errors.As(err, &coder) && coder.ExitCode() > 0 {
		return coder.ExitCode()
	}
	return 1
}

// Invocation is the process a command resolves to.
type Invocation struct {
	Command string
	Name    string
	Args    []string
}

// String renders the invocation as a shell command line.
func (inv Invocation) String() string {
	return shellquote.Join(append([]string{inv.Name}, inv.Args...)...)
}

// Dispatcher runs pipeline scripts. The zero value runs scripts from
// DefaultScriptDir directly, without an interpreter.
type Dispatcher struct {
	// Interpreter runs the script; empty executes the script itself.
	Interpreter string
	// ScriptDir holds the default prepare_<command>.py scripts.
	ScriptDir string
	// Scripts overrides the script path per command.
	Scripts map[string]string

	Executor system.CommandExecutor
	Stdio    system.Stdio
	Logger   *slog.Logger
}

// New returns a Dispatcher running scripts from DefaultScriptDir with
// DefaultInterpreter on the current process's streams.
func New() *Dispatcher {
	return &Dispatcher{
		Interpreter: DefaultInterpreter,
		ScriptDir:   DefaultScriptDir,
		Executor:    system.DefaultExecutor(),
		Stdio:       system.ProcessStdio(),
	}
}

// Script returns the script path for command.
func (d *Dispatcher) Script(command string) string {
	if s, ok := d.Scripts[command]; ok && s != "" {
		return s
	}
	dir := d.ScriptDir
	if dir == "" {
		dir = DefaultScriptDir
	}
	return DefaultScript(dir, command)
}

// Resolve returns the invocation for args without running it. args[0] is
// the command; the rest is passed through unchanged.
func (d *Dispatcher) Resolve(args []string) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{}, &UnknownCommandError{}
	}
	command := args[0]
	if !IsCommand(command) {
		return Invocation{}, &UnknownCommandError{Command: command}
	}

	script := d.Script(command)
	rest := append([]string(nil), args[1:]...)
	if d.Interpreter == "" {
		return Invocation{Command: command, Name: script, Args: rest}, nil
	}
	return Invocation{
		Command: command,
		Name:    d.Interpreter,
		Args:    append([]string{script}, rest...),
	}, nil
}

// Run resolves args and runs the script attached to d.Stdio. A script that
// exits non-zero yields an *ExitError carrying its status.
func (d *Dispatcher) Run(ctx context.Context, args []string) error {
	inv, err := d.Resolve(args)
	if err != nil {
		return err
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("dispatching", "command", inv.Command, "exec", inv.String())

	executor := d.Executor
	if executor == nil {
		executor = system.DefaultExecutor()
	}

	err = executor.ExecuteInteractive(ctx, d.Stdio, inv.Name, inv.Args...)
	if err == nil {
		return nil
	}

	var coder system.ExitCoder
	if errors.As(err, &coder) {
		code := coder.ExitCode()
		if code <= 0 {
			// Killed by a signal.
			code = 1
		}
		return &ExitError{Command: inv.Command, Code: code, Err: err}
	}
	return fmt.Errorf("running %s: %w", inv.Command, err)
}
