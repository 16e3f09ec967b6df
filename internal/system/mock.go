package system

import (
	"context"
	"fmt"
	"sync"
)

// Call records one invocation made through a MockExecutor.
type Call struct {
	Name        string
	Args        []string
	Interactive bool
}

// MockExecutor implements CommandExecutor for testing. Responses are keyed by
// command name.
type MockExecutor struct {
	mu    sync.Mutex
	Calls []Call

	Output    map[string][]byte
	Errors    map[string]error
	ExitCodes map[string]int
}

// NewMockExecutor creates a MockExecutor that succeeds for every command.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		Output:    make(map[string][]byte),
		Errors:    make(map[string]error),
		ExitCodes: make(map[string]int),
	}
}

func (m *MockExecutor) record(name string, args []string, interactive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{
		Name:        name,
		Args:        append([]string(nil), args...),
		Interactive: interactive,
	})
}

func (m *MockExecutor) result(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Errors[name]; ok {
		return err
	}
	if code, ok := m.ExitCodes[name]; ok && code != 0 {
		return &MockExitError{Code: code}
	}
	return nil
}

func (m *MockExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.record(name, args, false)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	out := m.Output[name]
	m.mu.Unlock()
	return out, m.result(name)
}

func (m *MockExecutor) ExecuteInteractive(ctx context.Context, stdio Stdio, name string, args ...string) error {
	m.record(name, args, true)
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	out := m.Output[name]
	m.mu.Unlock()
	if len(out) > 0 && stdio.Stdout != nil {
		_, _ = stdio.Stdout.Write(out)
	}
	return m.result(name)
}

// LastCall returns the most recent call, or false if none was made.
func (m *MockExecutor) LastCall() (Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return Call{}, false
	}
	return m.Calls[len(m.Calls)-1], true
}

// MockExitError is returned by MockExecutor for configured exit codes.
type MockExitError struct {
	Code int
}

func (e *MockExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *MockExitError) ExitCode() int {
	return e.Code
}
