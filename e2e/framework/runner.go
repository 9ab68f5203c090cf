//go:build e2e

package framework

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

// Result represents the result of running a command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// Success returns true if the command exited with code 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0 && r.Err == nil
}

// Contains checks if stdout contains the given substring.
func (r *Result) Contains(s string) bool {
	return strings.Contains(r.Stdout, s)
}

// Runner executes pluginhost commands in a test environment.
type Runner struct {
	t   *testing.T
	env *Environment
}

// NewRunner creates a new command runner.
func NewRunner(t *testing.T, env *Environment) *Runner {
	return &Runner{t: t, env: env}
}

func (r *Runner) command(args ...string) *exec.Cmd {
	cmd := exec.Command(r.env.BinaryPath(), args...)
	cmd.Dir = r.env.ConfigDir()
	cmd.Env = environWithout(os.Environ(), "PLUGINHOST_")
	return cmd
}

// Run executes the pluginhost command with the given arguments.
func (r *Runner) Run(args ...string) *Result {
	r.t.Helper()

	cmd := r.command(args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	return newResult(cmd.Run(), stdout.String(), stderr.String())
}

// Version runs the version command.
func (r *Runner) Version() *Result {
	return r.Run("version")
}

// Catalog runs the catalog command.
func (r *Runner) Catalog() *Result {
	return r.Run("catalog")
}

// Order runs the order command for side.
func (r *Runner) Order(config, side string) *Result {
	return r.Run("order", "--config", config, "--side", side)
}

// Validate runs the validate command for side.
func (r *Runner) Validate(config, side string, extra ...string) *Result {
	return r.Run(append([]string{"validate", "--config", config, "--side", side}, extra...)...)
}

// Process is a long-running command started by Start.
type Process struct {
	cmd    *exec.Cmd
	stdout syncBuffer
	stderr syncBuffer
	done   chan error
}

// Start launches pluginhost in the background. The process is killed on
// test cleanup if it is still running.
func (r *Runner) Start(args ...string) *Process {
	r.t.Helper()

	p := &Process{cmd: r.command(args...), done: make(chan error, 1)}
	p.cmd.Stdout = &p.stdout
	p.cmd.Stderr = &p.stderr
	if err := p.cmd.Start(); err != nil {
		r.t.Fatalf("Failed to start pluginhost: %v", err)
	}
	go func() { p.done <- p.cmd.Wait() }()

	r.t.Cleanup(func() { _ = p.cmd.Process.Kill() })
	return p
}

// Interrupt sends SIGINT and waits up to timeout for the process to exit.
func (p *Process) Interrupt(timeout time.Duration) *Result {
	_ = p.cmd.Process.Signal(syscall.SIGINT)

	select {
	case err := <-p.done:
		return newResult(err, p.stdout.String(), p.stderr.String())
	case <-time.After(timeout):
		_ = p.cmd.Process.Kill()
		return &Result{ExitCode: -1, Stdout: p.stdout.String(), Stderr: p.stderr.String(),
			Err: errors.New("process did not exit after interrupt")}
	}
}

// Stdout returns what the process has written so far.
func (p *Process) Stdout() string {
	return p.stdout.String()
}

func newResult(err error, stdout, stderr string) *Result {
	result := &Result{Stdout: stdout, Stderr: stderr, Err: err}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		result.Err = nil
	} else if err != nil {
		result.ExitCode = -1
	}
	return result
}

func environWithout(env []string, prefix string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return out
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Scenario provides a fluent interface for writing BDD-style tests.
type Scenario struct {
	t      *testing.T
	env    *Environment
	runner *Runner
	result *Result
}

// NewScenario creates a new test scenario.
func NewScenario(t *testing.T) *Scenario {
	env := NewEnvironment(t)
	return &Scenario{t: t, env: env, runner: NewRunner(t, env)}
}

// Given sets up the test preconditions.
func (s *Scenario) Given(description string, setup func(*Environment)) *Scenario {
	s.t.Helper()
	s.t.Logf("Given %s", description)
	setup(s.env)
	return s
}

// When executes the action under test.
func (s *Scenario) When(description string, action func(*Runner) *Result) *Scenario {
	s.t.Helper()
	s.t.Logf("When %s", description)
	s.result = action(s.runner)
	return s
}

// Then asserts the expected outcome.
func (s *Scenario) Then(description string, assertion func(*testing.T, *Result)) *Scenario {
	s.t.Helper()
	s.t.Logf("Then %s", description)
	assertion(s.t, s.result)
	return s
}

// And is an alias for Then for chaining assertions.
func (s *Scenario) And(description string, assertion func(*testing.T, *Result)) *Scenario {
	return s.Then(description, assertion)
}

// Environment returns the test environment for direct access.
func (s *Scenario) Environment() *Environment {
	return s.env
}

// Runner returns the scenario's command runner.
func (s *Scenario) Runner() *Runner {
	return s.runner
}
