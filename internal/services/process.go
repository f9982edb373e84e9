package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// maxStderrBytes caps the captured diagnostic output kept on a ProcessError.
const maxStderrBytes = 4096

// Command describes a single external process invocation.
type Command struct {
	Tool   string
	Binary string
	Args   []string
	Stdin  io.Reader
}

// Runner executes external commands and returns their standard output.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd Command) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, cmd Command) ([]byte, error) {
	return f(ctx, cmd)
}

// ProcessError reports a nonzero exit (or failed start) of an external tool.
type ProcessError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	var b strings.Builder
	b.WriteString(e.Tool)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " exited with status %d", e.ExitCode)
	} else if e.Err != nil {
		b.WriteString(" failed: ")
		b.WriteString(e.Err.Error())
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		b.WriteString(": ")
		b.WriteString(stderr)
	}
	return b.String()
}

func (e *ProcessError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExternalTool}
	}
	return []error{ErrExternalTool, e.Err}
}

// CommandLine renders the invocation for logs, truncated to a readable length.
func (e *ProcessError) CommandLine() string {
	line := strings.Join(append([]string{e.Tool}, e.Args...), " ")
	if len(line) > 200 {
		line = line[:200] + "..."
	}
	return line
}

// ExecRunner runs commands with os/exec. A positive Timeout bounds each call.
type ExecRunner struct {
	Timeout time.Duration
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	tool := cmd.Tool
	if tool == "" {
		tool = cmd.Binary
	}

	var stdout, stderr bytes.Buffer
	proc := exec.CommandContext(ctx, cmd.Binary, cmd.Args...)
	proc.Stdout = &stdout
	proc.Stderr = &stderr
	if cmd.Stdin != nil {
		proc.Stdin = cmd.Stdin
	}

	if err := proc.Run(); err != nil {
		perr := &ProcessError{
			Tool:     tool,
			Args:     append([]string(nil), cmd.Args...),
			ExitCode: -1,
			Stderr:   truncate(stderr.String(), maxStderrBytes),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			perr.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			perr.Err = ctxErr
		}
		return stdout.Bytes(), perr
	}
	return stdout.Bytes(), nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[len(value)-limit:]
}
