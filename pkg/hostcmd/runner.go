// Package hostcmd runs host commands on behalf of the reconciliation logic.
//
// All external processes (bootloader queries, the kdump tool) go through the
// Runner interface so that callers can be exercised with a scripted fake
// instead of real processes.
package hostcmd

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// Result captures the outcome of a finished host command. Stdout and Stderr
// are fully buffered before the caller proceeds; there is no streaming.
type Result struct {
	ExitCode int
	Stdout   []string
	Stderr   []string
}

// StderrText joins the captured stderr lines for use in diagnostics.
func (r Result) StderrText() string {
	return strings.Join(r.Stderr, "\n")
}

// Runner executes a host command and returns its buffered output. A non-nil
// error means the command could not be started at all; a command that ran and
// exited non-zero is reported through Result.ExitCode instead.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: splitLines(stdout.String()),
		Stderr: splitLines(stderr.String()),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	return res, nil
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
