// Package execx runs external toolchain commands with bounded output
// capture. The compiler, dependency manager, model generator, and
// container runtime are all invoked through here as opaque commands
// with known exit-code contracts.
package execx

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// Result captures one external command invocation. Stdout and stderr
// are interleaved in Output in arrival order.
type Result struct {
	Output   string
	ExitCode int
	Elapsed  time.Duration
	TimedOut bool
}

// Runner executes external commands. The default implementation shells
// out; tests substitute a fake to script exit codes and output.
type Runner interface {
	Run(ctx context.Context, spec Spec) (*Result, error)
}

// Spec describes one command invocation
type Spec struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string // appended to the parent environment
	Timeout time.Duration
}

// New returns the real command runner
func New() Runner {
	return &osRunner{}
}

type osRunner struct{}

// Run executes the command, honoring both the caller's context and the
// spec's own timeout. The returned error is non-nil only for failures
// to start or infrastructure problems; a non-zero exit is reported via
// Result.ExitCode so callers can classify it themselves.
func (r *osRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(cmd.Environ(), spec.Env...)
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	res := &Result{
		Output:  buf.String(),
		Elapsed: elapsed,
	}

	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
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
