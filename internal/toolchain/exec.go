// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ToolInvocationError reports an external program that could not be
// started at all, as opposed to one that ran and exited non-zero. It is
// fatal to the whole run.
type ToolInvocationError struct {
	Tool string
	Err  error
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("cannot run %s: %v", e.Tool, e.Err)
}

func (e *ToolInvocationError) Unwrap() error { return e.Err }

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)

	// Run executes name in dir with output discarded and returns its exit
	// code. The error is non-nil only when the process could not be started.
	Run(ctx context.Context, dir, name string, args ...string) (int, error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) Run(ctx context.Context, dir, name string, args ...string) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

var defaultExec executor = &osExecutor{}

// lookBins checks that every binary is on PATH.
func lookBins(e executor, bins ...string) error {
	for _, bin := range bins {
		if _, err := e.LookPath(bin); err != nil {
			return &ToolInvocationError{Tool: bin, Err: err}
		}
	}
	return nil
}
