// Package executor provides the submission backends a scheduling pass
// runs against: the Slurm scheduler, synchronous local execution, and
// the dry-run and debug stubs that only show what would happen.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/me/jobtree/internal/slurm"
)

// SubmitRequest is one batch submission: a single run, or a whole
// array of runs batched under one id.
type SubmitRequest struct {
	Name     string
	RunCount int
	Script   string
	Spec     slurm.ScriptSpec
	WorkDir  string
}

// InitCommand is a setup command run before a job's submissions. Argv
// commands run directly, Shell commands through bash.
type InitCommand struct {
	Name    string
	Argv    []string
	Shell   string
	WorkDir string
}

func (c InitCommand) String() string {
	if len(c.Argv) > 0 {
		return strings.Join(c.Argv, " ")
	}
	return c.Shell
}

// Executor is a pluggable submission backend. Open starts a submission
// session and Close ends it with a summary. A failed Init or Schedule
// call is fatal for the scheduling pass that issued it; runs submitted
// before the failure stay submitted.
type Executor interface {
	Open(ctx context.Context) error
	Init(ctx context.Context, cmd InitCommand) error
	Schedule(ctx context.Context, req SubmitRequest) (string, error)
	Close(ctx context.Context) error
}

// runInitCommand executes a setup command and surfaces its stderr in
// the error when it fails.
func runInitCommand(ctx context.Context, cmd InitCommand) error {
	var c *exec.Cmd
	if len(cmd.Argv) > 0 {
		c = exec.CommandContext(ctx, cmd.Argv[0], cmd.Argv[1:]...)
	} else {
		c = exec.CommandContext(ctx, "bash", "-c", cmd.Shell)
	}
	c.Dir = cmd.WorkDir
	if _, err := c.Output(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return fmt.Errorf("init %s: %w: %s", cmd.Name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return fmt.Errorf("init %s: %w", cmd.Name, err)
	}
	return nil
}
