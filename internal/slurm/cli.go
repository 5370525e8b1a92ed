package slurm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	// cliAttempts bounds how often a failed sbatch or sacct call is
	// retried before its error is reported.
	cliAttempts  = 3
	cliRetryBase = 2 * time.Second
)

// CLIBinding drives Slurm through the sbatch and sacct command line
// tools.
type CLIBinding struct {
	sbatchPath string
	sacctPath  string
	logger     *slog.Logger
}

// NewCLIBinding locates sbatch and sacct in PATH.
func NewCLIBinding(logger *slog.Logger) (*CLIBinding, error) {
	sbatch, err := exec.LookPath("sbatch")
	if err != nil {
		return nil, fmt.Errorf("sbatch not found: %w", err)
	}
	sacct, err := exec.LookPath("sacct")
	if err != nil {
		return nil, fmt.Errorf("sacct not found: %w", err)
	}
	return &CLIBinding{
		sbatchPath: sbatch,
		sacctPath:  sacct,
		logger:     logger.With("component", "slurm"),
	}, nil
}

// Submit pipes the rendered script into sbatch --parsable and returns
// the job id it prints. Failed submissions are retried a few times
// with increasing delays before the error is reported.
func (b *CLIBinding) Submit(ctx context.Context, script string, _ ScriptSpec) (string, error) {
	out, err := b.run(ctx, "sbatch", []string{b.sbatchPath, "--parsable"}, script)
	if err != nil {
		return "", &SubmitError{Op: "sbatch", Detail: stderrOf(err), Err: err}
	}
	return parseSubmitOutput(string(out))
}

// JobState asks sacct for the current state of a run. An empty string
// means the accounting database does not know the job yet.
func (b *CLIBinding) JobState(ctx context.Context, runID string) (string, error) {
	out, err := b.run(ctx, "sacct", []string{b.sacctPath, "-j", runID, "-nP", "-o", "state"}, "")
	if err != nil {
		if detail := stderrOf(err); detail != "" {
			return "", fmt.Errorf("sacct -j %s: %w: %s", runID, err, detail)
		}
		return "", fmt.Errorf("sacct -j %s: %w", runID, err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// BestAccount asks the site-local slurm-bestaccount helper which
// account submissions should be charged to.
func BestAccount(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "slurm-bestaccount").Output()
	if err != nil {
		if detail := stderrOf(err); detail != "" {
			return "", fmt.Errorf("slurm-bestaccount: %w: %s", err, detail)
		}
		return "", fmt.Errorf("slurm-bestaccount: %w", err)
	}
	account := strings.TrimSpace(string(out))
	if account == "" {
		return "", errors.New("slurm-bestaccount returned no account")
	}
	return account, nil
}

func (b *CLIBinding) run(ctx context.Context, op string, argv []string, stdin string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= cliAttempts; attempt++ {
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		if stdin != "" {
			cmd.Stdin = strings.NewReader(stdin)
		}
		out, err := cmd.Output()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
		if attempt < cliAttempts {
			delay := cliRetryBase * time.Duration(1<<(attempt-1))
			b.logger.Warn("scheduler command failed, retrying",
				"op", op, "attempt", attempt, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// parseSubmitOutput extracts the job id from sbatch --parsable output,
// which is "jobid" or "jobid;cluster".
func parseSubmitOutput(out string) (string, error) {
	line, _, _ := strings.Cut(out, "\n")
	id, _, _ := strings.Cut(strings.TrimSpace(line), ";")
	if id == "" {
		return "", errors.New("sbatch returned no job id")
	}
	return id, nil
}

// stderrOf pulls the captured stderr out of a failed command, if any.
func stderrOf(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return strings.TrimSpace(string(exitErr.Stderr))
	}
	return ""
}
