package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/me/jobtree/pkg/model"
)

// LocalExecutor runs each submission synchronously under bash instead
// of handing it to a scheduler. The generated #SBATCH header lines are
// plain comments under bash, so the same script runs unchanged.
type LocalExecutor struct {
	out       io.Writer
	logger    *slog.Logger
	scheduled int

	// Stdout and Stderr receive the jobs' own output.
	Stdout io.Writer
	Stderr io.Writer
}

// NewLocalExecutor creates a LocalExecutor writing its summary to out.
func NewLocalExecutor(out io.Writer, logger *slog.Logger) *LocalExecutor {
	return &LocalExecutor{
		out:    out,
		logger: logger.With("component", "local-executor"),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

func (e *LocalExecutor) Open(context.Context) error { return nil }

func (e *LocalExecutor) Init(ctx context.Context, cmd InitCommand) error {
	return runInitCommand(ctx, cmd)
}

func (e *LocalExecutor) Schedule(ctx context.Context, req SubmitRequest) (string, error) {
	e.scheduled += req.RunCount
	e.logger.Info("running job", "name", req.Name)

	cmd := exec.CommandContext(ctx, "bash", "-e")
	cmd.Stdin = strings.NewReader(req.Script)
	cmd.Dir = req.WorkDir
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("job %s failed: %w", req.Name, err)
	}
	return model.LocalRunID, nil
}

func (e *LocalExecutor) Close(context.Context) error {
	fmt.Fprintf(e.out, "Ran %s runs\n", humanize.Comma(int64(e.scheduled)))
	return nil
}
