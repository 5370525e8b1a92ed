package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/me/jobtree/internal/slurm"
)

// SlurmExecutor submits through a scheduler binding, spacing
// submissions out so the scheduler's intake is not flooded.
type SlurmExecutor struct {
	binding   slurm.Binding
	delay     time.Duration
	out       io.Writer
	logger    *slog.Logger
	scheduled int
}

// NewSlurmExecutor creates a SlurmExecutor on top of the given
// binding. After every submission it waits for delay before returning.
func NewSlurmExecutor(binding slurm.Binding, delay time.Duration, out io.Writer, logger *slog.Logger) *SlurmExecutor {
	return &SlurmExecutor{
		binding: binding,
		delay:   delay,
		out:     out,
		logger:  logger.With("component", "slurm-executor"),
	}
}

func (e *SlurmExecutor) Open(context.Context) error { return nil }

func (e *SlurmExecutor) Init(ctx context.Context, cmd InitCommand) error {
	return runInitCommand(ctx, cmd)
}

func (e *SlurmExecutor) Schedule(ctx context.Context, req SubmitRequest) (string, error) {
	e.scheduled += req.RunCount
	runID, err := e.binding.Submit(ctx, req.Script, req.Spec)
	if err != nil {
		return "", err
	}
	e.logger.Info("submitted", "name", req.Name, "run", runID, "count", req.RunCount)

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
		}
	}
	return runID, nil
}

func (e *SlurmExecutor) Close(context.Context) error {
	fmt.Fprintf(e.out, "Scheduled %s runs\n", humanize.Comma(int64(e.scheduled)))
	return nil
}
