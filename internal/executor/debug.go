package executor

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

// DebugExecutor prints what a scheduling pass would do without
// touching the filesystem or the scheduler. Run ids are the quoted run
// names, which keeps dependency constraints readable in the output of
// downstream jobs.
type DebugExecutor struct {
	out       io.Writer
	scheduled int
}

// NewDebugExecutor creates a DebugExecutor writing to out.
func NewDebugExecutor(out io.Writer) *DebugExecutor {
	return &DebugExecutor{out: out}
}

func (e *DebugExecutor) Open(context.Context) error { return nil }

func (e *DebugExecutor) Init(_ context.Context, cmd InitCommand) error {
	fmt.Fprintf(e.out, "Init %s\n", cmd.Name)
	return nil
}

func (e *DebugExecutor) Schedule(_ context.Context, req SubmitRequest) (string, error) {
	e.scheduled += req.RunCount
	fmt.Fprintf(e.out, "Schedule %s\n", req.Name)
	return "\"" + req.Name + "\"", nil
}

func (e *DebugExecutor) Close(context.Context) error {
	fmt.Fprintf(e.out, "Would have scheduled %s runs\n", humanize.Comma(int64(e.scheduled)))
	return nil
}
