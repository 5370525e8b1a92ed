package executor

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

// DryExecutor behaves like DebugExecutor but also prints the init
// commands and batch scripts that would have run, so they can be
// inspected or submitted by hand.
type DryExecutor struct {
	out       io.Writer
	scheduled int
}

// NewDryExecutor creates a DryExecutor writing to out.
func NewDryExecutor(out io.Writer) *DryExecutor {
	return &DryExecutor{out: out}
}

func (e *DryExecutor) Open(context.Context) error { return nil }

func (e *DryExecutor) Init(_ context.Context, cmd InitCommand) error {
	fmt.Fprintf(e.out, "\nInit %s\n%s\n", cmd.Name, cmd)
	return nil
}

func (e *DryExecutor) Schedule(_ context.Context, req SubmitRequest) (string, error) {
	e.scheduled += req.RunCount
	fmt.Fprintf(e.out, "\nSchedule %s\n%s\n", req.Name, req.Script)
	return "\"" + req.Name + "\"", nil
}

func (e *DryExecutor) Close(context.Context) error {
	fmt.Fprintf(e.out, "Would have scheduled %s runs\n", humanize.Comma(int64(e.scheduled)))
	return nil
}
