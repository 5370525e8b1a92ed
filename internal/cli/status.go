package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/me/jobtree/internal/ledger"
	"github.com/me/jobtree/internal/slurm"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var runFile string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the live state of every recorded run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStatus(cmd.Context(), cmd.OutOrStdout(), runFile)
		},
	}
	cmd.Flags().StringVar(&runFile, "runfile", "jobs.run", "Ledger file recording submitted runs")
	return cmd
}

// printStatus resolves every not yet successful ledger entry against
// the scheduler and prints per-job counts. The ledger itself is left
// untouched; only a scheduling pass marks runs as done.
func printStatus(ctx context.Context, out io.Writer, runFile string) error {
	store, err := ledger.Open(runFile, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	runs, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No recorded runs.")
		return nil
	}

	resolver := slurm.NewLazyResolver(logger)
	for _, job := range runs.Jobs() {
		counts := make(map[string]int)
		total := 0
		for _, rec := range sortedRecords(runs[job]) {
			total++
			if rec.Success {
				counts["success"]++
				continue
			}
			state, err := resolver.Resolve(ctx, rec.RunID)
			if err != nil {
				return fmt.Errorf("resolve run %s: %w", rec.RunID, err)
			}
			counts[strings.ToLower(state.String())]++
		}

		parts := make([]string, 0, len(counts))
		for _, state := range []string{"success", "done", "running", "waiting", "failed"} {
			if counts[state] > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", counts[state], state))
			}
		}
		fmt.Fprintf(out, "%s: %d runs (%s)\n", job, total, strings.Join(parts, ", "))
	}
	return nil
}
