package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/me/jobtree/internal/ledger"
	"github.com/me/jobtree/pkg/model"
	"github.com/spf13/cobra"
)

func newRunIDCmd() *cobra.Command {
	var runFile string

	cmd := &cobra.Command{
		Use:   "runid <prefix>",
		Short: "Look up recorded runs by id prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printRunID(cmd.Context(), cmd.OutOrStdout(), runFile, args[0])
		},
	}
	cmd.Flags().StringVar(&runFile, "runfile", "jobs.run", "Ledger file recording submitted runs")
	return cmd
}

// printRunID prints every ledger entry whose run id starts with
// prefix, so a scheduler job id seen in squeue or an e-mail can be
// traced back to its job and parameters.
func printRunID(ctx context.Context, out io.Writer, runFile, prefix string) error {
	store, err := ledger.Open(runFile, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	runs, err := store.Load(ctx)
	if err != nil {
		return err
	}

	for _, job := range runs.Jobs() {
		for _, rec := range sortedRecords(runs[job]) {
			if strings.HasPrefix(rec.RunID, prefix) {
				fmt.Fprintf(out, "%s: %s(%s) success=%t\n", rec.RunID, job, rec.Params, rec.Success)
			}
		}
	}
	return nil
}

// sortedRecords returns a job's records ordered by combination key.
func sortedRecords(runs model.JobRuns) []*model.RunRecord {
	keys := make([]string, 0, len(runs))
	for key := range runs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	recs := make([]*model.RunRecord, 0, len(keys))
	for _, key := range keys {
		recs = append(recs, runs[key])
	}
	return recs
}
