// Package cli implements the jobtree command tree: scheduling passes,
// ledger queries and document inspection.
package cli

import (
	"log/slog"

	"github.com/me/jobtree/internal/config"
	"github.com/me/jobtree/internal/logging"
	"github.com/me/jobtree/internal/parser"
	"github.com/me/jobtree/pkg/jobfile"
	"github.com/spf13/cobra"
)

var (
	flagFile      string
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the jobtree CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "jobtree",
		Short: "Schedule trees of parameterized batch jobs",
		Long: `jobtree expands the jobs of a jobs document over their parameter
combinations and submits the outstanding runs to Slurm, keeping a
ledger so finished work is never resubmitted.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flagFile, "file", "f", "jobs.yml", "Jobs document to read")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newRunIDCmd(),
		newStatusCmd(),
		newTreeCmd(),
	)

	return root
}

// loadDocument parses the jobs document named by --file, lays any
// settings overrides on top and plants the path of the scripts
// directory next to the document in the constants.
func loadDocument(p *parser.Parser, overrides string) (*jobfile.File, error) {
	file, err := p.Load(flagFile)
	if err != nil {
		return nil, err
	}
	if err := p.ApplyOverrides(file, []byte(overrides)); err != nil {
		return nil, err
	}
	file.Settings.Constants["_scriptsdir"] = config.ScriptsDir(file.Path)
	return file, nil
}
