package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/me/jobtree/internal/config"
	"github.com/me/jobtree/internal/executor"
	"github.com/me/jobtree/internal/ledger"
	"github.com/me/jobtree/internal/params"
	"github.com/me/jobtree/internal/parser"
	"github.com/me/jobtree/internal/scheduler"
	"github.com/me/jobtree/internal/slurm"
	"github.com/me/jobtree/pkg/model"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cfg := config.DefaultRunConfig()
	var dry, local, debug bool

	cmd := &cobra.Command{
		Use:   "run [job]",
		Short: "Schedule a job and everything it depends on",
		Long: `Expands the named job and its dependencies over their parameter
combinations and submits every run that is not already done or underway.
With no job argument the document must define exactly one job.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case debug:
				cfg.Mode = config.ModeDebug
			case dry:
				cfg.Mode = config.ModeDry
			case local:
				cfg.Mode = config.ModeLocal
			}
			cfg.File = flagFile
			if len(args) > 0 {
				cfg.Job = args[0]
			}
			if err := cfg.Resolve(); err != nil {
				return err
			}
			return runTree(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Print scheduling decisions without running anything")
	cmd.Flags().BoolVar(&dry, "dry", false, "Print the scripts that would have been submitted")
	cmd.Flags().BoolVar(&local, "local", false, "Run every script synchronously under bash")
	cmd.Flags().BoolVar(&cfg.Force, "force", false, "Resubmit runs recorded as already scheduled")
	cmd.Flags().StringVar(&cfg.WorkDir, "workdir", cfg.WorkDir, "Directory run working directories live under")
	cmd.Flags().StringVar(&cfg.LogDir, "logdir", cfg.LogDir, "Directory scheduler logs are written to")
	cmd.Flags().DurationVar(&cfg.SubmissionDelay, "submission-delay", cfg.SubmissionDelay, "Pause between consecutive submissions")
	cmd.Flags().StringVar(&cfg.Overrides, "settings", cfg.Overrides, "YAML mapping laid over the document settings")
	cmd.Flags().StringVar(&cfg.RunFile, "runfile", cfg.RunFile, "Ledger file recording submitted runs")
	cmd.Flags().StringVar(&cfg.Account, "account", "", "Account submissions are charged to")

	return cmd
}

// runTree is one scheduling pass: parse the document, pick the backend
// for the requested mode, walk the job tree and record what was
// submitted.
func runTree(ctx context.Context, cfg config.RunConfig, out io.Writer) error {
	p := parser.New(logger)
	file, err := loadDocument(p, cfg.Overrides)
	if err != nil {
		return err
	}
	file.Settings.WorkDir = cfg.WorkDir
	file.Settings.LogDir = cfg.LogDir

	job := cfg.Job
	if job == "" {
		names := file.JobNames()
		if len(names) != 1 {
			return fmt.Errorf("please specify a job, the document defines: %s",
				strings.Join(names, ", "))
		}
		job = names[0]
	}

	account, err := resolveAccount(ctx, cfg, file.Settings.Account)
	if err != nil {
		return err
	}
	file.Settings.Account = account

	if cfg.Mode != config.ModeDry && cfg.Mode != config.ModeDebug {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
	}

	var (
		backend  executor.Executor
		resolver scheduler.StateResolver
	)
	switch cfg.Mode {
	case config.ModeDebug:
		backend = executor.NewDebugExecutor(out)
		resolver = slurm.NewLazyResolver(logger)
	case config.ModeDry:
		backend = executor.NewDryExecutor(out)
		resolver = slurm.NewLazyResolver(logger)
	case config.ModeLocal:
		backend = executor.NewLocalExecutor(out, logger)
		resolver = slurm.NewLazyResolver(logger)
	default:
		binding, err := slurm.DetectBinding(logger)
		if err != nil {
			return err
		}
		backend = executor.NewSlurmExecutor(binding, cfg.SubmissionDelay, out, logger)
		resolver = slurm.NewResolver(binding, logger)
	}

	store, err := ledger.Open(cfg.RunFile, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	runs, err := store.Load(ctx)
	if err != nil {
		return err
	}

	graph := scheduler.NewGraph(scheduler.Config{
		File:       file,
		Space:      params.NewSpace(file.Settings.Enumerations, logger),
		Ledger:     runs,
		Executor:   backend,
		Resolver:   resolver,
		ScriptsDir: config.ScriptsDir(file.Path),
		Logger:     logger,
	})
	root, err := graph.Build(job)
	if err != nil {
		return err
	}

	if err := backend.Open(ctx); err != nil {
		return err
	}
	ids, runErr := root.ScheduleTree(ctx, model.Combination{}, cfg.Force)
	if runErr == nil {
		runErr = backend.Close(ctx)
	}

	// Even a failed pass has submitted runs the next invocation must
	// know about.
	if cfg.Submits() {
		if err := store.Save(ctx, runs); err != nil {
			logger.Error("saving run ledger failed", "path", cfg.RunFile, "error", err)
			if runErr == nil {
				runErr = fmt.Errorf("save run ledger: %w", err)
			}
		}
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("scheduling pass finished", "job", job, "runs", len(ids))
	return nil
}

// resolveAccount picks the account submissions are charged to. The
// flag wins, then the document; when both are silent the site helper
// is asked, except in modes that never submit, which fall back to a
// placeholder so documents work away from the cluster.
func resolveAccount(ctx context.Context, cfg config.RunConfig, document string) (string, error) {
	if cfg.Account != "" {
		return cfg.Account, nil
	}
	if document != "" {
		return document, nil
	}
	if cfg.Mode == config.ModeDebug || cfg.Mode == config.ModeDry {
		return "account", nil
	}
	account, err := slurm.BestAccount(ctx)
	if err != nil {
		return "", fmt.Errorf("no account in document or flags: %w", err)
	}
	return account, nil
}
