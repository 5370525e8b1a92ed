// Package config holds the resolved configuration of a scheduling
// invocation, assembled by the CLI from flags and the jobs document.
package config

import (
	"path/filepath"
	"time"
)

// Mode selects the submission backend of a run.
type Mode string

const (
	// ModeSlurm submits to the batch scheduler. The only mode that
	// persists the run ledger.
	ModeSlurm Mode = "slurm"
	// ModeLocal runs every submission synchronously under bash.
	ModeLocal Mode = "local"
	// ModeDry prints init commands and batch scripts without running
	// anything.
	ModeDry Mode = "dry"
	// ModeDebug only prints which runs would be scheduled.
	ModeDebug Mode = "debug"
)

// RunConfig is one run invocation: which document and job to
// schedule, where its directories live, and how to submit.
type RunConfig struct {
	File            string // jobs document path
	Job             string // root job name, empty to auto-select
	WorkDir         string // run working directory (absolute)
	LogDir          string // scheduler log directory (absolute)
	RunFile         string // ledger path
	Overrides       string // YAML settings overrides
	Account         string // scheduler account, empty to resolve
	SubmissionDelay time.Duration
	Force           bool
	Mode            Mode
}

// DefaultRunConfig returns the defaults the run command starts from.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		File:            "jobs.yml",
		WorkDir:         "out",
		LogDir:          "log",
		RunFile:         "jobs.run",
		Overrides:       "{}",
		SubmissionDelay: 100 * time.Millisecond,
		Mode:            ModeSlurm,
	}
}

// Resolve makes the directory paths absolute against the current
// working directory.
func (c *RunConfig) Resolve() error {
	var err error
	if c.WorkDir, err = filepath.Abs(c.WorkDir); err != nil {
		return err
	}
	c.LogDir, err = filepath.Abs(c.LogDir)
	return err
}

// Submits reports whether the mode hands runs to the real scheduler.
func (c *RunConfig) Submits() bool {
	return c.Mode == ModeSlurm
}

// ScriptsDir returns the scripts directory belonging to a jobs
// document: the scripts/ directory next to it.
func ScriptsDir(documentPath string) string {
	return filepath.Join(filepath.Dir(documentPath), "scripts")
}
