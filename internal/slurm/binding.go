package slurm

import (
	"context"
	"log/slog"
	"os"
	"os/user"
)

// Binding is one way of talking to the Slurm scheduler. Submit hands a
// fully rendered batch script over and returns the new run id; JobState
// reports the scheduler's raw state string for a previously submitted
// run, or an empty string when the scheduler does not know the run yet.
type Binding interface {
	Submit(ctx context.Context, script string, spec ScriptSpec) (string, error)
	JobState(ctx context.Context, runID string) (string, error)
}

// DetectBinding probes the environment once and picks the best
// available way to reach Slurm: a slurmrestd endpoint when
// SLURM_RESTD_URL is set, otherwise the sbatch/sacct command line
// tools. The choice is logged so operators can tell which path their
// runs took.
func DetectBinding(logger *slog.Logger) (Binding, error) {
	if url := os.Getenv("SLURM_RESTD_URL"); url != "" {
		cfg := DefaultRESTConfig()
		cfg.BaseURL = url
		cfg.Token = os.Getenv("SLURM_JWT")
		cfg.Username = restUsername()
		if cfg.Token == "" {
			return nil, ErrNoToken
		}
		logger.Debug("using slurmrestd binding", "url", url, "user", cfg.Username)
		return NewRESTBinding(cfg, logger), nil
	}

	binding, err := NewCLIBinding(logger)
	if err != nil {
		return nil, ErrNoBinding
	}
	logger.Debug("using sbatch binding", "sbatch", binding.sbatchPath)
	return binding, nil
}

func restUsername() string {
	if name := os.Getenv("SLURM_USER_NAME"); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}
