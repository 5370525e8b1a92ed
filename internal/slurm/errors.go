package slurm

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBinding indicates that neither the Slurm CLI nor a slurmrestd
	// endpoint is available on this host.
	ErrNoBinding = errors.New("no Slurm binding available: sbatch not in PATH and SLURM_RESTD_URL not set")

	// ErrNoToken indicates the REST binding was selected but no JWT was
	// configured for it.
	ErrNoToken = errors.New("no Slurm REST token: SLURM_JWT not set")
)

// UnknownStateError is returned when the scheduler reports a job state
// this package does not know how to classify.
type UnknownStateError struct {
	RunID string
	State string
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("unknown job state %q for run %s", e.State, e.RunID)
}

// SubmitError wraps a failed submission attempt with the scheduler's own
// diagnostics, so callers can show more than an exit code.
type SubmitError struct {
	Op     string
	Detail string
	Err    error
}

func (e *SubmitError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// HTTPError represents a non-2xx response from slurmrestd.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsRetryable returns true if the HTTP error is worth retrying.
func (e *HTTPError) IsRetryable() bool {
	// 5xx errors are generally transient, as is 429 Too Many Requests.
	return e.StatusCode >= 500 || e.StatusCode == 429
}
