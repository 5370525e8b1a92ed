package slurm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Default settings for the slurmrestd binding.
const (
	DefaultRESTTimeout    = 30 * time.Second
	DefaultRESTMaxRetries = 3
	DefaultRESTRetryDelay = 2 * time.Second

	restAPIVersion = "v0.0.40"
)

// RESTConfig configures the slurmrestd binding. The token is a Slurm
// JWT as issued by scontrol token.
type RESTConfig struct {
	BaseURL    string
	Username   string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultRESTConfig returns a RESTConfig with default timeouts and
// retry settings. BaseURL, Username and Token must still be filled in.
func DefaultRESTConfig() RESTConfig {
	return RESTConfig{
		Timeout:    DefaultRESTTimeout,
		MaxRetries: DefaultRESTMaxRetries,
		RetryDelay: DefaultRESTRetryDelay,
	}
}

// RESTBinding drives Slurm through a slurmrestd endpoint. Submissions
// go to the scheduler API, state queries to the accounting API, which
// like sacct keeps records after jobs leave the queue.
type RESTBinding struct {
	config     RESTConfig
	httpClient *http.Client
	logger     *slog.Logger
	requestID  atomic.Int64
}

// NewRESTBinding creates a binding for the given endpoint.
func NewRESTBinding(cfg RESTConfig, logger *slog.Logger) *RESTBinding {
	return &RESTBinding{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "slurmrestd"),
	}
}

type submitRequest struct {
	Script string        `json:"script"`
	Job    jobProperties `json:"job"`
}

type jobProperties struct {
	Account                 string       `json:"account,omitempty"`
	Array                   string       `json:"array,omitempty"`
	Constraints             string       `json:"constraints,omitempty"`
	CPUsPerTask             int          `json:"cpus_per_task"`
	CurrentWorkingDirectory string       `json:"current_working_directory"`
	Dependency              string       `json:"dependency,omitempty"`
	Environment             []string     `json:"environment"`
	KillOnInvalidDependency bool         `json:"kill_on_invalid_dependency"`
	Name                    string       `json:"name"`
	Nice                    int          `json:"nice"`
	Partition               string       `json:"partition,omitempty"`
	QOS                     string       `json:"qos,omitempty"`
	StandardError           string       `json:"standard_error,omitempty"`
	StandardOutput          string       `json:"standard_output,omitempty"`
	TimeLimit               *numberValue `json:"time_limit,omitempty"`
}

// numberValue is slurmrestd's tagged integer encoding.
type numberValue struct {
	Set    bool  `json:"set"`
	Number int64 `json:"number"`
}

type submitResponse struct {
	JobID  int64      `json:"job_id"`
	Errors []apiError `json:"errors"`
}

type apiError struct {
	Error       string `json:"error"`
	ErrorNumber int    `json:"error_number"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

func (e apiError) message() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Description
}

type jobsResponse struct {
	Jobs   []jobRecord `json:"jobs"`
	Errors []apiError  `json:"errors"`
}

type jobRecord struct {
	State jobStateRecord `json:"state"`
}

type jobStateRecord struct {
	Current stateString `json:"current"`
}

// stateString absorbs both spellings slurmrestd uses for a job state:
// a plain string in older API versions and a list in newer ones, where
// the first entry is the base state.
type stateString string

func (s *stateString) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = stateString(one)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("job state: %w", err)
	}
	if len(many) > 0 {
		*s = stateString(many[0])
	}
	return nil
}

// Submit posts the script together with its submission options. The
// script's #SBATCH header is ignored by slurmrestd, so the options are
// passed again as structured job properties.
func (b *RESTBinding) Submit(ctx context.Context, script string, spec ScriptSpec) (string, error) {
	req := submitRequest{
		Script: script,
		Job: jobProperties{
			Account:                 spec.Options.Account,
			Array:                   spec.Options.Array,
			Constraints:             spec.Options.Constraint,
			CPUsPerTask:             spec.Options.CPUsPerTask,
			CurrentWorkingDirectory: spec.Options.WorkDir,
			Environment:             os.Environ(),
			KillOnInvalidDependency: true,
			Name:                    spec.Options.JobName,
			Partition:               spec.Options.Partition,
			QOS:                     spec.Options.QOS,
			StandardError:           spec.Options.Output,
			StandardOutput:          spec.Options.Output,
		},
	}
	if spec.Dependency != "" {
		req.Job.Dependency = "afterok:" + spec.Dependency
	}
	if spec.Options.Time != "" {
		minutes, err := ParseMinutes(spec.Options.Time)
		if err != nil {
			return "", err
		}
		req.Job.TimeLimit = &numberValue{Set: true, Number: int64(minutes)}
	}

	var resp submitResponse
	if err := b.call(ctx, http.MethodPost, "/slurm/"+restAPIVersion+"/job/submit", req, &resp); err != nil {
		return "", &SubmitError{Op: "slurmrestd submit", Err: err}
	}
	if len(resp.Errors) > 0 {
		return "", &SubmitError{
			Op:     "slurmrestd submit",
			Detail: resp.Errors[0].message(),
			Err:    errors.New("submission rejected"),
		}
	}
	if resp.JobID == 0 {
		return "", &SubmitError{Op: "slurmrestd submit", Err: errors.New("no job id in response")}
	}
	return strconv.FormatInt(resp.JobID, 10), nil
}

// JobState queries the accounting API for a run's state. An empty
// string means accounting does not know the job yet. Array member ids
// are queried under their base id; the API path takes plain job ids.
func (b *RESTBinding) JobState(ctx context.Context, runID string) (string, error) {
	id, _, _ := strings.Cut(runID, "_")
	var resp jobsResponse
	path := "/slurmdb/" + restAPIVersion + "/job/" + url.PathEscape(id)
	if err := b.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", fmt.Errorf("query job %s: %w", runID, err)
	}
	if len(resp.Jobs) == 0 {
		return "", nil
	}
	return string(resp.Jobs[0].State.Current), nil
}

// call sends one request with retries on retryable failures.
func (b *RESTBinding) call(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= b.config.MaxRetries; attempt++ {
		lastErr = b.doRequest(ctx, method, path, payload, out)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == b.config.MaxRetries {
			return lastErr
		}
		delay := b.config.RetryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
		b.logger.Debug("request failed, retrying",
			"path", path, "attempt", attempt, "delay", delay, "error", lastErr)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (b *RESTBinding) doRequest(ctx context.Context, method, path string, payload []byte, out any) error {
	id := b.requestID.Add(1)
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	endpoint := strings.TrimRight(b.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-SLURM-USER-NAME", b.config.Username)
	req.Header.Set("X-SLURM-USER-TOKEN", b.config.Token)

	b.logger.Debug("slurmrestd request", "id", id, "method", method, "path", path)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// isRetryable reports whether a request failure is worth repeating:
// server-side HTTP errors and transport-level failures are, rejected
// requests are not.
func isRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
