package slurm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/me/jobtree/pkg/model"
)

// Resolver turns recorded run ids into run states by querying the
// scheduler through a binding.
type Resolver struct {
	binding Binding
	logger  *slog.Logger
}

// NewResolver creates a resolver on top of the given binding.
func NewResolver(binding Binding, logger *slog.Logger) *Resolver {
	return &Resolver{
		binding: binding,
		logger:  logger.With("component", "resolver"),
	}
}

// Resolve reports the current state of a run. Local runs are done by
// definition; everything else is looked up in scheduler accounting.
func (r *Resolver) Resolve(ctx context.Context, runID string) (model.RunState, error) {
	id := strings.TrimSpace(runID)
	if id == model.LocalRunID {
		return model.RunStateDone, nil
	}

	raw, err := r.binding.JobState(ctx, id)
	if err != nil {
		return "", err
	}
	state, err := MapState(id, raw)
	if err != nil {
		return "", err
	}
	r.logger.Debug("resolved run state", "run", id, "raw", raw, "state", state)
	return state, nil
}

// LazyResolver defers binding detection until a run actually needs a
// scheduler lookup. Invocations that only replay local or successful
// runs never touch Slurm, so they work on machines without it.
type LazyResolver struct {
	logger   *slog.Logger
	resolver *Resolver
}

// NewLazyResolver creates a resolver that detects the Slurm binding on
// first use.
func NewLazyResolver(logger *slog.Logger) *LazyResolver {
	return &LazyResolver{logger: logger}
}

// Resolve reports the current state of a run, detecting the binding
// first if no lookup has happened yet.
func (r *LazyResolver) Resolve(ctx context.Context, runID string) (model.RunState, error) {
	if strings.TrimSpace(runID) == model.LocalRunID {
		return model.RunStateDone, nil
	}
	if r.resolver == nil {
		binding, err := DetectBinding(r.logger)
		if err != nil {
			return "", err
		}
		r.resolver = NewResolver(binding, r.logger)
	}
	return r.resolver.Resolve(ctx, runID)
}

// MapState classifies a scheduler state string. An empty string means
// the scheduler has accepted the job but accounting has not seen it
// yet, which counts as waiting. Unknown states are an error rather
// than a guess: they signal a scheduler version this code does not
// understand.
func MapState(runID, raw string) (model.RunState, error) {
	state := strings.TrimSpace(raw)
	switch state {
	case "", "PENDING", "SUSPENDED", "PREEMPTED":
		return model.RunStateWaiting, nil
	case "RUNNING":
		return model.RunStateRunning, nil
	case "BOOT_FAIL", "FAILED", "NODE_FAIL", "OUT_OF_MEMORY", "TIMEOUT":
		return model.RunStateFailed, nil
	case "COMPLETED":
		return model.RunStateDone, nil
	}
	// sacct reports cancellations as "CANCELLED by <uid>".
	if strings.HasPrefix(state, "CANCELLED") {
		return model.RunStateFailed, nil
	}
	return "", &UnknownStateError{RunID: runID, State: state}
}
