package model

// RunState represents the observed lifecycle state of a submitted run.
type RunState string

const (
	RunStateWaiting RunState = "WAITING"
	RunStateRunning RunState = "RUNNING"
	RunStateDone    RunState = "DONE"
	RunStateFailed  RunState = "FAILED"
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	return string(s)
}

// IsTerminal returns true if the run has reached a final state.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateDone, RunStateFailed:
		return true
	}
	return false
}

// LocalRunID is the run ID recorded for work executed synchronously in
// this process. It always resolves to RunStateDone: by the time it is
// in the ledger the work has already finished.
const LocalRunID = "local"
