package model

import "sort"

// RunRecord is one ledger entry: a (job, combination) pair that has
// been handed to an executor. Success flips to true once the run is
// observed DONE; records without success are re-resolved on the next
// invocation.
type RunRecord struct {
	Params  Combination `yaml:"params" json:"params"`
	RunID   string      `yaml:"id" json:"id"`
	Success bool        `yaml:"success" json:"success"`
}

// JobRuns indexes one job's records by combination key.
type JobRuns map[string]*RunRecord

// Ledger holds every recorded submission of a run, by job name. It is
// the in-memory form shared by the ledger backends; mutation goes
// through Record so the nested maps always exist.
type Ledger map[string]JobRuns

// Lookup returns the record for a job and combination key, if any.
func (l Ledger) Lookup(job, key string) (*RunRecord, bool) {
	runs, ok := l[job]
	if !ok {
		return nil, false
	}
	rec, ok := runs[key]
	return rec, ok
}

// Record stores rec for the given job under its combination key,
// replacing any previous record.
func (l Ledger) Record(job string, rec *RunRecord) {
	runs, ok := l[job]
	if !ok {
		runs = make(JobRuns)
		l[job] = runs
	}
	runs[rec.Params.Key()] = rec
}

// Jobs returns the job names present in the ledger, sorted.
func (l Ledger) Jobs() []string {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
