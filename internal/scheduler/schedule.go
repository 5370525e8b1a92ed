package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/me/jobtree/internal/executor"
	"github.com/me/jobtree/internal/slurm"
	"github.com/me/jobtree/internal/template"
	"github.com/me/jobtree/pkg/jobfile"
	"github.com/me/jobtree/pkg/model"
)

// ScheduleTree schedules the runs of this job and, transitively, of
// everything it depends on, for all combinations agreeing with fixed.
// It returns the run ids a dependent submission has to wait for: the
// ids of runs submitted in this pass plus the recorded ids of runs
// left alone.
//
// Per combination the pass works through: reconciling the ledger entry
// with the resolver, deriving the run's template parameters, creating
// the work directory, and the eligibility gate. An eligible
// combination runs its init actions (skipped when retrying a failure),
// schedules its dependencies and is submitted; array jobs accumulate
// eligible combinations and submit once at the end of the pass.
func (j *Job) ScheduleTree(ctx context.Context, fixed model.Combination, force bool) ([]string, error) {
	current := fixed.Project(j.variableNames())
	combinations := j.space.Recombine(current, j.freeNames(current))
	j.logger.Debug("walking combinations", "fixed", current.String(), "count", len(combinations))

	runIDs := make([]string, 0, len(combinations))
	var batch arrayBatch
	var lastWorkDir string

	for _, c := range combinations {
		state, err := j.resolveState(ctx, c)
		if err != nil {
			return nil, err
		}

		extras, err := j.runExtras(c)
		if err != nil {
			return nil, err
		}

		workDir, err := j.runWorkDir(c)
		if err != nil {
			return nil, err
		}
		lastWorkDir = workDir

		if _, err := os.Stat(workDir); os.IsNotExist(err) {
			mkdir := executor.InitCommand{
				Name:    j.name,
				Argv:    []string{"mkdir", "-p", workDir},
				WorkDir: ".",
			}
			if err := j.executor.Init(ctx, mkdir); err != nil {
				return nil, err
			}
		}

		key := c.Key()
		rec, known := j.runs[key]
		_, inFlight := j.scheduled[key]
		if state != model.RunStateFailed && !force && (known || inFlight) {
			runIDs = append(runIDs, rec.RunID)
			continue
		}

		if state != model.RunStateFailed {
			if err := j.initRun(ctx, c, extras, workDir); err != nil {
				return nil, err
			}
		}

		depIDs, err := j.scheduleDependencies(ctx, c)
		if err != nil {
			return nil, err
		}

		if j.def.Array {
			batch.add(c, extras, depIDs)
			continue
		}

		runID, err := j.scheduleRun(ctx, c, extras, depIDs, workDir)
		if err != nil {
			return nil, err
		}
		runIDs = append(runIDs, runID)
		j.record(c, runID)
	}

	if j.def.Array && len(batch.combos) > 0 {
		runID, err := j.scheduleArray(ctx, &batch, lastWorkDir)
		if err != nil {
			return nil, err
		}
		for i, c := range batch.combos {
			j.record(c, fmt.Sprintf("%s_%d", runID, i))
		}
		runIDs = append(runIDs, runID)
	}

	return runIDs, nil
}

// resolveState reconciles one combination with the ledger. A run
// recorded by an earlier invocation and not yet known successful is
// looked up through the resolver; a run observed DONE is marked
// successful so later invocations skip the query. Everything else
// counts as DONE for gating purposes without a query.
func (j *Job) resolveState(ctx context.Context, c model.Combination) (model.RunState, error) {
	key := c.Key()
	rec, known := j.runs[key]
	if _, inFlight := j.scheduled[key]; !known || inFlight || rec.Success {
		return model.RunStateDone, nil
	}
	state, err := j.resolver.Resolve(ctx, rec.RunID)
	if err != nil {
		return "", fmt.Errorf("job %q: %w", j.name, err)
	}
	if state == model.RunStateDone {
		rec.Success = true
	}
	return state, nil
}

// runExtras derives the per-combination template parameters: the
// rendered foreach patterns (_p0, _p1, ...), the run descriptions
// (_desc, _longname) and the rendered output patterns (_output0, ...).
// Output patterns may reference the other extras.
func (j *Job) runExtras(c model.Combination) (map[string]string, error) {
	extras := make(map[string]string, len(j.def.ForEach)+len(j.def.Output)+2)
	for i, pattern := range j.def.ForEach {
		v, err := template.Render(pattern, c, j.parameters)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", j.name, err)
		}
		extras[fmt.Sprintf("_p%d", i)] = v
	}
	extras["_desc"] = fmt.Sprintf("%s(%s)", j.name, c)
	extras["_longname"] = j.name + runDescription(c, j.settings.SkipInName)

	outputs := make(map[string]string, len(j.def.Output))
	for i, pattern := range j.def.Output {
		v, err := template.Render(pattern, c, j.parameters, extras)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", j.name, err)
		}
		outputs[fmt.Sprintf("_output%d", i)] = v
	}
	for k, v := range outputs {
		extras[k] = v
	}
	return extras, nil
}

// runWorkDir renders the job's workdir template for one combination
// and anchors it under the document work directory.
func (j *Job) runWorkDir(c model.Combination) (string, error) {
	dir, err := template.Render(j.def.WorkDir, c, j.parameters)
	if err != nil {
		return "", fmt.Errorf("job %q: workdir: %w", j.name, err)
	}
	return jobfile.EnsureAbs(dir, j.settings.WorkDir), nil
}

// initRun executes the job's init actions for one combination.
func (j *Job) initRun(ctx context.Context, c model.Combination, extras map[string]string, workDir string) error {
	name := fmt.Sprintf("%s(%s)", j.name, c)
	for _, spec := range j.def.Init {
		code := spec.Code
		if code == "" {
			data, err := os.ReadFile(filepath.Join(j.scriptsDir, spec.FileName))
			if err != nil {
				return fmt.Errorf("job %q: %w", j.name, err)
			}
			code = string(data)
		}
		rendered, err := template.Render(code, j.parameters, c, extras)
		if err != nil {
			return fmt.Errorf("job %q: init: %w", j.name, err)
		}
		cmd := executor.InitCommand{Name: name, Shell: rendered, WorkDir: workDir}
		if err := j.executor.Init(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

// scheduleDependencies walks each dependency edge with the projection
// of c onto the edge's shared parameters and collects the returned run
// ids. A forced rerun does not force dependency reruns.
func (j *Job) scheduleDependencies(ctx context.Context, c model.Combination) ([]string, error) {
	var depIDs []string
	for _, edge := range j.deps {
		sub := c
		if edge.foreach != nil {
			sub = c.Project(edge.foreach)
		}
		ids, err := edge.job.ScheduleTree(ctx, sub, false)
		if err != nil {
			return nil, err
		}
		depIDs = append(depIDs, ids...)
	}
	return depIDs, nil
}

// record stores a fresh submission in the ledger and in this pass's
// scheduled set.
func (j *Job) record(c model.Combination, runID string) {
	key := c.Key()
	j.runs[key] = &model.RunRecord{Params: c.Clone(), RunID: runID}
	j.scheduled[key] = runID
}

// scheduleRun submits a single run of the job.
func (j *Job) scheduleRun(ctx context.Context, c model.Combination, extras map[string]string, depIDs []string, workDir string) (string, error) {
	return j.submit(ctx, submission{
		name:           fmt.Sprintf("%s(%s)", j.name, c),
		runCount:       1,
		output:         j.settings.LogDir + "/%j",
		dependency:     slurm.DependencyConstraint(depIDs),
		templateParams: mergeMaps(j.parameters, c, extras),
		workDir:        workDir,
	})
}

// scheduleArray submits one array run covering every combination
// batched during the pass. The script carries each combination's
// parameters in exported arrays indexed by the Slurm task id, and the
// run name labels the batch with the parameters its combinations
// share.
func (j *Job) scheduleArray(ctx context.Context, batch *arrayBatch, workDir string) (string, error) {
	if j.codeType != jobfile.CodeTypeShell {
		return "", fmt.Errorf("job %q: arrays are only supported for shell jobs", j.name)
	}

	exports, lookups := arrayExports(batch.extras, batch.combos)
	return j.submit(ctx, submission{
		name:           fmt.Sprintf("%s(len: %d, %s)", j.name, len(batch.combos), commonParams(batch.combos)),
		runCount:       len(batch.extras),
		output:         j.settings.LogDir + "/%A-%a",
		array:          fmt.Sprintf("0-%d", len(batch.extras)-1),
		arrayExports:   exports,
		dependency:     slurm.DependencyConstraint(batch.depIDs()),
		templateParams: mergeMaps(j.parameters, lookups),
		workDir:        workDir,
	})
}

// submission carries the parts of a batch submission that differ
// between single runs and array runs.
type submission struct {
	name           string
	runCount       int
	output         string
	array          string // sbatch index range, empty for single runs
	arrayExports   string
	dependency     string
	templateParams map[string]string
	workDir        string
}

// submit assembles the batch script for a submission, renders it and
// hands it to the executor.
func (j *Job) submit(ctx context.Context, sub submission) (string, error) {
	interpreter, err := slurm.Interpreter(j.codeType)
	if err != nil {
		return "", fmt.Errorf("job %q: %w", j.name, err)
	}

	opts := slurm.BatchOptions{
		Account:     j.settings.Account,
		Array:       sub.array,
		Constraint:  j.def.SchedulerValue("constraint", ""),
		CPUsPerTask: j.def.Threads(),
		JobName:     sub.name,
		MailType:    j.def.SchedulerValue("notify", "NONE"),
		Output:      sub.output,
		Partition:   j.def.SchedulerValue("partition", "standard"),
		QOS:         j.def.SchedulerValue("qos", "short"),
		Time:        j.def.SchedulerValue("time", "1-00:00:00"),
		WorkDir:     sub.workDir,
	}
	spec := slurm.ScriptSpec{
		Options:      opts,
		Dependency:   sub.dependency,
		ArrayExports: sub.arrayExports,
		Interpreter:  interpreter,
		Prolog:       j.def.Prolog,
		Code:         j.code,
		Epilog:       j.def.Epilog,
	}

	sub.templateParams["_slurm_header"] = slurm.Header(opts)
	sub.templateParams["_workdir"] = sub.workDir

	script, err := template.Render(slurm.BuildScript(spec), sub.templateParams)
	if err != nil {
		return "", fmt.Errorf("job %q: %w", j.name, err)
	}

	runID, err := j.executor.Schedule(ctx, executor.SubmitRequest{
		Name:     sub.name,
		RunCount: sub.runCount,
		Script:   script,
		Spec:     spec,
		WorkDir:  sub.workDir,
	})
	if err != nil {
		return "", fmt.Errorf("job %q: %w", j.name, err)
	}
	j.logger.Debug("run scheduled", "name", sub.name, "runs", sub.runCount, "id", runID)
	return runID, nil
}

// arrayBatch accumulates the eligible combinations of an array job
// over one scheduling pass.
type arrayBatch struct {
	combos []model.Combination
	extras []map[string]string
	deps   map[string]bool
}

func (b *arrayBatch) add(c model.Combination, extras map[string]string, depIDs []string) {
	b.combos = append(b.combos, c)
	b.extras = append(b.extras, extras)
	for _, id := range depIDs {
		if b.deps == nil {
			b.deps = make(map[string]bool)
		}
		b.deps[id] = true
	}
}

func (b *arrayBatch) depIDs() []string {
	ids := make([]string, 0, len(b.deps))
	for id := range b.deps {
		ids = append(ids, id)
	}
	return ids
}

// arrayExports builds the export block of an array script together
// with the template mapping from parameter name to its per-task
// lookup. Lookup names come from the first element of each source;
// every element contributes its values under its index.
func arrayExports(extras []map[string]string, combos []model.Combination) (string, map[string]string) {
	lookups := make(map[string]string)
	var b strings.Builder
	emit := func(elements []map[string]string) {
		if len(elements) == 0 {
			return
		}
		for _, name := range sortedNames(elements[0]) {
			lookups[name] = fmt.Sprintf("${PARAM_%s[$SLURM_ARRAY_TASK_ID]}", name)
		}
		for i, element := range elements {
			for _, name := range sortedNames(element) {
				fmt.Fprintf(&b, "export PARAM_%s[%d]='%s'\n", name, i, element[name])
			}
		}
	}
	emit(extras)
	emit(combosAsMaps(combos))
	return b.String(), lookups
}

func (j *Job) variableNames() []string {
	names := make([]string, 0, len(j.variables))
	for name := range j.variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// freeNames returns the variables current does not pin, sorted.
func (j *Job) freeNames(current model.Combination) []string {
	free := make([]string, 0, len(j.variables))
	for name := range j.variables {
		if _, ok := current[name]; !ok {
			free = append(free, name)
		}
	}
	sort.Strings(free)
	return free
}

func mergeMaps(maps ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func combosAsMaps(combos []model.Combination) []map[string]string {
	out := make([]map[string]string, len(combos))
	for i, c := range combos {
		out[i] = c
	}
	return out
}
