package scheduler

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/me/jobtree/internal/executor"
	"github.com/me/jobtree/internal/params"
	"github.com/me/jobtree/internal/template"
	"github.com/me/jobtree/pkg/jobfile"
	"github.com/me/jobtree/pkg/model"
)

// provenanceParam names the parameter holding the generated provenance
// command. A job supplying its own value keeps it.
const provenanceParam = "_provenance_ncatted"

// dependencyEdge connects a job to one of its dependencies. foreach
// names the parameters the dependency shares with the job; nil passes
// the whole combination down.
type dependencyEdge struct {
	job     *Job
	foreach []string
}

// Job is one node of the dependency tree: a resolved definition with
// its code body, derived parameters and inferred variables, ready to
// schedule runs.
type Job struct {
	name     string
	def      *jobfile.Definition
	code     string
	codeType jobfile.CodeType

	// parameters holds the job's own parameters with the document
	// constants laid over them, plus the derived internal entries.
	parameters map[string]string

	// variables is the set of parameter names the job varies over,
	// inferred from its foreach patterns and parameter values.
	variables map[string]bool

	deps []dependencyEdge

	settings   jobfile.Settings
	scriptsDir string
	space      *params.Space
	executor   executor.Executor
	resolver   StateResolver
	runs       model.JobRuns
	scheduled  map[string]string // combination key -> run id submitted this pass
	logger     *slog.Logger
}

// Name returns the job's name as declared in the document.
func (j *Job) Name() string {
	return j.name
}

// Variables returns the sorted parameter names the job varies over.
func (j *Job) Variables() []string {
	return j.variableNames()
}

// newJob turns a resolved definition into a schedulable node.
func (g *Graph) newJob(def *jobfile.Definition, deps []dependencyEdge) (*Job, error) {
	code, codeType, err := g.loadCode(def)
	if err != nil {
		return nil, err
	}

	settings := g.config.File.Settings

	parameters := make(map[string]string, len(def.Parameters)+len(settings.Constants)+2)
	for k, v := range def.Parameters {
		parameters[k] = v
	}
	for k, v := range settings.Constants {
		parameters[k] = v
	}
	if def.HasSettings {
		data, err := yaml.Marshal(def.Settings)
		if err != nil {
			return nil, fmt.Errorf("job %q: encode settings: %w", def.Name, err)
		}
		parameters["settings"] = string(data)
	}

	variables, err := inferVariables(def, parameters)
	if err != nil {
		return nil, err
	}

	if _, ok := parameters[provenanceParam]; !ok {
		cmd, err := provenanceCommand(settings.Provenance, parameters, variables)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", def.Name, err)
		}
		parameters[provenanceParam] = cmd
	}
	parameters["_threads"] = def.SchedulerValue("threads", "1")

	runs, ok := g.config.Ledger[def.Name]
	if !ok {
		runs = make(model.JobRuns)
		g.config.Ledger[def.Name] = runs
	}

	return &Job{
		name:       def.Name,
		def:        def,
		code:       code,
		codeType:   codeType,
		parameters: parameters,
		variables:  variables,
		deps:       deps,
		settings:   settings,
		scriptsDir: g.config.ScriptsDir,
		space:      g.config.Space,
		executor:   g.config.Executor,
		resolver:   g.config.Resolver,
		runs:       runs,
		scheduled:  make(map[string]string),
		logger:     g.logger.With("job", def.Name),
	}, nil
}

// loadCode returns the job's code body and type. A job with neither
// code nor filename is a grouping node and runs an empty shell script.
func (g *Graph) loadCode(def *jobfile.Definition) (string, jobfile.CodeType, error) {
	switch {
	case def.FileName != "":
		codeType, err := jobfile.CodeTypeOf(def.FileName)
		if err != nil {
			return "", "", fmt.Errorf("job %q: %w", def.Name, err)
		}
		data, err := os.ReadFile(filepath.Join(g.config.ScriptsDir, def.FileName))
		if err != nil {
			return "", "", fmt.Errorf("job %q: %w", def.Name, err)
		}
		return string(data), codeType, nil
	case def.Code != "":
		return def.Code, jobfile.CodeTypeShell, nil
	}
	return "", jobfile.CodeTypeShell, nil
}

// inferVariables collects the parameter names a job varies over: every
// name its foreach patterns and its parameter values reference without
// resolving, internal names excluded.
func inferVariables(def *jobfile.Definition, parameters map[string]string) (map[string]bool, error) {
	variables := make(map[string]bool)
	record := func(missing []string) {
		for _, name := range missing {
			if !model.IsInternal(name) {
				variables[name] = true
			}
		}
	}

	for _, pattern := range def.ForEach {
		_, missing, err := template.Discover(pattern, template.Substitution{}, parameters)
		if err != nil {
			return nil, fmt.Errorf("job %q: pattern %q: %w", def.Name, pattern, err)
		}
		record(missing)
	}

	_, missing, err := template.Discover(joinedValues(parameters), template.Substitution{}, parameters)
	if err != nil {
		return nil, fmt.Errorf("job %q: parameter values: %w", def.Name, err)
	}
	record(missing)

	return variables, nil
}

// joinedValues concatenates the parameter values in key order into one
// template whose unresolved names are variables of the job.
func joinedValues(parameters map[string]string) string {
	keys := make([]string, 0, len(parameters))
	for k := range parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = parameters[k]
	}
	return strings.Join(values, "\n")
}

// provenanceCommand builds the ncatted invocation recorded under
// _provenance_ncatted: it drops the history attribute and records one
// global attribute per provenance template whose unresolved names all
// belong to the job's variables. The attribute values keep their
// template form.
func provenanceCommand(provenance []jobfile.ProvenanceVariable, parameters map[string]string, variables map[string]bool) (string, error) {
	var b strings.Builder
	b.WriteString("ncatted -h -O -a history,global,d,,")
	for _, pv := range provenance {
		_, missing, err := template.Discover(pv.Template, template.Substitution{}, parameters)
		if err != nil {
			return "", fmt.Errorf("provenance %s: %w", pv.Name, err)
		}
		covered := true
		for _, name := range missing {
			if !variables[name] {
				covered = false
				break
			}
		}
		if covered {
			fmt.Fprintf(&b, " -a %s,global,o,c,\"%s\"", pv.Name, pv.Template)
		}
	}
	return b.String(), nil
}
