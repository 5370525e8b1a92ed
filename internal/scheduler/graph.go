// Package scheduler builds the dependency tree of a jobs document and
// walks it per parameter combination, deciding which runs to submit,
// which to leave alone and which to resubmit after a failure.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/me/jobtree/internal/executor"
	"github.com/me/jobtree/internal/params"
	"github.com/me/jobtree/pkg/jobfile"
	"github.com/me/jobtree/pkg/model"
)

// StateResolver reports the scheduler state of a recorded run id.
type StateResolver interface {
	Resolve(ctx context.Context, runID string) (model.RunState, error)
}

// Config wires a Graph to its collaborators.
type Config struct {
	File       *jobfile.File
	Space      *params.Space
	Ledger     model.Ledger
	Executor   executor.Executor
	Resolver   StateResolver
	ScriptsDir string
	Logger     *slog.Logger
}

// Graph holds the job nodes of one scheduling pass, one per job name.
// A job referenced by several dependents gets a single node, so shared
// dependencies are scheduled once per combination and pass.
type Graph struct {
	config Config
	logger *slog.Logger
	jobs   map[string]*Job
}

// NewGraph creates an empty graph over the given document and
// collaborators.
func NewGraph(cfg Config) *Graph {
	return &Graph{
		config: cfg,
		logger: cfg.Logger.With("component", "scheduler"),
		jobs:   make(map[string]*Job),
	}
}

// Build resolves the named job and everything it depends on into
// schedulable nodes: inheritance is folded in, the dependency closure
// is checked for cycles, every foreach pattern refines the shared
// combination space (dependencies before dependents), and each
// definition becomes one Job.
func (g *Graph) Build(root string) (*Job, error) {
	defs, err := g.collectDefinitions(root)
	if err != nil {
		return nil, err
	}
	if err := checkCycles(root, defs); err != nil {
		return nil, err
	}
	if err := g.discoverFiles(root, defs, make(map[string]bool)); err != nil {
		return nil, err
	}
	g.logger.Debug("combination space ready", "root", root, "combinations", g.config.Space.Len())
	return g.buildJob(root, defs)
}

// collectDefinitions resolves the definitions of root and its whole
// dependency closure.
func (g *Graph) collectDefinitions(root string) (map[string]*jobfile.Definition, error) {
	defs := make(map[string]*jobfile.Definition)
	queue := []string{root}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, ok := defs[name]; ok {
			continue
		}
		def, err := g.config.File.Definition(name)
		if err != nil {
			return nil, err
		}
		defs[name] = def
		for _, dep := range def.Depends {
			queue = append(queue, dep.Job)
		}
	}
	return defs, nil
}

// checkCycles topologically sorts the dependency closure and fails
// when jobs remain unordered, naming them.
func checkCycles(root string, defs map[string]*jobfile.Definition) error {
	inDegree := make(map[string]int, len(defs))
	dependents := make(map[string][]string, len(defs))
	for name, def := range defs {
		if _, ok := inDegree[name]; !ok {
			inDegree[name] = 0
		}
		for _, dep := range def.Depends {
			inDegree[name]++
			dependents[dep.Job] = append(dependents[dep.Job], name)
		}
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	ordered := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		ordered++
		for _, next := range dependents[name] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if ordered != len(defs) {
		var cyclic []string
		for name, degree := range inDegree {
			if degree > 0 {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)
		return fmt.Errorf("dependencies of %q contain a cycle involving: %s",
			root, strings.Join(cyclic, ", "))
	}
	return nil
}

// discoverFiles refines the combination space with every job's foreach
// patterns, dependencies before dependents, each job once. The job's
// own parameters override document constants while a pattern renders.
func (g *Graph) discoverFiles(name string, defs map[string]*jobfile.Definition, seen map[string]bool) error {
	if seen[name] {
		return nil
	}
	seen[name] = true

	def := defs[name]
	for _, dep := range def.Depends {
		if err := g.discoverFiles(dep.Job, defs, seen); err != nil {
			return err
		}
	}

	settings := g.config.File.Settings
	for _, pattern := range def.ForEach {
		if err := g.config.Space.DiscoverFiles(pattern, settings.WorkDir, settings.Constants, def.Parameters); err != nil {
			return fmt.Errorf("job %q: %w", name, err)
		}
	}
	return nil
}

// buildJob constructs the node for a job, dependencies first. Nodes
// are memoized by name; checkCycles has run, so the recursion ends.
func (g *Graph) buildJob(name string, defs map[string]*jobfile.Definition) (*Job, error) {
	if job, ok := g.jobs[name]; ok {
		return job, nil
	}
	def := defs[name]
	deps := make([]dependencyEdge, 0, len(def.Depends))
	for _, d := range def.Depends {
		depJob, err := g.buildJob(d.Job, defs)
		if err != nil {
			return nil, err
		}
		deps = append(deps, dependencyEdge{job: depJob, foreach: d.ForEach})
	}
	job, err := g.newJob(def, deps)
	if err != nil {
		return nil, err
	}
	g.jobs[name] = job
	return job, nil
}
