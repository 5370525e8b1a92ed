package scheduler

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/me/jobtree/internal/executor"
	"github.com/me/jobtree/internal/params"
	"github.com/me/jobtree/pkg/jobfile"
	"github.com/me/jobtree/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeExecutor records init commands and submissions and hands out
// sequential run ids starting at 101.
type fakeExecutor struct {
	inits       []executor.InitCommand
	requests    []executor.SubmitRequest
	nextID      int
	scheduleErr error
}

func (f *fakeExecutor) Open(ctx context.Context) error { return nil }

func (f *fakeExecutor) Init(ctx context.Context, cmd executor.InitCommand) error {
	f.inits = append(f.inits, cmd)
	return nil
}

func (f *fakeExecutor) Schedule(ctx context.Context, req executor.SubmitRequest) (string, error) {
	if f.scheduleErr != nil {
		return "", f.scheduleErr
	}
	f.requests = append(f.requests, req)
	f.nextID++
	return strconv.Itoa(100 + f.nextID), nil
}

func (f *fakeExecutor) Close(ctx context.Context) error { return nil }

// shellInits returns the recorded init commands that came from job
// init actions, leaving out the generated mkdir calls.
func (f *fakeExecutor) shellInits() []executor.InitCommand {
	var out []executor.InitCommand
	for _, cmd := range f.inits {
		if len(cmd.Argv) == 0 {
			out = append(out, cmd)
		}
	}
	return out
}

func (f *fakeExecutor) submittedNames() []string {
	names := make([]string, len(f.requests))
	for i, req := range f.requests {
		names[i] = req.Name
	}
	return names
}

// fakeResolver serves run states from a map, defaulting to WAITING.
type fakeResolver struct {
	states  map[string]model.RunState
	err     error
	queried []string
}

func (f *fakeResolver) Resolve(ctx context.Context, runID string) (model.RunState, error) {
	f.queried = append(f.queried, runID)
	if f.err != nil {
		return "", f.err
	}
	if state, ok := f.states[runID]; ok {
		return state, nil
	}
	return model.RunStateWaiting, nil
}

type testEnv struct {
	file       *jobfile.File
	space      *params.Space
	ledger     model.Ledger
	executor   *fakeExecutor
	resolver   *fakeResolver
	graph      *Graph
	workDir    string
	scriptsDir string
}

func withEnumerations(enums ...jobfile.Enumeration) func(*jobfile.Settings) {
	return func(s *jobfile.Settings) { s.Enumerations = enums }
}

func withConstants(constants map[string]string) func(*jobfile.Settings) {
	return func(s *jobfile.Settings) { s.Constants = constants }
}

func withProvenance(vars ...jobfile.ProvenanceVariable) func(*jobfile.Settings) {
	return func(s *jobfile.Settings) { s.Provenance = vars }
}

func newTestEnv(t *testing.T, jobs map[string]map[string]any, opts ...func(*jobfile.Settings)) *testEnv {
	t.Helper()
	workDir := t.TempDir()
	settings := jobfile.Settings{
		Account: "ab0123",
		WorkDir: workDir,
		LogDir:  filepath.Join(workDir, "log"),
	}
	for _, opt := range opts {
		opt(&settings)
	}

	env := &testEnv{
		file:       &jobfile.File{Settings: settings, Jobs: jobs},
		ledger:     make(model.Ledger),
		executor:   &fakeExecutor{},
		resolver:   &fakeResolver{states: make(map[string]model.RunState)},
		workDir:    workDir,
		scriptsDir: filepath.Join(workDir, "scripts"),
	}
	env.space = params.NewSpace(settings.Enumerations, testLogger())
	env.graph = env.newGraph()
	return env
}

// newGraph starts a fresh scheduling pass over the same document,
// space and ledger, the way a new process invocation would.
func (env *testEnv) newGraph() *Graph {
	return NewGraph(Config{
		File:       env.file,
		Space:      env.space,
		Ledger:     env.ledger,
		Executor:   env.executor,
		Resolver:   env.resolver,
		ScriptsDir: env.scriptsDir,
		Logger:     testLogger(),
	})
}

func (env *testEnv) writeScript(t *testing.T, name, content string) {
	t.Helper()
	if err := os.MkdirAll(env.scriptsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(env.scriptsDir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (env *testEnv) schedule(t *testing.T, root string, force bool) []string {
	t.Helper()
	job, err := env.graph.Build(root)
	if err != nil {
		t.Fatalf("Build(%q): %v", root, err)
	}
	ids, err := job.ScheduleTree(context.Background(), model.Combination{}, force)
	if err != nil {
		t.Fatalf("ScheduleTree(%q): %v", root, err)
	}
	return ids
}
