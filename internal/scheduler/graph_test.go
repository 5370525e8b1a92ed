package scheduler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/me/jobtree/pkg/jobfile"
)

func TestBuildRejectsDependencyCycle(t *testing.T) {
	env := newTestEnv(t, map[string]map[string]any{
		"ingest": {
			"code":    "ingest\n",
			"depends": []any{"publish"},
		},
		"publish": {
			"code":    "publish\n",
			"depends": []any{"ingest"},
		},
	})

	_, err := env.graph.Build("ingest")
	if err == nil {
		t.Fatal("expected a cycle error")
	}
	if !strings.Contains(err.Error(), "cycle involving: ingest, publish") {
		t.Errorf("error = %q, want the cycle members named", err)
	}
}

func TestBuildRejectsUnknownDependency(t *testing.T) {
	env := newTestEnv(t, map[string]map[string]any{
		"simulate": {
			"code":    "sim\n",
			"depends": []any{"ghost"},
		},
	})

	_, err := env.graph.Build("simulate")
	if err == nil || !strings.Contains(err.Error(), `unknown job "ghost"`) {
		t.Errorf("error = %v, want unknown job", err)
	}
}

func TestBuildSharesDependencyNodes(t *testing.T) {
	env := newTestEnv(t, map[string]map[string]any{
		"prepare": {"code": "prep\n"},
		"analyze": {
			"code": "analyze\n",
			"depends": []any{
				map[string]any{"job": "prepare", "foreach": []any{"year"}},
				map[string]any{"job": "prepare", "foreach": []any{"model"}},
			},
		},
	})

	job, err := env.graph.Build("analyze")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(job.deps) != 2 {
		t.Fatalf("len(deps) = %d, want 2", len(job.deps))
	}
	if job.deps[0].job != job.deps[1].job {
		t.Error("both edges should point at the same node")
	}
}

func TestBuildDiscoversFilePatterns(t *testing.T) {
	env := newTestEnv(t, map[string]map[string]any{
		"ingest": {
			"foreach": []any{"data/{{model}}.nc"},
			"code":    "ingest {{_p0}}\n",
		},
	})
	dataDir := filepath.Join(env.workDir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"echam.nc", "mpiom.nc"} {
		if err := os.WriteFile(filepath.Join(dataDir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	job, err := env.graph.Build("ingest")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := job.Variables(); len(got) != 1 || got[0] != "model" {
		t.Fatalf("Variables() = %v, want [model]", got)
	}
	if env.space.Len() != 2 {
		t.Fatalf("space has %d combinations, want 2", env.space.Len())
	}

	ids := env.schedule(t, "ingest", false)
	if len(ids) != 2 {
		t.Fatalf("run ids = %v, want 2", ids)
	}
	names := env.executor.submittedNames()
	want := []string{"ingest(model: echam)", "ingest(model: mpiom)"}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("request[%d].Name = %q, want %q", i, names[i], name)
		}
	}
	if script := env.executor.requests[0].Script; !strings.Contains(script, "ingest data/echam.nc\n") {
		t.Errorf("script should carry the rendered pattern:\n%s", script)
	}
}

func TestBuildDiscoversDependencyPatternsFirst(t *testing.T) {
	env := newTestEnv(t, map[string]map[string]any{
		"convert": {
			"foreach": []any{"raw/{{station}}.csv"},
			"code":    "convert {{_p0}}\n",
		},
		"merge": {
			"code":       "merge {{station}}\n",
			"parameters": map[string]any{"s": "{{station}}"},
			"depends":    []any{map[string]any{"job": "convert", "foreach": []any{"station"}}},
		},
	})
	rawDir := filepath.Join(env.workDir, "raw")
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"bergen.csv", "oslo.csv"} {
		if err := os.WriteFile(filepath.Join(rawDir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ids := env.schedule(t, "merge", false)
	if len(ids) != 2 {
		t.Fatalf("run ids = %v, want one per station", ids)
	}
	names := env.executor.submittedNames()
	want := []string{
		"convert(station: bergen)",
		"merge(station: bergen)",
		"convert(station: oslo)",
		"merge(station: oslo)",
	}
	if len(names) != len(want) {
		t.Fatalf("submitted %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("request[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestBuildLoadsScriptFiles(t *testing.T) {
	env := newTestEnv(t, map[string]map[string]any{
		"analyze": {"filename": "analyze.py"},
	})
	env.writeScript(t, "analyze.py", "print('analyzing')\n")

	job, err := env.graph.Build("analyze")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if job.codeType != jobfile.CodeTypePython {
		t.Errorf("codeType = %q, want python", job.codeType)
	}
	if job.code != "print('analyzing')\n" {
		t.Errorf("code = %q", job.code)
	}
}

func TestBuildRejectsUnknownScriptExtension(t *testing.T) {
	env := newTestEnv(t, map[string]map[string]any{
		"analyze": {"filename": "analyze.txt"},
	})

	_, err := env.graph.Build("analyze")
	if err == nil || !strings.Contains(err.Error(), "unknown file extension") {
		t.Errorf("error = %v, want unknown file extension", err)
	}
}

func TestBuildMissingScriptFile(t *testing.T) {
	env := newTestEnv(t, map[string]map[string]any{
		"analyze": {"filename": "analyze.sh"},
	})

	_, err := env.graph.Build("analyze")
	if err == nil || !strings.Contains(err.Error(), `job "analyze"`) {
		t.Errorf("error = %v, want a job-scoped read error", err)
	}
}
