package params

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/me/jobtree/pkg/jobfile"
	"github.com/me/jobtree/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func comboKeys(combos []model.Combination) []string {
	keys := make([]string, 0, len(combos))
	for _, c := range combos {
		keys = append(keys, c.Key())
	}
	sort.Strings(keys)
	return keys
}

func wantKeys(t *testing.T, combos []model.Combination, want ...string) {
	t.Helper()
	got := comboKeys(combos)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("got %d combinations %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("combination %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestNewSpace_Empty(t *testing.T) {
	s := NewSpace(nil, testLogger())
	if s.Len() != 1 {
		t.Fatalf("got %d combinations, want the single empty one", s.Len())
	}
	if len(s.Combinations()[0]) != 0 {
		t.Errorf("got %v, want empty combination", s.Combinations()[0])
	}
}

func TestNewSpace_Cartesian(t *testing.T) {
	s := NewSpace([]jobfile.Enumeration{
		{Name: "model", Values: []any{"echam", "fesom"}},
		{Name: "year", Values: []any{2000, 2001}},
	}, testLogger())
	wantKeys(t, s.Combinations(),
		model.Combination{"model": "echam", "year": "2000"}.Key(),
		model.Combination{"model": "echam", "year": "2001"}.Key(),
		model.Combination{"model": "fesom", "year": "2000"}.Key(),
		model.Combination{"model": "fesom", "year": "2001"}.Key(),
	)
}

func TestNewSpace_CorrelatedGroup(t *testing.T) {
	s := NewSpace([]jobfile.Enumeration{
		{Name: "grid", Values: []any{
			map[string]any{"res": "high", "nx": 384},
			map[string]any{"res": "low", "nx": 96},
		}},
		{Name: "member", Values: []any{1, 2}},
	}, testLogger())
	wantKeys(t, s.Combinations(),
		model.Combination{"res": "high", "nx": "384", "member": "1"}.Key(),
		model.Combination{"res": "high", "nx": "384", "member": "2"}.Key(),
		model.Combination{"res": "low", "nx": "96", "member": "1"}.Key(),
		model.Combination{"res": "low", "nx": "96", "member": "2"}.Key(),
	)
}

func TestSpace_Recombine(t *testing.T) {
	s := NewSpace(nil, testLogger())
	s.combinations = []model.Combination{
		{"a": "1", "b": "1", "x": "1"},
		{"a": "1", "b": "2", "x": "1"},
		{"a": "2", "b": "1", "x": "2"},
	}

	tests := []struct {
		name     string
		fixed    model.Combination
		freeKeys []string
		want     []model.Combination
	}{
		{
			name:     "filter and project",
			fixed:    model.Combination{"a": "1"},
			freeKeys: []string{"b"},
			want: []model.Combination{
				{"a": "1", "b": "1"},
				{"a": "1", "b": "2"},
			},
		},
		{
			name:     "projection deduplicates",
			fixed:    model.Combination{"a": "1"},
			freeKeys: []string{"x"},
			want: []model.Combination{
				{"a": "1", "x": "1"},
			},
		},
		{
			name:     "no agreement",
			fixed:    model.Combination{"a": "3"},
			freeKeys: []string{"b"},
			want:     nil,
		},
		{
			name:     "missing key drops combination",
			fixed:    model.Combination{},
			freeKeys: []string{"missing"},
			want:     nil,
		},
		{
			name:     "empty projection",
			fixed:    model.Combination{},
			freeKeys: nil,
			want:     []model.Combination{{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Recombine(tt.fixed, tt.freeKeys)
			var want []string
			for _, c := range tt.want {
				want = append(want, c.Key())
			}
			wantKeys(t, got, want...)
		})
	}
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSpace_DiscoverFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "data/1.csv", "data/2.csv", "data/readme.txt")

	s := NewSpace(nil, testLogger())
	if err := s.DiscoverFiles("data/{{x}}.csv", dir); err != nil {
		t.Fatal(err)
	}
	wantKeys(t, s.Combinations(),
		model.Combination{"x": "1"}.Key(),
		model.Combination{"x": "2"}.Key(),
	)
}

func TestSpace_DiscoverFiles_RefinesExisting(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"echam/2000.nc",
		"echam/2001.nc",
		"fesom/2000.nc",
	)

	s := NewSpace([]jobfile.Enumeration{
		{Name: "model", Values: []any{"echam", "fesom"}},
	}, testLogger())
	if err := s.DiscoverFiles("{{model}}/{{year}}.nc", dir); err != nil {
		t.Fatal(err)
	}
	wantKeys(t, s.Combinations(),
		model.Combination{"model": "echam", "year": "2000"}.Key(),
		model.Combination{"model": "echam", "year": "2001"}.Key(),
		model.Combination{"model": "fesom", "year": "2000"}.Key(),
	)
}

func TestSpace_DiscoverFiles_ResolvedPassesThrough(t *testing.T) {
	dir := t.TempDir()

	s := NewSpace([]jobfile.Enumeration{
		{Name: "x", Values: []any{"1"}},
	}, testLogger())
	// The pattern resolves completely, so the combination survives
	// even though no such file exists.
	if err := s.DiscoverFiles("data/{{x}}.csv", dir); err != nil {
		t.Fatal(err)
	}
	wantKeys(t, s.Combinations(), model.Combination{"x": "1"}.Key())
}

func TestSpace_DiscoverFiles_NoMatchDrops(t *testing.T) {
	dir := t.TempDir()

	s := NewSpace(nil, testLogger())
	if err := s.DiscoverFiles("data/{{x}}.csv", dir); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Fatalf("got %v, want no combinations", s.Combinations())
	}
}

func TestSpace_DiscoverFiles_RepeatedName(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "pair_a_a.txt", "pair_a_b.txt", "pair_c_c.txt")

	s := NewSpace(nil, testLogger())
	if err := s.DiscoverFiles("pair_{{x}}_{{x}}.txt", dir); err != nil {
		t.Fatal(err)
	}
	wantKeys(t, s.Combinations(),
		model.Combination{"x": "a"}.Key(),
		model.Combination{"x": "c"}.Key(),
	)
}

func TestSpace_DiscoverFiles_ContextResolves(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "out/exp1/2000.nc", "out/exp2/2000.nc")

	s := NewSpace(nil, testLogger())
	err := s.DiscoverFiles("out/{{exp}}/{{year}}.nc", dir, map[string]string{"exp": "exp1"})
	if err != nil {
		t.Fatal(err)
	}
	// exp came from the context, so only year is discovered and only
	// exp1 files are considered.
	wantKeys(t, s.Combinations(), model.Combination{"year": "2000"}.Key())
}

func TestSpace_DiscoverFiles_AbsolutePattern(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "input/5.dat")

	s := NewSpace(nil, testLogger())
	pattern := filepath.Join(dir, "input", "{{n}}.dat")
	if err := s.DiscoverFiles(pattern, "/nonexistent"); err != nil {
		t.Fatal(err)
	}
	wantKeys(t, s.Combinations(), model.Combination{"n": "5"}.Key())
}
