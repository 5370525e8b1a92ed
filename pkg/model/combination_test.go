package model

import (
	"reflect"
	"testing"
)

func TestCombination_KeyOrderIndependent(t *testing.T) {
	a := Combination{}
	a["x"] = "1"
	a["y"] = "2"
	a["z"] = "3"

	b := Combination{}
	b["z"] = "3"
	b["x"] = "1"
	b["y"] = "2"

	if a.Key() != b.Key() {
		t.Errorf("keys differ for equal maps: %q vs %q", a.Key(), b.Key())
	}
}

func TestCombination_KeyDistinguishesValues(t *testing.T) {
	tests := []struct {
		name string
		a, b Combination
	}{
		{"different value", Combination{"x": "1"}, Combination{"x": "2"}},
		{"different name", Combination{"x": "1"}, Combination{"y": "1"}},
		{"extra param", Combination{"x": "1"}, Combination{"x": "1", "y": "2"}},
		{"separator in value", Combination{"a": "1,b=2"}, Combination{"a": "1", "b": "2"}},
	}
	for _, tt := range tests {
		if tt.a.Key() == tt.b.Key() {
			t.Errorf("%s: distinct combinations share key %q", tt.name, tt.a.Key())
		}
	}
}

func TestCombination_String(t *testing.T) {
	c := Combination{"year": "2000", "model": "echam"}
	if got, want := c.String(), "model: echam, year: 2000"; got != want {
		t.Errorf("String = %q, want %q", got, want)
	}
	if got := (Combination{}).String(); got != "" {
		t.Errorf("empty String = %q, want empty", got)
	}
}

func TestCombination_MergeDoesNotMutate(t *testing.T) {
	base := Combination{"a": "1", "b": "2"}
	over := Combination{"b": "9", "c": "3"}

	got := base.Merge(over)

	want := Combination{"a": "1", "b": "9", "c": "3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge = %v, want %v", got, want)
	}
	if base["b"] != "2" {
		t.Errorf("Merge mutated receiver: b = %q", base["b"])
	}
}

func TestCombination_Project(t *testing.T) {
	c := Combination{"a": "1", "b": "2", "c": "3"}

	got := c.Project([]string{"a", "c", "missing"})

	want := Combination{"a": "1", "c": "3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Project = %v, want %v", got, want)
	}
}

func TestCombination_PublicNames(t *testing.T) {
	c := Combination{"b": "2", "_hidden": "x", "a": "1"}

	got := c.PublicNames()

	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PublicNames = %v, want %v", got, want)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"plain", "plain"},
		{42, "42"},
		{int64(7), "7"},
		{1.5, "1.5"},
		{true, "true"},
		{false, "false"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseAssignment(t *testing.T) {
	name, value, err := ParseAssignment("steps=1000")
	if err != nil {
		t.Fatalf("ParseAssignment: %v", err)
	}
	if name != "steps" || value != "1000" {
		t.Errorf("ParseAssignment = (%q, %q), want (steps, 1000)", name, value)
	}

	if _, _, err := ParseAssignment("no-equals"); err == nil {
		t.Error("expected error for argument without =")
	}
	if _, _, err := ParseAssignment("=value"); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestLedger_RecordAndLookup(t *testing.T) {
	l := make(Ledger)
	rec := &RunRecord{Params: Combination{"n": "128"}, RunID: "451"}

	l.Record("prepare", rec)

	got, ok := l.Lookup("prepare", Combination{"n": "128"}.Key())
	if !ok {
		t.Fatal("record not found after Record")
	}
	if got.RunID != "451" {
		t.Errorf("RunID = %q, want 451", got.RunID)
	}
	if _, ok := l.Lookup("prepare", Combination{"n": "256"}.Key()); ok {
		t.Error("lookup of unrecorded combination succeeded")
	}
	if _, ok := l.Lookup("simulate", rec.Params.Key()); ok {
		t.Error("lookup under wrong job succeeded")
	}
}

func TestLedger_JobsSorted(t *testing.T) {
	l := make(Ledger)
	for _, job := range []string{"simulate", "analyze", "prepare"} {
		l.Record(job, &RunRecord{Params: Combination{}, RunID: "local"})
	}

	want := []string{"analyze", "prepare", "simulate"}
	if got := l.Jobs(); !reflect.DeepEqual(got, want) {
		t.Errorf("Jobs = %v, want %v", got, want)
	}
}
