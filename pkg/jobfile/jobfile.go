// Package jobfile defines the jobs-document model: global settings,
// raw job descriptions, inheritance resolution and the typed job
// definitions extracted from them.
package jobfile

import (
	"fmt"
	"sort"
	"strings"
)

// Top-level settings a jobs document may carry. Unknown keys are
// rejected so typos fail loudly instead of being silently ignored.
var validSettings = map[string]bool{
	"account":              true,
	"const":                true,
	"foreach":              true,
	"jobs":                 true,
	"logdir":               true,
	"provenance_variables": true,
	"scheduler":            true,
	"skip_in_name":         true,
	"workdir":              true,
}

// Properties a job description may carry.
var validProperties = map[string]bool{
	"array":      true,
	"code":       true,
	"depends":    true,
	"epilog":     true,
	"filename":   true,
	"foreach":    true,
	"inherits":   true,
	"init":       true,
	"output":     true,
	"parameters": true,
	"prolog":     true,
	"scheduler":  true,
	"settings":   true,
	"time":       true,
	"workdir":    true,
}

// IsValidSetting reports whether name is a recognized top-level
// settings key.
func IsValidSetting(name string) bool {
	return validSettings[name]
}

// Enumeration is one document-level foreach axis in document order.
// Values are scalars, or mappings for correlated groups.
type Enumeration struct {
	Name   string
	Values []any
}

// ProvenanceVariable is one entry of provenance_variables: a global
// attribute name and the template recorded for it.
type ProvenanceVariable struct {
	Name     string
	Template string
}

// Settings holds the document-level configuration shared by all jobs.
type Settings struct {
	Account      string
	Constants    map[string]string
	Enumerations []Enumeration
	LogDir       string
	Provenance   []ProvenanceVariable
	Scheduler    map[string]any
	SkipInName   []string
	WorkDir      string
}

// File is a parsed jobs document. Jobs holds the raw descriptions as
// they appear in the document; ResolveJob and Definition turn them
// into usable form.
type File struct {
	Path     string
	Settings Settings
	Jobs     map[string]map[string]any

	resolved map[string]map[string]any
}

// JobNames returns all job names in sorted order.
func (f *File) JobNames() []string {
	names := make([]string, 0, len(f.Jobs))
	for name := range f.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RawJob returns the unresolved description of the named job.
func (f *File) RawJob(name string) (map[string]any, error) {
	desc, ok := f.Jobs[name]
	if !ok {
		return nil, fmt.Errorf("unknown job %q", name)
	}
	return desc, nil
}

// ResolveJob returns the job's description with its inheritance chain
// folded in: each ancestor is merged underneath, the job's own values
// winning, and the inherits property itself is consumed. Resolution
// is memoized per file.
func (f *File) ResolveJob(name string) (map[string]any, error) {
	return f.resolveJob(name, nil)
}

func (f *File) resolveJob(name string, chain []string) (map[string]any, error) {
	if desc, ok := f.resolved[name]; ok {
		return desc, nil
	}
	desc, err := f.RawJob(name)
	if err != nil {
		return nil, err
	}
	for _, ancestor := range chain {
		if ancestor == name {
			return nil, fmt.Errorf("inheritance cycle involving jobs: %s",
				strings.Join(append(chain, name), " -> "))
		}
	}

	inherits, ok := desc["inherits"]
	if ok {
		parentName, ok := inherits.(string)
		if !ok {
			return nil, fmt.Errorf("job %q: inherits must be a job name", name)
		}
		parent, err := f.resolveJob(parentName, append(chain, name))
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", name, err)
		}
		desc = DeepMerge(parent, desc)
		delete(desc, "inherits")
	}

	if f.resolved == nil {
		f.resolved = make(map[string]map[string]any)
	}
	f.resolved[name] = desc
	return desc, nil
}

// CodeType identifies the interpreter a job's code runs under.
type CodeType string

const (
	CodeTypeShell  CodeType = "shell"
	CodeTypePython CodeType = "python"
)

// CodeTypeOf derives the code type from a script file name.
func CodeTypeOf(filename string) (CodeType, error) {
	switch {
	case strings.HasSuffix(filename, ".sh"):
		return CodeTypeShell, nil
	case strings.HasSuffix(filename, ".py"), strings.HasSuffix(filename, ".py3"):
		return CodeTypePython, nil
	}
	return "", fmt.Errorf("unknown file extension for %s", filename)
}
