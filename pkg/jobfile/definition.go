package jobfile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/me/jobtree/pkg/model"
)

// Definition is a job description after inheritance resolution, with
// every property extracted into typed form.
type Definition struct {
	Name     string
	Code     string // inline shell code
	FileName string // script file under the scripts directory
	Array    bool
	WorkDir  string
	Prolog   string
	Epilog   string
	Time     string

	// ForEach holds file-pattern templates that refine the
	// combination space; Output holds output-file templates.
	ForEach []string
	Output  []string

	// Parameters are the job's fixed values and value templates.
	Parameters map[string]string

	// Settings is the raw settings subtree handed to the job's code
	// as a rendered document. HasSettings distinguishes an absent
	// property from an empty one.
	Settings    any
	HasSettings bool

	Init    []InitSpec
	Depends []Dependency

	// Scheduler is the document-level scheduler section with the
	// job's own entries laid over it.
	Scheduler map[string]any
}

// InitSpec is one init action: inline code or a script file.
type InitSpec struct {
	Code     string
	FileName string
}

// Dependency is an edge to another job. ForEach names the parameters
// of the current combination passed down to the dependency; nil
// passes the whole combination.
type Dependency struct {
	Job     string
	ForEach []string
}

// Definition resolves the named job's inheritance and extracts its
// typed definition.
func (f *File) Definition(name string) (*Definition, error) {
	desc, err := f.ResolveJob(name)
	if err != nil {
		return nil, err
	}

	var unknown []string
	for key := range desc {
		if !validProperties[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("job %q: unknown properties: %s", name, strings.Join(unknown, ", "))
	}

	d := &Definition{Name: name}
	fields := []struct {
		key string
		dst *string
	}{
		{"code", &d.Code},
		{"filename", &d.FileName},
		{"workdir", &d.WorkDir},
		{"prolog", &d.Prolog},
		{"epilog", &d.Epilog},
		{"time", &d.Time},
	}
	for _, fld := range fields {
		s, err := optionalString(desc, fld.key)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", name, err)
		}
		*fld.dst = s
	}

	array, err := optionalBool(desc, "array")
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", name, err)
	}
	d.Array = array

	if d.ForEach, err = optionalStringList(desc, "foreach"); err != nil {
		return nil, fmt.Errorf("job %q: %w", name, err)
	}
	if d.Output, err = optionalStringList(desc, "output"); err != nil {
		return nil, fmt.Errorf("job %q: %w", name, err)
	}

	if d.Parameters, err = parameterMap(desc); err != nil {
		return nil, fmt.Errorf("job %q: %w", name, err)
	}

	d.Settings, d.HasSettings = desc["settings"]

	if d.Init, err = initSpecs(desc); err != nil {
		return nil, fmt.Errorf("job %q: %w", name, err)
	}
	if d.Depends, err = dependencies(desc); err != nil {
		return nil, fmt.Errorf("job %q: %w", name, err)
	}

	jobSched, err := optionalMapping(desc, "scheduler")
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", name, err)
	}
	d.Scheduler = make(map[string]any, len(f.Settings.Scheduler)+len(jobSched))
	for k, v := range f.Settings.Scheduler {
		d.Scheduler[k] = cloneValue(v)
	}
	for k, v := range jobSched {
		d.Scheduler[k] = cloneValue(v)
	}
	if d.Time != "" {
		if _, ok := d.Scheduler["time"]; !ok {
			d.Scheduler["time"] = d.Time
		}
	}

	return d, nil
}

// SchedulerValue returns the scheduler entry for key, or fallback
// when the entry is absent or empty.
func (d *Definition) SchedulerValue(key, fallback string) string {
	v, ok := d.Scheduler[key]
	if !ok || v == nil {
		return fallback
	}
	s := model.FormatValue(v)
	if s == "" {
		return fallback
	}
	return s
}

// Threads returns the scheduler thread count, defaulting to 1.
func (d *Definition) Threads() int {
	n, err := strconv.Atoi(d.SchedulerValue("threads", "1"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func optionalString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, v)
	}
	return s, nil
}

func optionalBool(m map[string]any, key string) (bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s must be a boolean, got %T", key, v)
	}
	return b, nil
}

func optionalStringList(m map[string]any, key string) ([]string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a list, got %T", key, v)
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string, got %T", key, i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

func optionalMapping(m map[string]any, key string) (map[string]any, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	mv, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a mapping, got %T", key, v)
	}
	return mv, nil
}

func parameterMap(desc map[string]any) (map[string]string, error) {
	raw, err := optionalMapping(desc, "parameters")
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for name, v := range raw {
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("parameters.%s must be a scalar, got %T", name, v)
		}
		out[name] = model.FormatValue(v)
	}
	return out, nil
}

func initSpecs(desc map[string]any) ([]InitSpec, error) {
	v, ok := desc["init"]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("init must be a list, got %T", v)
	}
	out := make([]InitSpec, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("init[%d] must be a mapping, got %T", i, item)
		}
		code, err := optionalString(entry, "code")
		if err != nil {
			return nil, fmt.Errorf("init[%d]: %w", i, err)
		}
		filename, err := optionalString(entry, "filename")
		if err != nil {
			return nil, fmt.Errorf("init[%d]: %w", i, err)
		}
		if code == "" && filename == "" {
			return nil, fmt.Errorf("init[%d] needs code or filename", i)
		}
		out = append(out, InitSpec{Code: code, FileName: filename})
	}
	return out, nil
}

func dependencies(desc map[string]any) ([]Dependency, error) {
	v, ok := desc["depends"]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("depends must be a list, got %T", v)
	}
	out := make([]Dependency, 0, len(list))
	for i, item := range list {
		switch entry := item.(type) {
		case string:
			// Shorthand: depend on the job sharing the whole
			// combination.
			out = append(out, Dependency{Job: entry})
		case map[string]any:
			job, err := optionalString(entry, "job")
			if err != nil {
				return nil, fmt.Errorf("depends[%d]: %w", i, err)
			}
			if job == "" {
				return nil, fmt.Errorf("depends[%d] needs a job name", i)
			}
			if _, ok := entry["foreach"]; !ok {
				return nil, fmt.Errorf("depends[%d] (%s): foreach is required", i, job)
			}
			foreach, err := optionalStringList(entry, "foreach")
			if err != nil {
				return nil, fmt.Errorf("depends[%d] (%s): %w", i, job, err)
			}
			if foreach == nil {
				foreach = []string{}
			}
			out = append(out, Dependency{Job: job, ForEach: foreach})
		default:
			return nil, fmt.Errorf("depends[%d] must be a job name or mapping, got %T", i, item)
		}
	}
	return out, nil
}
