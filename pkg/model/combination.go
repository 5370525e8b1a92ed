package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Combination is one concrete assignment of parameter names to values.
// Values are kept as strings; FormatValue defines how scalars from job
// documents are normalized on the way in.
type Combination map[string]string

// Key returns the canonical identity of the combination: parameter
// names sorted, each value quoted, joined with commas. Two combinations
// holding the same assignments produce the same key regardless of the
// order entries were added.
func (c Combination) Key() string {
	parts := make([]string, 0, len(c))
	for _, name := range c.Names() {
		parts = append(parts, name+"="+strconv.Quote(c[name]))
	}
	return strings.Join(parts, ",")
}

// String renders the combination the way run names show it:
// "name: value, name: value" with names sorted.
func (c Combination) String() string {
	parts := make([]string, 0, len(c))
	for _, name := range c.Names() {
		parts = append(parts, name+": "+c[name])
	}
	return strings.Join(parts, ", ")
}

// Names returns the parameter names in sorted order.
func (c Combination) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy of the combination.
func (c Combination) Clone() Combination {
	out := make(Combination, len(c))
	for name, value := range c {
		out[name] = value
	}
	return out
}

// Merge returns a new combination holding c's entries with other's
// entries laid over them. Neither input is modified.
func (c Combination) Merge(other Combination) Combination {
	out := make(Combination, len(c)+len(other))
	for name, value := range c {
		out[name] = value
	}
	for name, value := range other {
		out[name] = value
	}
	return out
}

// Project returns the subset of c restricted to the given names. Names
// absent from c are ignored.
func (c Combination) Project(names []string) Combination {
	out := make(Combination, len(names))
	for _, name := range names {
		if value, ok := c[name]; ok {
			out[name] = value
		}
	}
	return out
}

// PublicNames returns the sorted parameter names that are not internal.
func (c Combination) PublicNames() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		if !IsInternal(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IsInternal reports whether a parameter name is internal. Internal
// parameters render into templates but stay out of variable tracking,
// run descriptions and dependency projection.
func IsInternal(name string) bool {
	return strings.HasPrefix(name, "_")
}

// FormatValue normalizes a document scalar to its parameter string
// form. Booleans become "true"/"false", numbers their decimal
// rendering; anything else falls back to fmt.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// ParseAssignment splits a "name=value" argument as used by the CLI.
func ParseAssignment(arg string) (name, value string, err error) {
	name, value, ok := strings.Cut(arg, "=")
	if !ok || name == "" {
		return "", "", fmt.Errorf("malformed assignment %q, want name=value", arg)
	}
	return name, value, nil
}
