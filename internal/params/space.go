// Package params holds the shared parameter-combination space of a
// scheduling run: cartesian expansion of the document enumerations,
// refinement from filesystem patterns, and the projection used to
// walk dependency edges.
package params

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/me/jobtree/internal/template"
	"github.com/me/jobtree/pkg/jobfile"
	"github.com/me/jobtree/pkg/model"
)

// Space is the set of parameter combinations shared by every job of a
// run. Jobs refine it through DiscoverFiles and read it through
// Recombine.
type Space struct {
	combinations []model.Combination
	logger       *slog.Logger
}

// NewSpace cartesian-expands the document enumerations, starting from
// the singleton empty combination. Scalar values become one axis
// entry each; mapping values merge wholesale into the partial
// combination, so correlated groups move together.
func NewSpace(enums []jobfile.Enumeration, logger *slog.Logger) *Space {
	combos := []model.Combination{{}}
	for _, e := range enums {
		next := make([]model.Combination, 0, len(combos)*len(e.Values))
		for _, c := range combos {
			for _, v := range e.Values {
				merged := c.Clone()
				if group, ok := v.(map[string]any); ok {
					for name, gv := range group {
						merged[name] = model.FormatValue(gv)
					}
				} else {
					merged[e.Name] = model.FormatValue(v)
				}
				next = append(next, merged)
			}
		}
		combos = next
	}
	return &Space{
		combinations: combos,
		logger:       logger.With("component", "params"),
	}
}

// Len returns the number of combinations currently in the space.
func (s *Space) Len() int {
	return len(s.combinations)
}

// Combinations returns the current combinations. Callers must not
// modify the returned slice.
func (s *Space) Combinations() []model.Combination {
	return s.combinations
}

// DiscoverFiles refines the space with a file-pattern template. For
// each combination the pattern is rendered in discovery mode; names
// it leaves unresolved become capture positions, the filesystem is
// globbed, and every matching file contributes one refined
// combination carrying the captured values. Combinations that
// resolve the pattern completely pass through untouched; ones with
// unresolved names and no matching files are dropped. Relative
// patterns resolve against baseDir. Context maps override
// combination values during rendering.
func (s *Space) DiscoverFiles(pattern, baseDir string, context ...map[string]string) error {
	var next []model.Combination
	for _, c := range s.combinations {
		maps := append([]map[string]string{c}, context...)
		marked, missing, err := template.Discover(pattern, markerSubstitution(), maps...)
		if err != nil {
			return fmt.Errorf("pattern %q: %w", pattern, err)
		}
		if len(missing) == 0 {
			next = append(next, c)
			continue
		}

		if !filepath.IsAbs(stripMarkers(marked)) {
			marked = baseDir + string(filepath.Separator) + marked
		}
		marked = filepath.Clean(marked)

		globPattern := expandMarkers(marked, func(byte, string) string { return "*" })
		re, captures, err := markedRegexp(marked)
		if err != nil {
			return fmt.Errorf("pattern %q: %w", pattern, err)
		}

		files, err := filepath.Glob(globPattern)
		if err != nil {
			return fmt.Errorf("pattern %q: glob %q: %w", pattern, globPattern, err)
		}
		for _, file := range files {
			m := re.FindStringSubmatch(file)
			if m == nil {
				return fmt.Errorf("pattern %q: %s does not match %s", pattern, file, re)
			}
			captured := make(model.Combination, len(captures))
			for i, name := range captures {
				captured[name] = m[i+1]
			}
			if expected := expandMarkers(marked, func(_ byte, name string) string {
				return captured[name]
			}); expected != file {
				// Repeated names captured inconsistent values.
				s.logger.Debug("discovery skipped inconsistent match",
					"pattern", pattern,
					"file", file,
				)
				continue
			}
			next = append(next, c.Merge(captured))
		}
	}
	s.combinations = next
	return nil
}

// Recombine returns the combinations agreeing with fixed, projected
// onto fixed's names plus freeKeys and deduplicated. Combinations
// missing one of the requested keys, or disagreeing with fixed, are
// dropped.
func (s *Space) Recombine(fixed model.Combination, freeKeys []string) []model.Combination {
	keys := append(fixed.Names(), freeKeys...)
	seen := make(map[string]bool)
	var out []model.Combination

combination:
	for _, c := range s.combinations {
		for name, want := range fixed {
			if got, ok := c[name]; !ok || got != want {
				continue combination
			}
		}
		proj := make(model.Combination, len(keys))
		for _, key := range keys {
			v, ok := c[key]
			if !ok {
				continue combination
			}
			proj[key] = v
		}
		if key := proj.Key(); !seen[key] {
			seen[key] = true
			out = append(out, proj)
		}
	}
	return out
}

// Unresolved-name markers survive template rendering so glob and
// regexp forms can be derived from one rendered string. NUL cannot
// appear in paths.
const (
	markerByte    = '\x00'
	markerFirst   = 'F'
	markerRepeats = 'R'
)

func markerSubstitution() template.Substitution {
	return template.Substitution{
		First: func(name string) string {
			return string(markerByte) + string(markerFirst) + name + string(markerByte)
		},
		Repeated: func(name string) string {
			return string(markerByte) + string(markerRepeats) + name + string(markerByte)
		},
	}
}

// expandMarkers replaces each marker with repl(kind, name) and copies
// literal text through unchanged.
func expandMarkers(s string, repl func(kind byte, name string) string) string {
	var out strings.Builder
	for {
		start := strings.IndexByte(s, markerByte)
		if start < 0 {
			out.WriteString(s)
			return out.String()
		}
		out.WriteString(s[:start])
		rest := s[start+1:]
		end := strings.IndexByte(rest, markerByte)
		if end < 1 {
			// Unterminated marker cannot happen with markerSubstitution.
			out.WriteString(s[start:])
			return out.String()
		}
		out.WriteString(repl(rest[0], rest[1:end]))
		s = rest[end+1:]
	}
}

func stripMarkers(s string) string {
	return expandMarkers(s, func(byte, string) string { return "" })
}

// markedRegexp builds the anchored match expression: literals quoted,
// first occurrences capturing a non-separator run, repeats matching
// without capturing. Returns the capture names in group order.
func markedRegexp(marked string) (*regexp.Regexp, []string, error) {
	var expr strings.Builder
	var captures []string
	expr.WriteString("^")
	rest := marked
	for {
		start := strings.IndexByte(rest, markerByte)
		if start < 0 {
			expr.WriteString(regexp.QuoteMeta(rest))
			break
		}
		expr.WriteString(regexp.QuoteMeta(rest[:start]))
		rest = rest[start+1:]
		end := strings.IndexByte(rest, markerByte)
		if end < 1 {
			expr.WriteString(regexp.QuoteMeta(rest))
			break
		}
		if rest[0] == markerFirst {
			captures = append(captures, rest[1:end])
			expr.WriteString("([^/]*)")
		} else {
			expr.WriteString("[^/]*")
		}
		rest = rest[end+1:]
	}
	expr.WriteString("$")
	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, nil, fmt.Errorf("compile %q: %w", expr.String(), err)
	}
	return re, captures, nil
}
