package template

import (
	"fmt"
	"sort"
	"strings"
)

// RenderError reports unresolved names from a strict render. It
// carries the first lines of the template and the known parameter
// names so a misspelled placeholder can be diagnosed from the message
// alone.
type RenderError struct {
	Missing  []string
	Template string
	Params   []string
}

const excerptLines = 5

func newRenderError(tmpl string, missing []string, merged map[string]string) *RenderError {
	sort.Strings(missing)
	return &RenderError{
		Missing:  missing,
		Template: tmpl,
		Params:   sortedNames(boolKeys(merged)),
	}
}

func (e *RenderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "missing parameters '%s' in template:\n", strings.Join(e.Missing, "', '"))
	lines := strings.Split(e.Template, "\n")
	for i, line := range lines {
		if i == excerptLines {
			b.WriteString("    ...\n")
			break
		}
		b.WriteString("    " + line + "\n")
	}
	fmt.Fprintf(&b, "parameters: %s", strings.Join(e.Params, ", "))
	return b.String()
}

func boolKeys(m map[string]string) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
