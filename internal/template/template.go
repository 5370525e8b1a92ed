// Package template renders {{name}} placeholder templates against
// parameter maps. It has two modes: strict rendering, which fails on
// unresolved names, and discovery rendering, which substitutes
// caller-chosen text for unresolved names and reports them. Tags
// starting with '+' hold expressions evaluated in a JavaScript
// runtime (see eval.go).
package template

import (
	"fmt"
	"strings"

	"github.com/me/jobtree/pkg/model"
)

// Substitution controls what discovery mode emits for an unresolved
// name. First is used on the first occurrence of a name, Repeated on
// every later one. A nil function emits the empty string.
type Substitution struct {
	First    func(name string) string
	Repeated func(name string) string
}

// Render substitutes placeholders from the given maps, later maps
// overriding earlier ones. Unresolved names that are not internal
// make the whole render fail with a *RenderError listing every one
// of them; unresolved internal names render empty.
func Render(tmpl string, params ...map[string]string) (string, error) {
	st := &renderState{
		merged:  mergeParams(params),
		missing: make(map[string]bool),
		strict:  true,
	}
	out, err := st.render(tmpl)
	if err != nil {
		return "", err
	}
	var failed []string
	for name := range st.missing {
		if !model.IsInternal(name) {
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		return "", newRenderError(tmpl, failed, st.merged)
	}
	return out, nil
}

// Discover substitutes placeholders like Render but never fails on
// unresolved names: each renders via sub and is reported in the
// returned sorted list. Expression tags are not evaluated in this
// mode; only the names they reference are recorded.
func Discover(tmpl string, sub Substitution, params ...map[string]string) (string, []string, error) {
	st := &renderState{
		merged:  mergeParams(params),
		sub:     sub,
		missing: make(map[string]bool),
	}
	out, err := st.render(tmpl)
	if err != nil {
		return "", nil, err
	}
	return out, sortedNames(st.missing), nil
}

type renderState struct {
	merged  map[string]string
	sub     Substitution
	missing map[string]bool
	hits    int // lookups that found no value, repeats included
	strict  bool
}

func (st *renderState) render(tmpl string) (string, error) {
	var out strings.Builder
	rest := tmpl
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		out.WriteString(rest[:open])
		rest = rest[open+2:]
		end := strings.Index(rest, "}}")
		if end < 0 {
			return "", fmt.Errorf("unclosed tag in template %q", excerptLine(tmpl))
		}
		tag := strings.TrimSpace(rest[:end])
		rest = rest[end+2:]

		if strings.HasPrefix(tag, "+") {
			val, err := st.renderExpression(tag[1:])
			if err != nil {
				return "", err
			}
			out.WriteString(val)
			continue
		}
		out.WriteString(st.lookup(tag))
	}
}

func (st *renderState) lookup(name string) string {
	if v, ok := st.merged[name]; ok {
		return v
	}
	st.hits++
	if st.missing[name] {
		if st.sub.Repeated != nil {
			return st.sub.Repeated(name)
		}
		return ""
	}
	st.missing[name] = true
	if st.sub.First != nil {
		return st.sub.First(name)
	}
	return ""
}

// renderExpression handles a '+' tag: the body is itself a template
// with [[name]] escaping {{name}}, rendered first and then evaluated
// as an expression. Discovery mode skips evaluation (a partially
// resolved expression is not meaningful) and emits nothing.
func (st *renderState) renderExpression(body string) (string, error) {
	fragment := strings.ReplaceAll(body, "[[", "{{")
	fragment = strings.ReplaceAll(fragment, "]]", "}}")

	before := st.hits
	rendered, err := st.render(fragment)
	if err != nil {
		return "", err
	}
	if !st.strict {
		return "", nil
	}
	if st.hits > before {
		// Unresolved names; the caller reports them all at once.
		return "", nil
	}
	val, err := EvalExpr(rendered)
	if err != nil {
		return "", fmt.Errorf("expression tag {{+%s}}: %w", body, err)
	}
	return model.FormatValue(val), nil
}

func mergeParams(params []map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, p := range params {
		for k, v := range p {
			merged[k] = v
		}
	}
	return merged
}

func excerptLine(tmpl string) string {
	line, _, _ := strings.Cut(tmpl, "\n")
	if len(line) > 80 {
		line = line[:80] + "..."
	}
	return line
}
