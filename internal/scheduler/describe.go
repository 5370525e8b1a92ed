package scheduler

import (
	"strings"

	"github.com/me/jobtree/pkg/model"
)

// runDescription compresses a combination into a run-name suffix: one
// "_<initials><value>" segment per parameter not listed in ignore, in
// name order. Boolean values shorten to 1 and 0.
func runDescription(c model.Combination, ignore []string) string {
	skip := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		skip[name] = true
	}
	var b strings.Builder
	for _, name := range c.Names() {
		if skip[name] {
			continue
		}
		b.WriteString("_")
		b.WriteString(initials(name))
		b.WriteString(shortValue(c[name]))
	}
	return b.String()
}

// initials keeps the first letter of each underscore-separated word of
// a parameter name, so start_year becomes sy.
func initials(name string) string {
	var b strings.Builder
	for _, word := range strings.Split(name, "_") {
		if word != "" {
			b.WriteByte(word[0])
		}
	}
	return b.String()
}

func shortValue(v string) string {
	switch v {
	case "true":
		return "1"
	case "false":
		return "0"
	}
	return v
}

// commonParams labels an array batch with the key-value pairs shared
// by every combination, rendered like a combination. The label only
// shows up in the run name; scheduling identity stays with the
// individual combinations.
func commonParams(combos []model.Combination) string {
	if len(combos) == 0 {
		return ""
	}
	common := combos[0].Clone()
	for _, c := range combos[1:] {
		for name, value := range common {
			if c[name] != value {
				delete(common, name)
			}
		}
	}
	return common.String()
}
