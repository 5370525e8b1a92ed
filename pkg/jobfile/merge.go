package jobfile

// DeepMerge combines two job descriptions without modifying either.
// Mappings merge key by key, sequences merge element by element with
// the longer tail preserved, and anything else is replaced by the
// overlay value.
func DeepMerge(base, overlay map[string]any) map[string]any {
	return mergeMaps(base, overlay)
}

func mergeMaps(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		if ov, ok := overlay[k]; ok {
			out[k] = mergeValues(v, ov)
		} else {
			out[k] = cloneValue(v)
		}
	}
	for k, v := range overlay {
		if _, ok := base[k]; !ok {
			out[k] = cloneValue(v)
		}
	}
	return out
}

func mergeValues(base, overlay any) any {
	switch b := base.(type) {
	case map[string]any:
		if o, ok := overlay.(map[string]any); ok {
			return mergeMaps(b, o)
		}
	case []any:
		if o, ok := overlay.([]any); ok {
			return mergeLists(b, o)
		}
	}
	return cloneValue(overlay)
}

func mergeLists(base, overlay []any) []any {
	n := len(base)
	if len(overlay) > n {
		n = len(overlay)
	}
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		switch {
		case i >= len(overlay):
			out = append(out, cloneValue(base[i]))
		case i >= len(base):
			out = append(out, cloneValue(overlay[i]))
		default:
			out = append(out, mergeValues(base[i], overlay[i]))
		}
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
