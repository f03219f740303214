package datatype

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Normalize converts a decoded value into the canonical JSON shape used by
// rule evaluation: map[string]any, []any, string, float64, bool or nil.
// Values produced by YAML decoders, script engines or Go literals
// (ints, map[any]any, typed slices) are converted recursively.
// Containers nested deeper than MaxDepth are replaced with nil; use
// NormalizeBounded to detect them.
func Normalize(v any) any {
	out, _ := NormalizeBounded(v)
	return out
}

// NormalizeBounded is Normalize that reports a MaxDepthExceeded violation
// instead of descending past MaxDepth. Self-referential values always hit
// the limit. The violation has no type identifier; callers fill it in.
func NormalizeBounded(v any) (any, []Violation) {
	n := normalizer{}
	out := n.value(v, "$", 0)
	if n.overflow == "" {
		return out, nil
	}
	return out, []Violation{{
		Kind:        ViolationMaxDepthExceeded,
		Path:        n.overflow,
		Explanation: fmt.Sprintf("document nesting exceeds %d levels", MaxDepth),
		Details:     map[string]any{"max_depth": MaxDepth},
	}}
}

type normalizer struct {
	overflow string // path of the first container past MaxDepth
}

func (n *normalizer) container(path string, depth int) bool {
	if depth <= MaxDepth {
		return true
	}
	if n.overflow == "" {
		n.overflow = path
	}
	return false
}

func (n *normalizer) value(v any, path string, depth int) any {
	switch x := v.(type) {
	case nil, string, bool, float64:
		return x
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case map[string]any:
		if !n.container(path, depth) {
			return nil
		}
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = n.value(val, keyPath(path, k), depth+1)
		}
		return out
	case map[any]any:
		if !n.container(path, depth) {
			return nil
		}
		out := make(map[string]any, len(x))
		for k, val := range x {
			key := fmt.Sprint(k)
			out[key] = n.value(val, keyPath(path, key), depth+1)
		}
		return out
	case []any:
		if !n.container(path, depth) {
			return nil
		}
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = n.value(val, indexPath(path, i), depth+1)
		}
		return out
	case []string:
		if !n.container(path, depth) {
			return nil
		}
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = val
		}
		return out
	case []map[string]any:
		if !n.container(path, depth) {
			return nil
		}
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = n.value(val, indexPath(path, i), depth+1)
		}
		return out
	}

	// Named map and slice types (flow.Settings, map[string]string) walk
	// like their plain forms.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		if !n.container(path, depth) {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprint(iter.Key().Interface())
			out[key] = n.value(iter.Value().Interface(), keyPath(path, key), depth+1)
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && (rv.IsNil() || rv.Type().Elem().Kind() == reflect.Uint8) {
			break
		}
		if !n.container(path, depth) {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = n.value(rv.Index(i).Interface(), indexPath(path, i), depth+1)
		}
		return out
	}

	// Round-trip anything else through JSON (structs, byte slices).
	// encoding/json rejects cyclic pointers, which are then kept as is.
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return n.value(out, path, depth)
}

// render formats a value compactly for explanations.
func render(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
