package graph

import (
	"fmt"
	"reflect"
)

// Policy controls how a state key absorbs fragments returned by tasks.
type Policy string

const (
	// Replace keeps the latest written value.
	Replace Policy = "replace"
	// Append concatenates returned sequences onto the stored sequence.
	// Append keys always hold []any and never shrink during a run.
	Append Policy = "append"
)

// Schema declares the state keys of a graph and the merge policy of each.
type Schema map[string]Policy

// Validate rejects unknown policies and empty key names.
func (s Schema) Validate() error {
	for key, policy := range s {
		if key == "" {
			return fmt.Errorf("graph: schema key name is required")
		}
		switch policy {
		case Replace, Append:
		default:
			return fmt.Errorf("graph: key %s has unknown policy %q", key, policy)
		}
	}
	return nil
}

// Clone returns a copy of the schema.
func (s Schema) Clone() Schema {
	if len(s) == 0 {
		return Schema{}
	}
	out := make(Schema, len(s))
	for key, policy := range s {
		out[key] = policy
	}
	return out
}

// Merge folds a task fragment into dst according to each key's policy and
// returns dst. Keys absent from the schema default to Replace. The engine is
// the only caller during a run; tasks never merge state themselves.
func (s Schema) Merge(dst, fragment Values) Values {
	if dst == nil {
		dst = Values{}
	}
	for key, value := range fragment {
		if s[key] == Append {
			dst[key] = append(asList(dst[key]), asList(value)...)
			continue
		}
		dst[key] = cloneValue(value)
	}
	return dst
}

// Normalize clones values and coerces Append keys to []any so stored and
// reloaded states share one representation.
func (s Schema) Normalize(values Values) Values {
	out := make(Values, len(values))
	for key, value := range values {
		if s[key] == Append {
			out[key] = asList(value)
			continue
		}
		out[key] = cloneValue(value)
	}
	return out
}

// Values is the state payload of a run: declared keys mapped to
// JSON-serializable values. Tasks receive a cloned Values as their read-only
// view and return another Values as their fragment.
type Values map[string]any

// Clone returns a deep copy covering maps, slices, and scalars.
func (v Values) Clone() Values {
	if v == nil {
		return Values{}
	}
	out := make(Values, len(v))
	for key, value := range v {
		out[key] = cloneValue(value)
	}
	return out
}

// Project returns a clone restricted to the named keys. Missing keys are
// omitted rather than zero-filled.
func (v Values) Project(keys []string) Values {
	out := make(Values, len(keys))
	for _, key := range keys {
		if value, ok := v[key]; ok {
			out[key] = cloneValue(value)
		}
	}
	return out
}

// String returns the value under key when it is a string.
func (v Values) String(key string) string {
	s, _ := v[key].(string)
	return s
}

// Int returns the value under key as an int, tolerating the float64 form
// JSON round-trips produce.
func (v Values) Int(key string) int {
	switch n := v[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// List returns the value under key as a sequence. Non-sequence values are
// wrapped so Append-key consumers can iterate uniformly.
func (v Values) List(key string) []any {
	value, ok := v[key]
	if !ok {
		return nil
	}
	return asList(value)
}

// Strings returns the string elements of the sequence under key.
func (v Values) Strings(key string) []string {
	items := v.List(key)
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// asList coerces a value into []any: nil stays empty, sequences are copied
// element-wise, anything else becomes a single-element sequence.
func asList(value any) []any {
	if value == nil {
		return nil
	}
	if items, ok := value.([]any); ok {
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = cloneValue(item)
		}
		return out
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = cloneValue(rv.Index(i).Interface())
		}
		return out
	}
	return []any{cloneValue(value)}
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case Values:
		return map[string]any(typed.Clone())
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = item
		}
		return out
	default:
		return value
	}
}
