package template

import (
	"sort"
	"strings"
)

// Settings are canonically nested maps in memory. The persistence layer and
// older editor payloads use flat dot-qualified keys ("colors.primary"), so
// conversion happens exactly at those boundaries.

// FlattenSettings converts a nested settings map to a flat map with
// dot-qualified keys. Nested non-map values are carried through unchanged.
func FlattenSettings(nested map[string]interface{}) map[string]interface{} {
	if nested == nil {
		return nil
	}
	flat := make(map[string]interface{}, len(nested))
	flattenInto(flat, "", nested)
	return flat
}

func flattenInto(flat map[string]interface{}, prefix string, value map[string]interface{}) {
	for key, val := range value {
		qualified := key
		if prefix != "" {
			qualified = prefix + "." + key
		}
		if child, ok := val.(map[string]interface{}); ok && len(child) > 0 {
			flattenInto(flat, qualified, child)
			continue
		}
		flat[qualified] = val
	}
}

// UnflattenSettings converts a flat dot-keyed map to the canonical nested
// form. Keys are applied in sorted order, so when a scalar key collides with
// a longer key's prefix the nested value wins and the result is the same on
// every call.
func UnflattenSettings(flat map[string]interface{}) map[string]interface{} {
	if flat == nil {
		return nil
	}
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	nested := make(map[string]interface{}, len(flat))
	for _, key := range keys {
		val := flat[key]
		parts := strings.Split(key, ".")
		current := nested
		for i, part := range parts {
			if i == len(parts)-1 {
				current[part] = val
				break
			}
			child, ok := current[part].(map[string]interface{})
			if !ok {
				child = make(map[string]interface{})
				current[part] = child
			}
			current = child
		}
	}
	return nested
}

// MergeSettings overlays instance settings onto theme defaults. The merge is
// shallow per dot-qualified key: an override wins only for the keys it
// explicitly sets, unset keys fall through to the defaults. A default key
// that structurally conflicts with an override (a descendant of an override
// scalar, or an ancestor prefix of an override) is dropped, so the override
// value always survives. Both inputs may be nested; the result is nested.
func MergeSettings(defaults, overrides map[string]interface{}) map[string]interface{} {
	if len(defaults) == 0 && len(overrides) == 0 {
		return nil
	}
	merged := make(map[string]interface{})
	for key, val := range FlattenSettings(defaults) {
		merged[key] = val
	}
	for key, val := range FlattenSettings(overrides) {
		prefix := key + "."
		for existing := range merged {
			if strings.HasPrefix(existing, prefix) {
				delete(merged, existing)
			}
		}
		for i := strings.LastIndexByte(key, '.'); i > 0; i = strings.LastIndexByte(key[:i], '.') {
			delete(merged, key[:i])
		}
		merged[key] = val
	}
	return UnflattenSettings(merged)
}

// CloneSettings deep-copies a nested settings map so cached values cannot be
// mutated by callers.
func CloneSettings(settings map[string]interface{}) map[string]interface{} {
	if settings == nil {
		return nil
	}
	clone := make(map[string]interface{}, len(settings))
	for key, val := range settings {
		clone[key] = cloneValue(val)
	}
	return clone
}

func cloneValue(val interface{}) interface{} {
	switch v := val.(type) {
	case map[string]interface{}:
		return CloneSettings(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
