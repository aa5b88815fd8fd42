// Package normalize produces a canonical, hash-stable form of event
// payloads. Two payloads that differ only in object key order or in
// volatile bookkeeping fields normalize to identical bytes.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// CircularSentinel replaces any value already on the current recursion
// path. A defensive measure, not a graph serializer: payloads are
// expected to be tree-shaped in practice.
const CircularSentinel = "[circular]"

// volatileFields vary between otherwise-identical retries and must not
// affect the fingerprint.
var volatileFields = map[string]struct{}{
	"timestamp":    {},
	"createdAt":    {},
	"updatedAt":    {},
	"lastModified": {},
}

// Normalize recursively rewrites v: primitives pass through unchanged,
// arrays map element-wise preserving order, objects are rebuilt with
// volatile fields removed. Cycles are cut with CircularSentinel.
// Pure: the input is never mutated.
func Normalize(v interface{}) interface{} {
	return normalize(v, map[uintptr]struct{}{})
}

func normalize(v interface{}, path map[uintptr]struct{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		ptr := reflect.ValueOf(val).Pointer()
		if _, on := path[ptr]; on {
			return CircularSentinel
		}
		path[ptr] = struct{}{}
		defer delete(path, ptr)

		out := make(map[string]interface{}, len(val))
		for k, elem := range val {
			if _, volatile := volatileFields[k]; volatile {
				continue
			}
			out[k] = normalize(elem, path)
		}
		return out
	case []interface{}:
		ptr := reflect.ValueOf(val).Pointer()
		if _, on := path[ptr]; on {
			return CircularSentinel
		}
		path[ptr] = struct{}{}
		defer delete(path, ptr)

		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = normalize(elem, path)
		}
		return out
	default:
		// Primitives (string, bool, numbers, nil) pass through.
		return val
	}
}

// MarshalCanonical serializes a normalized value with object keys in
// lexicographic order, yielding deterministic bytes for hashing.
// Only JSON-shaped values (maps, slices, primitives) are supported.
func MarshalCanonical(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("marshal key %q: %w", k, err)
			}
			buf.Write(keyJSON)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		scalar, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("marshal value %v: %w", val, err)
		}
		buf.Write(scalar)
		return nil
	}
}
