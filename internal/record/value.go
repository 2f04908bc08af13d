package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeDocument parses a JSON object into a plain document.
// Numbers decode to int64 when integral and float64 otherwise, so large
// integers keep their precision.
func DecodeDocument(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	doc, ok := Normalize(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode document: not an object")
	}
	return doc, nil
}

// Normalize converts a decoded JSON or YAML value into the value types
// used in record fields: nil, bool, string, int64, float64, []any and
// map[string]any. Relation values (*Record, Link, Stub) pass through.
func Normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		s := string(val)
		if !strings.ContainsAny(s, ".eE") {
			if n, err := val.Int64(); err == nil {
				return n
			}
		}
		f, err := val.Float64()
		if err != nil {
			return s
		}
		return f
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Normalize(elem)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Normalize(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Normalize(elem)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[fmt.Sprint(k)] = Normalize(elem)
		}
		return out
	default:
		return v
	}
}
