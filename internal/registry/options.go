package registry

import (
	"fmt"
	"strconv"
)

// Options are the free-form settings of one variant, as decoded from the
// config file.
type Options map[string]any

// String returns the string at key, or def when absent or empty.
func (o Options) String(key, def string) string {
	if s, ok := o[key].(string); ok && s != "" {
		return s
	}
	return def
}

// Bool returns the bool at key, or def when absent. String values
// "true"/"false" are accepted.
func (o Options) Bool(key string, def bool) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Float returns the number at key, or def when absent.
func (o Options) Float(key string, def float64) float64 {
	switch v := o[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Int returns the integer at key, or def when absent.
func (o Options) Int(key string, def int) int {
	switch v := o[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Require returns the non-empty string at key or an error naming it.
func (o Options) Require(key string) (string, error) {
	s := o.String(key, "")
	if s == "" {
		return "", fmt.Errorf("option %q is required", key)
	}
	return s, nil
}
