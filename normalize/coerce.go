package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
)

// toFloat coerces vendor field values to float64. Devices are inconsistent
// about types: numbers arrive as JSON numbers, quoted strings ("35"), or
// booleans and yes/no flags for things like flood indicators.
func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		switch strings.ToLower(s) {
		case "true", "yes", "on":
			return 1, true
		case "false", "no", "off":
			return 0, true
		}
		return 0, false
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// toString coerces identifier values to strings. Gateway and sensor ids
// arrive as strings or bare numbers depending on vendor firmware; numeric
// ids keep their integer form ("3", not "3.000000").
func toString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		return s, s != ""
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10), true
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case json.Number:
		return val.String(), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		return "", false
	}
}

// lookup returns the first alias present in fields, with its value.
func lookup(fields map[string]any, aliases []string) (any, bool) {
	for _, alias := range aliases {
		if v, ok := fields[alias]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// lookupFloat returns the first alias present in fields coerced to float64.
func lookupFloat(fields map[string]any, aliases []string) (float64, bool) {
	v, ok := lookup(fields, aliases)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// lookupString returns the first alias present in fields coerced to string.
func lookupString(fields map[string]any, aliases []string) (string, bool) {
	v, ok := lookup(fields, aliases)
	if !ok {
		return "", false
	}
	return toString(v)
}
