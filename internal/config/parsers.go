// Package config provides configuration loading and parsing for checkoutrace.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// lookupSetting returns the first of candidates present in settings, trying
// each key as written and lowercased.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		if val, ok := settings[key]; ok {
			return val, true
		}
		if val, ok := settings[strings.ToLower(key)]; ok {
			return val, true
		}
	}
	return nil, false
}

func asString(value interface{}) (string, error) {
	return cast.ToStringE(value)
}

// asInt parses strings in base 10 so a zero-padded "010" stays ten.
func asInt(value interface{}) (int, error) {
	if s, ok := value.(string); ok {
		if s = strings.TrimSpace(s); s == "" {
			return 0, nil
		}
		return strconv.Atoi(s)
	}
	return cast.ToIntE(value)
}

func asFloat64(value interface{}) (float64, error) {
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
		if value == "" {
			return 0, nil
		}
	}
	return cast.ToFloat64E(value)
}

func asBool(value interface{}) (bool, error) {
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
		if value == "" {
			return false, nil
		}
	}
	return cast.ToBoolE(value)
}

// asDuration reads strings with time.ParseDuration and bare numbers as
// seconds, the way a YAML "timeout: 10" is meant.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		if v = strings.TrimSpace(v); v == "" {
			return 0, nil
		}
		return time.ParseDuration(v)
	default:
		secs, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, err
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}

// asStringSlice keeps a lone string whole; thresholds contain spaces.
func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	default:
		return cast.ToStringSliceE(v)
	}
}

func toInterfaceSlice(value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []map[interface{}]interface{}:
		items := make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return items, nil
	default:
		return cast.ToSliceE(v)
	}
}

// toStringKeyMap converts a decoded YAML or JSON mapping into a map with
// trimmed, lowercased keys.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	m, err := cast.ToStringMapE(value)
	if err != nil {
		return nil, err
	}
	result := make(map[string]interface{}, len(m))
	for key, val := range m {
		result[strings.ToLower(strings.TrimSpace(key))] = val
	}
	return result, nil
}

// splitNonEmpty splits s on sep, trimming entries and dropping empty ones.
func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
