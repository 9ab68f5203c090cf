package config

import (
	"time"
)

// Settings is the raw per-unit settings block. Values come from YAML or
// TOML, so numbers may arrive as int, int64 or float64.
type Settings map[string]any

// String returns the string value of key, or def.
func (s Settings) String(key, def string) string {
	if v, ok := s[key].(string); ok {
		return v
	}
	return def
}

// Int returns the integer value of key, or def.
func (s Settings) Int(key string, def int) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// Bool returns the boolean value of key, or def.
func (s Settings) Bool(key string, def bool) bool {
	if v, ok := s[key].(bool); ok {
		return v
	}
	return def
}

// Duration returns the duration value of key, or def. Strings are parsed
// with time.ParseDuration; bare numbers are read as seconds.
func (s Settings) Duration(key string, def time.Duration) time.Duration {
	switch v := s[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case float64:
		return time.Duration(v * float64(time.Second))
	case int, int64, uint64:
		return time.Duration(s.Int(key, 0)) * time.Second
	}
	return def
}
