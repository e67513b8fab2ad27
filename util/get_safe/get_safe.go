package getsafe

import (
	"strconv"
	"time"
)

func String(payload map[string]any, key string) string {
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Time reads a timestamp given as unix seconds, a numeric string, or RFC3339.
func Time(payload map[string]any, key string) (time.Time, bool) {
	v, ok := payload[key]
	if !ok {
		return time.Time{}, false
	}

	switch t := v.(type) {
	case float64:
		return unix(t), true
	case int64:
		return time.Unix(t, 0).UTC(), true
	case int:
		return time.Unix(int64(t), 0).UTC(), true
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return unix(f), true
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.UTC(), true
		}
		if parsed, err := time.Parse(time.DateTime, t); err == nil {
			return parsed.UTC(), true
		}
	}

	return time.Time{}, false
}

func unix(f float64) time.Time {
	// values past year 2286 in seconds are taken as milliseconds
	if f > 1e10 {
		return time.UnixMilli(int64(f)).UTC()
	}
	return time.Unix(int64(f), 0).UTC()
}
