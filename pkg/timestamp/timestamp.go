// Package timestamp provides Unix-millisecond timestamp utilities and
// device wall-clock parsing.
//
// Envelope and queue timestamps use int64 milliseconds since the Unix epoch
// as the canonical format; 0 means "not set". Device-supplied timestamps are
// a separate problem: field gateways report zone-less wall-clock strings in
// the project's fixed local offset, while some vendors send epoch values or
// RFC3339 with an explicit zone. ParseInZone and CombineDateTime resolve all
// of these to absolute instants without ever consulting the host's zone.
package timestamp

import (
	"strconv"
	"strings"
	"time"
)

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// ToUnixMs converts a time.Time to Unix milliseconds.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time in UTC.
// Returns zero time if timestamp is 0.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// IsZero checks if a timestamp is unset (zero).
func IsZero(ms int64) bool {
	return ms == 0
}

// Format converts Unix milliseconds to an RFC3339 string for display.
// Returns empty string if timestamp is 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// Parse converts various timestamp representations to Unix milliseconds.
// Supports int64/float64/int (values above 1e12 are treated as milliseconds,
// otherwise seconds), numeric strings, RFC3339 strings, time.Time.
// Returns 0 for invalid input.
func Parse(input any) int64 {
	if input == nil {
		return 0
	}

	switch v := input.(type) {
	case int64:
		if v == 0 {
			return 0
		}
		if v > 1e12 {
			return v
		}
		return v * 1000

	case float64:
		if v == 0 {
			return 0
		}
		if v > 1e12 {
			return int64(v)
		}
		return int64(v * 1000)

	case int:
		return Parse(int64(v))

	case int32:
		return Parse(int64(v))

	case string:
		if v == "" {
			return 0
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return ToUnixMs(t)
		}
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			return Parse(ts)
		}
		if ts, err := strconv.ParseFloat(v, 64); err == nil {
			return Parse(ts)
		}
		return 0

	case time.Time:
		return ToUnixMs(v)

	case *time.Time:
		if v == nil {
			return 0
		}
		return ToUnixMs(*v)

	default:
		return 0
	}
}

// Zone-less layouts gateways are known to emit, most specific first.
var wallClockLayouts = []string{
	"2006/01/02 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006 15:04:05",
	"2006/01/02",
	"2006-01-02",
}

// ParseInZone resolves a device-supplied timestamp value to an absolute
// instant. Epoch numbers and strings with an explicit zone are absolute;
// zone-less wall-clock strings are interpreted in loc. The boolean reports
// whether the value was usable.
func ParseInZone(input any, loc *time.Location) (time.Time, bool) {
	if input == nil || loc == nil {
		return time.Time{}, false
	}

	switch v := input.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, true
		}
		for _, layout := range wallClockLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, true
			}
		}
		// Numeric string: epoch seconds or milliseconds.
		if ms := Parse(s); ms != 0 {
			return FromUnixMs(ms), true
		}
		return time.Time{}, false

	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v, true

	default:
		if ms := Parse(input); ms != 0 {
			return FromUnixMs(ms), true
		}
		return time.Time{}, false
	}
}

// CombineDateTime resolves a split date + time pair ("2025/05/28",
// "10:30:00") as a wall clock in loc. An empty time component defaults to
// midnight. The boolean reports whether the pair was usable.
func CombineDateTime(dateStr, timeStr string, loc *time.Location) (time.Time, bool) {
	dateStr = strings.TrimSpace(dateStr)
	timeStr = strings.TrimSpace(timeStr)
	if dateStr == "" || loc == nil {
		return time.Time{}, false
	}
	if timeStr == "" {
		timeStr = "00:00:00"
	}

	combined := dateStr + " " + timeStr
	for _, layout := range []string{"2006/01/02 15:04:05", "2006-01-02 15:04:05", "02/01/2006 15:04:05"} {
		if t, err := time.ParseInLocation(layout, combined, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FixedZone builds a *time.Location from an offset string such as "+07:00"
// or "-03:30". Returns nil for malformed offsets.
func FixedZone(offset string) *time.Location {
	offset = strings.TrimSpace(offset)
	if offset == "" {
		return nil
	}

	sign := 1
	switch offset[0] {
	case '+':
		offset = offset[1:]
	case '-':
		sign = -1
		offset = offset[1:]
	}

	parts := strings.SplitN(offset, ":", 2)
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours > 14 {
		return nil
	}
	minutes := 0
	if len(parts) == 2 {
		minutes, err = strconv.Atoi(parts[1])
		if err != nil || minutes > 59 {
			return nil
		}
	}

	seconds := sign * (hours*3600 + minutes*60)
	name := "UTC"
	if seconds != 0 {
		if sign > 0 {
			name = "+" + offset
		} else {
			name = "-" + offset
		}
	}
	return time.FixedZone(name, seconds)
}
