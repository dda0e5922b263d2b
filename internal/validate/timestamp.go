package validate

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// isoLayouts are tried in order; layouts without a zone parse as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

const (
	unixSecondsMin = 1e9
	unixSecondsMax = 2e9
	unixMillisMin  = 1e12
)

// ParseTimestamp turns a payload timestamp into an absolute instant.
// Accepted forms, first match wins: ISO-8601 string, Unix seconds in
// [1e9, 2e9], Unix milliseconds above 1e12. Instants pass through unchanged.
func ParseTimestamp(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range isoLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromUnix(f)
		}
		return time.Time{}, fmt.Errorf("unrecognised timestamp format %q", t)
	}
	if f, ok := toFloat64(v); ok {
		return fromUnix(f)
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
}

func fromUnix(f float64) (time.Time, error) {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return time.Time{}, fmt.Errorf("timestamp %v is not finite", f)
	case f >= unixSecondsMin && f <= unixSecondsMax:
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	case f > unixMillisMin:
		return time.UnixMilli(int64(f)).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("numeric timestamp %v is neither unix seconds nor milliseconds", f)
}
