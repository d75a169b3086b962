package stats

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Normalize converts a raw answer to a 0-10 satisfaction score.
//
// Values in (0, 5] are taken to be on a 5-point Likert scale and doubled;
// anything above 5 is assumed to be on a 10-point scale already. This is a
// heuristic: no other scales are detected. Non-numeric, non-finite and
// non-positive values yield no score.
func Normalize(raw any) (float64, bool) {
	v, ok := ParseNumber(raw)
	if !ok || v <= 0 {
		return 0, false
	}
	if v <= 5 {
		return v * 2, true
	}
	return v, true
}

// ParseNumber reads a finite number out of a loosely typed cell or answer.
// Strings are trimmed and may use thousands separators; empty strings,
// NaN, Inf and anything unparseable report false.
func ParseNumber(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int8:
		f = float64(t)
	case int16:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint:
		f = float64(t)
	case uint8:
		f = float64(t)
	case uint16:
		f = float64(t)
	case uint32:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		return ParseNumber(string(t))
	case []byte:
		return ParseNumber(string(t))
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		if s == "" {
			return 0, false
		}
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
