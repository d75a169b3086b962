package importer

import (
	"math"
	"strings"
	"time"

	"github.com/mind-engage/coursestats/internal/stats"
)

// ParseNumber is the permissive numeric read used for every optional cell:
// trimmed, empty means absent, non-finite means absent. It never fails.
func ParseNumber(v any) (float64, bool) {
	return stats.ParseNumber(v)
}

// parseCount reads a non-negative whole count, rounding fractional input.
func parseCount(v any) (int, bool) {
	f, ok := ParseNumber(v)
	if !ok || f < 0 {
		return 0, false
	}
	return int(math.Round(f)), true
}

func parseCountPtr(v any) *int {
	n, ok := parseCount(v)
	if !ok {
		return nil
	}
	return &n
}

// parseScore reads a satisfaction score rounded to two decimals.
func parseScore(v any) *float64 {
	f, ok := ParseNumber(v)
	if !ok || f < 0 {
		return nil
	}
	f = math.Round(f*100) / 100
	return &f
}

func parsePositiveFloat(v any) *float64 {
	f, ok := ParseNumber(v)
	if !ok || f <= 0 {
		return nil
	}
	return &f
}

// parseKeyInt reads a required positive integer. present is false when the
// cell is empty.
func parseKeyInt(v any) (n int, present, ok bool) {
	if text(v) == "" {
		return 0, false, false
	}
	f, valid := ParseNumber(v)
	if !valid || f <= 0 || f != math.Trunc(f) {
		return 0, true, false
	}
	return int(f), true, true
}

// serialEpoch is day zero of spreadsheet date serials (1900 date system,
// including the fictitious 1900-02-29).
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// maxSerial is 9999-12-31.
const maxSerial = 2958465

// SerialToDate converts a spreadsheet date serial to YYYY-MM-DD. The
// fractional time-of-day part is dropped.
func SerialToDate(serial float64) (string, bool) {
	if serial < 1 || serial > maxSerial {
		return "", false
	}
	return serialEpoch.AddDate(0, 0, int(math.Floor(serial))).Format(dateLayout), true
}

const dateLayout = "2006-01-02"

var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"2006.01.02",
	"2006.1.2",
	"20060102",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseDate returns a YYYY-MM-DD date from ISO-like text, a Korean
// "2024. 3. 5." style date or a spreadsheet serial from 1950 on. Anything
// else is returned trimmed but otherwise unchanged.
func ParseDate(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.Format(dateLayout)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return ""
		}
		if d, ok := parseLayouts(s); ok {
			return d
		}
		// "2024. 3. 5."
		if d, ok := parseLayouts(strings.TrimSuffix(strings.ReplaceAll(s, " ", ""), ".")); ok {
			return d
		}
		if d, ok := serialDate(t); ok {
			return d
		}
		return s
	default:
		if d, ok := serialDate(t); ok {
			return d
		}
		return text(t)
	}
}

func parseLayouts(s string) (string, bool) {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format(dateLayout), true
		}
	}
	return "", false
}

// minDateSerial is 1950-01-01. Smaller numbers in a date column are far
// more likely a bare year or a typo than a real date.
const minDateSerial = 18264

func serialDate(v any) (string, bool) {
	f, ok := ParseNumber(v)
	if !ok || f < minDateSerial {
		return "", false
	}
	return SerialToDate(f)
}
