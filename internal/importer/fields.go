package importer

import (
	"fmt"
	"strings"

	"github.com/mind-engage/coursestats/internal/sheet"
)

// Canonical field names. Manual form payloads use these directly.
const (
	FieldYear                   = "year"
	FieldRound                  = "round"
	FieldCourseName             = "course_name"
	FieldStartDate              = "start_date"
	FieldEndDate                = "end_date"
	FieldCourseDays             = "course_days"
	FieldStatus                 = "status"
	FieldEnrolledCount          = "enrolled_count"
	FieldCumulativeCount        = "cumulative_count"
	FieldEducationDays          = "education_days"
	FieldEducationHours         = "education_hours"
	FieldCourseSatisfaction     = "course_satisfaction"
	FieldInstructorSatisfaction = "instructor_satisfaction"
	FieldOperationSatisfaction  = "operation_satisfaction"
	FieldTotalSatisfaction      = "total_satisfaction"
)

// RowNumberKey, when present in a record, carries the source line number.
const RowNumberKey = sheet.RowNumberKey

// aliases lists the accepted headers per field, Korean and English.
var aliases = map[string][]string{
	FieldYear:                   {"연도", "년도", "year"},
	FieldRound:                  {"차수", "회차", "round"},
	FieldCourseName:             {"과정명", "과정", "교육과정", "course_name", "course", "coursename"},
	FieldStartDate:              {"시작일", "교육시작일", "start_date", "start"},
	FieldEndDate:                {"종료일", "교육종료일", "end_date", "end"},
	FieldCourseDays:             {"과정일수", "일수", "course_days"},
	FieldStatus:                 {"상태", "진행상태", "status"},
	FieldEnrolledCount:          {"수강인원", "교육인원", "참여인원", "enrolled_count", "enrolled"},
	FieldCumulativeCount:        {"누적인원", "누적", "cumulative_count", "cumulative"},
	FieldEducationDays:          {"교육일수", "education_days"},
	FieldEducationHours:         {"교육시간", "education_hours"},
	FieldCourseSatisfaction:     {"과정만족도", "course_satisfaction"},
	FieldInstructorSatisfaction: {"강사만족도", "instructor_satisfaction"},
	FieldOperationSatisfaction:  {"운영만족도", "operation_satisfaction"},
	FieldTotalSatisfaction:      {"종합만족도", "전체만족도", "total_satisfaction", "overall_satisfaction"},
}

var headerIndex = buildHeaderIndex()

func buildHeaderIndex() map[string]string {
	idx := map[string]string{}
	for field, names := range aliases {
		for _, n := range names {
			idx[normalizeHeader(n)] = field
		}
	}
	return idx
}

// normalizeHeader folds case and drops spaces, underscores and hyphens.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '\t':
			return -1
		}
		return r
	}, h)
}

// CanonicalField resolves a header to its canonical field name.
func CanonicalField(header string) (string, bool) {
	f, ok := headerIndex[normalizeHeader(header)]
	return f, ok
}

// canonicalize rekeys rec by canonical field; unknown headers are dropped.
// When two headers map to the same field the first non-empty value wins.
func canonicalize(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		f, ok := CanonicalField(k)
		if !ok {
			continue
		}
		if prev, seen := out[f]; seen && text(prev) != "" {
			continue
		}
		out[f] = v
	}
	return out
}

// text renders a cell as trimmed text.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
