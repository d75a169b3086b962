package stats

import (
	"strings"

	"github.com/mind-engage/coursestats/internal/survey"
)

// Status is a display label of the closed status taxonomy.
type Status string

const (
	StatusCompleted  Status = "완료"
	StatusInProgress Status = "진행 중"
	StatusScheduled  Status = "진행 예정"
	StatusCancelled  Status = "취소"
)

// DefaultStatus is used whenever a status cannot be recognized.
const DefaultStatus = StatusCompleted

var statusAliases = map[string]Status{
	"완료":          StatusCompleted,
	"진행 중":        StatusInProgress,
	"진행중":         StatusInProgress,
	"진행 예정":       StatusScheduled,
	"진행예정":        StatusScheduled,
	"취소":          StatusCancelled,
	"completed":   StatusCompleted,
	"in progress": StatusInProgress,
	"in_progress": StatusInProgress,
	"scheduled":   StatusScheduled,
	"cancelled":   StatusCancelled,
	"canceled":    StatusCancelled,
}

// ParseStatus recognizes a label or one of its English aliases.
func ParseStatus(s string) (Status, bool) {
	st, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]
	return st, ok
}

// IsStatusLabel reports whether s reads as a status rather than a course name.
func IsStatusLabel(s string) bool {
	_, ok := ParseStatus(s)
	return ok
}

// NormalizeStatus coerces unknown values to DefaultStatus.
func NormalizeStatus(s string) Status {
	if st, ok := ParseStatus(s); ok {
		return st
	}
	return DefaultStatus
}

// StatusFromSurvey maps a survey lifecycle state to its display label.
// Only active and public surveys are shown as in progress; every other
// state, including unknown ones, falls back to DefaultStatus.
func StatusFromSurvey(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case survey.StatusActive, survey.StatusPublic:
		return StatusInProgress
	case survey.StatusCompleted:
		return StatusCompleted
	default:
		return DefaultStatus
	}
}
