package stats

import "context"

// MergeStrategy decides what happens to an existing row on key conflict.
type MergeStrategy int

const (
	// ReplaceAll overwrites every field of the existing row, including
	// hand-entered dates and day counts.
	ReplaceAll MergeStrategy = iota
	// PreserveManualSchedule keeps the schedule fields (dates, course days,
	// education days/hours) of a row last written by a manual edit or import
	// when a generated row lands on it. All other fields are replaced.
	PreserveManualSchedule
)

func (m MergeStrategy) String() string {
	switch m {
	case PreserveManualSchedule:
		return "preserve_manual_schedule"
	default:
		return "replace_all"
	}
}

// Store persists statistics rows, at most one per Key.
type Store interface {
	// UpsertStatistics writes rows in one atomic call keyed by
	// (year, round, course_name). Either every row lands or none does.
	UpsertStatistics(ctx context.Context, rows []CourseStatistic, strategy MergeStrategy) error
	ListStatistics(ctx context.Context, f Filter) ([]CourseStatistic, error)
	GetStatistic(ctx context.Context, k Key) (CourseStatistic, error)
	DeleteStatistic(ctx context.Context, k Key) error
}
