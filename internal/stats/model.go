package stats

import (
	"fmt"
	"time"
)

// Key is the natural key of a statistics row.
type Key struct {
	Year       int    `json:"year"`
	Round      int    `json:"round"`
	CourseName string `json:"course_name"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%s", k.Year, k.Round, k.CourseName)
}

// Less orders keys by year, round, then course name.
func (k Key) Less(o Key) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	if k.Round != o.Round {
		return k.Round < o.Round
	}
	return k.CourseName < o.CourseName
}

// Candidate is a statistics record before persistence. Nil satisfaction
// scores mean no contributing data.
type Candidate struct {
	Key

	Status          Status   `json:"status"`
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	CourseDays      int      `json:"course_days"`
	EducationDays   *int     `json:"education_days"`
	EducationHours  *float64 `json:"education_hours"`
	EnrolledCount   int      `json:"enrolled_count"`
	CumulativeCount int      `json:"cumulative_count"`

	CourseSatisfaction     *float64 `json:"course_satisfaction"`
	InstructorSatisfaction *float64 `json:"instructor_satisfaction"`
	OperationSatisfaction  *float64 `json:"operation_satisfaction"`
	TotalSatisfaction      *float64 `json:"total_satisfaction"`
}

// Source records which writer last produced a row.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceImport    Source = "import"
	SourceManual    Source = "manual"
)

// CourseStatistic is the persisted row.
type CourseStatistic struct {
	Candidate

	ID        string    `json:"id"`
	Source    Source    `json:"source"`
	CreatedBy string    `json:"created_by"`
	UpdatedBy string    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Filter narrows statistics listings. Zero values match everything.
type Filter struct {
	Year       int
	Round      int
	CourseName string
}

// Caller identifies who triggered a write.
type Caller struct {
	Subject string
	Role    string
}

// Authorizer decides whether a caller may write statistics.
type Authorizer interface {
	IsPrivileged(c Caller) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(Caller) bool

func (f AuthorizerFunc) IsPrivileged(c Caller) bool { return f(c) }
