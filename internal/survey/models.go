package survey

import "time"

// Survey lifecycle states as stored by the survey platform.
const (
	StatusDraft     = "draft"
	StatusActive    = "active"
	StatusPublic    = "public"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// QuestionTypeScale is the only question type that contributes to satisfaction scores.
const QuestionTypeScale = "scale"

// Satisfaction dimensions a question can be tagged with.
const (
	DimensionCourse     = "course"
	DimensionInstructor = "instructor"
	DimensionOperation  = "operation"
)

type Survey struct {
	ID                   string   `json:"id"`
	Year                 int      `json:"year"`
	Round                int      `json:"round"`
	CourseName           string   `json:"course_name"`
	Status               string   `json:"status"`               // draft|active|public|completed|cancelled
	StartDate            string   `json:"start_date,omitempty"` // YYYY-MM-DD
	EndDate              string   `json:"end_date,omitempty"`
	ExpectedParticipants int      `json:"expected_participants"`
	EducationDays        *int     `json:"education_days,omitempty"`
	EducationHours       *float64 `json:"education_hours,omitempty"`
	IsTest               bool     `json:"is_test"`

	Responses []Response `json:"responses,omitempty"`
}

type Response struct {
	ID          string    `json:"id"`
	SurveyID    string    `json:"survey_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	IsTest      bool      `json:"is_test"`

	Answers []Answer `json:"answers,omitempty"`
}

// Answer is one answer joined with the question metadata needed for scoring.
type Answer struct {
	QuestionID   string `json:"question_id"`
	QuestionType string `json:"question_type"`
	Dimension    string `json:"dimension,omitempty"` // course|instructor|operation or empty
	Value        any    `json:"value"`               // number or free text
	IsTest       bool   `json:"is_test"`
}

// Filter selects the surveys an aggregation run looks at. Round and
// CourseName are optional narrowing filters.
type Filter struct {
	Year       int
	Round      int
	CourseName string
}
