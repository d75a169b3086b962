package survey

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// where renders the survey filter against the "s" alias.
func where(f Filter) (string, []any) {
	clauses := []string{"s.year=$1"}
	args := []any{f.Year}
	if f.Round > 0 {
		args = append(args, f.Round)
		clauses = append(clauses, fmt.Sprintf("s.round=$%d", len(args)))
	}
	if name := strings.TrimSpace(f.CourseName); name != "" {
		args = append(args, name)
		clauses = append(clauses, fmt.Sprintf("s.course_name=$%d", len(args)))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *SQLStore) LoadSurveys(ctx context.Context, f Filter) ([]Survey, error) {
	cond, args := where(f)

	surveys, index, err := s.loadSurveyRows(ctx, cond, args)
	if err != nil {
		return nil, err
	}
	if len(surveys) == 0 {
		return nil, nil
	}

	responses, err := s.loadResponses(ctx, cond, args)
	if err != nil {
		return nil, err
	}
	answers, err := s.loadAnswers(ctx, cond, args)
	if err != nil {
		return nil, err
	}

	for _, r := range responses {
		r.Answers = answers[r.ID]
		if i, ok := index[r.SurveyID]; ok {
			surveys[i].Responses = append(surveys[i].Responses, r)
		}
	}
	return surveys, nil
}

func (s *SQLStore) loadSurveyRows(ctx context.Context, cond string, args []any) ([]Survey, map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.year, s.round, s.course_name, s.status, s.start_date, s.end_date,
		       s.expected_participants, s.education_days, s.education_hours, s.is_test
		FROM surveys s`+cond+`
		ORDER BY s.id`, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("survey: list surveys: %w", err)
	}
	defer rows.Close()

	var out []Survey
	index := map[string]int{}
	for rows.Next() {
		var (
			sv         Survey
			start, end sql.NullString
			days       sql.NullInt64
			hours      sql.NullFloat64
		)
		if err := rows.Scan(&sv.ID, &sv.Year, &sv.Round, &sv.CourseName, &sv.Status, &start, &end,
			&sv.ExpectedParticipants, &days, &hours, &sv.IsTest); err != nil {
			return nil, nil, err
		}
		sv.StartDate, sv.EndDate = start.String, end.String
		if days.Valid {
			d := int(days.Int64)
			sv.EducationDays = &d
		}
		if hours.Valid {
			h := hours.Float64
			sv.EducationHours = &h
		}
		index[sv.ID] = len(out)
		out = append(out, sv)
	}
	return out, index, rows.Err()
}

func (s *SQLStore) loadResponses(ctx context.Context, cond string, args []any) ([]Response, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.survey_id, r.submitted_at, r.is_test
		FROM survey_responses r
		JOIN surveys s ON s.id = r.survey_id`+cond+`
		ORDER BY r.survey_id, r.submitted_at, r.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("survey: list responses: %w", err)
	}
	defer rows.Close()

	var out []Response
	for rows.Next() {
		var (
			r         Response
			submitted int64
		)
		if err := rows.Scan(&r.ID, &r.SurveyID, &submitted, &r.IsTest); err != nil {
			return nil, err
		}
		r.SubmittedAt = time.Unix(submitted, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) loadAnswers(ctx context.Context, cond string, args []any) (map[string][]Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.response_id, a.question_id, a.question_type, a.dimension, a.value, a.is_test
		FROM question_answers a
		JOIN survey_responses r ON r.id = a.response_id
		JOIN surveys s ON s.id = r.survey_id`+cond+`
		ORDER BY a.response_id, a.position, a.question_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("survey: list answers: %w", err)
	}
	defer rows.Close()

	out := map[string][]Answer{}
	for rows.Next() {
		var (
			responseID string
			a          Answer
			dim, val   sql.NullString
		)
		if err := rows.Scan(&responseID, &a.QuestionID, &a.QuestionType, &dim, &val, &a.IsTest); err != nil {
			return nil, err
		}
		a.Dimension = dim.String
		if val.Valid {
			a.Value = val.String
		}
		out[responseID] = append(out[responseID], a)
	}
	return out, rows.Err()
}
