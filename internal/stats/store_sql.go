package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/coursestats/internal/db"
	syncx "github.com/mind-engage/coursestats/internal/sync"
)

type SQLStore struct {
	db     *sql.DB
	events *syncx.EventRepo
}

// NewSQLStore returns a store over db. events may be nil to skip the audit log.
func NewSQLStore(db *sql.DB, events *syncx.EventRepo) *SQLStore {
	return &SQLStore{db: db, events: events}
}

const statColumns = `id, year, round, course_name, status, start_date, end_date, course_days,
	education_days, education_hours, enrolled_count, cumulative_count,
	course_satisfaction, instructor_satisfaction, operation_satisfaction, total_satisfaction,
	source, created_by, updated_by, created_at, updated_at`

// scheduleColumns are kept under PreserveManualSchedule.
var scheduleColumns = []string{"start_date", "end_date", "course_days", "education_days", "education_hours"}

var replacedColumns = []string{
	"status", "enrolled_count", "cumulative_count",
	"course_satisfaction", "instructor_satisfaction", "operation_satisfaction", "total_satisfaction",
	"updated_by", "updated_at",
}

const keepManual = `course_statistics.source <> 'generated' AND EXCLUDED.source = 'generated'`

func upsertSQL(strategy MergeStrategy) string {
	sets := make([]string, 0, len(scheduleColumns)+len(replacedColumns)+1)
	for _, c := range replacedColumns {
		sets = append(sets, fmt.Sprintf("%s=EXCLUDED.%s", c, c))
	}
	for _, c := range append(append([]string{}, scheduleColumns...), "source") {
		if strategy == PreserveManualSchedule {
			sets = append(sets, fmt.Sprintf("%s=CASE WHEN %s THEN course_statistics.%s ELSE EXCLUDED.%s END", c, keepManual, c, c))
		} else {
			sets = append(sets, fmt.Sprintf("%s=EXCLUDED.%s", c, c))
		}
	}
	return `INSERT INTO course_statistics (` + statColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		ON CONFLICT (year, round, course_name) DO UPDATE SET ` + strings.Join(sets, ", ")
}

func (s *SQLStore) UpsertStatistics(ctx context.Context, rows []CourseStatistic, strategy MergeStrategy) error {
	if len(rows) == 0 {
		return nil
	}
	q := upsertSQL(strategy)
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, r := range rows {
			if _, err := tx.ExecContext(ctx, q,
				r.ID, r.Year, r.Round, r.CourseName, string(r.Status), r.StartDate, r.EndDate, r.CourseDays,
				r.EducationDays, r.EducationHours, r.EnrolledCount, r.CumulativeCount,
				r.CourseSatisfaction, r.InstructorSatisfaction, r.OperationSatisfaction, r.TotalSatisfaction,
				string(r.Source), r.CreatedBy, r.UpdatedBy, r.CreatedAt.Unix(), r.UpdatedAt.Unix(),
			); err != nil {
				return fmt.Errorf("upsert %s: %w", r.Key, err)
			}
			if s.events == nil {
				continue
			}
			ev, err := syncx.NewEvent(syncx.TypeStatisticUpserted, r.Key.String(), r)
			if err != nil {
				return err
			}
			if err := s.events.AppendTx(ctx, tx, ev); err != nil {
				return fmt.Errorf("event log %s: %w", r.Key, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) ListStatistics(ctx context.Context, f Filter) ([]CourseStatistic, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Year > 0 {
		args = append(args, f.Year)
		clauses = append(clauses, fmt.Sprintf("year=$%d", len(args)))
	}
	if f.Round > 0 {
		args = append(args, f.Round)
		clauses = append(clauses, fmt.Sprintf("round=$%d", len(args)))
	}
	if name := strings.TrimSpace(f.CourseName); name != "" {
		args = append(args, name)
		clauses = append(clauses, fmt.Sprintf("course_name=$%d", len(args)))
	}
	q := `SELECT ` + statColumns + ` FROM course_statistics`
	if len(clauses) > 0 {
		q += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	q += ` ORDER BY year DESC, round DESC, course_name`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CourseStatistic
	for rows.Next() {
		st, err := scanStatistic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetStatistic(ctx context.Context, k Key) (CourseStatistic, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+statColumns+` FROM course_statistics
		WHERE year=$1 AND round=$2 AND course_name=$3`, k.Year, k.Round, k.CourseName)
	st, err := scanStatistic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CourseStatistic{}, ErrNotFound
	}
	return st, err
}

func (s *SQLStore) DeleteStatistic(ctx context.Context, k Key) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM course_statistics
			WHERE year=$1 AND round=$2 AND course_name=$3`, k.Year, k.Round, k.CourseName)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		if s.events == nil {
			return nil
		}
		ev, err := syncx.NewEvent(syncx.TypeStatisticDeleted, k.String(), k)
		if err != nil {
			return err
		}
		return s.events.AppendTx(ctx, tx, ev)
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatistic(r rowScanner) (CourseStatistic, error) {
	var (
		st                   CourseStatistic
		status, source       string
		eduDays              sql.NullInt64
		eduHours             sql.NullFloat64
		cs, is, os, ts       sql.NullFloat64
		createdAt, updatedAt int64
	)
	if err := r.Scan(&st.ID, &st.Year, &st.Round, &st.CourseName, &status, &st.StartDate, &st.EndDate, &st.CourseDays,
		&eduDays, &eduHours, &st.EnrolledCount, &st.CumulativeCount,
		&cs, &is, &os, &ts,
		&source, &st.CreatedBy, &st.UpdatedBy, &createdAt, &updatedAt); err != nil {
		return CourseStatistic{}, err
	}
	st.Status = Status(status)
	st.Source = Source(source)
	if eduDays.Valid {
		d := int(eduDays.Int64)
		st.EducationDays = &d
	}
	st.EducationHours = nullFloat(eduHours)
	st.CourseSatisfaction = nullFloat(cs)
	st.InstructorSatisfaction = nullFloat(is)
	st.OperationSatisfaction = nullFloat(os)
	st.TotalSatisfaction = nullFloat(ts)
	st.CreatedAt = time.Unix(createdAt, 0).UTC()
	st.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return st, nil
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
