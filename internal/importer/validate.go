package importer

import (
	"fmt"

	"github.com/mind-engage/coursestats/internal/stats"
)

// Validator turns spreadsheet rows and manual form records into candidates.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

// Validate checks a single record. Authorization is decided before any
// field is read so unauthorized callers learn nothing about the data.
func (v *Validator) Validate(authorized bool, row int, rec map[string]any) (stats.Candidate, error) {
	if !authorized {
		return stats.Candidate{}, &stats.AuthorizationError{Action: "write statistics"}
	}
	c, errs := v.check(row, rec)
	if len(errs) > 0 {
		return stats.Candidate{}, errs[0]
	}
	return c, nil
}

// ValidateBatch checks every record and collects all row errors. If any
// row failed, no candidates are returned and the error is a
// *stats.BatchRejectedError.
func (v *Validator) ValidateBatch(authorized bool, recs []map[string]any) ([]stats.Candidate, error) {
	if !authorized {
		return nil, &stats.AuthorizationError{Action: "import statistics"}
	}
	out := make([]stats.Candidate, 0, len(recs))
	var failed []*stats.ValidationError
	for i, rec := range recs {
		row := i + 2
		if n, ok := rec[RowNumberKey].(int); ok {
			row = n
		}
		c, errs := v.check(row, rec)
		if len(errs) > 0 {
			failed = append(failed, errs...)
			continue
		}
		out = append(out, c)
	}
	if len(failed) > 0 {
		return nil, &stats.BatchRejectedError{Total: len(recs), Errors: failed}
	}
	return out, nil
}

func (v *Validator) check(row int, raw map[string]any) (stats.Candidate, []*stats.ValidationError) {
	if raw == nil {
		return stats.Candidate{}, []*stats.ValidationError{{
			Row: row, Reason: stats.ReasonInvalidRecord, Message: "empty record",
		}}
	}
	rec := canonicalize(raw)
	var errs []*stats.ValidationError
	fail := func(field string, reason stats.Reason, format string, args ...any) {
		errs = append(errs, &stats.ValidationError{
			Row: row, Field: field, Reason: reason, Message: fmt.Sprintf(format, args...),
		})
	}

	year, present, ok := parseKeyInt(rec[FieldYear])
	switch {
	case !present:
		fail(FieldYear, stats.ReasonMissingField, "year is required")
	case !ok:
		fail(FieldYear, stats.ReasonInvalidNumber, "year %q is not a positive whole number", text(rec[FieldYear]))
	}
	round, present, ok := parseKeyInt(rec[FieldRound])
	switch {
	case !present:
		fail(FieldRound, stats.ReasonMissingField, "round is required")
	case !ok:
		fail(FieldRound, stats.ReasonInvalidNumber, "round %q is not a positive whole number", text(rec[FieldRound]))
	}
	name := text(rec[FieldCourseName])
	switch {
	case name == "":
		fail(FieldCourseName, stats.ReasonMissingField, "course name is required")
	case stats.IsStatusLabel(name):
		fail(FieldCourseName, stats.ReasonStatusAsCourse,
			"course name %q is a status label; check that the status and course name columns are not swapped", name)
	}
	if len(errs) > 0 {
		return stats.Candidate{}, errs
	}

	c := stats.Candidate{
		Key:            stats.Key{Year: year, Round: round, CourseName: name},
		Status:         stats.NormalizeStatus(text(rec[FieldStatus])),
		StartDate:      ParseDate(rec[FieldStartDate]),
		EndDate:        ParseDate(rec[FieldEndDate]),
		CourseDays:     1,
		EducationDays:  parseCountPtr(rec[FieldEducationDays]),
		EducationHours: parsePositiveFloat(rec[FieldEducationHours]),

		CourseSatisfaction:     parseScore(rec[FieldCourseSatisfaction]),
		InstructorSatisfaction: parseScore(rec[FieldInstructorSatisfaction]),
		OperationSatisfaction:  parseScore(rec[FieldOperationSatisfaction]),
		TotalSatisfaction:      parseScore(rec[FieldTotalSatisfaction]),
	}
	if d, ok := parseCount(rec[FieldCourseDays]); ok && d > 0 {
		c.CourseDays = d
	} else if c.EducationDays != nil && *c.EducationDays > 0 {
		c.CourseDays = *c.EducationDays
	}
	if n, ok := parseCount(rec[FieldEnrolledCount]); ok {
		c.EnrolledCount = n
	}
	c.CumulativeCount = c.EnrolledCount
	if n, ok := parseCount(rec[FieldCumulativeCount]); ok {
		c.CumulativeCount = n
	}
	if c.TotalSatisfaction == nil {
		c.TotalSatisfaction = stats.OverallSatisfaction(c.CourseSatisfaction, c.InstructorSatisfaction, c.OperationSatisfaction)
	}
	return c, nil
}
