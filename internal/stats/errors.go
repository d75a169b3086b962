package stats

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no statistics row exists for a key.
var ErrNotFound = errors.New("statistic not found")

// AuthorizationError means the caller lacks the write capability.
type AuthorizationError struct {
	Subject string
	Action  string
}

func (e *AuthorizationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("not authorized to %s", e.Action)
	}
	return fmt.Sprintf("%s is not authorized to %s", e.Subject, e.Action)
}

// Reason classifies a validation failure.
type Reason string

const (
	ReasonMissingField   Reason = "missing_field"
	ReasonInvalidNumber  Reason = "invalid_number"
	ReasonStatusAsCourse Reason = "status_as_course_name"
	ReasonInvalidRecord  Reason = "invalid_record"
)

// ValidationError describes why one input row was rejected. Row is the
// spreadsheet line number (header is line 1).
type ValidationError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Message)
	}
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Message)
}

// BatchRejectedError is returned when any row of a batch failed validation.
// Nothing from the batch is persisted.
type BatchRejectedError struct {
	Total  int                `json:"total"`
	Errors []*ValidationError `json:"errors"`
}

func (e *BatchRejectedError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		msgs = append(msgs, ve.Error())
	}
	return fmt.Sprintf("batch rejected: %d of %d rows invalid: %s", len(e.Errors), e.Total, strings.Join(msgs, "; "))
}

// StoreError wraps a failed store call. Code carries the Postgres SQLSTATE
// when the driver reported one.
type StoreError struct {
	Op   string
	Code string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("store %s (sqlstate %s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err, picking up the SQLSTATE of Postgres errors.
func NewStoreError(op string, err error) *StoreError {
	se := &StoreError{Op: op, Err: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		se.Code = pgErr.Code
	}
	return se
}
