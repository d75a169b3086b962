// Package engine wires the statistics use cases: generation from survey
// responses, spreadsheet import, manual edits, listing and deletion.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mind-engage/coursestats/internal/importer"
	"github.com/mind-engage/coursestats/internal/sheet"
	"github.com/mind-engage/coursestats/internal/stats"
	"github.com/mind-engage/coursestats/internal/storage"
	"github.com/mind-engage/coursestats/internal/survey"
	syncx "github.com/mind-engage/coursestats/internal/sync"
)

// ErrUnreadableSheet is returned when an upload cannot be decoded.
var ErrUnreadableSheet = errors.New("unreadable spreadsheet")

// Outcome tells callers whether a generation run wrote anything.
type Outcome string

const (
	OutcomeUpserted Outcome = "upserted"
	OutcomeNoOp     Outcome = "noop"
)

type GenerateResult struct {
	Outcome    Outcome           `json:"outcome"`
	Statistics []stats.Candidate `json:"statistics"`
	Rejected   []stats.Rejected  `json:"rejected,omitempty"`
}

type ImportResult struct {
	Filename   string            `json:"filename"`
	ArchiveKey string            `json:"archive_key,omitempty"`
	Rows       int               `json:"rows"`
	Statistics []stats.Candidate `json:"statistics"`
}

type Deps struct {
	Surveys     survey.Repository
	Store       stats.Store
	Coordinator *stats.Coordinator
	Aggregator  *stats.Aggregator
	Validator   *importer.Validator
	Authorizer  stats.Authorizer
	Archive     storage.Archive  // optional
	Events      *syncx.EventRepo // optional, backs History
	Logger      *slog.Logger
}

type Engine struct {
	surveys   survey.Repository
	store     stats.Store
	coord     *stats.Coordinator
	agg       *stats.Aggregator
	validator *importer.Validator
	authz     stats.Authorizer
	archive   storage.Archive
	events    *syncx.EventRepo
	logger    *slog.Logger
}

func New(d Deps) *Engine {
	e := &Engine{
		surveys:   d.Surveys,
		store:     d.Store,
		coord:     d.Coordinator,
		agg:       d.Aggregator,
		validator: d.Validator,
		authz:     d.Authorizer,
		archive:   d.Archive,
		events:    d.Events,
		logger:    d.Logger,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.coord == nil {
		e.coord = stats.NewCoordinator(d.Store, stats.WithCoordinatorLogger(e.logger))
	}
	if e.agg == nil {
		e.agg = stats.NewAggregator()
	}
	if e.validator == nil {
		e.validator = importer.NewValidator()
	}
	return e
}

func (e *Engine) authorized(c stats.Caller) bool {
	return e.authz != nil && e.authz.IsPrivileged(c)
}

func (e *Engine) deny(ctx context.Context, c stats.Caller, action string) error {
	e.logger.WarnContext(ctx, "write denied", "subject", c.Subject, "role", c.Role, "action", action)
	return &stats.AuthorizationError{Subject: c.Subject, Action: action}
}

// Generate aggregates the surveys selected by f into statistics rows and
// upserts them in one batch. No eligible group is reported as OutcomeNoOp.
func (e *Engine) Generate(ctx context.Context, caller stats.Caller, f survey.Filter) (GenerateResult, error) {
	if !e.authorized(caller) {
		return GenerateResult{}, e.deny(ctx, caller, "generate statistics")
	}
	if f.Year <= 0 {
		return GenerateResult{}, &stats.ValidationError{
			Field: "year", Reason: stats.ReasonMissingField, Message: "year is required",
		}
	}

	surveys, err := e.surveys.LoadSurveys(ctx, f)
	if err != nil {
		return GenerateResult{}, stats.NewStoreError("load surveys", err)
	}
	groups, rejected := stats.Classify(surveys)
	for _, r := range rejected {
		e.logger.WarnContext(ctx, "survey skipped", "survey_id", r.SurveyID, "reason", r.Reason)
	}
	if len(groups) == 0 {
		e.logger.InfoContext(ctx, "no survey groups to aggregate",
			"year", f.Year, "round", f.Round, "course", f.CourseName, "surveys", len(surveys))
		return GenerateResult{Outcome: OutcomeNoOp, Rejected: rejected}, nil
	}

	if err := e.seedCumulative(ctx, groups); err != nil {
		return GenerateResult{}, err
	}
	cands := e.agg.AggregateAll(groups)
	if err := e.coord.Upsert(ctx, cands, stats.WriteMeta{Source: stats.SourceGenerated, Actor: caller.Subject}); err != nil {
		return GenerateResult{}, err
	}
	e.agg.Commit(cands)
	return GenerateResult{Outcome: OutcomeUpserted, Statistics: cands, Rejected: rejected}, nil
}

// seedCumulative raises the ledger to the counts already stored, so a
// restart or an imported row never lets a regenerated count go down.
func (e *Engine) seedCumulative(ctx context.Context, groups []*stats.Group) error {
	for _, g := range groups {
		st, err := e.store.GetStatistic(ctx, g.Key)
		switch {
		case errors.Is(err, stats.ErrNotFound):
		case err != nil:
			return stats.NewStoreError("load statistic", err)
		default:
			e.agg.Seed(g.Key, st.CumulativeCount)
		}
	}
	return nil
}

// Import validates every row of an uploaded sheet and upserts them all, or
// none when any row is invalid.
func (e *Engine) Import(ctx context.Context, caller stats.Caller, filename string, data []byte) (ImportResult, error) {
	if !e.authorized(caller) {
		return ImportResult{}, e.deny(ctx, caller, "import statistics")
	}
	res := ImportResult{Filename: filename}
	res.ArchiveKey = e.archiveUpload(ctx, filename, data)

	rows, err := sheet.ForFile(filename, data).ParseRows(data)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrUnreadableSheet, err)
	}
	res.Rows = len(rows)

	cands, err := e.validator.ValidateBatch(true, rows)
	if err != nil {
		var br *stats.BatchRejectedError
		if errors.As(err, &br) {
			e.logger.InfoContext(ctx, "import rejected", "filename", filename, "rows", len(rows), "invalid", len(br.Errors))
		}
		return res, err
	}
	if len(cands) == 0 {
		return res, nil
	}
	if err := e.coord.Upsert(ctx, cands, stats.WriteMeta{Source: stats.SourceImport, Actor: caller.Subject}); err != nil {
		return res, err
	}
	res.Statistics = cands
	return res, nil
}

// archiveUpload keeps the raw upload. Failures are logged, never fatal.
func (e *Engine) archiveUpload(ctx context.Context, filename string, data []byte) string {
	if e.archive == nil {
		return ""
	}
	key := "imports/" + uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	k, err := e.archive.Put(ctx, key, bytes.NewReader(data))
	if err != nil {
		e.logger.WarnContext(ctx, "archive upload failed", "filename", filename, "error", err)
		return ""
	}
	return k
}

// SaveManual validates and upserts one hand-edited record.
func (e *Engine) SaveManual(ctx context.Context, caller stats.Caller, rec map[string]any) (stats.Candidate, error) {
	if !e.authorized(caller) {
		return stats.Candidate{}, e.deny(ctx, caller, "edit statistics")
	}
	c, err := e.validator.Validate(true, 1, rec)
	if err != nil {
		return stats.Candidate{}, err
	}
	if err := e.coord.Upsert(ctx, []stats.Candidate{c}, stats.WriteMeta{Source: stats.SourceManual, Actor: caller.Subject}); err != nil {
		return stats.Candidate{}, err
	}
	return c, nil
}

func (e *Engine) List(ctx context.Context, f stats.Filter) ([]stats.CourseStatistic, error) {
	out, err := e.store.ListStatistics(ctx, f)
	if err != nil {
		return nil, stats.NewStoreError("list", err)
	}
	return out, nil
}

func (e *Engine) Get(ctx context.Context, k stats.Key) (stats.CourseStatistic, error) {
	st, err := e.store.GetStatistic(ctx, k)
	if err != nil && !errors.Is(err, stats.ErrNotFound) {
		return stats.CourseStatistic{}, stats.NewStoreError("get", err)
	}
	return st, err
}

// Delete removes one row. It is the only way rows disappear.
func (e *Engine) Delete(ctx context.Context, caller stats.Caller, k stats.Key) error {
	if !e.authorized(caller) {
		return e.deny(ctx, caller, "delete statistics")
	}
	return e.coord.Delete(ctx, k)
}

// History lists the audit events recorded for k, oldest first.
func (e *Engine) History(ctx context.Context, k stats.Key, limit int) ([]syncx.Event, error) {
	if e.events == nil {
		return nil, nil
	}
	evs, err := e.events.List(ctx, k.String(), limit)
	if err != nil {
		return nil, stats.NewStoreError("history", err)
	}
	return evs, nil
}
