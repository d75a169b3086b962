package engine_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/coursestats/internal/db"
	"github.com/mind-engage/coursestats/internal/engine"
	"github.com/mind-engage/coursestats/internal/rbac"
	"github.com/mind-engage/coursestats/internal/stats"
	"github.com/mind-engage/coursestats/internal/storage"
	"github.com/mind-engage/coursestats/internal/survey"
	syncx "github.com/mind-engage/coursestats/internal/sync"
)

// memSurveys serves a fixed survey set, honoring the filter.
type memSurveys struct {
	surveys []survey.Survey
	err     error
}

func (m *memSurveys) LoadSurveys(_ context.Context, f survey.Filter) ([]survey.Survey, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []survey.Survey
	for _, sv := range m.surveys {
		if sv.Year != f.Year || (f.Round > 0 && sv.Round != f.Round) || (f.CourseName != "" && sv.CourseName != f.CourseName) {
			continue
		}
		out = append(out, sv)
	}
	return out, nil
}

var (
	manager = stats.Caller{Subject: "lee", Role: "manager"}
	viewer  = stats.Caller{Subject: "park", Role: "viewer"}
	admin   = stats.Caller{Subject: "root", Role: "admin"}
)

type fixture struct {
	eng     *engine.Engine
	surveys *memSurveys
	archive *storage.FSStore
}

func newFixture(t *testing.T, opts ...stats.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	dbh, err := db.Open(ctx, db.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbh.Close() })

	archive, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	events := syncx.NewEventRepo(dbh, "test")
	store := stats.NewSQLStore(dbh, events)
	surveys := &memSurveys{}
	eng := engine.New(engine.Deps{
		Surveys:     surveys,
		Store:       store,
		Coordinator: stats.NewCoordinator(store, opts...),
		Authorizer:  rbac.NewChecker(nil),
		Archive:     archive,
		Events:      events,
	})
	return &fixture{eng: eng, surveys: surveys, archive: archive}
}

func scaleAnswer(dim string, v any) survey.Answer {
	return survey.Answer{QuestionType: survey.QuestionTypeScale, Dimension: dim, Value: v}
}

func sampleSurveys() []survey.Survey {
	return []survey.Survey{
		{
			ID: "s1", Year: 2024, Round: 1, CourseName: "리더십 과정", Status: survey.StatusCompleted,
			StartDate: "2024-02-05", EndDate: "2024-02-07",
			Responses: []survey.Response{
				{ID: "r1", Answers: []survey.Answer{scaleAnswer("instructor", "4"), scaleAnswer("course", "5")}},
				{ID: "r2", Answers: []survey.Answer{scaleAnswer("instructor", "5"), scaleAnswer("course", "5")}},
				{ID: "r3", Answers: []survey.Answer{scaleAnswer("instructor", "4")}},
			},
		},
		{ID: "s2", Year: 2024, Round: 2, CourseName: "코칭 과정", Status: survey.StatusActive, ExpectedParticipants: 25},
		{ID: "s3", Year: 2024, Round: 0, CourseName: "broken"},
		{ID: "s4", Year: 2024, Round: 1, CourseName: "테스트", IsTest: true},
	}
}

func TestGenerateUpsertsOneRowPerGroup(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.surveys.surveys = sampleSurveys()

	res, err := fx.eng.Generate(ctx, manager, survey.Filter{Year: 2024})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeUpserted, res.Outcome)
	require.Len(t, res.Statistics, 2)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "s3", res.Rejected[0].SurveyID)

	rows, err := fx.eng.List(ctx, stats.Filter{Year: 2024})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first, err := fx.eng.Get(ctx, stats.Key{Year: 2024, Round: 1, CourseName: "리더십 과정"})
	require.NoError(t, err)
	assert.Equal(t, stats.SourceGenerated, first.Source)
	assert.Equal(t, "lee", first.UpdatedBy)
	assert.Equal(t, 3, first.EnrolledCount)
	require.NotNil(t, first.InstructorSatisfaction)
	assert.Equal(t, 8.67, *first.InstructorSatisfaction)
	require.NotNil(t, first.CourseSatisfaction)
	assert.Equal(t, 10.0, *first.CourseSatisfaction)

	second, err := fx.eng.Get(ctx, stats.Key{Year: 2024, Round: 2, CourseName: "코칭 과정"})
	require.NoError(t, err)
	assert.Equal(t, 25, second.EnrolledCount)
	assert.Equal(t, stats.StatusInProgress, second.Status)
	assert.Nil(t, second.TotalSatisfaction)

	// a second identical run leaves the same rows behind
	_, err = fx.eng.Generate(ctx, manager, survey.Filter{Year: 2024})
	require.NoError(t, err)
	again, err := fx.eng.List(ctx, stats.Filter{Year: 2024})
	require.NoError(t, err)
	assert.Len(t, again, 2)
	assert.Equal(t, rows[0].ID, again[0].ID)
}

func TestGenerateKeepsStoredCumulativeCount(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.surveys.surveys = sampleSurveys()
	k := stats.Key{Year: 2024, Round: 1, CourseName: "리더십 과정"}

	_, err := fx.eng.SaveManual(ctx, manager, map[string]any{
		"year": 2024, "round": 1, "course_name": "리더십 과정",
		"enrolled_count": 40, "cumulative_count": 120,
	})
	require.NoError(t, err)

	// a fresh engine has an empty ledger, like a restarted process
	_, err = fx.eng.Generate(ctx, manager, survey.Filter{Year: 2024, Round: 1})
	require.NoError(t, err)

	got, err := fx.eng.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, 3, got.EnrolledCount)
	assert.Equal(t, 120, got.CumulativeCount)
}

func TestGenerateNoGroupsIsNoOp(t *testing.T) {
	fx := newFixture(t)
	fx.surveys.surveys = sampleSurveys()

	res, err := fx.eng.Generate(context.Background(), manager, survey.Filter{Year: 2019})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeNoOp, res.Outcome)

	rows, err := fx.eng.List(context.Background(), stats.Filter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGenerateErrors(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.eng.Generate(ctx, viewer, survey.Filter{Year: 2024})
	var authErr *stats.AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "park", authErr.Subject)

	_, err = fx.eng.Generate(ctx, manager, survey.Filter{})
	var ve *stats.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "year", ve.Field)

	fx.surveys.err = errors.New("survey db down")
	_, err = fx.eng.Generate(ctx, manager, survey.Filter{Year: 2024})
	var se *stats.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "load surveys", se.Op)
}

const importCSV = "연도,차수,과정명,상태,시작일,수강인원,강사만족도,운영만족도\n" +
	"2024,1,리더십 과정,완료,2024-02-05,30,9.2,8.8\n" +
	"2024,2,코칭 과정,진행 중,45352,12,,\n"

func TestImportPersistsAllRows(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	res, err := fx.eng.Import(ctx, manager, "stats.csv", []byte(importCSV))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	require.Len(t, res.Statistics, 2)
	require.NotEmpty(t, res.ArchiveKey)

	rc, err := fx.archive.Get(ctx, res.ArchiveKey)
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, importCSV, string(raw))

	got, err := fx.eng.Get(ctx, stats.Key{Year: 2024, Round: 2, CourseName: "코칭 과정"})
	require.NoError(t, err)
	assert.Equal(t, stats.SourceImport, got.Source)
	assert.Equal(t, "2024-03-01", got.StartDate)
	assert.Equal(t, stats.StatusInProgress, got.Status)
	assert.Nil(t, got.TotalSatisfaction)

	first, err := fx.eng.Get(ctx, stats.Key{Year: 2024, Round: 1, CourseName: "리더십 과정"})
	require.NoError(t, err)
	require.NotNil(t, first.TotalSatisfaction)
	assert.Equal(t, 9.0, *first.TotalSatisfaction)
}

func TestImportRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	bad := importCSV + "2024,3,완료,리더십 과정,,,,\n"

	_, err := fx.eng.Import(ctx, manager, "stats.csv", []byte(bad))
	var br *stats.BatchRejectedError
	require.ErrorAs(t, err, &br)
	require.Len(t, br.Errors, 1)
	assert.Equal(t, 4, br.Errors[0].Row)
	assert.Equal(t, stats.ReasonStatusAsCourse, br.Errors[0].Reason)

	rows, err := fx.eng.List(ctx, stats.Filter{})
	require.NoError(t, err)
	assert.Empty(t, rows, "nothing from a rejected batch is persisted")
}

func TestImportAuthorizationAndDecoding(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	res, err := fx.eng.Import(ctx, viewer, "stats.csv", []byte(importCSV))
	var authErr *stats.AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Empty(t, res.ArchiveKey, "unauthorized uploads are not archived")

	_, err = fx.eng.Import(ctx, manager, "stats.xlsx", []byte("not a workbook"))
	assert.ErrorIs(t, err, engine.ErrUnreadableSheet)

	res, err = fx.eng.Import(ctx, manager, "empty.csv", []byte("연도,차수,과정명\n"))
	require.NoError(t, err)
	assert.Zero(t, res.Rows)
	assert.Empty(t, res.Statistics)
}

func TestSaveManualAndPreserveSchedule(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, stats.WithStrategy(stats.PreserveManualSchedule))
	fx.surveys.surveys = sampleSurveys()

	_, err := fx.eng.SaveManual(ctx, manager, map[string]any{
		"year": 2024, "round": 1, "course_name": "리더십 과정",
		"start_date": "2024-02-01", "end_date": "2024-02-09", "course_days": 7,
	})
	require.NoError(t, err)

	_, err = fx.eng.Generate(ctx, manager, survey.Filter{Year: 2024, Round: 1})
	require.NoError(t, err)

	got, err := fx.eng.Get(ctx, stats.Key{Year: 2024, Round: 1, CourseName: "리더십 과정"})
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", got.StartDate)
	assert.Equal(t, 7, got.CourseDays)
	assert.Equal(t, stats.SourceManual, got.Source)
	assert.Equal(t, 3, got.EnrolledCount)
}

func TestSaveManualRequiresPrivilege(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.eng.SaveManual(context.Background(), viewer, map[string]any{"course_name": "완료"})
	var authErr *stats.AuthorizationError
	require.ErrorAs(t, err, &authErr)

	_, err = fx.eng.SaveManual(context.Background(), manager, map[string]any{"year": 2024, "round": 1, "course_name": "취소"})
	var ve *stats.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 1, ve.Row)
}

func TestDeleteAndHistory(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	k := stats.Key{Year: 2024, Round: 1, CourseName: "A"}
	_, err := fx.eng.SaveManual(ctx, manager, map[string]any{"year": 2024, "round": 1, "course_name": "A"})
	require.NoError(t, err)

	err = fx.eng.Delete(ctx, viewer, k)
	var authErr *stats.AuthorizationError
	require.ErrorAs(t, err, &authErr)

	require.NoError(t, fx.eng.Delete(ctx, admin, k))
	assert.ErrorIs(t, fx.eng.Delete(ctx, admin, k), stats.ErrNotFound)
	_, err = fx.eng.Get(ctx, k)
	assert.ErrorIs(t, err, stats.ErrNotFound)

	evs, err := fx.eng.History(ctx, k, 10)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, syncx.TypeStatisticUpserted, evs[0].Type)
	assert.Equal(t, syncx.TypeStatisticDeleted, evs[1].Type)
}
