package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/mind-engage/coursestats/internal/auth/middleware"
	"github.com/mind-engage/coursestats/internal/config"
	"github.com/mind-engage/coursestats/internal/db"
	"github.com/mind-engage/coursestats/internal/rbac"
	"github.com/mind-engage/coursestats/internal/stats"
	"github.com/mind-engage/coursestats/internal/storage"
)

type testServer struct {
	handler http.Handler
	authSvc *auth.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dbh, err := db.Open(context.Background(), db.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbh.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	cfg := config.Config{
		SiteID:         "test",
		ImportMaxBytes: 1 << 20,
		AdminUser:      "admin",
		AdminPassHash:  string(hash),
		Accounts: []config.Account{
			{User: "kim", Role: "viewer", PassHash: string(hash)},
			{User: "ghost", Role: "auditor", PassHash: string(hash)},
		},
		CORSOrigins:    []string{"http://localhost:3000"},
	}
	archive, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authSvc := auth.NewAuthService("test-secret")
	eng := newEngine(cfg, dbh, archive, logger)
	return &testServer{handler: newRouter(cfg, eng, authSvc, rbac.NewChecker(nil), dbh, archive), authSvc: authSvc}
}

func (ts *testServer) do(t *testing.T, role, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if role != "" {
		tok, err := ts.authSvc.IssueJWT(role+"-user", role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func multipartCSV(t *testing.T, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusOK, ts.do(t, "", http.MethodGet, "/healthz", nil, "").Code)
	assert.Equal(t, http.StatusOK, ts.do(t, "", http.MethodGet, "/readyz", nil, "").Code)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "", http.MethodPost, "/auth/login", strings.NewReader(`{"username":"admin","password":"pw"}`), "application/json")
	require.Equal(t, http.StatusOK, resp.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body["access_token"])
}

func TestLoginIssuesAccountRole(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "", http.MethodPost, "/auth/login", strings.NewReader(`{"username":"kim","password":"pw"}`), "application/json")
	require.Equal(t, http.StatusOK, resp.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	c, err := ts.authSvc.Parse(body["access_token"])
	require.NoError(t, err)
	assert.Equal(t, "viewer", c.Role)

	resp = ts.do(t, "", http.MethodPost, "/auth/login", strings.NewReader(`{"username":"ghost","password":"pw"}`), "application/json")
	assert.Equal(t, http.StatusUnauthorized, resp.Code, "accounts with unknown roles are not loaded")
}

func TestStatisticsRequireAuthentication(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, "", http.MethodGet, "/statistics", nil, "").Code)
}

func TestImportListDeleteFlow(t *testing.T) {
	ts := newTestServer(t)
	csv := "연도,차수,과정명,수강인원,강사만족도\n2024,1,리더십 과정,30,9.5\n2024,2,A/B 과정,10,\n"

	body, ct := multipartCSV(t, "stats.csv", csv)
	resp := ts.do(t, "viewer", http.MethodPost, "/statistics/import", body, ct)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	body, ct = multipartCSV(t, "stats.csv", csv)
	resp = ts.do(t, "manager", http.MethodPost, "/statistics/import", body, ct)
	require.Equal(t, http.StatusOK, resp.Code)
	var imported struct {
		Rows       int    `json:"rows"`
		ArchiveKey string `json:"archive_key"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&imported))
	assert.Equal(t, 2, imported.Rows)
	require.True(t, strings.HasPrefix(imported.ArchiveKey, "imports/"))

	resp = ts.do(t, "manager", http.MethodGet, "/"+imported.ArchiveKey, nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, csv, resp.Body.String())
	assert.Equal(t, http.StatusForbidden, ts.do(t, "viewer", http.MethodGet, "/"+imported.ArchiveKey, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, "manager", http.MethodGet, "/imports/missing.csv", nil, "").Code)

	resp = ts.do(t, "viewer", http.MethodGet, "/statistics?year=2024", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	var list []stats.CourseStatistic
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 2)
	assert.Equal(t, "A/B 과정", list[0].CourseName)
	assert.Equal(t, stats.SourceImport, list[1].Source)

	keyPath := "/statistics/2024/2/" + url.PathEscape("A/B 과정")
	resp = ts.do(t, "viewer", http.MethodGet, keyPath, nil, "")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.do(t, "manager", http.MethodDelete, keyPath, nil, "")
	assert.Equal(t, http.StatusForbidden, resp.Code, "managers cannot delete")

	resp = ts.do(t, "admin", http.MethodDelete, keyPath, nil, "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	resp = ts.do(t, "admin", http.MethodDelete, keyPath, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.do(t, "viewer", http.MethodGet, keyPath+"/history", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	var history []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	assert.Len(t, history, 2)

	assert.Equal(t, http.StatusOK, ts.do(t, "manager", http.MethodGet, keyPath+"/history", nil, "").Code)
	assert.Equal(t, http.StatusForbidden, ts.do(t, "auditor", http.MethodGet, keyPath+"/history", nil, "").Code)
}

func TestImportRejectedBatch(t *testing.T) {
	ts := newTestServer(t)
	body, ct := multipartCSV(t, "stats.csv", "연도,차수,과정명\n2024,3,완료\n")
	resp := ts.do(t, "manager", http.MethodPost, "/statistics/import", body, ct)
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	var errBody struct {
		Errors []stats.ValidationError `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	require.Len(t, errBody.Errors, 1)
	assert.Equal(t, 2, errBody.Errors[0].Row)
	assert.Equal(t, stats.ReasonStatusAsCourse, errBody.Errors[0].Reason)
}

func TestImportRawBodyTooLarge(t *testing.T) {
	ts := newTestServer(t)
	big := strings.Repeat("x", 2<<20)
	resp := ts.do(t, "manager", http.MethodPost, "/statistics/import?filename=big.csv", strings.NewReader(big), "text/csv")
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
}

func TestJSONBodiesAreCapped(t *testing.T) {
	ts := newTestServer(t)
	big := `{"year":2024,"course_name":"` + strings.Repeat("x", 2<<20) + `"}`

	resp := ts.do(t, "manager", http.MethodPost, "/statistics/generate", strings.NewReader(big), "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
	resp = ts.do(t, "manager", http.MethodPut, "/statistics", strings.NewReader(big), "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
}

func TestSaveManualAndGenerate(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "manager", http.MethodPut, "/statistics",
		strings.NewReader(`{"year":2024,"round":1,"course_name":"코칭 과정","course_days":2,"total_satisfaction":9.25}`), "application/json")
	require.Equal(t, http.StatusOK, resp.Code)
	var saved stats.Candidate
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&saved))
	assert.Equal(t, 2, saved.CourseDays)

	resp = ts.do(t, "manager", http.MethodPut, "/statistics",
		strings.NewReader(`{"year":2024,"round":1,"course_name":"진행 중"}`), "application/json")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = ts.do(t, "manager", http.MethodPost, "/statistics/generate", strings.NewReader(`{"round":1}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.Code, "year is required")

	resp = ts.do(t, "manager", http.MethodPost, "/statistics/generate", strings.NewReader(`{"year":2024}`), "application/json")
	require.Equal(t, http.StatusOK, resp.Code)
	var gen struct {
		Outcome string `json:"outcome"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&gen))
	assert.Equal(t, "noop", gen.Outcome)

	resp = ts.do(t, "viewer", http.MethodPost, "/statistics/generate", strings.NewReader(`{"year":2024}`), "application/json")
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestListQueryValidation(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, "viewer", http.MethodGet, "/statistics?year=abc", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, "viewer", http.MethodGet, "/statistics?year=12", nil, "").Code)

	resp := ts.do(t, "viewer", http.MethodGet, "/statistics", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}
