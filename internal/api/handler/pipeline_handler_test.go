package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-etl-pipeline/internal/model"
	"go-etl-pipeline/internal/store"
	"go-etl-pipeline/pkg/router"
)

type fakeRunner struct {
	mu    sync.Mutex
	dates []model.LogicalDate
}

func (f *fakeRunner) NewRunID() string { return "run-42" }

func (f *fakeRunner) RunWithID(_ context.Context, runID string, date model.LogicalDate) (*model.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dates = append(f.dates, date)
	return &model.RunResult{RunID: runID, Status: model.RunSucceeded}, nil
}

func newTestServer(t *testing.T) (*router.Router, *Handler, *fakeRunner, *store.DB) {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	runner := &fakeRunner{}
	h := NewHandler(context.Background(), runner, db)
	h.now = func() time.Time { return time.Date(2024, 8, 15, 6, 0, 0, 0, time.UTC) }

	r := router.New()
	r.POST("/api/v1/runs", h.CreateRun)
	r.GET("/api/v1/runs", h.ListRuns)
	r.GET("/api/v1/runs/{id}", h.GetRun)
	r.GET("/api/v1/runs/{id}/stages", h.GetRunStages)
	r.GET("/health", h.Health)
	return r, h, runner, db
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestCreateRun(t *testing.T) {
	r, h, runner, _ := newTestServer(t)

	rec := do(r, http.MethodPost, "/api/v1/runs", `{"logical_date":"2024-08-14"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-42", resp.RunID)
	assert.Equal(t, "2024-08-14", resp.LogicalDate)

	h.Wait()
	require.Len(t, runner.dates, 1)
	assert.Equal(t, "2024-08-14", runner.dates[0].String())
}

func TestCreateRunRejectsBadInput(t *testing.T) {
	r, h, runner, _ := newTestServer(t)

	for _, body := range []string{
		`not json`,
		`{}`,
		`{"logical_date":"14.08.2024"}`,
		`{"logical_date":"2024-08-15"}`,
		`{"logical_date":"2024-08-16"}`,
	} {
		rec := do(r, http.MethodPost, "/api/v1/runs", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	h.Wait()
	assert.Empty(t, runner.dates)
}

func TestRunQueries(t *testing.T) {
	r, _, _, db := newTestServer(t)
	ctx := context.Background()
	date, _ := model.ParseLogicalDate("2024-08-14")

	require.NoError(t, db.SaveRun(ctx, "run-1", date))
	require.NoError(t, db.SaveStageTransition(ctx, store.StageTransition{
		RunID: "run-1", Stage: model.StageExtract, Task: "api_to_s3", State: model.StateRunning, Attempt: 1,
	}))
	require.NoError(t, db.UpdateRunStatus(ctx, "run-1", model.RunFailed, model.StageExtract))

	rec := do(r, http.MethodGet, "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []store.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)

	rec = do(r, http.MethodGet, "/api/v1/runs/run-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail RunDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, model.RunFailed, detail.Status)
	assert.Equal(t, "extract", detail.FailedStage)

	rec = do(r, http.MethodGet, "/api/v1/runs/run-1/stages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var transitions []store.StageTransition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &transitions))
	require.Len(t, transitions, 1)
	assert.Equal(t, "api_to_s3", transitions[0].Task)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/runs/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/runs/missing/stages", "").Code)
}

func TestHealth(t *testing.T) {
	r, _, _, _ := newTestServer(t)
	rec := do(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
