package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/packet-anomaly/internal/auth"
	"github.com/OldStager01/packet-anomaly/internal/orchestrator"
	"github.com/OldStager01/packet-anomaly/pkg/config"
	"github.com/OldStager01/packet-anomaly/pkg/database"
	"github.com/OldStager01/packet-anomaly/pkg/database/queries"
	"github.com/OldStager01/packet-anomaly/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeManager struct {
	runs    map[string]*models.Run
	reports map[string]*models.RunReport
	started [][]string
	err     error
}

func newFakeManager() *fakeManager {
	return &fakeManager{runs: map[string]*models.Run{}, reports: map[string]*models.RunReport{}}
}

func (f *fakeManager) StartRun(_ context.Context, paths []string) (*models.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.started = append(f.started, paths)
	run := models.NewRun(paths)
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeManager) GetRun(id string) (*models.Run, *models.RunReport, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, nil, orchestrator.ErrRunNotFound
	}
	return run, f.reports[id], nil
}

func (f *fakeManager) ListRuns() []*models.Run {
	out := make([]*models.Run, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, r)
	}
	return out
}

func (f *fakeManager) CancelRun(id string) error {
	if _, ok := f.runs[id]; !ok {
		return orchestrator.ErrRunNotFound
	}
	return nil
}

type fakeHistory struct {
	rows    map[string]*queries.RunRow
	models  []queries.ModelResultRow
	records []models.ScoredRecord
	filter  queries.RecordFilter
}

func (f *fakeHistory) GetRun(_ context.Context, id string) (*queries.RunRow, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, queries.ErrRunNotFound
	}
	return row, nil
}

func (f *fakeHistory) ListRuns(_ context.Context, limit, offset int) ([]*queries.RunRow, error) {
	out := make([]*queries.RunRow, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeHistory) ModelResults(context.Context, string) ([]queries.ModelResultRow, error) {
	return f.models, nil
}

func (f *fakeHistory) Records(_ context.Context, _ string, filter queries.RecordFilter) ([]models.ScoredRecord, error) {
	f.filter = filter
	return f.records, nil
}

func completedRun(m *fakeManager) *models.Run {
	run := models.NewRun([]string{"a.log"})
	run.Status = models.RunStatusCompleted
	m.runs[run.ID] = run
	m.reports[run.ID] = &models.RunReport{
		RunID:        run.ID,
		RecordCount:  3,
		Threshold:    0.5,
		AnomalyCount: 1,
		BestModel:    "Sparse AutoEncoder",
		Models: []models.ModelResult{
			{Name: "AutoEncoder", Accuracy: 0.9},
			{Name: "Sparse AutoEncoder", Accuracy: 0.95},
		},
		Records: []models.ScoredRecord{
			{Index: 0, Error: 0.1},
			{Index: 1, Error: 0.9, Anomaly: true},
			{Index: 2, Error: 0.2},
		},
	}
	return run
}

func runRouter(h *RunHandler) *gin.Engine {
	r := gin.New()
	r.POST("/runs", h.Start)
	r.GET("/runs", h.List)
	r.GET("/runs/:id", h.Get)
	r.GET("/runs/:id/status", h.Status)
	r.POST("/runs/:id/cancel", h.Cancel)
	r.GET("/runs/:id/models", h.Models)
	r.GET("/runs/:id/records", h.Records)
	return r
}

func request(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRunHandler_Start(t *testing.T) {
	dir := t.TempDir()
	m := newFakeManager()
	r := runRouter(NewRunHandler(m, nil, config.APIConfig{DataDir: dir}))

	w := request(r, http.MethodPost, "/runs", StartRunRequest{Paths: []string{"eth0.log"}})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, m.started, 1)
	assert.Equal(t, []string{filepath.Join(dir, "eth0.log")}, m.started[0])
	assert.NotEmpty(t, w.Header().Get("Location"))

	w = request(r, http.MethodPost, "/runs", StartRunRequest{Paths: []string{"../../etc/passwd"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(r, http.MethodPost, "/runs", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	m.err = orchestrator.ErrShuttingDown
	w = request(r, http.MethodPost, "/runs", StartRunRequest{Paths: []string{"eth0.log"}})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRunHandler_GetFromMemory(t *testing.T) {
	m := newFakeManager()
	run := completedRun(m)
	r := runRouter(NewRunHandler(m, nil, config.APIConfig{}))

	w := request(r, http.MethodGet, "/runs/"+run.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Sparse AutoEncoder", body["best_model"])
	assert.EqualValues(t, 1, body["anomaly_count"])

	w = request(r, http.MethodGet, "/runs/"+run.ID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", decode(t, w)["status"])

	w = request(r, http.MethodGet, "/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunHandler_ModelsAndRecords(t *testing.T) {
	m := newFakeManager()
	run := completedRun(m)
	r := runRouter(NewRunHandler(m, nil, config.APIConfig{}))

	w := request(r, http.MethodGet, "/runs/"+run.ID+"/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 2, body["count"])
	data := body["data"].([]interface{})
	assert.Equal(t, true, data[1].(map[string]interface{})["selected"])

	w = request(r, http.MethodGet, "/runs/"+run.ID+"/records?anomalous=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.EqualValues(t, 1, body["count"])

	w = request(r, http.MethodGet, "/runs/"+run.ID+"/records?limit=2&offset=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	records := decode(t, w)["data"].([]interface{})
	require.Len(t, records, 2)
	assert.EqualValues(t, 1, records[0].(map[string]interface{})["index"])

	w = request(r, http.MethodGet, "/runs/"+run.ID+"/records?anomalous=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunHandler_PendingRunConflicts(t *testing.T) {
	m := newFakeManager()
	run := models.NewRun([]string{"a.log"})
	m.runs[run.ID] = run
	r := runRouter(NewRunHandler(m, nil, config.APIConfig{}))

	assert.Equal(t, http.StatusConflict, request(r, http.MethodGet, "/runs/"+run.ID+"/models", nil).Code)
	assert.Equal(t, http.StatusConflict, request(r, http.MethodGet, "/runs/"+run.ID+"/records", nil).Code)
}

func TestRunHandler_HistoryFallback(t *testing.T) {
	threshold := 0.3
	h := &fakeHistory{
		rows: map[string]*queries.RunRow{
			"old": {ID: "old", Status: models.RunStatusCompleted, Threshold: &threshold},
		},
		models:  []queries.ModelResultRow{{Name: "AutoEncoder", Selected: true}},
		records: []models.ScoredRecord{{Index: 4, Anomaly: true}},
	}
	r := runRouter(NewRunHandler(newFakeManager(), h, config.APIConfig{MaxLimit: 10}))

	w := request(r, http.MethodGet, "/runs/old", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "old", decode(t, w)["id"])

	w = request(r, http.MethodGet, "/runs/old/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "AutoEncoder", decode(t, w)["best_model"])

	w = request(r, http.MethodGet, "/runs/old/records?anomalous=false&limit=500", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, h.filter.Anomalous)
	assert.False(t, *h.filter.Anomalous)
	assert.Equal(t, 10, h.filter.Limit)

	w = request(r, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	assert.Equal(t, http.StatusNotFound, request(r, http.MethodGet, "/runs/nope/records", nil).Code)
}

func TestRunHandler_Cancel(t *testing.T) {
	m := newFakeManager()
	run := completedRun(m)
	r := runRouter(NewRunHandler(m, nil, config.APIConfig{}))

	assert.Equal(t, http.StatusAccepted, request(r, http.MethodPost, "/runs/"+run.ID+"/cancel", nil).Code)
	assert.Equal(t, http.StatusNotFound, request(r, http.MethodPost, "/runs/missing/cancel", nil).Code)
}

type fakeUsers struct {
	user *queries.User
	err  error
}

func (f *fakeUsers) GetByUsername(context.Context, string) (*queries.User, error) {
	return f.user, f.err
}

func TestAuthHandler_Login(t *testing.T) {
	hash, err := auth.HashPassword("S3cure!pass")
	require.NoError(t, err)

	svc := auth.NewService("secret", time.Hour)
	users := &fakeUsers{user: &queries.User{ID: 3, Username: "analyst", PasswordHash: hash}}
	h := NewAuthHandler(users, svc, config.APIConfig{CookieName: "auth_token", CookiePath: "/", CookieHTTPOnly: true})

	r := gin.New()
	r.POST("/auth/login", h.Login)

	w := request(r, http.MethodPost, "/auth/login", LoginRequest{Username: "analyst", Password: "S3cure!pass"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3600, resp.ExpiresIn)
	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, 3, claims.UserID)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "auth_token=")

	w = request(r, http.MethodPost, "/auth/login", LoginRequest{Username: "analyst", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	users.user, users.err = nil, queries.ErrUserNotFound
	w = request(r, http.MethodPost, "/auth/login", LoginRequest{Username: "ghost", Password: "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	users.err = errors.New("db down")
	w = request(r, http.MethodPost, "/auth/login", LoginRequest{Username: "ghost", Password: "x"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAuthHandler_NoDatabase(t *testing.T) {
	r := gin.New()
	r.POST("/auth/login", NewAuthHandler(nil, auth.NewService("s", time.Hour), config.APIConfig{}).Login)

	w := request(r, http.MethodPost, "/auth/login", LoginRequest{Username: "a", Password: "b"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type fakeChecker struct {
	err     error
	missing []string
}

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

func (f fakeChecker) MissingTables(context.Context) ([]string, error) { return f.missing, nil }

func (f fakeChecker) GetVersion(context.Context) (string, error) { return "PostgreSQL 16.2", nil }

func (f fakeChecker) PoolStats() database.PoolStats {
	return database.PoolStats{MaxOpen: 25, Open: 2, InUse: 1, Idle: 1}
}

func TestHealthHandler(t *testing.T) {
	r := gin.New()
	r.GET("/health", NewHealthHandler(nil).Health)
	r.GET("/health/ready", NewHealthHandler(fakeChecker{err: errors.New("down")}).Ready)
	r.GET("/health/live", NewHealthHandler(nil).Live)

	w := request(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "disabled", decode(t, w)["checks"].(map[string]interface{})["database"])

	assert.Equal(t, http.StatusServiceUnavailable, request(r, http.MethodGet, "/health/ready", nil).Code)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/health/live", nil).Code)
}

func TestHealthHandler_Database(t *testing.T) {
	r := gin.New()
	r.GET("/health", NewHealthHandler(fakeChecker{}).Health)
	r.GET("/health/ready", NewHealthHandler(fakeChecker{}).Ready)
	r.GET("/unmigrated/ready", NewHealthHandler(fakeChecker{missing: []string{"runs", "run_records"}}).Ready)

	w := request(r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "healthy", checks["database"])
	assert.Equal(t, "PostgreSQL 16.2", checks["database_version"])
	assert.Equal(t, 25.0, body["pool"].(map[string]interface{})["max_open"])

	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/health/ready", nil).Code)

	w = request(r, http.MethodGet, "/unmigrated/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "missing tables: runs, run_records", decode(t, w)["checks"].(map[string]interface{})["schema"])
}
