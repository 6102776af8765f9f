package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/packet-anomaly/internal/metrics"
	"github.com/OldStager01/packet-anomaly/internal/orchestrator"
	"github.com/OldStager01/packet-anomaly/internal/simulator"
	"github.com/OldStager01/packet-anomaly/pkg/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(dataDir string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Mode: "development"},
		Detector: config.DetectorConfig{
			Percentile:    95,
			Models:        []string{"plain", "sparse"},
			MaxConcurrent: 1,
		},
		Model: config.ModelConfig{
			BottleneckUnits: 8,
			Epochs:          2,
			BatchSize:       8,
			ValidationSplit: 0.2,
			LearningRate:    0.001,
			Seed:            42,
		},
		API: config.APIConfig{
			JWTSecret:   "test-secret",
			JWTDuration: time.Hour,
			CookieName:  "auth_token",
			DataDir:     dataDir,
		},
		Events: config.EventsConfig{BufferSize: 100},
	}
}

type testEnv struct {
	server *Server
	token  string
}

func newTestEnv(t *testing.T) (*testEnv, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := testConfig(dir)

	orch, err := orchestrator.New(cfg, nil, metrics.New())
	require.NoError(t, err)
	require.NoError(t, orch.Start())

	server := NewServer(cfg, nil, orch, metrics.New())
	t.Cleanup(func() {
		_ = server.Shutdown(context.Background())
		orch.Stop()
	})

	token, err := server.AuthService().GenerateToken(1, "analyst")
	require.NoError(t, err)
	return &testEnv{server: server, token: token}, dir
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func TestServer_PublicRoutes(t *testing.T) {
	env, _ := newTestEnv(t)
	env.token = ""

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/live", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/ready", nil).Code)

	w := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "packet_anomaly_")

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/runs", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodPost, "/auth/login",
		map[string]string{"username": "a", "password": "b"}).Code)
}

func TestServer_RunLifecycle(t *testing.T) {
	env, dir := newTestEnv(t)

	samples := simulator.New(simulator.Config{Records: 60, AnomalyRate: 0.05, Seed: 7}).Generate()
	require.NoError(t, simulator.WriteFile(filepath.Join(dir, "capture.log"), samples))

	w := env.do(t, http.MethodPost, "/runs", map[string][]string{"paths": {"capture.log"}})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var run struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	require.NotEmpty(t, run.ID)

	require.Eventually(t, func() bool {
		w := env.do(t, http.MethodGet, "/runs/"+run.ID+"/status", nil)
		var status struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(w.Body.Bytes(), &status)
		return status.Status == "completed"
	}, 30*time.Second, 50*time.Millisecond)

	w = env.do(t, http.MethodGet, "/runs/"+run.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary struct {
		RecordCount  int    `json:"record_count"`
		AnomalyCount int    `json:"anomaly_count"`
		BestModel    string `json:"best_model"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 60, summary.RecordCount)
	assert.Equal(t, 3, summary.AnomalyCount)
	assert.NotEmpty(t, summary.BestModel)

	w = env.do(t, http.MethodGet, "/runs/"+run.ID+"/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Sparse AutoEncoder")

	w = env.do(t, http.MethodGet, "/runs/"+run.ID+"/records?anomalous=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	assert.Equal(t, 3, records.Count)

	w = env.do(t, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), run.ID)
}

func TestServer_RejectsPathOutsideDataDir(t *testing.T) {
	env, _ := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/runs", map[string][]string{"paths": {"../outside.log"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
