package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/packet-anomaly/internal/logger"
	"github.com/OldStager01/packet-anomaly/internal/orchestrator"
	"github.com/OldStager01/packet-anomaly/pkg/config"
	"github.com/OldStager01/packet-anomaly/pkg/database/queries"
	"github.com/OldStager01/packet-anomaly/pkg/models"
	"github.com/OldStager01/packet-anomaly/pkg/validation"
)

// RunManager is the orchestrator surface the API drives.
type RunManager interface {
	StartRun(ctx context.Context, paths []string) (*models.Run, error)
	GetRun(id string) (*models.Run, *models.RunReport, error)
	ListRuns() []*models.Run
	CancelRun(id string) error
}

// RunHistory serves runs that are no longer held in memory. It is satisfied
// by *database.RunStore.
type RunHistory interface {
	GetRun(ctx context.Context, id string) (*queries.RunRow, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*queries.RunRow, error)
	ModelResults(ctx context.Context, runID string) ([]queries.ModelResultRow, error)
	Records(ctx context.Context, runID string, filter queries.RecordFilter) ([]models.ScoredRecord, error)
}

type RunHandler struct {
	manager RunManager
	history RunHistory
	config  config.APIConfig
}

// NewRunHandler accepts a nil history when persistence is disabled.
func NewRunHandler(manager RunManager, history RunHistory, cfg config.APIConfig) *RunHandler {
	return &RunHandler{
		manager: manager,
		history: history,
		config:  cfg,
	}
}

type StartRunRequest struct {
	Paths []string `json:"paths" binding:"required,min=1" example:"captures/eth0.log"`
}

type RunStatusResponse struct {
	ID     string           `json:"id"`
	Status models.RunStatus `json:"status" example:"running"`
	Error  string           `json:"error,omitempty"`
}

type RecordResponse struct {
	Index   int              `json:"index"`
	Record  models.LogRecord `json:"record"`
	Error   float64          `json:"error"`
	Anomaly bool             `json:"anomaly"`
}

// Start godoc
// @Summary Start a detection run
// @Description Parse the given capture logs (relative to the data directory) and score them in the background.
// @Tags Runs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body StartRunRequest true "Capture log paths"
// @Success 202 {object} models.Run
// @Failure 400 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /runs [post]
func (h *RunHandler) Start(c *gin.Context) {
	var req StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	paths, err := validation.SanitizePaths(h.config.DataDir, req.Paths)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := h.manager.StartRun(c.Request.Context(), paths)
	if err != nil {
		if errors.Is(err, orchestrator.ErrShuttingDown) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		logger.Errorf("Failed to start run: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start run"})
		return
	}

	c.Header("Location", "/runs/"+run.ID)
	c.JSON(http.StatusAccepted, run)
}

// List godoc
// @Summary List runs
// @Tags Runs
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]interface{}
// @Router /runs [get]
func (h *RunHandler) List(c *gin.Context) {
	limit, offset := h.parsePage(c)

	if h.history != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		rows, err := h.history.ListRuns(ctx, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch runs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": rows, "count": len(rows)})
		return
	}

	runs := h.manager.ListRuns()
	rows := make([]*queries.RunRow, 0, len(runs))
	for _, run := range page(runs, limit, offset) {
		_, report, _ := h.manager.GetRun(run.ID)
		rows = append(rows, toRunRow(run, report))
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "count": len(rows)})
}

// Get godoc
// @Summary Get a run
// @Tags Runs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Run ID"
// @Success 200 {object} queries.RunRow
// @Failure 404 {object} map[string]string
// @Router /runs/{id} [get]
func (h *RunHandler) Get(c *gin.Context) {
	row, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, row)
}

// Status godoc
// @Summary Get run status
// @Tags Runs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Run ID"
// @Success 200 {object} RunStatusResponse
// @Failure 404 {object} map[string]string
// @Router /runs/{id}/status [get]
func (h *RunHandler) Status(c *gin.Context) {
	row, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, RunStatusResponse{ID: row.ID, Status: row.Status, Error: row.Error})
}

// Cancel godoc
// @Summary Cancel a running detection
// @Tags Runs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Run ID"
// @Success 202 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /runs/{id}/cancel [post]
func (h *RunHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.CancelRun(id); err != nil {
		if errors.Is(err, orchestrator.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel run"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "cancelling"})
}

// Models godoc
// @Summary List the model results of a run
// @Tags Runs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /runs/{id}/models [get]
func (h *RunHandler) Models(c *gin.Context) {
	id := c.Param("id")

	if run, report, err := h.manager.GetRun(id); err == nil {
		if report == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "run has not completed", "status": run.Status})
			return
		}
		rows := toModelRows(report)
		c.JSON(http.StatusOK, gin.H{"run_id": id, "best_model": report.BestModel, "data": rows, "count": len(rows)})
		return
	}

	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if _, err := h.history.GetRun(ctx, id); err != nil {
		h.historyError(c, err)
		return
	}
	rows, err := h.history.ModelResults(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch model results"})
		return
	}

	best := ""
	for _, r := range rows {
		if r.Selected {
			best = r.Name
		}
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "best_model": best, "data": rows, "count": len(rows)})
}

// Records godoc
// @Summary List the scored records of a run
// @Tags Runs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Run ID"
// @Param anomalous query bool false "Only anomalous (true) or only normal (false) records"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /runs/{id}/records [get]
func (h *RunHandler) Records(c *gin.Context) {
	id := c.Param("id")

	filter := queries.RecordFilter{}
	filter.Limit, filter.Offset = h.parsePage(c)
	if raw := c.Query("anomalous"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "anomalous must be true or false"})
			return
		}
		filter.Anomalous = &v
	}

	if run, report, err := h.manager.GetRun(id); err == nil {
		if report == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "run has not completed", "status": run.Status})
			return
		}
		records := toRecordResponses(filterRecords(report.Records, filter))
		c.JSON(http.StatusOK, gin.H{"run_id": id, "data": records, "count": len(records)})
		return
	}

	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if _, err := h.history.GetRun(ctx, id); err != nil {
		h.historyError(c, err)
		return
	}
	stored, err := h.history.Records(ctx, id, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch records"})
		return
	}
	records := toRecordResponses(stored)
	c.JSON(http.StatusOK, gin.H{"run_id": id, "data": records, "count": len(records)})
}

// lookup resolves a run from memory first and the history second, writing
// the error response itself when it fails.
func (h *RunHandler) lookup(c *gin.Context) (*queries.RunRow, bool) {
	id := c.Param("id")

	if run, report, err := h.manager.GetRun(id); err == nil {
		return toRunRow(run, report), true
	}

	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return nil, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	row, err := h.history.GetRun(ctx, id)
	if err != nil {
		h.historyError(c, err)
		return nil, false
	}
	return row, true
}

func (h *RunHandler) historyError(c *gin.Context, err error) {
	if errors.Is(err, queries.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	logger.Errorf("Failed to fetch run: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch run"})
}

func (h *RunHandler) getDefaultLimit() int {
	if h.config.DefaultLimit > 0 {
		return h.config.DefaultLimit
	}
	return 100
}

func (h *RunHandler) getMaxLimit() int {
	if h.config.MaxLimit > 0 {
		return h.config.MaxLimit
	}
	return 1000
}

func (h *RunHandler) parsePage(c *gin.Context) (int, int) {
	limit := h.getDefaultLimit()
	if parsed, err := strconv.Atoi(c.Query("limit")); err == nil && parsed > 0 {
		limit = parsed
	}
	if limit > h.getMaxLimit() {
		limit = h.getMaxLimit()
	}

	offset := 0
	if parsed, err := strconv.Atoi(c.Query("offset")); err == nil && parsed > 0 {
		offset = parsed
	}
	return limit, offset
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func filterRecords(records []models.ScoredRecord, filter queries.RecordFilter) []models.ScoredRecord {
	selected := records
	if filter.Anomalous != nil {
		selected = make([]models.ScoredRecord, 0, len(records))
		for _, rec := range records {
			if rec.Anomaly == *filter.Anomalous {
				selected = append(selected, rec)
			}
		}
	}
	return page(selected, filter.Limit, filter.Offset)
}

func toRunRow(run *models.Run, report *models.RunReport) *queries.RunRow {
	row := &queries.RunRow{
		ID:          run.ID,
		Status:      run.Status,
		Paths:       run.Paths,
		Error:       run.Error,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
	if report != nil {
		threshold := report.Threshold
		row.RecordCount = report.RecordCount
		row.AnomalyCount = report.AnomalyCount
		row.Percentile = report.Percentile
		row.Threshold = &threshold
		row.BestModel = report.BestModel
	}
	return row
}

func toModelRows(report *models.RunReport) []queries.ModelResultRow {
	rows := make([]queries.ModelResultRow, len(report.Models))
	for i, m := range report.Models {
		rows[i] = queries.ModelResultRow{
			Position:            i,
			Name:                m.Name,
			Variant:             m.Variant,
			ReconstructionError: m.ReconstructionError,
			Accuracy:            m.Accuracy,
			TrainingTimeSeconds: m.TrainingTime.Seconds(),
			Selected:            m.Name == report.BestModel,
		}
	}
	return rows
}

func toRecordResponses(records []models.ScoredRecord) []RecordResponse {
	out := make([]RecordResponse, len(records))
	for i, rec := range records {
		out[i] = RecordResponse{
			Index:   rec.Index,
			Record:  rec.Record,
			Error:   rec.Error,
			Anomaly: rec.Anomaly,
		}
	}
	return out
}
