package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/packet-anomaly/pkg/database"
)

// HealthChecker is satisfied by *database.DB.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
	MissingTables(ctx context.Context) ([]string, error)
	GetVersion(ctx context.Context) (string, error)
	PoolStats() database.PoolStats
}

type HealthHandler struct {
	db HealthChecker
}

// NewHealthHandler accepts a nil checker when persistence is disabled.
func NewHealthHandler(db HealthChecker) *HealthHandler {
	return &HealthHandler{db: db}
}

type HealthResponse struct {
	Status    string              `json:"status"`
	Timestamp string              `json:"timestamp"`
	Checks    map[string]string   `json:"checks,omitempty"`
	Pool      *database.PoolStats `json:"pool,omitempty"`
}

// Health godoc
// @Summary Service health
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: now(),
		Checks:    make(map[string]string),
	}

	switch {
	case h.db == nil:
		resp.Checks["database"] = "disabled"
	case h.db.HealthCheck(ctx) != nil:
		resp.Checks["database"] = "unhealthy"
		resp.Status = "unhealthy"
	default:
		resp.Checks["database"] = "healthy"
		if version, err := h.db.GetVersion(ctx); err == nil {
			resp.Checks["database_version"] = version
		}
		pool := h.db.PoolStats()
		resp.Pool = &pool
	}

	statusCode := http.StatusOK
	if resp.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, resp)
}

// Ready godoc
// @Summary Readiness probe
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health/ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			h.notReady(c, "database", "unreachable")
			return
		}
		missing, err := h.db.MissingTables(ctx)
		if err != nil {
			h.notReady(c, "schema", "unknown")
			return
		}
		if len(missing) > 0 {
			h.notReady(c, "schema", "missing tables: "+strings.Join(missing, ", "))
			return
		}
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ready",
		Timestamp: now(),
	})
}

// Live godoc
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health/live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: now(),
	})
}

func (h *HealthHandler) notReady(c *gin.Context, check, reason string) {
	c.JSON(http.StatusServiceUnavailable, HealthResponse{
		Status:    "not ready",
		Timestamp: now(),
		Checks:    map[string]string{check: reason},
	})
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
